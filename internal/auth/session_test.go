package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signSession(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":           "user-1",
		"email":         "anna@example.com",
		"exp":           time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{"appointment_booking": true},
	}
}

func TestVerifierVerify(t *testing.T) {
	v := NewVerifier("secret")
	token := signSession(t, "secret", validClaims())

	s, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if s.UserID != "user-1" || s.Email != "anna@example.com" || !s.AppointmentBooking {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.AccessToken != token || s.ExpiresAt.IsZero() {
		t.Fatalf("token or expiry not carried: %+v", s)
	}
}

func TestVerifierRejects(t *testing.T) {
	v := NewVerifier("secret")

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noEmail := validClaims()
	delete(noEmail, "email")
	noExp := validClaims()
	delete(noExp, "exp")

	tests := map[string]string{
		"wrong secret": signSession(t, "other", validClaims()),
		"expired":      signSession(t, "secret", expired),
		"no email":     signSession(t, "secret", noEmail),
		"no expiry":    signSession(t, "secret", noExp),
		"garbage":      "not-a-jwt",
	}
	for name, token := range tests {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
	if _, err := NewVerifier("").Verify("x"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected unconfigured verifier to reject, got %v", err)
	}
}

func TestVerifierMetadataDefaultsFalse(t *testing.T) {
	claims := validClaims()
	delete(claims, "user_metadata")
	s, err := NewVerifier("secret").Verify(signSession(t, "secret", claims))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if s.AppointmentBooking {
		t.Fatal("expected appointment booking to default false")
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := TokenFromRequest(req); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	if got := TokenFromRequest(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}
	req.Header.Set("Authorization", "Bearer header-token")
	if got := TokenFromRequest(req); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestSessionContext(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatal("expected no session")
	}
	ctx := WithSession(context.Background(), &Session{Email: "a@b.de"})
	s, ok := SessionFromContext(ctx)
	if !ok || s.Email != "a@b.de" {
		t.Fatalf("unexpected session %+v %v", s, ok)
	}
	if _, ok := SessionFromContext(WithSession(context.Background(), nil)); ok {
		t.Fatal("expected nil session to be absent")
	}
}
