// Package auth verifies the access tokens issued by the hosted auth service
// and carries the resulting session through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie holding the access token after the magic link
// callback.
const CookieName = "webklar_session"

var (
	ErrMissingToken = errors.New("auth: missing access token")
	ErrInvalidToken = errors.New("auth: invalid access token")
)

// Session is an authenticated user of the booking flow.
type Session struct {
	UserID             string
	Email              string
	AppointmentBooking bool
	AccessToken        string
	ExpiresAt          time.Time
}

type sessionClaims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens signed with the auth project's
// JWT secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses token and returns the session it describes.
func (v *Verifier) Verify(token string) (*Session, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: verifier not configured", ErrInvalidToken)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidToken)
	}

	booking, _ := claims.UserMetadata["appointment_booking"].(bool)
	s := &Session{
		UserID:             claims.Subject,
		Email:              claims.Email,
		AppointmentBooking: booking,
		AccessToken:        token,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// TokenFromRequest reads a bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

type ctxKey string

const sessionKey ctxKey = "webklar.session"

// WithSession stores the session in context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext extracts the session if present.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
