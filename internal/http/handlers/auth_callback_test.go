package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/identity"
)

type stubExchanger struct {
	session  *identity.Session
	err      error
	gotHash  string
	gotType  string
	numCalls int
}

func (s *stubExchanger) VerifyTokenHash(_ context.Context, tokenHash, linkType string) (*identity.Session, error) {
	s.numCalls++
	s.gotHash, s.gotType = tokenHash, linkType
	return s.session, s.err
}

type recordingConfirmer struct {
	emails []string
	err    error
}

func (r *recordingConfirmer) MarkConfirmed(_ context.Context, email, _ string) error {
	r.emails = append(r.emails, email)
	return r.err
}

func bookingSession() *identity.Session {
	return &identity.Session{
		AccessToken: "jwt-token",
		ExpiresIn:   3600,
		User: identity.User{
			ID:           "user-1",
			Email:        "anna@example.com",
			UserMetadata: map[string]any{identity.MetadataAppointmentBooking: true},
		},
	}
}

func newCallback(ex TokenExchanger, conf ConfirmationRecorder) *CallbackHandler {
	return NewCallbackHandler(ex, conf, CallbackConfig{
		PublicBaseURL:    "https://webklar.com/",
		SuccessPath:      "/success",
		AdminLandingPath: "/kunden-projekte",
		ErrorPath:        "/auth",
		SecureCookie:     true,
	}, testLogger())
}

func TestCallbackBookingUser(t *testing.T) {
	freezeClock(t, wednesday)
	ex := &stubExchanger{session: bookingSession()}
	conf := &recordingConfirmer{}

	rec := httptest.NewRecorder()
	newCallback(ex, conf).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token_hash=abc&type=magiclink&next=/elsewhere", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://webklar.com/success", rec.Header().Get("Location"))
	assert.Equal(t, "abc", ex.gotHash)
	assert.Equal(t, "magiclink", ex.gotType)
	assert.Equal(t, []string{"anna@example.com"}, conf.emails)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, auth.CookieName, c.Name)
	assert.Equal(t, "jwt-token", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestCallbackConfirmFailureStillRedirects(t *testing.T) {
	ex := &stubExchanger{session: bookingSession()}
	conf := &recordingConfirmer{err: errors.New("redis down")}

	rec := httptest.NewRecorder()
	newCallback(ex, conf).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token_hash=abc", nil))

	assert.Equal(t, "https://webklar.com/success", rec.Header().Get("Location"))
}

func TestCallbackAdminUser(t *testing.T) {
	session := bookingSession()
	session.User.UserMetadata = nil

	cases := map[string]string{
		"":                     "https://webklar.com/kunden-projekte",
		"/kunden-liste":        "https://webklar.com/kunden-liste",
		"//evil.example":       "https://webklar.com/kunden-projekte",
		"https://evil.example": "https://webklar.com/kunden-projekte",
	}
	for next, want := range cases {
		conf := &recordingConfirmer{}
		target := "/auth/callback?token_hash=abc"
		if next != "" {
			target += "&next=" + url.QueryEscape(next)
		}
		rec := httptest.NewRecorder()
		newCallback(&stubExchanger{session: session}, conf).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, want, rec.Header().Get("Location"), "next=%q", next)
		assert.Empty(t, conf.emails)
	}
}

func TestCallbackVerifyFailure(t *testing.T) {
	ex := &stubExchanger{err: &identity.APIError{Status: 403, Code: "otp_expired", Message: "Email link is invalid or has expired"}}

	rec := httptest.NewRecorder()
	newCallback(ex, &recordingConfirmer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token_hash=abc", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth", loc.Path)
	assert.Equal(t, "auth_callback_error", loc.Query().Get("error"))
	assert.Equal(t, "Email link is invalid or has expired", loc.Query().Get("error_description"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestCallbackPassesThroughServiceError(t *testing.T) {
	ex := &stubExchanger{}
	rec := httptest.NewRecorder()
	newCallback(ex, &recordingConfirmer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&error_description=Link+expired", nil))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "Link expired", loc.Query().Get("error_description"))
	assert.Zero(t, ex.numCalls)
}

func TestCallbackWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	newCallback(&stubExchanger{}, &recordingConfirmer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, "https://webklar.com/auth", rec.Header().Get("Location"))
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, isLocalPath("/kunden-projekte/123"))
	assert.False(t, isLocalPath(""))
	assert.False(t, isLocalPath("kunden"))
	assert.False(t, isLocalPath("//evil.example"))
	assert.False(t, isLocalPath("/\\evil.example"))
}
