package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/identity"
	"github.com/webklar/booking-platform/pkg/logging"
)

const unexpectedCallbackError = "An unexpected error occurred."

// TokenExchanger verifies a magic link token hash.
type TokenExchanger interface {
	VerifyTokenHash(ctx context.Context, tokenHash, linkType string) (*identity.Session, error)
}

// ConfirmationRecorder marks an address as confirmed.
type ConfirmationRecorder interface {
	MarkConfirmed(ctx context.Context, email, userID string) error
}

// CallbackConfig holds redirect targets for the magic link callback.
type CallbackConfig struct {
	PublicBaseURL    string
	SuccessPath      string
	AdminLandingPath string
	ErrorPath        string
	SecureCookie     bool
}

// CallbackHandler completes a magic link sign-in.
type CallbackHandler struct {
	exchanger TokenExchanger
	confirmer ConfirmationRecorder
	cfg       CallbackConfig
	logger    *logging.Logger
}

// NewCallbackHandler creates the auth callback handler.
func NewCallbackHandler(exchanger TokenExchanger, confirmer ConfirmationRecorder, cfg CallbackConfig, logger *logging.Logger) *CallbackHandler {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.SuccessPath == "" {
		cfg.SuccessPath = "/success"
	}
	if cfg.AdminLandingPath == "" {
		cfg.AdminLandingPath = "/kunden-projekte"
	}
	if cfg.ErrorPath == "" {
		cfg.ErrorPath = "/auth"
	}
	return &CallbackHandler{
		exchanger: exchanger,
		confirmer: confirmer,
		cfg:       cfg,
		logger:    logger.Component("auth-callback"),
	}
}

// ServeHTTP handles GET /auth/callback?token_hash=&type=&next=.
//
// Booking sign-ins are recorded as confirmed and land on the success page;
// every other sign-in goes to next (when it is a local path) or the admin
// landing page.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if code := q.Get("error"); code != "" {
		h.logger.Warn("auth service reported callback error", "error", code, "description", q.Get("error_description"))
		h.redirectError(w, r, code, q.Get("error_description"))
		return
	}

	tokenHash := strings.TrimSpace(q.Get("token_hash"))
	if tokenHash == "" {
		h.redirect(w, r, h.cfg.ErrorPath)
		return
	}

	session, err := h.exchanger.VerifyTokenHash(r.Context(), tokenHash, q.Get("type"))
	if err != nil {
		h.logger.Error("magic link verification failed", "error", err)
		desc := unexpectedCallbackError
		if apiErr, ok := identity.AsAPIError(err); ok && apiErr.Message != "" {
			desc = apiErr.Message
		}
		h.redirectError(w, r, "auth_callback_error", desc)
		return
	}
	if session == nil || session.AccessToken == "" {
		h.redirectError(w, r, "unexpected_error", unexpectedCallbackError)
		return
	}

	h.setSessionCookie(w, session)
	h.logger.Info("user authenticated", "email", session.User.Email, "appointment_booking", session.User.AppointmentBooking())

	if session.User.AppointmentBooking() {
		if err := h.confirmer.MarkConfirmed(r.Context(), session.User.Email, session.User.ID); err != nil {
			h.logger.Error("failed to record confirmation", "error", err, "email", session.User.Email)
		}
		h.redirect(w, r, h.cfg.SuccessPath)
		return
	}

	target := h.cfg.AdminLandingPath
	if next := q.Get("next"); isLocalPath(next) {
		target = next
	}
	h.redirect(w, r, target)
}

func (h *CallbackHandler) setSessionCookie(w http.ResponseWriter, session *identity.Session) {
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if session.ExpiresIn > 0 {
		cookie.MaxAge = session.ExpiresIn
		cookie.Expires = clock().Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	http.SetCookie(w, cookie)
}

func (h *CallbackHandler) redirectError(w http.ResponseWriter, r *http.Request, code, description string) {
	v := url.Values{}
	v.Set("error", code)
	if description != "" {
		v.Set("error_description", description)
	}
	h.redirect(w, r, h.cfg.ErrorPath+"?"+v.Encode())
}

func (h *CallbackHandler) redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, h.cfg.PublicBaseURL+path, http.StatusFound)
}

// isLocalPath rejects absolute and protocol-relative URLs so next cannot
// send users off-site.
func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
