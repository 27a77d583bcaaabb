package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/pkg/logging"
)

// VerificationGate is the e-mail confirmation lifecycle.
type VerificationGate interface {
	Send(ctx context.Context, email string) error
	Status(ctx context.Context, email string) (verification.Status, error)
	Confirm(ctx context.Context, email string, session *auth.Session) error
}

// VerificationHandler exposes the confirmation gate to the booking page.
type VerificationHandler struct {
	gate   VerificationGate
	logger *logging.Logger
}

// NewVerificationHandler creates a verification handler.
func NewVerificationHandler(gate VerificationGate, logger *logging.Logger) *VerificationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &VerificationHandler{gate: gate, logger: logger.Component("verification-api")}
}

type emailRequest struct {
	Email string `json:"email"`
}

// Send handles POST /api/verification/send.
func (h *VerificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err := h.gate.Send(r.Context(), req.Email)
	var cooldown *verification.CooldownError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"state": verification.StateSent})
	case errors.As(err, &cooldown):
		seconds := cooldown.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "Too many requests. Please wait before requesting another link.",
			"retry_after_seconds": seconds,
		})
	case errors.Is(err, verification.ErrInvalidEmail):
		jsonError(w, "Please enter a valid email address", http.StatusBadRequest)
	case errors.Is(err, verification.ErrAddressRejected):
		jsonError(w, "This email address cannot receive a confirmation link. Please check it for typos.", http.StatusBadRequest)
	case errors.Is(err, verification.ErrLinkInvalid):
		jsonError(w, "The confirmation link is invalid or has expired. Please request a new one.", http.StatusBadRequest)
	case errors.Is(err, verification.ErrSendFailed):
		jsonError(w, "We could not send the confirmation email. Please try again.", http.StatusBadGateway)
	default:
		h.logger.Error("verification send failed", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

// Status handles GET /api/verification/status?email=.
func (h *VerificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.gate.Status(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		if errors.Is(err, verification.ErrInvalidEmail) {
			jsonError(w, "email is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("verification status failed", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Confirm handles POST /api/verification/confirm. Only a session issued by
// the magic link counts as confirmation.
func (h *VerificationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	err := h.gate.Confirm(r.Context(), req.Email, session)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"state": verification.StateConfirmed})
	case errors.Is(err, verification.ErrSessionRequired):
		jsonError(w, "Please confirm your email address first.", http.StatusUnauthorized)
	case errors.Is(err, verification.ErrSessionMismatch):
		jsonError(w, "Your confirmation belongs to a different email address.", http.StatusForbidden)
	case errors.Is(err, verification.ErrInvalidEmail):
		jsonError(w, "email is required", http.StatusBadRequest)
	default:
		h.logger.Error("verification confirm failed", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
