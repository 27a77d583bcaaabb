// Package verification gates bookings behind a confirmed e-mail address:
// it sends magic links, enforces the resend cooldown and checks that a
// submission carries an authenticated session for the booking e-mail.
package verification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/booking"
	"github.com/webklar/booking-platform/internal/identity"
	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/pkg/logging"
)

// DefaultCooldown is the wait imposed after the auth service rate-limits a
// send.
const DefaultCooldown = 60 * time.Second

// State is the verification progress of an e-mail address.
type State string

const (
	StateUnsent    State = "unsent"
	StateSent      State = "sent"
	StateConfirmed State = "confirmed"
)

var (
	ErrSessionRequired = errors.New("verification: please confirm your email address first")
	ErrSessionMismatch = errors.New("verification: session belongs to a different email address")
	ErrLinkInvalid     = errors.New("verification: the confirmation link is invalid or has expired, please request a new one")
	ErrSendFailed      = errors.New("verification: could not send confirmation email, please try again")
	ErrInvalidEmail    = errors.New("verification: email is required")
	ErrAddressRejected = errors.New("verification: this email address cannot receive a confirmation link")
)

// CooldownError is returned while resending is blocked.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("verification: too many requests, retry in %d seconds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (e *CooldownError) RetryAfterSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// LinkSender delivers magic links. *identity.Client satisfies it.
type LinkSender interface {
	SendMagicLink(ctx context.Context, req identity.MagicLinkRequest) error
}

// Status is the externally visible verification state.
type Status struct {
	State             State         `json:"state"`
	CooldownRemaining time.Duration `json:"-"`
	RetryAfterSeconds int           `json:"retry_after_seconds"`
	CanResend         bool          `json:"can_resend"`
}

// Gate drives the unsent → sent → confirmed lifecycle.
type Gate struct {
	sender      LinkSender
	store       StateStore
	redirectURL string
	cooldown    time.Duration
	now         func() time.Time
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.cooldown = d
		}
	}
}

// WithMetrics records send outcomes.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock overrides the clock used for stamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate creates a verification gate. redirectURL is where the magic link
// lands after the auth service verifies it.
func NewGate(sender LinkSender, store StateStore, redirectURL string, logger *logging.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	g := &Gate{
		sender:      sender,
		store:       store,
		redirectURL: redirectURL,
		cooldown:    DefaultCooldown,
		now:         time.Now,
		logger:      logger.Component("verification"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Normalize is the key under which an address is tracked.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Send e-mails a magic link for the booking flow. It is refused with a
// CooldownError while a cooldown is active; a rate-limit answer from the
// auth service starts one. Failures are not retried.
func (g *Gate) Send(ctx context.Context, email string) error {
	key := Normalize(email)
	if key == "" {
		return ErrInvalidEmail
	}
	if !booking.ValidEmail(key) {
		g.metrics.ObserveVerificationSend("address_rejected")
		return ErrAddressRejected
	}

	remaining, err := g.store.CooldownRemaining(ctx, key)
	if err != nil {
		return fmt.Errorf("verification: send: %w", err)
	}
	if remaining > 0 {
		g.metrics.ObserveVerificationSend("cooldown")
		return &CooldownError{Remaining: remaining}
	}

	err = g.sender.SendMagicLink(ctx, identity.MagicLinkRequest{
		Email:      strings.TrimSpace(email),
		RedirectTo: g.redirectURL,
		Data:       map[string]any{identity.MetadataAppointmentBooking: true},
	})
	if err != nil {
		return g.classifySendError(ctx, key, err)
	}

	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("verification: send: %w", err)
	}
	if rec.State != StateConfirmed {
		rec.State = StateSent
	}
	rec.SentAt = g.now().UTC()
	if err := g.store.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("verification: send: %w", err)
	}
	g.metrics.ObserveVerificationSend("sent")
	g.logger.Info("verification link sent", "email", key)
	return nil
}

func (g *Gate) classifySendError(ctx context.Context, key string, err error) error {
	apiErr, ok := identity.AsAPIError(err)
	switch {
	case ok && apiErr.RateLimited():
		if cerr := g.store.StartCooldown(ctx, key, g.cooldown); cerr != nil {
			g.logger.Error("failed to start verification cooldown", "error", cerr, "email", key)
		}
		g.metrics.ObserveVerificationSend("rate_limited")
		g.logger.Warn("verification send rate limited", "email", key, "cooldown", g.cooldown.String())
		return &CooldownError{Remaining: g.cooldown}
	case ok && apiErr.AddressRejected():
		g.metrics.ObserveVerificationSend("address_rejected")
		g.logger.Warn("auth service rejected address", "email", key, "code", apiErr.Code)
		return ErrAddressRejected
	case ok && apiErr.LinkInvalid():
		g.metrics.ObserveVerificationSend("link_invalid")
		return ErrLinkInvalid
	default:
		g.metrics.ObserveVerificationSend("error")
		g.logger.Error("verification send failed", "error", err, "email", key)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
}

// Status reports the state and cooldown for email.
func (g *Gate) Status(ctx context.Context, email string) (Status, error) {
	key := Normalize(email)
	if key == "" {
		return Status{}, ErrInvalidEmail
	}
	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("verification: status: %w", err)
	}
	remaining, err := g.store.CooldownRemaining(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("verification: status: %w", err)
	}
	state := rec.State
	if state == "" {
		state = StateUnsent
	}
	return Status{
		State:             state,
		CooldownRemaining: remaining,
		RetryAfterSeconds: (&CooldownError{Remaining: remaining}).RetryAfterSeconds(),
		CanResend:         remaining <= 0,
	}, nil
}

// Confirm marks email confirmed. It requires an authenticated session for
// that same address.
func (g *Gate) Confirm(ctx context.Context, email string, session *auth.Session) error {
	if err := RequireSession(session, email); err != nil {
		return err
	}
	return g.MarkConfirmed(ctx, email, session.UserID)
}

// MarkConfirmed records a confirmation established by the auth callback.
func (g *Gate) MarkConfirmed(ctx context.Context, email, userID string) error {
	key := Normalize(email)
	if key == "" {
		return ErrInvalidEmail
	}
	rec, err := g.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("verification: confirm: %w", err)
	}
	rec.State = StateConfirmed
	rec.ConfirmedAt = g.now().UTC()
	if userID != "" {
		rec.UserID = userID
	}
	if err := g.store.Put(ctx, key, rec); err != nil {
		return fmt.Errorf("verification: confirm: %w", err)
	}
	return nil
}

// RequireSession is the hard precondition for persisting a booking: an
// authenticated session must be present and belong to email.
func RequireSession(session *auth.Session, email string) error {
	if session == nil || strings.TrimSpace(session.Email) == "" {
		return ErrSessionRequired
	}
	if Normalize(session.Email) != Normalize(email) {
		return ErrSessionMismatch
	}
	return nil
}
