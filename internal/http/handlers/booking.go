package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/booking"
	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/reconcile"
	"github.com/webklar/booking-platform/internal/slots"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/internal/wallclock"
	"github.com/webklar/booking-platform/pkg/logging"
)

const maxSlotGroups = 20

// SlotSource offers appointment slots.
type SlotSource interface {
	Slots(ctx context.Context, now time.Time) []slots.Slot
	Pick(ctx context.Context, now time.Time, at wallclock.DateTime) (slots.Slot, error)
}

// Reconciler persists a validated booking.
type Reconciler interface {
	Reconcile(ctx context.Context, session *auth.Session, intent booking.Intent) (*reconcile.Result, error)
}

// BookingHandler serves the public booking funnel.
type BookingHandler struct {
	slots      SlotSource
	reconciler Reconciler
	groups     int
	logger     *logging.Logger
}

// NewBookingHandler creates a booking handler. groups is the default number
// of date groups returned by ListSlots.
func NewBookingHandler(source SlotSource, reconciler Reconciler, groups int, logger *logging.Logger) *BookingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if groups <= 0 {
		groups = slots.DefaultGroups
	}
	return &BookingHandler{
		slots:      source,
		reconciler: reconciler,
		groups:     groups,
		logger:     logger.Component("booking-api"),
	}
}

// SlotsResponse is returned by ListSlots.
type SlotsResponse struct {
	Groups []slots.DateGroup `json:"groups"`
}

// BookingResponse is returned after a booking was stored.
type BookingResponse struct {
	Outcome        reconcile.Outcome  `json:"outcome"`
	Customer       *customers.Project `json:"customer"`
	DuplicateCount int                `json:"duplicate_count,omitempty"`
}

// ValidationResponse carries field errors.
type ValidationResponse struct {
	Errors booking.ValidationErrors `json:"errors"`
}

// ListSlots handles GET /api/slots?groups=N.
func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	n := h.groups
	if raw := r.URL.Query().Get("groups"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			jsonError(w, "groups must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, maxSlotGroups)
	}

	all := h.slots.Slots(r.Context(), clock())
	groups := slots.Upcoming(slots.GroupByDate(all), n)
	if groups == nil {
		groups = []slots.DateGroup{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{Groups: groups})
}

// Validate handles POST /api/bookings/validate. Nothing is persisted.
func (h *BookingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var form booking.Form
	if err := decodeJSON(w, r, &form); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	intent, ok := h.validate(w, r, form)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"email":       intent.Email(),
		"appointment": intent.Appointment(),
	})
}

// Create handles POST /api/bookings. The caller must hold a session for the
// submitted e-mail address.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form booking.Form
	if err := decodeJSON(w, r, &form); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	intent, ok := h.validate(w, r, form)
	if !ok {
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	result, err := h.reconciler.Reconcile(r.Context(), session, intent)
	if err != nil {
		h.writeReconcileError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == reconcile.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, BookingResponse{
		Outcome:        result.Outcome,
		Customer:       result.Record,
		DuplicateCount: result.DuplicateCount,
	})
}

// validate checks the form and that the slot is on offer. A booked slot is
// still accepted; concurrent bookings of one slot are last-writer-wins.
func (h *BookingHandler) validate(w http.ResponseWriter, r *http.Request, form booking.Form) (booking.Intent, bool) {
	intent, err := form.Validate()
	if err != nil {
		if verrs, ok := booking.AsValidationErrors(err); ok {
			writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: verrs})
			return booking.Intent{}, false
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return booking.Intent{}, false
	}

	slot, err := h.slots.Pick(r.Context(), clock(), intent.Appointment())
	if errors.Is(err, slots.ErrNotOffered) {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: booking.ValidationErrors{
			booking.FieldSlot: "The selected appointment slot is not available",
		}})
		return booking.Intent{}, false
	}
	if err == nil && !slot.Available {
		h.logger.Warn("booking an already taken slot", "appointment", slot.At.String())
	}
	return intent, true
}

func (h *BookingHandler) writeReconcileError(w http.ResponseWriter, err error) {
	var storageErr *reconcile.StorageError
	switch {
	case errors.Is(err, verification.ErrSessionRequired):
		jsonError(w, "Please confirm your email address first.", http.StatusUnauthorized)
	case errors.Is(err, verification.ErrSessionMismatch):
		jsonError(w, "Your confirmation belongs to a different email address.", http.StatusForbidden)
	case errors.As(err, &storageErr):
		jsonError(w, storageErr.UserMessage(), http.StatusServiceUnavailable)
	default:
		h.logger.Error("booking failed", "error", err)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
