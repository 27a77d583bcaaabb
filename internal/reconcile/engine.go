// Package reconcile persists a booking intent against the customer table:
// it finds the customer by e-mail, appends to an existing record or creates
// a new one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webklar/booking-platform/internal/auth"
	"github.com/webklar/booking-platform/internal/booking"
	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/internal/verification"
	"github.com/webklar/booking-platform/pkg/logging"
)

// Separator is written between booking blocks of a returning customer.
const Separator = "\n\n--- NEW APPOINTMENT ---\n"

const (
	DefaultAdvisor = "Webklar Team"
	DefaultSegment = "Appointment request"

	notifyTimeout = 30 * time.Second
)

// Outcome reports whether a submission created or updated a record.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
)

// Result describes a successful reconciliation.
type Result struct {
	Outcome Outcome
	Record  *customers.Project
	// DuplicateCount is the number of rows that matched the e-mail lookup
	// when more than one did; zero otherwise.
	DuplicateCount int
}

// StorageError is a failed lookup or write. Nothing was persisted and the
// user may retry the same submission.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("reconcile: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UserMessage is safe to show to the person booking.
func (e *StorageError) UserMessage() string {
	return "We could not save your appointment. Please try again."
}

// Store is the subset of customers.Repository the engine uses.
type Store interface {
	FindByEmail(ctx context.Context, email string) ([]*customers.Project, error)
	GetByID(ctx context.Context, id string) (*customers.Project, error)
	Insert(ctx context.Context, p *customers.Project) (*customers.Project, error)
	UpsertByID(ctx context.Context, p *customers.Project) (*customers.Project, error)
}

// Notifier is told about stored bookings. *notify.BookingNotifier satisfies it.
type Notifier interface {
	NotifyBooking(ctx context.Context, p *customers.Project, outcome string) error
}

// Engine reconciles booking intents with stored customer records.
type Engine struct {
	store    Store
	notifier Notifier
	advisor  string
	segment  string
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics
	tracer   trace.Tracer
	pending  sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sends booking notifications after successful writes.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithMetrics records outcomes and duplicate matches.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAdvisor sets the advisor and segment written to every record.
func WithAdvisor(advisor, segment string) Option {
	return func(e *Engine) {
		if advisor != "" {
			e.advisor = advisor
		}
		if segment != "" {
			e.segment = segment
		}
	}
}

// NewEngine creates a reconciliation engine.
func NewEngine(store Store, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:   store,
		advisor: DefaultAdvisor,
		segment: DefaultSegment,
		now:     time.Now,
		logger:  logger.Component("reconcile"),
		tracer:  otel.Tracer("webklar.internal.reconcile"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile persists intent for the authenticated session. A session for the
// booking e-mail is required. Lookup and write errors are returned as
// *StorageError without retrying.
func (e *Engine) Reconcile(ctx context.Context, session *auth.Session, intent booking.Intent) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "reconcile.booking")
	defer span.End()

	if err := verification.RequireSession(session, intent.Email()); err != nil {
		span.SetStatus(codes.Error, "session required")
		return nil, err
	}

	matches, err := e.lookup(ctx, intent.Email())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		e.metrics.ObserveReconcile("error")
		e.logger.Error("failed to look up customer", "error", err, "email", intent.Email())
		return nil, &StorageError{Op: "lookup customer", Err: err}
	}

	block := Narrative(intent)
	appointment := intent.Appointment()
	row := &customers.Project{
		Email:       intent.Email(),
		ContactName: intent.Name(),
		Phone:       intent.Phone(),
		Company:     intent.Company(),
		Description: block,
		Advisor:     e.advisor,
		Segment:     e.segment,
		Appointment: &appointment,
		CreatedAt:   e.now().UTC(),
	}

	result := &Result{Outcome: OutcomeCreated}
	var saved *customers.Project
	if len(matches) > 0 {
		canonical := newest(matches)
		if len(matches) > 1 {
			result.DuplicateCount = len(matches)
			e.metrics.ObserveDuplicate()
			e.logger.Warn("multiple customer records share an email; using the most recent",
				"email", intent.Email(), "matches", len(matches), "customer_id", canonical.ID)
		}
		row.ID = canonical.ID
		row.Description = canonical.Description + Separator + block
		result.Outcome = OutcomeUpdated
		saved, err = e.store.UpsertByID(ctx, row)
		if err == nil && saved == nil {
			err = errors.New("upsert returned no row")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "update failed")
			e.metrics.ObserveReconcile("error")
			e.logger.Error("failed to update customer", "error", err, "customer_id", canonical.ID)
			return nil, &StorageError{Op: "update customer", Err: err}
		}
	} else {
		saved, err = e.store.Insert(ctx, row)
		if err == nil && saved == nil {
			err = errors.New("insert returned no row")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "insert failed")
			e.metrics.ObserveReconcile("error")
			e.logger.Error("failed to create customer", "error", err, "email", intent.Email())
			return nil, &StorageError{Op: "create customer", Err: err}
		}
	}
	result.Record = saved

	span.SetAttributes(
		attribute.String("webklar.booking.outcome", string(result.Outcome)),
		attribute.String("webklar.customer_id", saved.ID),
		attribute.Int("webklar.booking.duplicates", result.DuplicateCount),
	)
	e.metrics.ObserveReconcile(string(result.Outcome))
	e.logger.Info("booking stored", "customer_id", saved.ID, "outcome", result.Outcome, "appointment", appointment.String())

	e.verify(ctx, saved, appointment.String())
	e.notify(ctx, saved, result.Outcome)
	return result, nil
}

// Wait blocks until in-flight notifications have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// lookup tries the trimmed, lower-case and upper-case spellings in turn and
// stops at the first that matches. Identical spellings are queried once.
func (e *Engine) lookup(ctx context.Context, email string) ([]*customers.Project, error) {
	for _, variant := range Variants(email) {
		rows, err := e.store.FindByEmail(ctx, variant)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, nil
}

// verify re-reads the written row. A mismatch is logged only; the write has
// already been acknowledged by the database.
func (e *Engine) verify(ctx context.Context, saved *customers.Project, appointment string) {
	got, err := e.store.GetByID(ctx, saved.ID)
	if err != nil {
		e.logger.Warn("could not re-read stored booking", "error", err, "customer_id", saved.ID)
		return
	}
	if got.Appointment == nil || got.Appointment.String() != appointment {
		e.logger.Warn("stored appointment differs from submission", "customer_id", saved.ID, "want", appointment)
	}
}

func (e *Engine) notify(ctx context.Context, saved *customers.Project, outcome Outcome) {
	if e.notifier == nil {
		return
	}
	p := saved.Clone()
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.NotifyBooking(nctx, p, string(outcome)); err != nil {
			e.logger.Error("booking notification failed", "error", err, "customer_id", p.ID)
		}
	}()
}

// Variants returns the distinct lookup spellings of email: trimmed, lower
// case, upper case.
func Variants(email string) []string {
	trimmed := strings.TrimSpace(email)
	out := make([]string, 0, 3)
	for _, v := range []string{trimmed, strings.ToLower(trimmed), strings.ToUpper(trimmed)} {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// Narrative renders the description block stored for one booking.
func Narrative(intent booking.Intent) string {
	return fmt.Sprintf("%s\n\nAppointment: %s\n\nContact: %s (%s)\nCompany: %s",
		intent.Description(), intent.Appointment().Long(), intent.Name(), intent.Phone(), intent.Company())
}

func newest(rows []*customers.Project) *customers.Project {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	return best
}
