// Package workflow moves customer appointments through
// pending → running → completed and back to pending.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/webklar/booking-platform/internal/customers"
	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/pkg/logging"
)

var (
	ErrInvalidTransition = errors.New("workflow: invalid status transition")
	ErrNotFound          = errors.New("workflow: customer project not found")
	ErrActorRequired     = errors.New("workflow: actor is required to start an appointment")
)

// Store is the subset of customers.Repository the workflow uses.
type Store interface {
	GetByID(ctx context.Context, id string) (*customers.Project, error)
	UpdateStatus(ctx context.Context, id string, upd customers.StatusUpdate) error
}

// Service applies status transitions. Concurrent transitions on the same
// record are not serialized: the last write wins.
type Service struct {
	store   Store
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	tracer  trace.Tracer
}

// NewService creates a workflow service.
func NewService(store Store, logger *logging.Logger, m *metrics.BookingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:   store,
		now:     time.Now,
		logger:  logger.Component("workflow"),
		metrics: m,
		tracer:  otel.Tracer("webklar.internal.workflow"),
	}
}

// WithClock overrides the clock used for stamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start moves pending → running and records who started it and when.
func (s *Service) Start(ctx context.Context, id, actor string) (*customers.Project, error) {
	if actor == "" {
		return nil, ErrActorRequired
	}
	now := s.now().UTC()
	return s.transition(ctx, id, customers.StatusPending, customers.StatusUpdate{
		Status:    customers.StatusRunning,
		StartedBy: &actor,
		StartedAt: &now,
	})
}

// Complete moves running → completed and stamps completed_at. The start
// stamps are kept.
func (s *Service) Complete(ctx context.Context, id string) (*customers.Project, error) {
	now := s.now().UTC()
	return s.transition(ctx, id, customers.StatusRunning, customers.StatusUpdate{
		Status:      customers.StatusCompleted,
		CompletedAt: &now,
	})
}

// Reset moves completed → pending. Start and completion stamps persist.
func (s *Service) Reset(ctx context.Context, id string) (*customers.Project, error) {
	return s.transition(ctx, id, customers.StatusCompleted, customers.StatusUpdate{
		Status: customers.StatusPending,
	})
}

// Apply dispatches to Start, Complete or Reset based on the target status.
func (s *Service) Apply(ctx context.Context, id string, target customers.Status, actor string) (*customers.Project, error) {
	switch target {
	case customers.StatusRunning:
		return s.Start(ctx, id, actor)
	case customers.StatusCompleted:
		return s.Complete(ctx, id)
	case customers.StatusPending:
		return s.Reset(ctx, id)
	}
	return nil, fmt.Errorf("%w: unknown target %q", ErrInvalidTransition, target)
}

func (s *Service) transition(ctx context.Context, id string, from customers.Status, upd customers.StatusUpdate) (*customers.Project, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("webklar.customer_id", id),
		attribute.String("webklar.status.to", string(upd.Status)),
	)

	current, err := s.get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if current.AppointmentStatus != from {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.AppointmentStatus, upd.Status)
	}

	if err := s.store.UpdateStatus(ctx, id, upd); err != nil {
		span.RecordError(err)
		if errors.Is(err, customers.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workflow: update status: %w", err)
	}
	s.metrics.ObserveTransition(string(from), string(upd.Status))
	s.logger.Info("appointment status changed", "customer_id", id, "from", from, "to", upd.Status)

	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (*customers.Project, error) {
	p, err := s.store.GetByID(ctx, id)
	if errors.Is(err, customers.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workflow: load project: %w", err)
	}
	return p, nil
}
