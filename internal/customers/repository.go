package customers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webklar/booking-platform/internal/wallclock"
)

// Repository defines the storage operations on customer projects.
type Repository interface {
	// FindByEmail returns rows whose email equals email exactly, newest first.
	FindByEmail(ctx context.Context, email string) ([]*Project, error)
	GetByID(ctx context.Context, id string) (*Project, error)
	Insert(ctx context.Context, p *Project) (*Project, error)
	// UpsertByID writes the booking columns of p keyed by p.ID, leaving the
	// workflow columns of an existing row untouched.
	UpsertByID(ctx context.Context, p *Project) (*Project, error)
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error
	ListBookedAppointments(ctx context.Context) ([]wallclock.DateTime, error)
	List(ctx context.Context, filter ListFilter) ([]*Project, error)
}

// InMemoryRepository keeps projects in a map. It is used by tests and by the
// API server when no DATABASE_URL is configured.
type InMemoryRepository struct {
	mu       sync.RWMutex
	projects map[string]*Project
	seq      map[string]int
	next     int
	now      func() time.Time
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		projects: make(map[string]*Project),
		seq:      make(map[string]int),
		now:      time.Now,
	}
}

// WithClock overrides the clock used to stamp rows created without a
// CreatedAt.
func (r *InMemoryRepository) WithClock(now func() time.Time) *InMemoryRepository {
	r.now = now
	return r
}

// FindByEmail returns exact matches ordered newest first.
func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Project
	for _, p := range r.projects {
		if p.Email == email {
			out = append(out, p.Clone())
		}
	}
	r.sortNewestFirst(out)
	return out, nil
}

// GetByID retrieves a project by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Insert stores a new project, assigning an id and pending status.
func (r *InMemoryRepository) Insert(ctx context.Context, p *Project) (*Project, error) {
	row := p.Clone()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.AppointmentStatus == "" {
		row.AppointmentStatus = StatusPending
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[row.ID] = row
	r.touch(row.ID)
	return row.Clone(), nil
}

// UpsertByID inserts p or overwrites its booking columns when the id exists.
func (r *InMemoryRepository) UpsertByID(ctx context.Context, p *Project) (*Project, error) {
	if p.ID == "" {
		return nil, ErrMissingID
	}

	r.mu.Lock()
	existing, ok := r.projects[p.ID]
	if !ok {
		r.mu.Unlock()
		return r.Insert(ctx, p)
	}
	defer r.mu.Unlock()

	existing.Email = p.Email
	existing.ContactName = p.ContactName
	existing.Phone = p.Phone
	existing.Company = p.Company
	existing.Description = p.Description
	existing.Advisor = p.Advisor
	existing.Segment = p.Segment
	existing.Appointment = nil
	if p.Appointment != nil {
		appt := *p.Appointment
		existing.Appointment = &appt
	}
	existing.CreatedAt = p.CreatedAt
	if existing.CreatedAt.IsZero() {
		existing.CreatedAt = r.now().UTC()
	}
	r.touch(existing.ID)
	return existing.Clone(), nil
}

// UpdateStatus applies a workflow transition by id.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	if !upd.Status.Valid() {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.AppointmentStatus = upd.Status
	if upd.StartedBy != nil {
		p.StartedBy = *upd.StartedBy
	}
	if upd.StartedAt != nil {
		v := *upd.StartedAt
		p.StartedAt = &v
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		p.CompletedAt = &v
	}
	return nil
}

// ListBookedAppointments returns every non-null appointment.
func (r *InMemoryRepository) ListBookedAppointments(ctx context.Context) ([]wallclock.DateTime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []wallclock.DateTime
	for _, p := range r.projects {
		if p.Appointment != nil {
			out = append(out, *p.Appointment)
		}
	}
	return out, nil
}

// List returns projects matching filter, newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Project
	for _, p := range r.projects {
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	r.sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// touch records write order so equal CreatedAt values still sort stably.
func (r *InMemoryRepository) touch(id string) {
	r.next++
	r.seq[id] = r.next
}

func (r *InMemoryRepository) sortNewestFirst(rows []*Project) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return r.seq[rows[i].ID] > r.seq[rows[j].ID]
	})
}

var _ Repository = (*InMemoryRepository)(nil)
