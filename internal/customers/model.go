package customers

import (
	"strings"
	"time"

	"github.com/webklar/booking-platform/internal/wallclock"
)

// Status is the appointment workflow state stored on a project.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus normalizes and validates a status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Project is the customer project record shared by the booking funnel and
// the admin area. Email is the natural key but is not unique in storage.
type Project struct {
	ID                string              `json:"id"`
	Email             string              `json:"email"`
	ContactName       string              `json:"contact_name"`
	Phone             string              `json:"phone"`
	Company           string              `json:"company"`
	Description       string              `json:"description"`
	Advisor           string              `json:"advisor,omitempty"`
	Segment           string              `json:"segment,omitempty"`
	Appointment       *wallclock.DateTime `json:"appointment_at,omitempty"`
	AppointmentStatus Status              `json:"appointment_status"`
	StartedBy         string              `json:"started_by,omitempty"`
	StartedAt         *time.Time          `json:"started_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	// CreatedAt doubles as "last touched": every booking write refreshes it.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Appointment != nil {
		appt := *p.Appointment
		cp.Appointment = &appt
	}
	if p.StartedAt != nil {
		v := *p.StartedAt
		cp.StartedAt = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

// StatusUpdate carries a workflow transition. Nil stamps leave the stored
// value untouched.
type StatusUpdate struct {
	Status      Status
	StartedBy   *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Search string
	Status Status
	Limit  int
}

// Matches applies the filter in memory. Search is a case-insensitive
// substring match on contact name, company and email.
func (f ListFilter) Matches(p *Project) bool {
	if f.Status != "" && p.AppointmentStatus != f.Status {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{p.ContactName, p.Company, p.Email} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
