// Package booking validates appointment request submissions from the
// booking page and turns them into booking intents.
package booking

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/webklar/booking-platform/internal/wallclock"
)

// Field keys used in ValidationErrors.
const (
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldCompany     = "company"
	FieldEmail       = "email"
	FieldDescription = "description"
	// FieldSlot reports slot problems separately from the text fields.
	FieldSlot = "slot"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// SlotChoice is the date and time picked in the booking calendar.
type SlotChoice struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Form is a raw booking submission.
type Form struct {
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Company     string      `json:"company"`
	Email       string      `json:"email"`
	Description string      `json:"description"`
	Slot        *SlotChoice `json:"slot,omitempty"`
}

// ValidationErrors maps field keys to user-facing messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "booking: invalid form: " + strings.Join(parts, "; ")
}

// Intent is a validated booking request. It is immutable once built.
type Intent struct {
	name        string
	phone       string
	company     string
	email       string
	description string
	appointment wallclock.DateTime
}

func (i Intent) Name() string                    { return i.name }
func (i Intent) Phone() string                   { return i.phone }
func (i Intent) Company() string                 { return i.company }
func (i Intent) Email() string                   { return i.email }
func (i Intent) Description() string             { return i.description }
func (i Intent) Appointment() wallclock.DateTime { return i.appointment }

// Validate checks the form. On success it returns an Intent with trimmed
// values; otherwise the error is a ValidationErrors.
func (f Form) Validate() (Intent, error) {
	errs := ValidationErrors{}
	required := []struct {
		key, value, message string
	}{
		{FieldName, f.Name, "Name is required"},
		{FieldPhone, f.Phone, "Phone number is required"},
		{FieldCompany, f.Company, "Company is required"},
		{FieldEmail, f.Email, "Email is required"},
		{FieldDescription, f.Description, "Project description is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs[r.key] = r.message
		}
	}

	email := strings.TrimSpace(f.Email)
	if _, missing := errs[FieldEmail]; !missing && !ValidEmail(email) {
		errs[FieldEmail] = "Please enter a valid email address"
	}

	var appointment wallclock.DateTime
	if f.Slot == nil || (strings.TrimSpace(f.Slot.Date) == "" && strings.TrimSpace(f.Slot.Time) == "") {
		errs[FieldSlot] = "Please choose an appointment slot"
	} else {
		dt, err := wallclock.FromParts(strings.TrimSpace(f.Slot.Date), strings.TrimSpace(f.Slot.Time))
		if err != nil {
			errs[FieldSlot] = "The selected appointment slot is not valid"
		} else {
			appointment = dt
		}
	}

	if len(errs) > 0 {
		return Intent{}, errs
	}
	return Intent{
		name:        strings.TrimSpace(f.Name),
		phone:       strings.TrimSpace(f.Phone),
		company:     strings.TrimSpace(f.Company),
		email:       email,
		description: strings.TrimSpace(f.Description),
		appointment: appointment,
	}, nil
}

// AsValidationErrors unwraps err into ValidationErrors.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
