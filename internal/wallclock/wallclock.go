// Package wallclock models appointment times as calendar components with no
// timezone attached. Values are built from (year, month, day, hour) and are
// never converted through UTC, so a slot chosen as 13:00 is stored and read
// back as 13:00 whatever zone the process or database runs in.
package wallclock

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Layout is the canonical text form written to storage.
const Layout = "2006-01-02T15:04:05"

// ErrInvalidShape is returned for input that does not look like a wall-clock
// date/time. Such input is rejected rather than coerced.
var ErrInvalidShape = errors.New("wallclock: value does not have the expected wall-clock shape")

var (
	dateTimePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::(\d{2}))?$`)
	datePattern     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// DateTime is a local calendar date plus clock time.
type DateTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Date is a local calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a DateTime on the hour. The components must name a real
// calendar date; out-of-range values are an error, not normalized.
func New(year int, month time.Month, day, hour int) (DateTime, error) {
	return build(year, month, day, hour, 0)
}

func build(year int, month time.Month, day, hour, minute int) (DateTime, error) {
	if month < time.January || month > time.December {
		return DateTime{}, fmt.Errorf("%w: month %d", ErrInvalidShape, month)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return DateTime{}, fmt.Errorf("%w: clock %02d:%02d", ErrInvalidShape, hour, minute)
	}
	probe := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if probe.Year() != year || probe.Month() != month || probe.Day() != day {
		return DateTime{}, fmt.Errorf("%w: date %04d-%02d-%02d", ErrInvalidShape, year, int(month), day)
	}
	return DateTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute}, nil
}

// Of takes the calendar components of t in t's own location.
func Of(t time.Time) DateTime {
	y, m, d := t.Date()
	return DateTime{Year: y, Month: m, Day: d, Hour: t.Hour(), Minute: t.Minute()}
}

// Parse reads "YYYY-MM-DDTHH:MM[:SS]" (a space separator is accepted).
// Any zone suffix or fractional part is rejected.
func Parse(s string) (DateTime, error) {
	m := dateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return DateTime{}, fmt.Errorf("%w: %q", ErrInvalidShape, s)
	}
	if m[6] != "" && m[6] != "00" {
		return DateTime{}, fmt.Errorf("%w: seconds in %q", ErrInvalidShape, s)
	}
	return build(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), atoi(m[4]), atoi(m[5]))
}

// FromParts combines a "YYYY-MM-DD" date and an "HH:MM" clock as submitted
// by the booking calendar. Only whole hours are accepted.
func FromParts(date, clock string) (DateTime, error) {
	dm := datePattern.FindStringSubmatch(date)
	if dm == nil {
		return DateTime{}, fmt.Errorf("%w: date %q", ErrInvalidShape, date)
	}
	cm := clockPattern.FindStringSubmatch(clock)
	if cm == nil {
		return DateTime{}, fmt.Errorf("%w: time %q", ErrInvalidShape, clock)
	}
	if cm[2] != "00" {
		return DateTime{}, fmt.Errorf("%w: time %q is not on the hour", ErrInvalidShape, clock)
	}
	return New(atoi(dm[1]), time.Month(atoi(dm[2])), atoi(dm[3]), atoi(cm[1]))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// String renders the canonical storage form, e.g. 2025-12-03T13:00:00.
func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:00", d.Year, int(d.Month), d.Day, d.Hour, d.Minute)
}

// IsZero reports whether d is the zero value.
func (d DateTime) IsZero() bool {
	return d == DateTime{}
}

// Date returns the calendar date part.
func (d DateTime) Date() Date {
	return Date{Year: d.Year, Month: d.Month, Day: d.Day}
}

// SlotKey identifies the (date, hour) a booking occupies. Minutes are
// ignored: two values share a slot when their date and hour match.
func (d DateTime) SlotKey() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d", d.Year, int(d.Month), d.Day, d.Hour)
}

// Clock renders "HH:MM".
func (d DateTime) Clock() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// Long renders the reading for people, e.g. "Wednesday, 03.12.2025 at 13:00".
func (d DateTime) Long() string {
	return fmt.Sprintf("%s, %02d.%02d.%04d at %s", d.Weekday(), d.Day, int(d.Month), d.Year, d.Clock())
}

// Weekday of the calendar date.
func (d DateTime) Weekday() time.Weekday {
	return d.Date().Weekday()
}

// In places the wall-clock reading in loc. Use only for display or
// arithmetic; storage goes through String.
func (d DateTime) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, d.Hour, d.Minute, 0, 0, loc)
}

// MarshalJSON encodes the canonical string form.
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes the canonical string form.
func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// String renders "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Weekday of the date.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// AddDays steps the calendar date, independent of DST.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	y, m, day := t.Date()
	return Date{Year: y, Month: m, Day: day}
}

// At attaches an hour to the date.
func (d Date) At(hour int) DateTime {
	return DateTime{Year: d.Year, Month: d.Month, Day: d.Day, Hour: hour}
}

// Before orders dates chronologically.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// DateOf takes the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}
