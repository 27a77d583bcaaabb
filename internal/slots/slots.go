// Package slots enumerates the bookable appointment slots offered on the
// booking page and marks the ones already taken.
package slots

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/webklar/booking-platform/internal/observability/metrics"
	"github.com/webklar/booking-platform/internal/wallclock"
	"github.com/webklar/booking-platform/pkg/logging"
)

const (
	DefaultHorizonDays = 28
	DefaultGroups      = 3
)

// DefaultHours are the slot start hours offered each weekday.
var DefaultHours = []int{9, 11, 13, 15}

// ErrNotOffered is returned by Pick for a slot outside the offered window.
var ErrNotOffered = errors.New("slots: slot is not offered")

// BookedReader lists the wall-clock values of all stored appointments.
type BookedReader interface {
	ListBookedAppointments(ctx context.Context) ([]wallclock.DateTime, error)
}

// Slot is one offered appointment start.
type Slot struct {
	At        wallclock.DateTime `json:"at"`
	Date      string             `json:"date"`
	Time      string             `json:"time"`
	Available bool               `json:"available"`
}

// DateGroup is the slots of a single calendar date.
type DateGroup struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Slots   []Slot `json:"slots"`
}

// Generator produces candidate slots relative to a reference time.
type Generator struct {
	reader      BookedReader
	horizonDays int
	hours       []int
	location    *time.Location
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithHorizonDays sets how many calendar days the window spans.
func WithHorizonDays(days int) Option {
	return func(g *Generator) {
		if days > 0 {
			g.horizonDays = days
		}
	}
}

// WithHours overrides the daily start hours.
func WithHours(hours ...int) Option {
	return func(g *Generator) {
		if len(hours) > 0 {
			g.hours = append([]int(nil), hours...)
		}
	}
}

// WithLocation sets the zone used to read "today" from the reference time.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.location = loc
		}
	}
}

// WithMetrics records availability fallbacks.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator creates a slot generator backed by reader.
func NewGenerator(reader BookedReader, logger *logging.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = logging.Default()
	}
	g := &Generator{
		reader:      reader,
		horizonDays: DefaultHorizonDays,
		hours:       DefaultHours,
		location:    time.Local,
		logger:      logger.Component("slots"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidates yields every offered slot start in chronological order. The
// window covers horizonDays calendar days from now's date; a weekend start
// moves to the following Monday. Weekends are never offered, and neither
// are today's slots starting at or before the current hour.
func (g *Generator) Candidates(now time.Time) iter.Seq[wallclock.DateTime] {
	local := now.In(g.location)
	today := wallclock.DateOf(local)
	start := windowStart(today)
	return func(yield func(wallclock.DateTime) bool) {
		for i := 0; i < g.horizonDays; i++ {
			day := start.AddDays(i)
			if isWeekend(day.Weekday()) {
				continue
			}
			for _, h := range g.hours {
				if day == today && h <= local.Hour() {
					continue
				}
				if !yield(day.At(h)) {
					return
				}
			}
		}
	}
}

// Slots annotates every candidate with its availability. If bookings cannot
// be read every slot is reported available.
func (g *Generator) Slots(ctx context.Context, now time.Time) []Slot {
	booked := g.booked(ctx)
	var out []Slot
	for c := range g.Candidates(now) {
		_, taken := booked[c.SlotKey()]
		out = append(out, Slot{
			At:        c,
			Date:      c.Date().String(),
			Time:      c.Clock(),
			Available: !taken,
		})
	}
	return out
}

// Pick reports how a requested slot is currently offered. ErrNotOffered is
// returned when the slot lies outside the window or off the hour grid.
func (g *Generator) Pick(ctx context.Context, now time.Time, at wallclock.DateTime) (Slot, error) {
	for c := range g.Candidates(now) {
		if c.SlotKey() != at.SlotKey() || at.Minute != 0 {
			continue
		}
		_, taken := g.booked(ctx)[c.SlotKey()]
		return Slot{At: c, Date: c.Date().String(), Time: c.Clock(), Available: !taken}, nil
	}
	return Slot{}, ErrNotOffered
}

func (g *Generator) booked(ctx context.Context) map[string]struct{} {
	booked := make(map[string]struct{})
	if g.reader == nil {
		return booked
	}
	appointments, err := g.reader.ListBookedAppointments(ctx)
	if err != nil {
		g.logger.Warn("failed to read booked slots; offering all slots", "error", err)
		g.metrics.ObserveSlotFallback()
		return booked
	}
	for _, a := range appointments {
		booked[a.SlotKey()] = struct{}{}
	}
	return booked
}

// GroupByDate groups slots by calendar date, in date order.
func GroupByDate(slots []Slot) []DateGroup {
	var groups []DateGroup
	index := make(map[string]int)
	for _, s := range slots {
		i, ok := index[s.Date]
		if !ok {
			i = len(groups)
			index[s.Date] = i
			groups = append(groups, DateGroup{Date: s.Date, Weekday: s.At.Weekday().String()})
		}
		groups[i].Slots = append(groups[i].Slots, s)
	}
	slices.SortStableFunc(groups, func(a, b DateGroup) int {
		return strings.Compare(a.Date, b.Date)
	})
	return groups
}

// Upcoming returns the nearest n date groups.
func Upcoming(groups []DateGroup, n int) []DateGroup {
	if n <= 0 || n >= len(groups) {
		return groups
	}
	return groups[:n]
}

func windowStart(today wallclock.Date) wallclock.Date {
	switch today.Weekday() {
	case time.Saturday:
		return today.AddDays(2)
	case time.Sunday:
		return today.AddDays(1)
	}
	return today
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
