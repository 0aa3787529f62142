// Package period derives the settlement window for a calendar date.
package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/acme/settlement/internal/domain"
)

// Calendar decides which day precedes a settlement date. Business-day rules
// (weekends, holidays) plug in here.
type Calendar interface {
	PreviousBusinessDay(day time.Time) time.Time
}

// EveryDay treats every calendar day as a business day.
type EveryDay struct{}

func (EveryDay) PreviousBusinessDay(day time.Time) time.Time {
	return day.AddDate(0, 0, -1)
}

// Calculator computes settlement periods. The zero value is not usable; use
// NewCalculator.
type Calculator struct {
	calendar Calendar
	now      func() time.Time
	earliest time.Time
}

type Option func(*Calculator)

func WithCalendar(cal Calendar) Option { return func(c *Calculator) { c.calendar = cal } }

func WithClock(now func() time.Time) Option { return func(c *Calculator) { c.now = now } }

// WithEarliest rejects dates before day. A zero time disables the bound.
func WithEarliest(day time.Time) Option { return func(c *Calculator) { c.earliest = day } }

func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{calendar: EveryDay{}, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute parses date (YYYY-MM-DD) in loc and returns its period: from the last
// instant of the previous business day through the last instant of date.
func (c *Calculator) Compute(date string, loc *time.Location) (domain.SettlementPeriod, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
	if err != nil {
		return domain.SettlementPeriod{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", domain.ErrInvalidDate, date)
	}

	today := c.now().In(loc)
	if day.After(startOfDay(today)) {
		return domain.SettlementPeriod{}, fmt.Errorf("%w: %s is in the future", domain.ErrInvalidDate, date)
	}
	if !c.earliest.IsZero() {
		y, m, d := c.earliest.Date()
		if day.Before(time.Date(y, m, d, 0, 0, 0, 0, loc)) {
			return domain.SettlementPeriod{}, fmt.Errorf("%w: %s is before %s", domain.ErrInvalidDate, date, c.earliest.Format(time.DateOnly))
		}
	}

	return domain.SettlementPeriod{
		Start: endOfDay(c.calendar.PreviousBusinessDay(day)),
		End:   endOfDay(day),
	}, nil
}

// ResolveLocation loads an IANA zone. An empty name is UTC; an unknown name
// falls back to UTC and reports ok=false.
func ResolveLocation(name string) (loc *time.Location, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, true
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last microsecond of t's day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Microsecond), t.Location())
}
