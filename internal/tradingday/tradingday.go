package tradingday

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/scmhub/calendar"

	"RegimeSentinel/internal/model"
)

// BusinessDays reports whether the exchange trades on a date.
type BusinessDays interface {
	IsBusinessDay(t time.Time) bool
}

type weekdays struct{}

func (weekdays) IsBusinessDay(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

// Sessions answers which daily close is the most recent one.
type Sessions struct {
	days BusinessDays
	loc  *time.Location
	// Close is the session close plus settle time, as an offset from local midnight.
	Close time.Duration
}

// New loads the exchange calendar for mic (ISO 10383, e.g. "xnys"). When the
// calendar cannot be loaded it falls back to Mon-Fri in New York time.
func New(mic string, log zerolog.Logger) *Sessions {
	if cal := calendar.GetCalendar(mic); cal != nil {
		return &Sessions{days: cal, loc: cal.Loc, Close: 16*time.Hour + 30*time.Minute}
	}
	log.Warn().Str("mic", mic).Msg("exchange calendar unavailable, using weekday fallback")
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return NewWith(weekdays{}, loc, 16*time.Hour+30*time.Minute)
}

// NewWith builds Sessions over any business-day source.
func NewWith(days BusinessDays, loc *time.Location, closeAt time.Duration) *Sessions {
	if loc == nil {
		loc = time.UTC
	}
	return &Sessions{days: days, loc: loc, Close: closeAt}
}

// IsTradingDay reports whether the calendar date of d is a session.
func (s *Sessions) IsTradingDay(d time.Time) bool {
	u := model.Day(d)
	return s.days.IsBusinessDay(time.Date(u.Year(), u.Month(), u.Day(), 12, 0, 0, 0, s.loc))
}

// LastClosedSession returns the date (UTC midnight) of the newest session
// whose close has passed at now.
func (s *Sessions) LastClosedSession(now time.Time) time.Time {
	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	d := midnight
	if local.Before(midnight.Add(s.Close)) {
		d = d.AddDate(0, 0, -1)
	}
	for i := 0; i < 31; i++ {
		if s.days.IsBusinessDay(d.Add(12 * time.Hour)) {
			break
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// PreviousSession returns the session before d.
func (s *Sessions) PreviousSession(d time.Time) time.Time {
	u := model.Day(d).AddDate(0, 0, -1)
	for i := 0; i < 31 && !s.IsTradingDay(u); i++ {
		u = u.AddDate(0, 0, -1)
	}
	return u
}
