package push

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeOfDay is returned for a malformed "HH:MM" value.
var ErrInvalidTimeOfDay = errors.New("push: invalid time of day")

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// QuietHours is a daily window, which may wrap midnight, during which only
// urgent pushes are shown.
type QuietHours struct {
	Enabled  bool
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// DefaultQuietHours is 22:00 to 08:00 London time.
func DefaultQuietHours() QuietHours {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	return QuietHours{
		Enabled:  true,
		Start:    TimeOfDay{Hour: 22},
		End:      TimeOfDay{Hour: 8},
		Location: loc,
	}
}

func (q QuietHours) local(t time.Time) time.Time {
	if q.Location == nil {
		return t
	}
	return t.In(q.Location)
}

// Contains reports whether t falls inside the window. The start is inclusive
// and the end exclusive.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled || q.Start == q.End {
		return false
	}
	t = q.local(t)
	now := t.Hour()*60 + t.Minute()
	start, end := q.Start.minutes(), q.End.minutes()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// NextEnd returns the first window end strictly after t.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	lt := q.local(t)
	end := time.Date(lt.Year(), lt.Month(), lt.Day(), q.End.Hour, q.End.Minute, 0, 0, lt.Location())
	if !end.After(lt) {
		end = time.Date(lt.Year(), lt.Month(), lt.Day()+1, q.End.Hour, q.End.Minute, 0, 0, lt.Location())
	}
	return end
}
