package push

import (
	"maps"
	"time"
)

// DefaultDailyCeiling is the default number of pushes shown per type per day.
const DefaultDailyCeiling = 10

// PolicyState counts shown notifications per type for one local day.
type PolicyState struct {
	Day        string         `json:"day"`
	DailyCount map[string]int `json:"daily_count"`
}

// dayKey formats t as the local calendar day.
func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// rollover resets the counters when day differs from the stored one.
func (s *PolicyState) rollover(day string) bool {
	if s.Day == day && s.DailyCount != nil {
		return false
	}
	s.Day = day
	s.DailyCount = map[string]int{}
	return true
}

// Count returns the shown count for kind today.
func (s PolicyState) Count(kind NotificationType) int {
	return s.DailyCount[kind.String()]
}

func (s PolicyState) clone() PolicyState {
	out := PolicyState{Day: s.Day, DailyCount: make(map[string]int, len(s.DailyCount))}
	maps.Copy(out.DailyCount, s.DailyCount)
	return out
}

func (s *PolicyState) incr(kind NotificationType) {
	if s.DailyCount == nil {
		s.DailyCount = map[string]int{}
	}
	s.DailyCount[kind.String()]++
}

func (s *PolicyState) decr(kind NotificationType) {
	if s.DailyCount[kind.String()] > 0 {
		s.DailyCount[kind.String()]--
	}
}

// Pending is a push deferred by quiet hours.
type Pending struct {
	ID           string    `json:"id"`
	Payload      Payload   `json:"payload"`
	ReceivedAt   time.Time `json:"received_at"`
	ScheduledFor time.Time `json:"scheduled_for"`
}
