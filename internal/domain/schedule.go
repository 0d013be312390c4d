package domain

import "time"

type ScheduleState struct {
	Enabled bool
	Cadence string
	Running bool
	NextRun time.Time
	LastRun time.Time
}

// NextRunString renders NextRun, or "not scheduled" when disabled or there
// is none.
func (s ScheduleState) NextRunString() string {
	if !s.Enabled || s.NextRun.IsZero() {
		return "not scheduled"
	}
	return s.NextRun.Format("2006-01-02 15:04:05")
}
