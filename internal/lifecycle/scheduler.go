package lifecycle

import "time"

// Scheduler is the polled retrain clock. There are no background timers:
// the engine polls it once per evaluation cycle with the current date, so
// backtest-time and live-time code paths are identical.
type Scheduler struct {
	intervalDays int
}

// NewScheduler creates a scheduler with the given retrain interval.
func NewScheduler(intervalDays int) *Scheduler {
	if intervalDays <= 0 {
		intervalDays = DefaultConfig().RetrainIntervalDays
	}
	return &Scheduler{intervalDays: intervalDays}
}

// DaysSince returns whole days elapsed since the last retrain. A zero
// lastRetrain means the model has never been trained and reads as past
// due.
func (s *Scheduler) DaysSince(lastRetrain, now time.Time) int {
	if lastRetrain.IsZero() {
		return s.intervalDays
	}
	return int(now.Sub(lastRetrain).Hours() / 24)
}

// Due reports whether the scheduled retrain interval has elapsed.
func (s *Scheduler) Due(lastRetrain, now time.Time) bool {
	return s.DaysSince(lastRetrain, now) >= s.intervalDays
}
