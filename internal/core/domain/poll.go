package domain

import "time"

const (
	DefaultPollMaxTries   = 10
	DefaultPollIntervalMS = 3000
)

// PollSettings bounds every "poll until done" loop.
type PollSettings struct {
	MaxTries int
	Interval time.Duration
}

func DefaultPollSettings() PollSettings {
	return PollSettings{
		MaxTries: DefaultPollMaxTries,
		Interval: DefaultPollIntervalMS * time.Millisecond,
	}
}

// SlowAttempt reports whether attempt is past half of the budget.
func (s PollSettings) SlowAttempt(attempt int) bool {
	return attempt > s.MaxTries/2
}
