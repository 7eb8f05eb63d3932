package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

const (
	// OverrideReset restores the configured value.
	OverrideReset = 0
	// OverrideKeep leaves the current value untouched.
	OverrideKeep = -1

	// MaxPollIntervalMS caps the sleep between poll attempts at one day.
	MaxPollIntervalMS = 24 * 60 * 60 * 1000
)

// PollSettingsStore holds the process-wide polling budget shared by every
// orchestration.
type PollSettingsStore struct {
	mu         sync.RWMutex
	configured domain.PollSettings
	current    domain.PollSettings
}

func NewPollSettingsStore(configured domain.PollSettings) *PollSettingsStore {
	defaults := domain.DefaultPollSettings()
	if configured.MaxTries <= 0 {
		configured.MaxTries = defaults.MaxTries
	}
	if configured.Interval <= 0 {
		configured.Interval = defaults.Interval
	}
	return &PollSettingsStore{
		configured: configured,
		current:    configured,
	}
}

func (s *PollSettingsStore) Current() domain.PollSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Configured returns the values a reset goes back to.
func (s *PollSettingsStore) Configured() domain.PollSettings {
	return s.configured
}

// Apply overrides each parameter independently: 0 resets it to the configured
// value, -1 keeps it, anything else replaces it.
func (s *PollSettingsStore) Apply(maxTries, intervalMS int) (domain.PollSettings, error) {
	if maxTries < OverrideKeep {
		return s.Current(), domain.WrapError(domain.ErrInvalidInput, "apply poll settings", fmt.Errorf("maxTries must be >= -1, got %d", maxTries))
	}
	if intervalMS < OverrideKeep {
		return s.Current(), domain.WrapError(domain.ErrInvalidInput, "apply poll settings", fmt.Errorf("sleepIntervalMs must be >= -1, got %d", intervalMS))
	}
	if intervalMS > MaxPollIntervalMS {
		return s.Current(), domain.WrapError(domain.ErrInvalidInput, "apply poll settings", fmt.Errorf("sleepIntervalMs must be <= %d, got %d", MaxPollIntervalMS, intervalMS))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch maxTries {
	case OverrideKeep:
	case OverrideReset:
		s.current.MaxTries = s.configured.MaxTries
	default:
		s.current.MaxTries = maxTries
	}

	switch intervalMS {
	case OverrideKeep:
	case OverrideReset:
		s.current.Interval = s.configured.Interval
	default:
		s.current.Interval = time.Duration(intervalMS) * time.Millisecond
	}

	return s.current, nil
}
