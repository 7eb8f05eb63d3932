package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/ports"
)

// pollStep runs one attempt and reports whether the loop is finished.
type pollStep func(ctx context.Context, attempt int) (result domain.CallResult, done bool, err error)

type poller struct {
	settings ports.PollConfigurer
	observer ports.OrchestrationObserver
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func newPoller(settings ports.PollConfigurer, observer ports.OrchestrationObserver) poller {
	return poller{
		settings: settings,
		observer: observer,
		sleep:    sleepContext,
	}
}

// run calls step until it reports done or the attempt budget is spent. The
// first attempt happens immediately. When the budget runs out the last result
// is returned without an error. A cancelled context interrupts the wait and
// is returned together with the last result.
func (p poller) run(ctx context.Context, kind string, step pollStep) (domain.CallResult, error) {
	settings := p.settings.Current()
	var last domain.CallResult

	for attempt := 1; attempt <= settings.MaxTries; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, settings.Interval); err != nil {
				slog.Warn("poll_interrupted", "kind", kind, "attempt", attempt, "error", err.Error())
				return last, err
			}
		}

		if settings.SlowAttempt(attempt) {
			slog.Warn("poll_slow",
				"kind", kind,
				"attempt", attempt,
				"max_tries", settings.MaxTries,
				"last_status_code", last.StatusCode,
			)
		}

		p.observer.ObservePollAttempt(kind)
		result, done, err := step(ctx, attempt)
		if err != nil {
			return result, err
		}
		last = result
		if done {
			return result, nil
		}
	}

	slog.Warn("poll_exhausted", "kind", kind, "max_tries", settings.MaxTries, "status_code", last.StatusCode)
	return last, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopObserver struct{}

func (noopObserver) ObserveOrchestration(string, string, float64) {}
func (noopObserver) ObservePollAttempt(string)                    {}
func (noopObserver) ObserveItem(string, domain.ItemState)         {}

func observerOrNoop(observer ports.OrchestrationObserver) ports.OrchestrationObserver {
	if observer == nil {
		return noopObserver{}
	}
	return observer
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func outcomeLabel(result domain.CallResult, err error) string {
	if err != nil {
		return "error"
	}
	return result.Outcome().String()
}
