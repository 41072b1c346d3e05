package periodrunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var _ PeriodRunner = (*LocalPeriodRunner)(nil)

// LocalPeriodRunner implements PeriodRunner on the local clock.
// An event is emitted at genesis + K * interval. Handler calls run sequentially on the
// runner goroutine; periods that pass during a slow call are skipped, not replayed.
type LocalPeriodRunner struct {
	log zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	handler     PeriodCallback
	interval    time.Duration
	now         func() time.Time
	genesisTime time.Time
}

// NewLocalPeriodRunner constructs a LocalPeriodRunner using local time.
// If config.Handler is nil, SetHandler must be called before Start.
func NewLocalPeriodRunner(cfg PeriodRunnerConfig) *LocalPeriodRunner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &LocalPeriodRunner{
		handler:     cfg.Handler,
		interval:    cfg.Interval,
		now:         cfg.Now,
		genesisTime: cfg.GenesisTime,
		log:         cfg.Logger,
		done:        closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// SetHandler sets the handler to be called whenever a new period ticks.
func (r *LocalPeriodRunner) SetHandler(handler PeriodCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

// Start begins emitting period events until the context is canceled or Stop is called.
func (r *LocalPeriodRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handler == nil {
		return errors.New("period runner requires a handler to start")
	}
	if r.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	r.done = make(chan struct{})

	if r.genesisTime.IsZero() {
		r.genesisTime = r.now()
	}

	go r.run(runCtx, r.handler, r.done)
	return nil
}

// Stop halts the runner and waits for an in-flight handler call to return, or for ctx.
func (r *LocalPeriodRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current run loop exits, and is already closed before Start.
func (r *LocalPeriodRunner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// run emits the current period, then sleeps until the next period boundary.
// When a handler call overruns one or more boundaries only the latest period is emitted.
func (r *LocalPeriodRunner) run(ctx context.Context, handler PeriodCallback, done chan struct{}) {
	defer close(done)

	var (
		lastEmitted uint64
		hasEmitted  bool
	)

	timer := time.NewTimer(r.untilNext(r.now(), hasEmitted, lastEmitted))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := r.now()
		if !now.Before(r.genesisTime) {
			currentID, start := r.PeriodForTime(now)
			if !hasEmitted || currentID > lastEmitted {
				var skipped uint64
				if hasEmitted && currentID > lastEmitted+1 {
					skipped = currentID - lastEmitted - 1
					r.log.Warn().
						Uint64("period_id", currentID).
						Uint64("skipped", skipped).
						Msg("Skipping periods missed by a slow cycle")
				}
				r.emit(ctx, handler, PeriodInfo{
					PeriodID:  currentID,
					StartedAt: start,
					Duration:  r.interval,
					Skipped:   skipped,
				})
				lastEmitted = currentID
				hasEmitted = true
			}
		}

		timer.Reset(r.untilNext(r.now(), hasEmitted, lastEmitted))
	}
}

// untilNext returns the wait before the next emission check.
func (r *LocalPeriodRunner) untilNext(now time.Time, hasEmitted bool, lastEmitted uint64) time.Duration {
	if now.Before(r.genesisTime) {
		return r.genesisTime.Sub(now)
	}
	if !hasEmitted {
		return 0
	}
	delay := r.periodStart(lastEmitted + 1).Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

// emit triggers the handler. Errors are logged; the next period still runs.
func (r *LocalPeriodRunner) emit(ctx context.Context, handler PeriodCallback, info PeriodInfo) {
	if err := handler(ctx, info); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Error().Err(err).Uint64("period_id", info.PeriodID).Msg("Period handler returned error")
	}
}

// PeriodForTime returns the period ID and the corresponding period start time for the given timestamp.
func (r *LocalPeriodRunner) PeriodForTime(t time.Time) (uint64, time.Time) {
	if t.Before(r.genesisTime) {
		return 0, r.genesisTime
	}

	elapsed := t.Sub(r.genesisTime)
	currentPeriod := uint64(elapsed / r.interval)
	return currentPeriod, r.periodStart(currentPeriod)
}

func (r *LocalPeriodRunner) periodStart(periodID uint64) time.Time {
	return r.genesisTime.Add(time.Duration(periodID) * r.interval)
}
