package periodrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func nextEvent(t *testing.T, events <-chan PeriodInfo) PeriodInfo {
	t.Helper()
	select {
	case info := <-events:
		return info
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for period emission")
		return PeriodInfo{}
	}
}

func TestLocalPeriodRunnerSkipsMissedPeriods(t *testing.T) {
	t.Parallel()

	period := 20 * time.Millisecond
	genesis := time.Unix(1000, 0)
	clock := &fakeClock{current: genesis.Add(5 * period)}

	events := make(chan PeriodInfo, 10)
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{
		Handler: func(_ context.Context, info PeriodInfo) error {
			events <- info
			return nil
		},
		Interval:    period,
		GenesisTime: genesis,
		Now:         clock.Now,
		Logger:      zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop(context.Background())

	info := nextEvent(t, events)
	require.Equal(t, uint64(5), info.PeriodID)
	require.Equal(t, genesis.Add(5*period), info.StartedAt)
	require.Equal(t, period, info.Duration)
	require.Zero(t, info.Skipped)

	clock.Set(genesis.Add(8 * period))

	info = nextEvent(t, events)
	require.Equal(t, uint64(8), info.PeriodID)
	require.Equal(t, uint64(2), info.Skipped)

	select {
	case extra := <-events:
		t.Fatalf("unexpected replay of period %d", extra.PeriodID)
	case <-time.After(3 * period):
	}
}

func TestLocalPeriodRunnerWaitsForGenesis(t *testing.T) {
	t.Parallel()

	period := 15 * time.Millisecond
	genesis := time.Unix(2000, 0)
	clock := &fakeClock{current: genesis.Add(-period / 2)}

	events := make(chan PeriodInfo, 2)
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{
		Handler: func(_ context.Context, info PeriodInfo) error {
			events <- info
			return nil
		},
		Interval:    period,
		GenesisTime: genesis,
		Now:         clock.Now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop(context.Background())

	select {
	case <-events:
		t.Fatalf("unexpected period emitted before genesis")
	case <-time.After(2 * period):
	}

	clock.Set(genesis)

	info := nextEvent(t, events)
	require.Equal(t, uint64(0), info.PeriodID)
	require.Equal(t, genesis, info.StartedAt)
}

func TestLocalPeriodRunnerContinuesAfterHandlerError(t *testing.T) {
	t.Parallel()

	period := 10 * time.Millisecond
	genesis := time.Unix(3000, 0)
	clock := &fakeClock{current: genesis}

	events := make(chan PeriodInfo, 4)
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{
		Handler: func(_ context.Context, info PeriodInfo) error {
			events <- info
			return errors.New("cycle failed")
		},
		Interval:    period,
		GenesisTime: genesis,
		Now:         clock.Now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runner.Start(ctx))
	defer runner.Stop(context.Background())

	require.Equal(t, uint64(0), nextEvent(t, events).PeriodID)
	clock.Set(genesis.Add(period))
	require.Equal(t, uint64(1), nextEvent(t, events).PeriodID)
}

func TestLocalPeriodRunnerStopWaitsForLoop(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{
		Handler: func(ctx context.Context, _ PeriodInfo) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
		Interval: time.Hour,
	})

	require.NoError(t, runner.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(ctx))

	select {
	case <-runner.Done():
	default:
		t.Fatalf("run loop still active after Stop")
	}
	require.NoError(t, runner.Stop(ctx))
}

func TestLocalPeriodRunnerRequiresHandler(t *testing.T) {
	runner := NewLocalPeriodRunner(DefaultPeriodRunnerConfig(zerolog.Nop()))
	require.Error(t, runner.Start(context.Background()))
	require.Equal(t, DefaultInterval, runner.interval)
}

func TestPeriodForTime(t *testing.T) {
	genesis := time.Unix(0, 0)
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{Interval: time.Minute, GenesisTime: genesis})

	id, start := runner.PeriodForTime(genesis.Add(150 * time.Second))
	require.Equal(t, uint64(2), id)
	require.Equal(t, genesis.Add(2*time.Minute), start)

	id, start = runner.PeriodForTime(genesis.Add(-time.Second))
	require.Zero(t, id)
	require.Equal(t, genesis, start)
}

func TestLocalPeriodRunnerRestart(t *testing.T) {
	t.Parallel()

	events := make(chan PeriodInfo, 4)
	runner := NewLocalPeriodRunner(PeriodRunnerConfig{
		Handler: func(_ context.Context, info PeriodInfo) error {
			events <- info
			return nil
		},
		Interval: time.Hour,
	})

	select {
	case <-runner.Done():
	default:
		t.Fatalf("Done should be closed before Start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 2 {
		require.NoError(t, runner.Start(context.Background()))
		nextEvent(t, events)

		select {
		case <-runner.Done():
			t.Fatalf("Done closed while the loop is running")
		default:
		}

		require.NoError(t, runner.Stop(ctx))
		select {
		case <-runner.Done():
		default:
			t.Fatalf("run loop still active after Stop")
		}
	}
}
