// Package finality polls an L2 transaction until it is accepted on L1 or rejected.
package finality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

// DefaultPollInterval matches the L2 block cadence closely enough for status checks.
const DefaultPollInterval = time.Second

// ErrTimeout is returned when a bounded wait elapses with the transaction still pending.
var ErrTimeout = errors.New("finality wait timed out")

// StatusSource reads one observation of an L2 transaction.
type StatusSource interface {
	TransactionStatus(ctx context.Context, txHash string) (bridge.TxOutcome, error)
}

// Observer is notified after every poll. Optional.
type Observer interface {
	ObservePoll(outcome bridge.TxOutcome)
}

// Config bounds the wait.
type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval"    yaml:"poll_interval"`
	Timeout      time.Duration `mapstructure:"finality_timeout" yaml:"finality_timeout"` // 0 = unbounded
}

// Result is the terminal observation and the number of polls it took.
type Result struct {
	Outcome bridge.TxOutcome `json:"outcome" yaml:"outcome"`
	Polls   int              `json:"polls"   yaml:"polls"`
	Elapsed time.Duration    `json:"elapsed" yaml:"elapsed"`
}

// Monitor waits for L2 transactions to reach a terminal status.
type Monitor struct {
	src      StatusSource
	cfg      Config
	observer Observer
	log      zerolog.Logger
}

func NewMonitor(src StatusSource, cfg Config, observer Observer, log zerolog.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Monitor{
		src:      src,
		cfg:      cfg,
		observer: observer,
		log:      log.With().Str("component", "finality-monitor").Logger(),
	}
}

// Wait polls txHash until AcceptedOnL1. A Rejected status returns a *bridge.RejectedError,
// a failed status query aborts with bridge.ErrRemoteQueryFailed. The poll count is
// reported in the result even on error.
func (m *Monitor) Wait(ctx context.Context, txHash string) (Result, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	log := m.log.With().Str("tx_hash", txHash).Logger()
	log.Info().Dur("interval", m.cfg.PollInterval).Msg("Waiting for transaction to be accepted on L1")

	start := time.Now()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	var res Result
	for {
		outcome, err := m.src.TransactionStatus(ctx, txHash)
		res.Polls++
		res.Elapsed = time.Since(start)
		if err != nil {
			if ctxErr := m.ctxError(ctx, txHash); ctxErr != nil {
				return res, ctxErr
			}
			log.Error().Err(err).Int("polls", res.Polls).Msg("Transaction status query failed")
			return res, err
		}
		res.Outcome = outcome
		if m.observer != nil {
			m.observer.ObservePoll(outcome)
		}

		switch outcome.Status {
		case bridge.TxAcceptedOnL1:
			log.Info().
				Int("polls", res.Polls).
				Dur("elapsed", res.Elapsed).
				Msg("Transaction accepted on L1")
			return res, nil
		case bridge.TxRejected:
			log.Warn().
				Int("polls", res.Polls).
				Str("reason", outcome.Reason).
				Msg("Transaction rejected")
			return res, &bridge.RejectedError{TxHash: txHash, Reason: outcome.Reason}
		}

		log.Debug().Int("polls", res.Polls).Str("raw_status", outcome.RawStatus).Msg("Transaction pending")

		select {
		case <-ctx.Done():
			return res, m.ctxError(ctx, txHash)
		case <-ticker.C:
		}
	}
}

func (m *Monitor) ctxError(ctx context.Context, txHash string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && m.cfg.Timeout > 0 {
		return fmt.Errorf("%w: %s still pending after %s", ErrTimeout, txHash, m.cfg.Timeout)
	}
	return fmt.Errorf("waiting for %s: %w", txHash, err)
}
