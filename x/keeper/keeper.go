// Package keeper drives the DAI wormhole flush and finalizeFlush operations for one domain.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/wormhole-keeper/x/bridge"
	"github.com/compose-network/wormhole-keeper/x/finality"
	"github.com/compose-network/wormhole-keeper/x/lock"
)

const (
	opFlush    = "flush"
	opFinalize = "finalize"
	opCycle    = "cycle"
)

// Config parameterizes the engines. Addresses and endpoints live in the clients.
type Config struct {
	Domain                  bridge.Domain
	Policy                  FlushPolicy
	FlushDelayBlocks        uint64
	RequireMessageDelivered bool
	MessageFromBlock        uint64
}

// FlushResult describes one Flush invocation.
type FlushResult struct {
	RunID    string           `json:"run_id"            yaml:"run_id"`
	State    FlushState       `json:"state"             yaml:"state"`
	Decision FlushDecision    `json:"decision"          yaml:"decision"`
	TxHash   string           `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	Outcome  bridge.TxOutcome `json:"outcome"           yaml:"outcome"`
	Polls    int              `json:"polls"             yaml:"polls"`
}

// Submitted reports whether a flush transaction was sent.
func (r FlushResult) Submitted() bool { return r.TxHash != "" }

// FinalizeResult describes one FinalizeFlush invocation. Delivery is nil when the
// delivery check is disabled.
type FinalizeResult struct {
	RunID     string           `json:"run_id"             yaml:"run_id"`
	Delivery  *bridge.Delivery `json:"delivery,omitempty" yaml:"delivery,omitempty"`
	Decision  FinalizeDecision `json:"decision"           yaml:"decision"`
	Submitted bool             `json:"submitted"          yaml:"submitted"`
	TxHash    common.Hash      `json:"tx_hash"            yaml:"tx_hash"`
	Amount    *uint256.Int     `json:"amount,omitempty"   yaml:"amount,omitempty"`
}

// CycleResult is a Flush followed by a FinalizeFlush.
type CycleResult struct {
	Flush    FlushResult     `json:"flush"              yaml:"flush"`
	Finalize *FinalizeResult `json:"finalize,omitempty" yaml:"finalize,omitempty"`
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLocker serializes operations per domain. Defaults to lock.Noop.
func WithLocker(l lock.Locker) Option {
	return func(k *Keeper) {
		if l != nil {
			k.locker = l
		}
	}
}

// WithMetrics sets the collectors. Defaults to an unexported registry.
func WithMetrics(m *Metrics) Option {
	return func(k *Keeper) {
		if m != nil {
			k.metrics = m
		}
	}
}

// Keeper sequences reads, decisions and submissions. It keeps no state between calls.
type Keeper struct {
	cfg      Config
	l2       L2Gateway
	l1       L1Gateway
	finality FinalityWaiter
	locker   lock.Locker
	metrics  *Metrics
	log      zerolog.Logger
}

func New(cfg Config, l2 L2Gateway, l1 L1Gateway, waiter FinalityWaiter, log zerolog.Logger, opts ...Option) (*Keeper, error) {
	if cfg.Domain.IsZero() {
		return nil, fmt.Errorf("%w: domain", bridge.ErrMissingConfiguration)
	}
	if l2 == nil || l1 == nil || waiter == nil {
		return nil, errors.New("keeper requires L2, L1 and finality dependencies")
	}

	k := &Keeper{
		cfg:      cfg,
		l2:       l2,
		l1:       l1,
		finality: waiter,
		locker:   lock.NewNoop(),
		log: log.With().
			Str("component", "keeper").
			Str("domain", cfg.Domain.Name()).
			Logger(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.metrics == nil {
		k.metrics = NewMetricsWith(prometheus.NewRegistry())
	}
	return k, nil
}

// Config returns the engine configuration.
func (k *Keeper) Config() Config { return k.cfg }

// Flush reads the flush state, decides and, when eligible, submits flush on L2 and
// waits until the transaction is accepted on L1.
func (k *Keeper) Flush(ctx context.Context) (FlushResult, error) {
	res := FlushResult{RunID: uuid.NewString()}
	log := k.log.With().Str("run_id", res.RunID).Str("operation", opFlush).Logger()

	err := k.run(ctx, opFlush, func(ctx context.Context) error {
		state, err := k.flushState(ctx, log)
		if err != nil {
			return err
		}
		res.State = state

		decision, err := DecideFlush(state, k.cfg.Policy)
		if err != nil {
			return err
		}
		res.Decision = decision
		k.metrics.FlushDecisions.WithLabelValues(k.cfg.Policy.String(), strconv.FormatBool(decision.Eligible)).Inc()
		k.metrics.PendingDebt.WithLabelValues(k.cfg.Domain.Name()).Set(decision.Value.Float64())

		if !decision.Eligible {
			log.Info().
				Str("debt", decision.Value.Dec()).
				Str("reason", decision.Reason).
				Msg("Flush not eligible")
			return nil
		}

		log.Info().Str("debt", decision.Value.Dec()).Stringer("policy", k.cfg.Policy).Msg("Sending flush transaction")
		txHash, err := k.l2.Flush(ctx, k.cfg.Domain)
		if err != nil {
			return err
		}
		res.TxHash = txHash

		fin, err := k.finality.Wait(ctx, txHash)
		res.Outcome = fin.Outcome
		res.Polls = fin.Polls
		if fin.Polls > 0 {
			k.metrics.FinalityPolls.Observe(float64(fin.Polls))
		}
		if err != nil {
			return fmt.Errorf("flush %s: %w", txHash, err)
		}

		log.Info().Str("tx_hash", txHash).Int("polls", fin.Polls).Msg("Flush accepted on L1")
		return nil
	})
	return res, err
}

// FinalizeFlush checks message delivery (when required), decides and, when eligible,
// submits finalizeFlush on L1 with the debt re-read from L2.
func (k *Keeper) FinalizeFlush(ctx context.Context) (FinalizeResult, error) {
	res := FinalizeResult{RunID: uuid.NewString()}
	log := k.log.With().Str("run_id", res.RunID).Str("operation", opFinalize).Logger()

	err := k.run(ctx, opFinalize, func(ctx context.Context) error {
		var delivery bridge.Delivery
		if k.cfg.RequireMessageDelivered {
			d, err := k.l1.MessageDelivery(ctx, k.l2.GatewayAddress(), k.l1.GatewayAddress(), k.cfg.MessageFromBlock)
			if err != nil {
				return err
			}
			delivery = d
			res.Delivery = &d
		}

		decision := DecideFinalize(delivery, k.cfg.RequireMessageDelivered)
		res.Decision = decision
		k.metrics.FinalizeDecisions.WithLabelValues(deliveryLabel(res.Delivery), strconv.FormatBool(decision.Eligible)).Inc()

		if !decision.Eligible {
			log.Info().Str("reason", decision.Reason).Msg("Finalize not eligible")
			return nil
		}

		debt, err := k.l2.PendingDebt(ctx, k.cfg.Domain)
		if err != nil {
			return err
		}
		amount, err := debt.Value()
		if err != nil {
			return fmt.Errorf("pending debt: %w", err)
		}
		res.Amount = amount

		if delivery.Dispatched != nil {
			if flushed, ok := delivery.Dispatched.FlushedAmount(); ok && !flushed.Eq(amount) {
				log.Warn().
					Str("flushed", flushed.Dec()).
					Str("current_debt", amount.Dec()).
					Msg("Current L2 debt differs from the amount in the pending flush message")
			}
		}

		log.Info().Str("amount", amount.Dec()).Msg("Sending finalizeFlush transaction")
		txHash, err := k.l1.FinalizeFlush(ctx, k.cfg.Domain, amount)
		if err != nil {
			return err
		}
		res.Submitted = true
		res.TxHash = txHash

		log.Info().Str("tx_hash", txHash.Hex()).Msg("finalizeFlush submitted")
		return nil
	})
	return res, err
}

// Cycle runs Flush and then FinalizeFlush. A failed flush, including a rejected one,
// never reaches finalize.
func (k *Keeper) Cycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	var out CycleResult

	flush, err := k.Flush(ctx)
	out.Flush = flush
	if err != nil {
		k.observe(opCycle, start, err)
		return out, err
	}

	fin, err := k.FinalizeFlush(ctx)
	out.Finalize = &fin
	k.observe(opCycle, start, err)
	return out, err
}

// flushState gathers the inputs of DecideFlush. Settlement and head are only read
// for the delay-gated policy.
func (k *Keeper) flushState(ctx context.Context, log zerolog.Logger) (FlushState, error) {
	state := FlushState{Domain: k.cfg.Domain, FlushDelayBlocks: k.cfg.FlushDelayBlocks}

	debt, err := k.l2.PendingDebt(ctx, k.cfg.Domain)
	if err != nil {
		return state, err
	}
	state.PendingDebt = debt

	if k.cfg.Policy != DelayGated {
		return state, nil
	}

	settle, err := k.l1.LatestSettleEvent(ctx, k.cfg.Domain)
	if err != nil {
		return state, err
	}
	head, err := k.l1.BlockNumber(ctx)
	if err != nil {
		return state, err
	}
	state.CurrentL1Block = head
	if settle != nil {
		b := settle.BlockNumber
		state.LastSettleBlock = &b
		warnUnreachableGate(log, b, head)
	}
	return state, nil
}

// warnUnreachableGate flags the case where a mined Settle event can never satisfy
// settle > head + delay.
func warnUnreachableGate(log zerolog.Logger, settleBlock, head uint64) {
	if settleBlock <= head {
		log.Warn().
			Uint64("settle_block", settleBlock).
			Uint64("head", head).
			Msg("Delay gate compares a mined settle block against a later head and cannot open")
	}
}

// run holds the domain lock around fn and records operation metrics.
func (k *Keeper) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	release, err := k.locker.Acquire(ctx, k.cfg.Domain.Name())
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			k.metrics.LockContention.Inc()
		}
		k.observe(op, start, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			k.log.Warn().Err(rerr).Str("operation", op).Msg("Failed to release domain lock")
		}
	}()

	err = fn(ctx)
	k.observe(op, start, err)
	if err != nil {
		k.log.Error().Err(err).Str("operation", op).Msg("Keeper operation failed")
	}
	return err
}

func (k *Keeper) observe(op string, start time.Time, err error) {
	k.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	k.metrics.OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, bridge.ErrTransactionRejected):
		return "rejected"
	case errors.Is(err, lock.ErrNotAcquired):
		return "locked"
	case errors.Is(err, bridge.ErrRemoteQueryFailed):
		return "remote_error"
	case errors.Is(err, finality.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func deliveryLabel(d *bridge.Delivery) string {
	if d == nil {
		return "unchecked"
	}
	return d.Status.String()
}
