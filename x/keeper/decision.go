package keeper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

// FlushPolicy selects when positive debt may be flushed.
type FlushPolicy int

const (
	// Unconditional flushes any positive debt immediately.
	Unconditional FlushPolicy = iota
	// DelayGated flushes only while the latest Settle event is ahead of head + delay.
	DelayGated
)

func (p FlushPolicy) String() string {
	switch p {
	case Unconditional:
		return "unconditional"
	case DelayGated:
		return "delay-gated"
	default:
		return fmt.Sprintf("FlushPolicy(%d)", int(p))
	}
}

func (p FlushPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ParseFlushPolicy accepts "unconditional" and "delay-gated" (also "delay_gated", "delaygated").
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unconditional":
		return Unconditional, nil
	case "delay-gated", "delay_gated", "delaygated":
		return DelayGated, nil
	default:
		return 0, fmt.Errorf("unknown flush policy %q", s)
	}
}

// FlushState is everything DecideFlush looks at, re-read on every invocation.
type FlushState struct {
	Domain           bridge.Domain      `json:"domain"                      yaml:"domain"`
	PendingDebt      bridge.SplitAmount `json:"pending_debt"                yaml:"pending_debt"`
	LastSettleBlock  *uint64            `json:"last_settle_block,omitempty" yaml:"last_settle_block,omitempty"`
	CurrentL1Block   uint64             `json:"current_l1_block"            yaml:"current_l1_block"`
	FlushDelayBlocks uint64             `json:"flush_delay_blocks"          yaml:"flush_delay_blocks"`
}

// FlushDecision is the outcome of DecideFlush.
type FlushDecision struct {
	Eligible bool               `json:"eligible"         yaml:"eligible"`
	Amount   bridge.SplitAmount `json:"amount"           yaml:"amount"`
	Value    *uint256.Int       `json:"value"            yaml:"value"`
	Reason   string             `json:"reason,omitempty" yaml:"reason,omitempty"`
}

var errUnknownPolicy = errors.New("unknown flush policy")

// DecideFlush never reports eligible for zero debt. Under DelayGated it requires
// LastSettleBlock > CurrentL1Block + FlushDelayBlocks (strict).
func DecideFlush(state FlushState, policy FlushPolicy) (FlushDecision, error) {
	value, err := bridge.DecodeAmount(state.PendingDebt.Low, state.PendingDebt.High)
	if err != nil {
		return FlushDecision{}, fmt.Errorf("pending debt: %w", err)
	}

	d := FlushDecision{Amount: state.PendingDebt, Value: value}
	if value.IsZero() {
		d.Reason = "no pending debt"
		return d, nil
	}

	switch policy {
	case Unconditional:
		d.Eligible = true
	case DelayGated:
		if state.LastSettleBlock == nil {
			d.Reason = "no settle event for domain"
			return d, nil
		}
		horizon := state.CurrentL1Block + state.FlushDelayBlocks
		if horizon < state.CurrentL1Block {
			d.Reason = "settle horizon overflows"
			return d, nil
		}
		if *state.LastSettleBlock > horizon {
			d.Eligible = true
			return d, nil
		}
		d.Reason = fmt.Sprintf("last settle block %d not after %d (head %d + delay %d)",
			*state.LastSettleBlock, horizon, state.CurrentL1Block, state.FlushDelayBlocks)
	default:
		return FlushDecision{}, fmt.Errorf("%w: %d", errUnknownPolicy, int(policy))
	}
	return d, nil
}

// FinalizeDecision is the outcome of DecideFinalize.
type FinalizeDecision struct {
	Eligible bool   `json:"eligible"         yaml:"eligible"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// DecideFinalize with requireDelivered is eligible only for a dispatched, not yet
// consumed message. Without it every call is eligible.
func DecideFinalize(delivery bridge.Delivery, requireDelivered bool) FinalizeDecision {
	if !requireDelivered {
		return FinalizeDecision{Eligible: true, Reason: "delivery check disabled"}
	}
	switch delivery.Status {
	case bridge.NotDelivered:
		return FinalizeDecision{Eligible: true}
	case bridge.Delivered:
		return FinalizeDecision{Reason: "message already delivered"}
	default:
		return FinalizeDecision{Reason: "no pending message"}
	}
}
