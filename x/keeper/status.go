package keeper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

// StatusReport is a read-only snapshot of the keeper's view of a domain.
type StatusReport struct {
	Domain          bridge.Domain       `json:"domain"                     yaml:"domain"`
	Policy          FlushPolicy         `json:"policy"                     yaml:"policy"`
	PendingDebt     bridge.SplitAmount  `json:"pending_debt"               yaml:"pending_debt"`
	L1Head          uint64              `json:"l1_head"                    yaml:"l1_head"`
	LastSettle      *bridge.SettleEvent `json:"last_settle,omitempty"      yaml:"last_settle,omitempty"`
	FlushDecision   FlushDecision       `json:"flush_decision"             yaml:"flush_decision"`
	Delivery        *bridge.Delivery    `json:"delivery,omitempty"         yaml:"delivery,omitempty"`
	FinalizeOutlook FinalizeDecision    `json:"finalize_decision"          yaml:"finalize_decision"`
	CheckedAt       time.Time           `json:"checked_at"                 yaml:"checked_at"`
}

// Status issues the read-only queries concurrently and evaluates both engines
// without submitting anything.
func (k *Keeper) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{Domain: k.cfg.Domain, Policy: k.cfg.Policy}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		debt, err := k.l2.PendingDebt(gctx, k.cfg.Domain)
		report.PendingDebt = debt
		return err
	})
	g.Go(func() error {
		head, err := k.l1.BlockNumber(gctx)
		report.L1Head = head
		return err
	})
	if k.cfg.Policy == DelayGated {
		g.Go(func() error {
			settle, err := k.l1.LatestSettleEvent(gctx, k.cfg.Domain)
			report.LastSettle = settle
			return err
		})
	}
	if k.cfg.RequireMessageDelivered {
		g.Go(func() error {
			d, err := k.l1.MessageDelivery(gctx, k.l2.GatewayAddress(), k.l1.GatewayAddress(), k.cfg.MessageFromBlock)
			if err != nil {
				return err
			}
			report.Delivery = &d
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	state := FlushState{
		Domain:           k.cfg.Domain,
		PendingDebt:      report.PendingDebt,
		CurrentL1Block:   report.L1Head,
		FlushDelayBlocks: k.cfg.FlushDelayBlocks,
	}
	if report.LastSettle != nil {
		b := report.LastSettle.BlockNumber
		state.LastSettleBlock = &b
	}
	decision, err := DecideFlush(state, k.cfg.Policy)
	if err != nil {
		return report, err
	}
	report.FlushDecision = decision
	k.metrics.PendingDebt.WithLabelValues(k.cfg.Domain.Name()).Set(decision.Value.Float64())

	var delivery bridge.Delivery
	if report.Delivery != nil {
		delivery = *report.Delivery
	}
	report.FinalizeOutlook = DecideFinalize(delivery, k.cfg.RequireMessageDelivered)
	report.CheckedAt = time.Now().UTC()
	return report, nil
}
