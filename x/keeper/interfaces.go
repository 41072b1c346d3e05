package keeper

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/compose-network/wormhole-keeper/x/bridge"
	"github.com/compose-network/wormhole-keeper/x/finality"
)

// L2Gateway reads debt from and submits flush to the L2 wormhole gateway.
type L2Gateway interface {
	PendingDebt(ctx context.Context, domain bridge.Domain) (bridge.SplitAmount, error)
	Flush(ctx context.Context, domain bridge.Domain) (string, error)
	GatewayAddress() *big.Int
}

// L1Gateway covers the settlement, message and finalize surface on L1.
type L1Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)
	LatestSettleEvent(ctx context.Context, domain bridge.Domain) (*bridge.SettleEvent, error)
	MessageDelivery(
		ctx context.Context,
		l2Gateway *big.Int,
		l1Gateway common.Address,
		fromBlock uint64,
	) (bridge.Delivery, error)
	FinalizeFlush(ctx context.Context, domain bridge.Domain, amount *uint256.Int) (common.Hash, error)
	GatewayAddress() common.Address
}

// FinalityWaiter blocks until an L2 transaction is accepted on L1.
type FinalityWaiter interface {
	Wait(ctx context.Context, txHash string) (finality.Result, error)
}
