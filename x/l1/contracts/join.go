package contracts

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

//go:embed abi/wormhole_join.json
var joinABIJSON string

var _ Binding = (*JoinBinding)(nil)

const settleEvent = "Settle"

// JoinBinding decodes Settle logs of the wormhole join contract.
type JoinBinding struct {
	baseBinding
}

// NewJoinBinding parses the embedded ABI and validates contractAddr.
func NewJoinBinding(contractAddr string) (*JoinBinding, error) {
	base, err := newBaseBinding("WormholeJoin", contractAddr, joinABIJSON)
	if err != nil {
		return nil, err
	}
	return &JoinBinding{baseBinding: base}, nil
}

// SettleTopics returns the filter topics selecting Settle logs for sourceDomain.
func (b *JoinBinding) SettleTopics(sourceDomain common.Hash) [][]common.Hash {
	return [][]common.Hash{{b.eventID(settleEvent)}, {sourceDomain}}
}

// ParseSettle decodes a Settle log.
func (b *JoinBinding) ParseSettle(lg types.Log) (bridge.SettleEvent, error) {
	if len(lg.Topics) < 2 || lg.Topics[0] != b.eventID(settleEvent) {
		return bridge.SettleEvent{}, fmt.Errorf("log %s:%d is not a Settle event", lg.TxHash.Hex(), lg.Index)
	}

	var out struct {
		BatchedDaiToFlush *big.Int
	}
	if err := b.abi.UnpackIntoInterface(&out, settleEvent, lg.Data); err != nil {
		return bridge.SettleEvent{}, fmt.Errorf("failed to unpack Settle data: %w", err)
	}

	return bridge.SettleEvent{
		SourceDomain:  lg.Topics[1],
		BatchedAmount: out.BatchedDaiToFlush,
		BlockNumber:   lg.BlockNumber,
		LogIndex:      lg.Index,
		TxHash:        lg.TxHash,
	}, nil
}
