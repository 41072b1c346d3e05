package contracts

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

//go:embed abi/starknet_core.json
var starknetCoreABIJSON string

var _ Binding = (*StarknetCoreBinding)(nil)

// Message events emitted by the Starknet core contract.
const (
	EventLogMessageToL1      = "LogMessageToL1"
	EventConsumedMessageToL1 = "ConsumedMessageToL1"
)

// StarknetCoreBinding decodes L2→L1 message logs of the Starknet core contract.
type StarknetCoreBinding struct {
	baseBinding
}

// NewStarknetCoreBinding parses the embedded ABI and validates contractAddr.
func NewStarknetCoreBinding(contractAddr string) (*StarknetCoreBinding, error) {
	base, err := newBaseBinding("StarknetCore", contractAddr, starknetCoreABIJSON)
	if err != nil {
		return nil, err
	}
	return &StarknetCoreBinding{baseBinding: base}, nil
}

// MessageTopics returns filter topics for event between an L2 sender and an L1 recipient.
func (b *StarknetCoreBinding) MessageTopics(event string, from *big.Int, to common.Address) [][]common.Hash {
	return [][]common.Hash{
		{b.eventID(event)},
		{common.BigToHash(from)},
		{common.BytesToHash(to.Bytes())},
	}
}

// ParseMessage decodes a LogMessageToL1 or ConsumedMessageToL1 log.
func (b *StarknetCoreBinding) ParseMessage(event string, lg types.Log) (bridge.BridgeMessage, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != b.eventID(event) {
		return bridge.BridgeMessage{}, fmt.Errorf("log %s:%d is not a %s event", lg.TxHash.Hex(), lg.Index, event)
	}

	var out struct {
		Payload []*big.Int
	}
	if err := b.abi.UnpackIntoInterface(&out, event, lg.Data); err != nil {
		return bridge.BridgeMessage{}, fmt.Errorf("failed to unpack %s data: %w", event, err)
	}

	return bridge.BridgeMessage{
		FromAddress: new(big.Int).SetBytes(lg.Topics[1].Bytes()),
		ToAddress:   common.BytesToAddress(lg.Topics[2].Bytes()),
		Payload:     out.Payload,
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
		TxHash:      lg.TxHash,
	}, nil
}
