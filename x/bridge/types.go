// Package bridge holds the wormhole data model shared by the L1 and L2 clients
// and the keeper engines.
package bridge

import (
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WormholeGUID identifies a single wormhole transfer as attested by the oracles.
type WormholeGUID struct {
	SourceDomain common.Hash `json:"source_domain" yaml:"source_domain"`
	TargetDomain common.Hash `json:"target_domain" yaml:"target_domain"`
	Receiver     common.Hash `json:"receiver"      yaml:"receiver"`
	Operator     common.Hash `json:"operator"      yaml:"operator"`
	Amount       *big.Int    `json:"amount"        yaml:"amount"`
	Nonce        *big.Int    `json:"nonce"         yaml:"nonce"`
	Timestamp    *big.Int    `json:"timestamp"     yaml:"timestamp"`
}

// SettleEvent is an L1 join Settle log for a source domain.
type SettleEvent struct {
	SourceDomain  common.Hash `json:"source_domain"  yaml:"source_domain"`
	BatchedAmount *big.Int    `json:"batched_amount" yaml:"batched_amount"`
	BlockNumber   uint64      `json:"block_number"   yaml:"block_number"`
	LogIndex      uint        `json:"log_index"      yaml:"log_index"`
	TxHash        common.Hash `json:"tx_hash"        yaml:"tx_hash"`
}

// After reports whether e is ordered after other (block, then log index).
func (e SettleEvent) After(other SettleEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber > other.BlockNumber
	}
	return e.LogIndex > other.LogIndex
}

// BridgeMessage is an L2→L1 message as seen in LogMessageToL1 or ConsumedMessageToL1.
type BridgeMessage struct {
	FromAddress *big.Int       `json:"from_address" yaml:"from_address"`
	ToAddress   common.Address `json:"to_address"   yaml:"to_address"`
	Payload     []*big.Int     `json:"payload"      yaml:"payload"`
	BlockNumber uint64         `json:"block_number" yaml:"block_number"`
	LogIndex    uint           `json:"log_index"    yaml:"log_index"`
	TxHash      common.Hash    `json:"tx_hash"      yaml:"tx_hash"`
}

// Matches compares the (from, to, payload) tuple.
func (m BridgeMessage) Matches(other BridgeMessage) bool {
	if m.FromAddress == nil || other.FromAddress == nil {
		return false
	}
	if m.FromAddress.Cmp(other.FromAddress) != 0 || m.ToAddress != other.ToAddress {
		return false
	}
	return slices.EqualFunc(m.Payload, other.Payload, func(a, b *big.Int) bool {
		return a != nil && b != nil && a.Cmp(b) == 0
	})
}

// FlushedAmount decodes the amount from a flush message payload laid out as
// [op, domain, low, high]. ok is false for any other shape.
func (m BridgeMessage) FlushedAmount() (v *uint256.Int, ok bool) {
	if len(m.Payload) < 4 {
		return nil, false
	}
	v, err := DecodeAmount(m.Payload[2], m.Payload[3])
	if err != nil {
		return nil, false
	}
	return v, true
}

// TxStatus is the reduced L2 transaction state.
type TxStatus int

const (
	TxPending TxStatus = iota
	TxAcceptedOnL1
	TxRejected
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxAcceptedOnL1:
		return "accepted_on_l1"
	case TxRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// TxOutcome is one observation of an L2 transaction.
type TxOutcome struct {
	Status    TxStatus `json:"status"               yaml:"status"`
	Reason    string   `json:"reason,omitempty"     yaml:"reason,omitempty"`
	RawStatus string   `json:"raw_status,omitempty" yaml:"raw_status,omitempty"`
}

// IsTerminal reports whether polling can stop.
func (o TxOutcome) IsTerminal() bool {
	return o.Status == TxAcceptedOnL1 || o.Status == TxRejected
}

// DeliveryStatus is the state of the latest L2→L1 message between two gateways.
type DeliveryStatus int

const (
	// NoPendingMessage means nothing was dispatched; distinct from NotDelivered.
	NoPendingMessage DeliveryStatus = iota
	NotDelivered
	Delivered
)

func (s DeliveryStatus) String() string {
	switch s {
	case NoPendingMessage:
		return "no_pending_message"
	case NotDelivered:
		return "not_delivered"
	case Delivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// Delivery is the evidence behind a DeliveryStatus.
type Delivery struct {
	Status      DeliveryStatus `json:"status"                yaml:"status"`
	Dispatched  *BridgeMessage `json:"dispatched,omitempty"  yaml:"dispatched,omitempty"`
	Consumption *BridgeMessage `json:"consumption,omitempty" yaml:"consumption,omitempty"`
}

func (s TxStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s DeliveryStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
