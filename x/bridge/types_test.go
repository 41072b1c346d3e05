package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBridgeMessageMatches(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	base := BridgeMessage{
		FromAddress: big.NewInt(7),
		ToAddress:   to,
		Payload:     []*big.Int{big.NewInt(1), big.NewInt(2)},
		BlockNumber: 1000,
	}

	same := base
	same.BlockNumber = 1050
	require.True(t, base.Matches(same))

	otherPayload := base
	otherPayload.Payload = []*big.Int{big.NewInt(1), big.NewInt(3)}
	require.False(t, base.Matches(otherPayload))

	shorter := base
	shorter.Payload = []*big.Int{big.NewInt(1)}
	require.False(t, base.Matches(shorter))

	otherTo := base
	otherTo.ToAddress = common.HexToAddress("0xbb")
	require.False(t, base.Matches(otherTo))

	otherFrom := base
	otherFrom.FromAddress = big.NewInt(8)
	require.False(t, base.Matches(otherFrom))
}

func TestBridgeMessageFlushedAmount(t *testing.T) {
	msg := BridgeMessage{Payload: []*big.Int{big.NewInt(0), big.NewInt(99), big.NewInt(500), big.NewInt(0)}}
	v, ok := msg.FlushedAmount()
	require.True(t, ok)
	require.Equal(t, uint64(500), v.Uint64())

	_, ok = BridgeMessage{Payload: []*big.Int{big.NewInt(1)}}.FlushedAmount()
	require.False(t, ok)
}

func TestRejectedErrorIs(t *testing.T) {
	err := fmt.Errorf("flush: %w", &RejectedError{TxHash: "0x1", Reason: "insufficient fee"})
	require.ErrorIs(t, err, ErrTransactionRejected)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "insufficient fee", rejected.Reason)
}

func TestRemoteQueryErrorWrapsBoth(t *testing.T) {
	cause := errors.New("connection refused")
	err := RemoteQueryError("eth_getLogs", cause)
	require.ErrorIs(t, err, ErrRemoteQueryFailed)
	require.ErrorIs(t, err, cause)
}

func TestSettleEventOrdering(t *testing.T) {
	a := SettleEvent{BlockNumber: 10, LogIndex: 3}
	b := SettleEvent{BlockNumber: 10, LogIndex: 4}
	c := SettleEvent{BlockNumber: 11}
	require.True(t, b.After(a))
	require.True(t, c.After(b))
	require.False(t, a.After(c))
}
