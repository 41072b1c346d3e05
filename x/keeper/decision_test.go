package keeper

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/wormhole-keeper/x/bridge"
)

func u64(v uint64) *uint64 { return &v }

func TestParseFlushPolicy(t *testing.T) {
	for in, want := range map[string]FlushPolicy{
		"":              Unconditional,
		"unconditional": Unconditional,
		"Delay-Gated":   DelayGated,
		"delay_gated":   DelayGated,
	} {
		got, err := ParseFlushPolicy(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseFlushPolicy("sometimes")
	require.Error(t, err)
	require.Equal(t, "delay-gated", DelayGated.String())
}

func TestDecideFlush_ZeroDebtNeverEligible(t *testing.T) {
	for _, policy := range []FlushPolicy{Unconditional, DelayGated} {
		d, err := DecideFlush(FlushState{
			PendingDebt:     bridge.NewSplitAmount(0, 0),
			LastSettleBlock: u64(1000),
			CurrentL1Block:  10,
		}, policy)
		require.NoError(t, err)
		require.False(t, d.Eligible, policy.String())
		require.Equal(t, "no pending debt", d.Reason)
	}
}

func TestDecideFlush_Unconditional(t *testing.T) {
	d, err := DecideFlush(FlushState{
		Domain:      bridge.MustParseDomain("GOERLI-SLAVE-STARKNET-1"),
		PendingDebt: bridge.NewSplitAmount(500, 0),
	}, Unconditional)
	require.NoError(t, err)
	require.True(t, d.Eligible)
	require.Equal(t, uint64(500), d.Value.Uint64())
}

func TestDecideFlush_DelayGated(t *testing.T) {
	tests := []struct {
		name     string
		settle   *uint64
		head     uint64
		delay    uint64
		eligible bool
	}{
		{"no settle event", nil, 100, 10, false},
		{"settle after horizon", u64(111), 100, 10, true},
		{"settle on horizon is not eligible", u64(110), 100, 10, false},
		{"settle before horizon", u64(105), 100, 10, false},
		{"mined settle with zero delay", u64(100), 100, 0, false},
		{"overflowing horizon", u64(^uint64(0)), ^uint64(0) - 1, 5, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := DecideFlush(FlushState{
				PendingDebt:      bridge.NewSplitAmount(1, 0),
				LastSettleBlock:  tc.settle,
				CurrentL1Block:   tc.head,
				FlushDelayBlocks: tc.delay,
			}, DelayGated)
			require.NoError(t, err)
			require.Equal(t, tc.eligible, d.Eligible)
			if !tc.eligible {
				require.NotEmpty(t, d.Reason)
			}
		})
	}
}

func TestDecideFlush_MalformedAmount(t *testing.T) {
	wide := new(big.Int).Lsh(big.NewInt(1), 128)
	_, err := DecideFlush(FlushState{
		PendingDebt: bridge.SplitAmount{Low: wide, High: big.NewInt(0)},
	}, Unconditional)
	require.ErrorIs(t, err, bridge.ErrMalformedAmount)

	_, err = DecideFlush(FlushState{PendingDebt: bridge.NewSplitAmount(1, 0)}, FlushPolicy(42))
	require.Error(t, err)
}

func TestDecideFinalize(t *testing.T) {
	tests := []struct {
		status   bridge.DeliveryStatus
		require  bool
		eligible bool
	}{
		{bridge.NoPendingMessage, true, false},
		{bridge.NotDelivered, true, true},
		{bridge.Delivered, true, false},
		{bridge.NoPendingMessage, false, true},
		{bridge.Delivered, false, true},
	}
	for _, tc := range tests {
		d := DecideFinalize(bridge.Delivery{Status: tc.status}, tc.require)
		require.Equal(t, tc.eligible, d.Eligible, "%s require=%v", tc.status, tc.require)
	}
}
