package bridge

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDomainShortString(t *testing.T) {
	d, err := ParseDomain("GOERLI-SLAVE-STARKNET-1")
	require.NoError(t, err)
	require.Equal(t, "GOERLI-SLAVE-STARKNET-1", d.Name())

	word := d.L1Bytes32()
	name := "GOERLI-SLAVE-STARKNET-1"
	require.Equal(t, make([]byte, 32-len(name)), word[:32-len(name)])
	require.Equal(t, name, string(word[32-len(name):]))

	felt := d.L2Felt()
	require.Equal(t, 0, felt.Cmp(new(big.Int).SetBytes([]byte(name))))
	require.Equal(t, EncodeDomain(d, TargetL1), EncodeDomain(d, TargetL2))
}

func TestParseDomainHexFelt(t *testing.T) {
	named := MustParseDomain("GOERLI-MASTER-1")
	hex := "0x" + named.L2Felt().Text(16)

	d, err := ParseDomain(hex)
	require.NoError(t, err)
	require.Equal(t, "GOERLI-MASTER-1", d.Name())
	require.Equal(t, named.L1Bytes32(), d.L1Bytes32())
}

func TestParseDomainErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		strings.Repeat("A", MaxShortStringLen+1),
		"0xzz",
		"0x" + strings.Repeat("f", 64),
		"bad\x01name",
	} {
		_, err := ParseDomain(in)
		require.Error(t, err, "input %q", in)
	}
}
