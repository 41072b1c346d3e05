package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxShortStringLen is the longest ASCII name that fits in a Starknet felt.
const MaxShortStringLen = 31

const feltBits = 251

// Target selects the wire encoding of a Domain.
type Target int

const (
	TargetL1 Target = iota
	TargetL2
)

func (t Target) String() string {
	switch t {
	case TargetL1:
		return "l1"
	case TargetL2:
		return "l2"
	default:
		return "unknown"
	}
}

// Domain identifies one endpoint of a wormhole route, e.g. "GOERLI-SLAVE-STARKNET-1".
type Domain struct {
	name string
	word [32]byte
}

// ParseDomain accepts either an ASCII short string or a 0x-prefixed felt.
func ParseDomain(s string) (Domain, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Domain{}, errors.New("domain is empty")
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return Domain{}, fmt.Errorf("domain %q is not valid hex", s)
		}
		if v.BitLen() > feltBits {
			return Domain{}, fmt.Errorf("domain %q does not fit in a felt", s)
		}
		var d Domain
		v.FillBytes(d.word[:])
		d.name = shortString(d.word)
		if d.name == "" {
			d.name = s
		}
		return d, nil
	}

	if len(s) > MaxShortStringLen {
		return Domain{}, fmt.Errorf("domain %q longer than %d bytes", s, MaxShortStringLen)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return Domain{}, fmt.Errorf("domain %q contains non-printable ASCII", s)
		}
	}

	var d Domain
	d.name = s
	copy(d.word[32-len(s):], s)
	return d, nil
}

// MustParseDomain is ParseDomain for constants and tests.
func MustParseDomain(s string) Domain {
	d, err := ParseDomain(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Name is the human readable form.
func (d Domain) Name() string { return d.name }

func (d Domain) String() string { return d.name }

func (d Domain) MarshalText() ([]byte, error) { return []byte(d.name), nil }

// IsZero reports whether d was never parsed.
func (d Domain) IsZero() bool { return d.word == [32]byte{} }

// L1Bytes32 is the bytes32 argument used by L1 contracts: the ASCII bytes left-padded with zeros.
func (d Domain) L1Bytes32() [32]byte { return d.word }

// L1Hash is L1Bytes32 as an event topic.
func (d Domain) L1Hash() common.Hash { return common.Hash(d.word) }

// L2Felt is the big-endian felt passed as calldata to L2 contracts.
func (d Domain) L2Felt() *big.Int { return new(big.Int).SetBytes(d.word[:]) }

// EncodeDomain returns the 32-byte wire form for the given side.
func EncodeDomain(d Domain, target Target) [32]byte {
	switch target {
	case TargetL2:
		var out [32]byte
		d.L2Felt().FillBytes(out[:])
		return out
	default:
		return d.L1Bytes32()
	}
}

// shortString decodes a left-padded printable ASCII word, or returns "".
func shortString(word [32]byte) string {
	trimmed := bytes.TrimLeft(word[:], "\x00")
	if len(trimmed) == 0 || len(trimmed) > MaxShortStringLen {
		return ""
	}
	for _, b := range trimmed {
		if b < 0x20 || b > 0x7e {
			return ""
		}
	}
	return string(trimmed)
}
