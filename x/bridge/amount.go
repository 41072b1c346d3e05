package bridge

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// LimbBits is the width of each limb of a SplitAmount.
const LimbBits = 128

// SplitAmount is a 256-bit unsigned value as two 128-bit limbs, the shape of a
// Cairo Uint256 returned by the L2 gateway.
type SplitAmount struct {
	Low  *big.Int `json:"low"  yaml:"low"`
	High *big.Int `json:"high" yaml:"high"`
}

// NewSplitAmount builds a SplitAmount from small limb values.
func NewSplitAmount(low, high uint64) SplitAmount {
	return SplitAmount{Low: new(big.Int).SetUint64(low), High: new(big.Int).SetUint64(high)}
}

// Value decodes the limbs. See DecodeAmount.
func (a SplitAmount) Value() (*uint256.Int, error) {
	return DecodeAmount(a.Low, a.High)
}

// IsZero reports whether both limbs are zero. Nil limbs count as zero.
func (a SplitAmount) IsZero() bool {
	return (a.Low == nil || a.Low.Sign() == 0) && (a.High == nil || a.High.Sign() == 0)
}

func (a SplitAmount) String() string {
	v, err := a.Value()
	if err != nil {
		return fmt.Sprintf("malformed(low=%v, high=%v)", a.Low, a.High)
	}
	return v.Dec()
}

// DecodeAmount returns high<<128 | low. Both limbs must be non-negative and fit
// in 128 bits; low is zero-extended to the full limb width regardless of its magnitude.
func DecodeAmount(low, high *big.Int) (*uint256.Int, error) {
	if err := checkLimb("low", low); err != nil {
		return nil, err
	}
	if err := checkLimb("high", high); err != nil {
		return nil, err
	}

	// 32 bytes: high limb in [0:16], low limb in [16:32].
	var word [32]byte
	high.FillBytes(word[:16])
	low.FillBytes(word[16:])

	return new(uint256.Int).SetBytes32(word[:]), nil
}

// EncodeAmount splits v into its 128-bit limbs. It is the inverse of DecodeAmount.
func EncodeAmount(v *uint256.Int) SplitAmount {
	if v == nil {
		return NewSplitAmount(0, 0)
	}
	word := v.Bytes32()
	return SplitAmount{
		Low:  new(big.Int).SetBytes(word[16:]),
		High: new(big.Int).SetBytes(word[:16]),
	}
}

func checkLimb(name string, limb *big.Int) error {
	switch {
	case limb == nil:
		return fmt.Errorf("%w: %s limb missing", ErrMalformedAmount, name)
	case limb.Sign() < 0:
		return fmt.Errorf("%w: %s limb %s is negative", ErrMalformedAmount, name, limb)
	case limb.BitLen() > LimbBits:
		return fmt.Errorf("%w: %s limb is %d bits wide", ErrMalformedAmount, name, limb.BitLen())
	}
	return nil
}
