package contracts

import (
	_ "embed"
	"fmt"

	"github.com/holiman/uint256"
)

//go:embed abi/l1_wormhole_gateway.json
var l1GatewayABIJSON string

var _ Binding = (*GatewayBinding)(nil)

// GatewayBinding encodes calls to the L1 DAI wormhole gateway.
type GatewayBinding struct {
	baseBinding
}

// NewGatewayBinding parses the embedded ABI and validates contractAddr.
func NewGatewayBinding(contractAddr string) (*GatewayBinding, error) {
	base, err := newBaseBinding("L1DAIWormholeGateway", contractAddr, l1GatewayABIJSON)
	if err != nil {
		return nil, err
	}
	return &GatewayBinding{baseBinding: base}, nil
}

// BuildFinalizeFlushCalldata packs finalizeFlush(bytes32 targetDomain, uint256 daiToFlush).
func (b *GatewayBinding) BuildFinalizeFlushCalldata(targetDomain [32]byte, daiToFlush *uint256.Int) ([]byte, error) {
	if daiToFlush == nil {
		return nil, fmt.Errorf("daiToFlush cannot be nil")
	}
	data, err := b.abi.Pack("finalizeFlush", targetDomain, daiToFlush.ToBig())
	if err != nil {
		return nil, fmt.Errorf("failed to pack finalizeFlush calldata: %w", err)
	}
	return data, nil
}
