package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Binding is an L1 contract with a parsed ABI.
type Binding interface {
	// Address returns the deployed contract address.
	Address() common.Address

	// ABI returns the parsed contract ABI.
	ABI() abi.ABI
}
