package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type baseBinding struct {
	address common.Address
	abi     abi.ABI
}

func newBaseBinding(name, contractAddr, abiJSON string) (baseBinding, error) {
	contractAddr = strings.TrimSpace(contractAddr)
	if contractAddr == "" {
		return baseBinding{}, fmt.Errorf("%s address cannot be empty", name)
	}
	if !common.IsHexAddress(contractAddr) {
		return baseBinding{}, fmt.Errorf("%s address %q is not a hex address", name, contractAddr)
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return baseBinding{}, fmt.Errorf("failed to parse %s ABI: %w", name, err)
	}

	return baseBinding{address: common.HexToAddress(contractAddr), abi: parsed}, nil
}

func (b baseBinding) Address() common.Address { return b.address }

func (b baseBinding) ABI() abi.ABI { return b.abi }

func (b baseBinding) eventID(name string) common.Hash {
	return b.abi.Events[name].ID
}
