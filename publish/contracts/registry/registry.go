// Package registry binds the main registry contract that maps child names to
// their deployed addresses.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const (
	// CreateGasLimit is the ceiling for every contract creation.
	CreateGasLimit uint64 = 0x989680
	// RegisterGasLimit is the ceiling for addContract calls.
	RegisterGasLimit uint64 = 0x2fefd8

	maxNameLen = 32
)

var funcAddContract = w3.MustNewFunc("addContract(bytes32,address)", "bool")

// EncodeAddContract returns the calldata registering addr under name.
func EncodeAddContract(name string, addr common.Address) ([]byte, error) {
	id, err := NameToBytes32(name)
	if err != nil {
		return nil, err
	}
	return funcAddContract.EncodeArgs(id, addr)
}

// NameToBytes32 right-pads name into a bytes32 key.
func NameToBytes32(name string) ([32]byte, error) {
	var id [32]byte
	if len(name) > maxNameLen {
		return id, fmt.Errorf("contract name %q exceeds %d bytes", name, maxNameLen)
	}
	copy(id[:], name)
	return id, nil
}

// AddContractSelector is the selector addContract calls are dispatched on.
func AddContractSelector() [4]byte {
	return funcAddContract.Selector
}
