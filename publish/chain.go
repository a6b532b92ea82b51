package publish

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TxState is the state of a submitted transaction.
type TxState int

const (
	TxPending TxState = iota
	TxSucceeded
	TxFailed
)

func (s TxState) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxSucceeded:
		return "succeeded"
	case TxFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TxResult describes a transaction at the time it was polled. ContractAddress
// is only set for successful contract creations.
type TxResult struct {
	State           TxState
	Hash            common.Hash
	ContractAddress common.Address
	BlockNumber     uint64
	Err             error
}

// ChainClient is the capability surface the deployer needs from a JSON-RPC
// endpoint.
type ChainClient interface {
	IsConnected(ctx context.Context) bool
	BlockNumber(ctx context.Context) (uint64, error)
	DefaultSender(ctx context.Context) (common.Address, error)
	CreateContract(ctx context.Context, bytecode []byte, sender common.Address, gasLimit uint64) (common.Hash, error)
	SendTransaction(ctx context.Context, to common.Address, calldata []byte, sender common.Address, gasLimit uint64) (common.Hash, error)
	TxStatus(ctx context.Context, txHash common.Hash) (TxResult, error)
}
