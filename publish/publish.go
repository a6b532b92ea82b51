package publish

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
)

var ErrNoAccounts = errors.New("node has no managed accounts")

type (
	// Config selects the endpoint and the signing mode. With a nil PrivateKey
	// transactions are signed by the node's first managed account.
	Config struct {
		RPCURL     string
		ChainID    int64
		PrivateKey *ecdsa.PrivateKey
		GasFeeCap  *big.Int
		GasTipCap  *big.Int
	}

	// Deployer is the JSON-RPC ChainClient.
	Deployer struct {
		client    *w3.Client
		rpc       *rpc.Client
		signer    types.Signer
		key       *ecdsa.PrivateKey
		address   common.Address
		gasFeeCap *big.Int
		gasTipCap *big.Int

		// mu serialises nonce allocation; next is the lowest nonce not yet
		// handed out by this process.
		mu   sync.Mutex
		next uint64
	}

	sendTxArgs struct {
		From common.Address  `json:"from"`
		To   *common.Address `json:"to,omitempty"`
		Gas  hexutil.Uint64  `json:"gas"`
		Data hexutil.Bytes   `json:"data"`
	}
)

var _ ChainClient = (*Deployer)(nil)

func NewDeployer(ctx context.Context, cfg Config) (*Deployer, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	d := &Deployer{
		client:    w3.NewClient(rpcClient),
		rpc:       rpcClient,
		key:       cfg.PrivateKey,
		gasFeeCap: cfg.GasFeeCap,
		gasTipCap: cfg.GasTipCap,
	}
	if cfg.PrivateKey == nil {
		return d, nil
	}

	chainID := uint64(cfg.ChainID)
	if chainID == 0 {
		if err := d.client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
			d.Close()
			return nil, fmt.Errorf("get chain id: %w", err)
		}
	}
	d.signer = types.NewLondonSigner(new(big.Int).SetUint64(chainID))
	d.address = crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)
	return d, nil
}

// Address returns the signing address, zero in node-managed mode.
func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) IsConnected(ctx context.Context) bool {
	var chainID uint64
	return d.client.CallCtx(ctx, eth.ChainID().Returns(&chainID)) == nil
}

func (d *Deployer) BlockNumber(ctx context.Context) (uint64, error) {
	var n *big.Int
	if err := d.client.CallCtx(ctx, eth.BlockNumber().Returns(&n)); err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n.Uint64(), nil
}

func (d *Deployer) DefaultSender(ctx context.Context) (common.Address, error) {
	if d.key != nil {
		return d.address, nil
	}
	var accounts []common.Address
	if err := d.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, fmt.Errorf("get accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	return accounts[0], nil
}

func (d *Deployer) CreateContract(ctx context.Context, bytecode []byte, sender common.Address, gasLimit uint64) (common.Hash, error) {
	return d.send(ctx, sender, nil, bytecode, gasLimit)
}

func (d *Deployer) SendTransaction(ctx context.Context, to common.Address, calldata []byte, sender common.Address, gasLimit uint64) (common.Hash, error) {
	return d.send(ctx, sender, &to, calldata, gasLimit)
}

// TxStatus polls the receipt. Only a receipt the node does not have yet is
// pending; every other failure to fetch or decode it is returned.
func (d *Deployer) TxStatus(ctx context.Context, txHash common.Hash) (TxResult, error) {
	var receipt *types.Receipt
	err := d.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
	switch {
	case err == nil && receipt != nil:
	case err == nil, errors.Is(err, w3.NotFound), isIndexing(err):
		return TxResult{State: TxPending, Hash: txHash}, nil
	default:
		return TxResult{}, fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
	}

	res := TxResult{
		Hash:            txHash,
		ContractAddress: receipt.ContractAddress,
		BlockNumber:     receipt.BlockNumber.Uint64(),
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		res.State = TxFailed
		res.Err = fmt.Errorf("transaction %s reverted in block %d", txHash.Hex(), res.BlockNumber)
		return res, nil
	}
	res.State = TxSucceeded
	return res, nil
}

func (d *Deployer) send(ctx context.Context, sender common.Address, to *common.Address, data []byte, gasLimit uint64) (common.Hash, error) {
	if d.key == nil {
		var hash common.Hash
		args := sendTxArgs{From: sender, To: to, Gas: hexutil.Uint64(gasLimit), Data: data}
		if err := d.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
			return common.Hash{}, fmt.Errorf("send tx: %w", err)
		}
		return hash, nil
	}
	if sender != d.address {
		return common.Hash{}, fmt.Errorf("sender %s does not match signing key %s", sender.Hex(), d.address.Hex())
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	nonce, err := d.getNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		Nonce:     nonce,
		To:        to,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      data,
	})

	hash, err := d.sendTx(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	d.next = nonce + 1
	return hash, nil
}

// getNonce must be called with mu held.
func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	pending := big.NewInt(int64(rpc.PendingBlockNumber))
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, pending).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return max(nonce, d.next), nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	var hash common.Hash
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(&hash)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return hash, nil
}

// isIndexing matches the error geth returns while the transaction index is
// still being built. The receipt may exist, so it is treated as pending.
func isIndexing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "transaction indexing is in progress")
}
