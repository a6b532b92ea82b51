package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cosmo-local-credit/doug/publish"
	"github.com/cosmo-local-credit/doug/publish/artifact"
)

type (
	creation struct {
		Bytecode string
		Sender   common.Address
		Gas      uint64
		Address  common.Address
	}

	registration struct {
		Registry common.Address
		Name     string
		Child    common.Address
		Sender   common.Address
		Gas      uint64
		Block    uint64
	}

	fakeTx struct {
		result    publish.TxResult
		polls     int
		statusErr error
	}

	// fakeChain mines every transaction into its own block at submission.
	// Receipts become visible after pendingPolls polls; creations first
	// report success without an address for addresslessPolls more polls.
	fakeChain struct {
		mu sync.Mutex

		connected       bool
		disconnectAfter int
		block           uint64
		sender          common.Address
		nextAddr        uint64

		failCreate       map[string]bool
		failStatus       map[string]bool
		registryCode     map[string]bool
		registries       map[common.Address]bool
		pendingPolls     int
		addresslessPolls int
		neverMine        bool

		calls         int
		creations     []creation
		registrations []registration
		txs           map[common.Hash]*fakeTx
	}
)

func newFakeChain() *fakeChain {
	return &fakeChain{
		connected:    true,
		block:        100,
		sender:       common.HexToAddress("0x000000000000000000000000000000000000c0de"),
		failCreate:   map[string]bool{},
		failStatus:   map[string]bool{},
		registryCode: map[string]bool{"main-code": true},
		registries:   map[common.Address]bool{},
		txs:          map[common.Hash]*fakeTx{},
	}
}

var _ publish.ChainClient = (*fakeChain)(nil)

func (c *fakeChain) IsConnected(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.connected
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.block, nil
}

func (c *fakeChain) DefaultSender(context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.sender, nil
}

func (c *fakeChain) CreateContract(_ context.Context, bytecode []byte, sender common.Address, gasLimit uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	code := string(bytecode)
	if c.failCreate[code] {
		return common.Hash{}, errors.New("insufficient funds for gas * price + value")
	}

	c.nextAddr++
	c.block++
	addr := common.BigToAddress(new(big.Int).SetUint64(0xc00000 + c.nextAddr))
	if c.registryCode[code] {
		c.registries[addr] = true
	}
	c.creations = append(c.creations, creation{Bytecode: code, Sender: sender, Gas: gasLimit, Address: addr})
	if c.disconnectAfter > 0 && len(c.creations) >= c.disconnectAfter {
		c.connected = false
	}

	hash := c.newHash()
	tx := &fakeTx{result: publish.TxResult{
		State:           publish.TxSucceeded,
		Hash:            hash,
		ContractAddress: addr,
		BlockNumber:     c.block,
	}}
	if c.failStatus[code] {
		tx.statusErr = errors.New("get receipt: rpc error -32000: boom")
	}
	c.txs[hash] = tx
	return hash, nil
}

func (c *fakeChain) SendTransaction(_ context.Context, to common.Address, calldata []byte, sender common.Address, gasLimit uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	c.block++
	hash := c.newHash()
	tx := &fakeTx{result: publish.TxResult{State: publish.TxSucceeded, Hash: hash, BlockNumber: c.block}}
	if !c.registries[to] || len(calldata) != 68 {
		tx.result.State = publish.TxFailed
		tx.result.Err = errors.New("execution reverted")
	} else {
		c.registrations = append(c.registrations, registration{
			Registry: to,
			Name:     strings.TrimRight(string(calldata[4:36]), "\x00"),
			Child:    common.BytesToAddress(calldata[36:68]),
			Sender:   sender,
			Gas:      gasLimit,
			Block:    c.block,
		})
	}
	c.txs[hash] = tx
	return hash, nil
}

func (c *fakeChain) TxStatus(_ context.Context, txHash common.Hash) (publish.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.txs[txHash]
	if !ok {
		return publish.TxResult{}, errors.New("unknown transaction")
	}
	tx.polls++
	if tx.statusErr != nil {
		return publish.TxResult{}, tx.statusErr
	}
	if c.neverMine || tx.polls <= c.pendingPolls {
		return publish.TxResult{State: publish.TxPending, Hash: txHash}, nil
	}
	if tx.result.ContractAddress != (common.Address{}) && tx.polls <= c.pendingPolls+c.addresslessPolls {
		return publish.TxResult{State: publish.TxSucceeded, Hash: txHash, BlockNumber: tx.result.BlockNumber}, nil
	}
	return tx.result, nil
}

func (c *fakeChain) newHash() common.Hash {
	return common.BigToHash(big.NewInt(int64(len(c.txs) + 1)))
}

func (c *fakeChain) snapshot() ([]creation, []registration, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]creation(nil), c.creations...), append([]registration(nil), c.registrations...), c.calls
}

// === Artifact helpers ===

// fn renders a JSON ABI function entry.
func fn(name string, types ...string) string {
	inputs := make([]string, len(types))
	for i, t := range types {
		inputs[i] = fmt.Sprintf(`{"name":"","type":%q}`, t)
	}
	return fmt.Sprintf(`{"type":"function","name":%q,"inputs":[%s]}`, name, strings.Join(inputs, ","))
}

func newArtifact(name, code string, entries ...string) *artifact.CompiledArtifact {
	parsed := artifact.MustParseABI("[" + strings.Join(entries, ",") + "]")
	return &artifact.CompiledArtifact{
		Name:      name,
		ABI:       parsed,
		Bytecode:  []byte(code),
		Selectors: artifact.SelectorTable(parsed),
	}
}

func registryArtifact(name string) *artifact.CompiledArtifact {
	return newArtifact(name, "main-code",
		fn("addContract", "bytes32", "address"),
		fn("removeContract", "bytes32"),
		fn("contracts", "bytes32"),
	)
}

func plainArtifact(name string) *artifact.CompiledArtifact {
	return newArtifact(name, name+"-code", fn("setMainAddress", "address"))
}

func testArtifacts(children ...string) artifact.Set {
	set := artifact.Set{"Main": registryArtifact("Main")}
	for _, name := range children {
		set[name] = plainArtifact(name)
	}
	return set
}
