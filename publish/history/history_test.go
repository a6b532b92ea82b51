package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cosmo-local-credit/doug/publish/classify"
	"github.com/cosmo-local-credit/doug/publish/deploy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func u64(v uint64) *uint64 { return &v }

func testSession(t *testing.T) *deploy.Session {
	t.Helper()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mode, err := deploy.ParseMode(deploy.Main{Name: "Main"})
	require.NoError(t, err)

	return &deploy.Session{
		ID:   uuid.New(),
		Mode: mode,
		Registry: deploy.DeployedContract{
			Role:    classify.Registry,
			Name:    "Main",
			Address: common.HexToAddress("0x00000000000000000000000000000000000a77ac"),
		},
		RegistryCreated: true,
		RegistryBlock:   u64(100),
		Pending:         []string{"A", "B"},
		Roles:           map[string]classify.Role{"A": classify.Entity, "B": classify.PlainContract},
		Completed: map[string]deploy.DeployedContract{
			"A": {
				Role:            classify.Entity,
				Name:            "A",
				Address:         common.HexToAddress("0x000000000000000000000000000000000000000a"),
				DeployedAtBlock: u64(102),
				TxHash:          common.HexToHash("0x01"),
			},
		},
		Failures: map[string]*deploy.Error{
			"B": {Kind: deploy.KindTransactionRejected, Contract: "B", Message: "create contract", Err: errors.New("out of gas")},
		},
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
}

func TestStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	s := testSession(t)

	require.NoError(t, store.Record(ctx, s))

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	require.Equal(t, s.ID, got.ID)
	require.Equal(t, "create", got.Mode)
	require.Equal(t, "Main", got.RegistryName)
	require.Equal(t, s.Registry.Address.Hex(), got.RegistryAddress)
	require.True(t, got.RegistryCreated)
	require.Equal(t, u64(100), got.RegistryBlock)
	require.Equal(t, 1, got.Completed)
	require.Equal(t, 1, got.Failed)
	require.True(t, s.StartedAt.Equal(got.StartedAt))
	require.True(t, s.FinishedAt.Equal(got.FinishedAt))

	contracts, err := store.Contracts(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	require.Equal(t, ContractRecord{
		Name:    "A",
		Role:    "entity",
		Status:  StatusDeployed,
		Address: s.Completed["A"].Address.Hex(),
		Block:   u64(102),
		TxHash:  common.HexToHash("0x01").Hex(),
	}, contracts[0])

	require.Equal(t, "B", contracts[1].Name)
	require.Equal(t, StatusFailed, contracts[1].Status)
	require.Equal(t, "contract", contracts[1].Role)
	require.Equal(t, "transaction_rejected", contracts[1].ErrorKind)
	require.Contains(t, contracts[1].Error, "out of gas")
	require.Nil(t, contracts[1].Block)
}

func TestStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	first := testSession(t)
	second := testSession(t)
	second.RegistryBlock = nil
	second.RegistryCreated = false
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	sessions, err := store.ListSessions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, second.ID, sessions[0].ID)
	require.Nil(t, sessions[0].RegistryBlock)

	all, err := store.ListSessions(ctx, -1)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestStore_DuplicateSessionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	s := testSession(t)

	require.NoError(t, store.Record(ctx, s))
	require.Error(t, store.Record(ctx, s))

	contracts, err := store.Contracts(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, contracts, 2)
}

func TestStore_ReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	s := testSession(t)
	require.NoError(t, store.Record(ctx, s))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, s.ID, sessions[0].ID)
}

func TestStore_UnknownSession(t *testing.T) {
	store := openTestStore(t)
	contracts, err := store.Contracts(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, contracts)
}
