package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.WalletStore {
	t.Helper()
	store, err := sqlite.OpenWalletStore(t.TempDir(), "testwallet")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWalletStore_OpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := sqlite.OpenWalletStore(tmpDir, "alpha")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "alpha", store.Wallet())

	dbPath := filepath.Join(tmpDir, "wallets", "alpha", "wallet.db")
	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, store.DBPath())

	assert.NoError(t, store.Close())
}

func TestWalletStore_OpenExisting(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := sqlite.OpenWalletStore(tmpDir, "alpha")
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := sqlite.OpenWalletStore(tmpDir, "alpha")
	require.NoError(t, err)
	require.NoError(t, store2.Close())
}

func TestWalletStore_Networks(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := sqlite.NetworkRecord{
		Name:              "sepolia",
		ChainID:           11155111,
		RPCURL:            "https://rpc.sepolia.org",
		EntryPointAddress: "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		DisplayName:       "Sepolia Testnet",
	}
	require.NoError(t, store.SaveNetwork(ctx, rec))

	got, err := store.GetNetwork(ctx, "sepolia")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	// Upsert replaces fields in place.
	rec.RPCURL = "https://other.example"
	require.NoError(t, store.SaveNetwork(ctx, rec))
	got, err = store.GetNetwork(ctx, "sepolia")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example", got.RPCURL)

	list, err := store.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteNetwork(ctx, "sepolia"))
	_, err = store.GetNetwork(ctx, "sepolia")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
	assert.ErrorIs(t, store.DeleteNetwork(ctx, "sepolia"), sqlite.ErrNotFound)
}

func TestWalletStore_Accounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := sqlite.AccountRecord{
		Network:           "sepolia",
		Address:           "0x00000000000000000000000000000000000000aa",
		EntryPoint:        "0x00000000000000000000000000000000000000ee",
		Owners:            []string{"0x0000000000000000000000000000000000000001"},
		Threshold:         1,
		Guardians:         []string{"0x0000000000000000000000000000000000000011"},
		GuardianThreshold: 1,
		BundlerURL:        "https://bundler.example",
	}
	require.NoError(t, store.SaveAccount(ctx, rec))

	got, err := store.GetAccount(ctx, rec.Network, rec.Address)
	require.NoError(t, err)
	assert.Equal(t, rec.Owners, got.Owners)
	assert.Equal(t, rec.Guardians, got.Guardians)
	assert.Equal(t, rec.Threshold, got.Threshold)
	assert.Equal(t, rec.BundlerURL, got.BundlerURL)
	assert.False(t, got.CreatedAt.IsZero())
	created := got.CreatedAt

	// Upsert preserves created_at.
	rec.Threshold = 1
	rec.Owners = append(rec.Owners, "0x0000000000000000000000000000000000000002")
	require.NoError(t, store.SaveAccount(ctx, rec))
	got, err = store.GetAccount(ctx, rec.Network, rec.Address)
	require.NoError(t, err)
	assert.Len(t, got.Owners, 2)
	assert.Equal(t, created, got.CreatedAt)

	list, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteAccount(ctx, rec.Network, rec.Address))
	_, err = store.GetAccount(ctx, rec.Network, rec.Address)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestWalletStore_AuditLog(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	size, err := store.AuditSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)

	require.NoError(t, store.AppendAuditEntry(ctx, 0, []byte{0x01}, "bafy-one", []byte(`{"a":1}`)))
	require.NoError(t, store.AppendAuditEntry(ctx, 1, []byte{0x02}, "bafy-two", []byte(`{"a":2}`)))

	size, err = store.AuditSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size)

	entry, err := store.GetAuditEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.Seq)
	assert.Equal(t, []byte{0x02}, entry.LeafHash)
	assert.Equal(t, "bafy-two", entry.CID)
	assert.Equal(t, []byte(`{"a":2}`), entry.Payload)

	hashes, err := store.ListAuditLeafHashes(ctx)
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	assert.Equal(t, []byte{0x01}, hashes[0])
	assert.Equal(t, []byte{0x02}, hashes[1])

	_, err = store.GetAuditEntry(ctx, 99)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}
