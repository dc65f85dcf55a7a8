package wallet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/config"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/keystore"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/wallet"
)

var (
	accountAddr = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	entryPoint  = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	owner1      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	owner2      = common.HexToAddress("0x0000000000000000000000000000000000000002")
	guardian1   = common.HexToAddress("0x0000000000000000000000000000000000000011")
)

type fixture struct {
	wallet *wallet.Wallet
	store  *sqlite.WalletStore
	keys   *keystore.KeyManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmpDir := t.TempDir()

	store, err := sqlite.OpenWalletStore(tmpDir, "testwallet")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	keys := keystore.NewKeyManager(filepath.Join(tmpDir, "wallet.key"))

	networks := config.NewRegistry(store)
	require.NoError(t, networks.AddNetwork(context.Background(), config.NetworkConfig{
		Name:    "sepolia",
		ChainID: 11155111,
		RPCURL:  "https://rpc.sepolia.org",
	}))

	return &fixture{
		wallet: wallet.New("testwallet", keys, store, networks, wallet.WithEventSink(account.NopSink)),
		store:  store,
		keys:   keys,
	}
}

func defaultParams() wallet.AddAccountParams {
	return wallet.AddAccountParams{
		Network:           "sepolia",
		Address:           accountAddr,
		EntryPoint:        entryPoint,
		Owners:            []common.Address{owner1, owner2},
		Threshold:         2,
		Guardians:         []common.Address{guardian1},
		GuardianThreshold: 1,
		BundlerURL:        "https://bundler.example",
	}
}

func TestWallet_AddAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	managed, err := f.wallet.AddAccount(ctx, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, "sepolia", managed.Network)
	assert.True(t, managed.Initialized())
	assert.Equal(t, []common.Address{owner1, owner2}, managed.Owners())
	assert.Equal(t, "https://bundler.example", managed.BundlerURL)

	got, err := f.wallet.GetAccount("sepolia", accountAddr)
	require.NoError(t, err)
	assert.Same(t, managed, got)

	found, err := f.wallet.FindAccount(accountAddr)
	require.NoError(t, err)
	assert.Same(t, managed, found)

	assert.Equal(t, []string{"sepolia"}, f.wallet.ActiveNetworks())
	assert.Len(t, f.wallet.Accounts("sepolia"), 1)
}

func TestWallet_AddAccount_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wallet.AddAccount(ctx, defaultParams())
	require.NoError(t, err)

	_, err = f.wallet.AddAccount(ctx, defaultParams())
	assert.ErrorIs(t, err, wallet.ErrAccountExists)
}

func TestWallet_AddAccount_UnknownNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := defaultParams()
	p.Network = "nonet"
	_, err := f.wallet.AddAccount(ctx, p)
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)

	// A custom RPC bypasses the registry check.
	p.CustomRPC = "https://custom.example"
	_, err = f.wallet.AddAccount(ctx, p)
	assert.NoError(t, err)
}

func TestWallet_AddAccount_InvalidConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := defaultParams()
	p.Threshold = 3
	_, err := f.wallet.AddAccount(ctx, p)
	assert.ErrorIs(t, err, account.ErrInvalidConfiguration)

	_, err = f.wallet.FindAccount(accountAddr)
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
}

func TestWallet_AddAccount_SignerMustBeOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Give the keystore a known key that is not in the owner set.
	signerAddr, err := f.keys.CreateKey("password")
	require.NoError(t, err)

	_, err = f.wallet.AddAccount(ctx, defaultParams())
	assert.ErrorIs(t, err, wallet.ErrSignerNotOwner)

	// Including the signer in the owner set makes it valid.
	p := defaultParams()
	p.Owners = []common.Address{owner1, signerAddr}
	_, err = f.wallet.AddAccount(ctx, p)
	assert.NoError(t, err)
}

type countingSink struct {
	events []account.Event
}

func (s *countingSink) Emit(e account.Event) { s.events = append(s.events, e) }

func TestWallet_RejectedAddAccountEmitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sink := &countingSink{}
	w := wallet.New("testwallet", f.keys, f.store, f.wallet.Networks(), wallet.WithEventSink(sink))

	// Invalid configuration never reaches the sink.
	p := defaultParams()
	p.Threshold = 3
	_, err := w.AddAccount(ctx, p)
	require.ErrorIs(t, err, account.ErrInvalidConfiguration)
	assert.Empty(t, sink.events)

	// Neither does a signer-ownership rejection.
	_, err = f.keys.CreateKey("password")
	require.NoError(t, err)
	_, err = w.AddAccount(ctx, defaultParams())
	require.ErrorIs(t, err, wallet.ErrSignerNotOwner)
	assert.Empty(t, sink.events)
}

func TestWallet_AddAccountEmitsOnceOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sink := &countingSink{}
	w := wallet.New("testwallet", f.keys, f.store, f.wallet.Networks(), wallet.WithEventSink(sink))

	managed, err := w.AddAccount(ctx, defaultParams())
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	assert.Equal(t, account.EventInitialized, sink.events[0].Type)
	assert.Equal(t, accountAddr, sink.events[0].Account)
	assert.Equal(t, "sepolia", sink.events[0].Fields["network"])

	// Post-registration mutations flow through the same sink.
	require.NoError(t, managed.AddOwner(owner1, common.HexToAddress("0x0000000000000000000000000000000000000003")))
	require.Len(t, sink.events, 2)
	assert.Equal(t, account.EventOwnerAdded, sink.events[1].Type)
}

func TestWallet_RemoveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wallet.AddAccount(ctx, defaultParams())
	require.NoError(t, err)

	require.NoError(t, f.wallet.RemoveAccount(ctx, "sepolia", accountAddr))
	_, err = f.wallet.FindAccount(accountAddr)
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
	assert.Empty(t, f.wallet.ActiveNetworks())

	err = f.wallet.RemoveAccount(ctx, "sepolia", accountAddr)
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
}

func TestWallet_LoadRestoresAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	managed, err := f.wallet.AddAccount(ctx, defaultParams())
	require.NoError(t, err)

	// Mutate and sync so the snapshot differs from the initial state.
	owner3 := common.HexToAddress("0x0000000000000000000000000000000000000003")
	require.NoError(t, managed.AddOwner(owner1, owner3))
	require.NoError(t, f.wallet.Sync(ctx, managed))

	// A fresh wallet over the same store restores the synced state.
	reloaded := wallet.New("testwallet", f.keys, f.store, f.wallet.Networks(), wallet.WithEventSink(account.NopSink))
	require.NoError(t, reloaded.Load(ctx))

	restored, err := reloaded.FindAccount(accountAddr)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{owner1, owner2, owner3}, restored.Owners())
	assert.Equal(t, uint64(2), restored.Threshold())
	assert.Equal(t, []common.Address{guardian1}, restored.Guardians())
	assert.Equal(t, entryPoint, restored.EntryPoint())
	assert.Equal(t, "https://bundler.example", restored.BundlerURL)
}

func TestWallet_UnsyncedMutationIsNotRestored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	managed, err := f.wallet.AddAccount(ctx, defaultParams())
	require.NoError(t, err)

	owner3 := common.HexToAddress("0x0000000000000000000000000000000000000003")
	require.NoError(t, managed.AddOwner(owner1, owner3))
	// No Sync: the persisted snapshot still holds two owners.

	reloaded := wallet.New("testwallet", f.keys, f.store, f.wallet.Networks(), wallet.WithEventSink(account.NopSink))
	require.NoError(t, reloaded.Load(ctx))

	restored, err := reloaded.FindAccount(accountAddr)
	require.NoError(t, err)
	assert.Len(t, restored.Owners(), 2)
}
