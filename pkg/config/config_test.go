package config_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/config"
)

func newRegistry(t *testing.T) (*config.Registry, *sqlite.WalletStore) {
	t.Helper()
	store, err := sqlite.OpenWalletStore(t.TempDir(), "config-test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return config.NewRegistry(store), store
}

var sepolia = config.NetworkConfig{
	Name:              "sepolia",
	ChainID:           11155111,
	RPCURL:            "https://rpc.sepolia.org",
	EntryPointAddress: "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
	DisplayName:       "Sepolia Testnet",
}

func TestRegistry_AddAndGet(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.AddNetwork(ctx, sepolia))
	assert.True(t, registry.Has("sepolia"))
	assert.Equal(t, []string{"sepolia"}, registry.Names())

	got, err := registry.Network("sepolia")
	require.NoError(t, err)
	assert.Equal(t, sepolia, got)

	_, err = registry.Network("mainnet")
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)
	assert.False(t, registry.Has("mainnet"))
}

func TestRegistry_Validate(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	err := registry.AddNetwork(ctx, config.NetworkConfig{RPCURL: "https://rpc.example"})
	assert.Error(t, err, "missing name")

	err = registry.AddNetwork(ctx, config.NetworkConfig{Name: "sepolia"})
	assert.Error(t, err, "missing RPC URL")

	assert.False(t, registry.Has("sepolia"))
}

func TestRegistry_LoadPersisted(t *testing.T) {
	registry, store := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.AddNetwork(ctx, sepolia))

	// A fresh registry over the same store sees the persisted network.
	reloaded := config.NewRegistry(store)
	require.NoError(t, reloaded.Load(ctx))
	got, err := reloaded.Network("sepolia")
	require.NoError(t, err)
	assert.Equal(t, sepolia, got)
}

func TestRegistry_SetEntryPoint(t *testing.T) {
	registry, _ := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.AddNetwork(ctx, sepolia))

	newEntryPoint := "0x00000000000000000000000000000000000000EE"
	require.NoError(t, registry.SetEntryPoint(ctx, "sepolia", newEntryPoint))

	got, err := registry.Network("sepolia")
	require.NoError(t, err)
	assert.Equal(t, newEntryPoint, got.EntryPointAddress)

	err = registry.SetEntryPoint(ctx, "mainnet", newEntryPoint)
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)
}
