// Package config manages per-network chain configuration: RPC endpoint,
// chain id and the deployed entry-point and factory addresses.
package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
)

var ErrUnknownNetwork = errors.New("network not configured")

// NetworkConfig describes one chain the wallet can operate on.
type NetworkConfig struct {
	Name              string `json:"name"`
	ChainID           uint64 `json:"chain_id"`
	RPCURL            string `json:"rpc_url"`
	EntryPointAddress string `json:"entrypoint_address,omitempty"`
	FactoryAddress    string `json:"factory_address,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
}

// Validate checks the fields a network cannot function without.
func (c NetworkConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("network name cannot be empty")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL cannot be empty")
	}
	return nil
}

// Registry holds network configurations, persisted through the wallet
// store.
type Registry struct {
	store *sqlite.WalletStore

	mu       sync.RWMutex
	networks map[string]NetworkConfig
}

// NewRegistry creates a Registry persisting to store.
func NewRegistry(store *sqlite.WalletStore) *Registry {
	return &Registry{
		store:    store,
		networks: make(map[string]NetworkConfig),
	}
}

// Load replaces the in-memory registry with the persisted networks.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.ListNetworks(ctx)
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks = make(map[string]NetworkConfig, len(records))
	for _, rec := range records {
		r.networks[rec.Name] = NetworkConfig{
			Name:              rec.Name,
			ChainID:           rec.ChainID,
			RPCURL:            rec.RPCURL,
			EntryPointAddress: rec.EntryPointAddress,
			FactoryAddress:    rec.FactoryAddress,
			DisplayName:       rec.DisplayName,
		}
	}
	return nil
}

// AddNetwork adds or replaces a network configuration and persists it.
func (r *Registry) AddNetwork(ctx context.Context, cfg NetworkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	err := r.store.SaveNetwork(ctx, sqlite.NetworkRecord{
		Name:              cfg.Name,
		ChainID:           cfg.ChainID,
		RPCURL:            cfg.RPCURL,
		EntryPointAddress: cfg.EntryPointAddress,
		FactoryAddress:    cfg.FactoryAddress,
		DisplayName:       cfg.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("save network: %w", err)
	}

	r.mu.Lock()
	r.networks[cfg.Name] = cfg
	r.mu.Unlock()
	return nil
}

// Network returns the configuration for the named network.
func (r *Registry) Network(name string) (NetworkConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.networks[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return cfg, nil
}

// Has reports whether the named network is configured.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.networks[name]
	return ok
}

// Names returns the configured network names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	return names
}

// SetEntryPoint records the entry-point address deployed on a network.
func (r *Registry) SetEntryPoint(ctx context.Context, name, entryPoint string) error {
	r.mu.RLock()
	cfg, ok := r.networks[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}

	cfg.EntryPointAddress = entryPoint
	return r.AddNetwork(ctx, cfg)
}
