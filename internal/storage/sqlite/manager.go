package sqlite

import (
	"errors"
	"sync"
)

// StoreManager manages WalletStore instances with caching.
type StoreManager struct {
	basePath string
	stores   map[string]*WalletStore // wallet name -> store
	mu       sync.RWMutex
}

// NewStoreManager creates a new StoreManager rooted at basePath.
func NewStoreManager(basePath string) *StoreManager {
	return &StoreManager{
		basePath: basePath,
		stores:   make(map[string]*WalletStore),
	}
}

// GetStore returns the WalletStore for the named wallet, opening it on
// first use. Stores are cached and reused.
func (m *StoreManager) GetStore(wallet string) (*WalletStore, error) {
	m.mu.RLock()
	if store, ok := m.stores[wallet]; ok {
		m.mu.RUnlock()
		return store, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if store, ok := m.stores[wallet]; ok {
		return store, nil
	}

	store, err := OpenWalletStore(m.basePath, wallet)
	if err != nil {
		return nil, err
	}

	m.stores[wallet] = store
	return store, nil
}

// CloseAll closes all cached stores.
func (m *StoreManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, store := range m.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.stores = make(map[string]*WalletStore)
	return errors.Join(errs...)
}

// BasePath returns the base path for wallet storage.
func (m *StoreManager) BasePath() string {
	return m.basePath
}
