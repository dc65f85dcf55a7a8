// Package wallet manages the smart contract accounts a key holder
// operates across networks, binding the account authorization core to
// the keystore and the persistence layer.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/config"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/keystore"
)

var (
	ErrAccountExists   = errors.New("account already exists on network")
	ErrAccountNotFound = errors.New("account not found")
	ErrSignerNotOwner  = errors.New("keystore address is not an owner of the account")
)

// ManagedAccount is one account under wallet management together with
// its network binding and service endpoints.
type ManagedAccount struct {
	*account.Account

	Network      string
	BundlerURL   string
	PaymasterURL string
}

// Wallet manages accounts across networks for one key holder.
type Wallet struct {
	name     string
	keys     *keystore.KeyManager
	store    *sqlite.WalletStore
	networks *config.Registry
	sink     account.EventSink

	mu       sync.RWMutex
	accounts map[string][]*ManagedAccount // network -> accounts
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithEventSink routes events of every managed account to sink.
func WithEventSink(sink account.EventSink) Option {
	return func(w *Wallet) {
		if sink != nil {
			w.sink = sink
		}
	}
}

// New creates a Wallet over the given keystore, store and network
// registry. Call Load to restore persisted accounts.
func New(name string, keys *keystore.KeyManager, store *sqlite.WalletStore, networks *config.Registry, opts ...Option) *Wallet {
	w := &Wallet{
		name:     name,
		keys:     keys,
		store:    store,
		networks: networks,
		sink:     account.SlogSink{},
		accounts: make(map[string][]*ManagedAccount),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the wallet name.
func (w *Wallet) Name() string {
	return w.name
}

// KeyManager returns the wallet's key manager.
func (w *Wallet) KeyManager() *keystore.KeyManager {
	return w.keys
}

// Networks returns the wallet's network registry.
func (w *Wallet) Networks() *config.Registry {
	return w.networks
}

// AddAccountParams carries the configuration of a new managed account.
type AddAccountParams struct {
	Network           string
	Address           common.Address
	EntryPoint        common.Address
	Owners            []common.Address
	Threshold         uint64
	Guardians         []common.Address
	GuardianThreshold uint64
	BundlerURL        string
	PaymasterURL      string

	// CustomRPC allows adding an account on a network the registry does
	// not know, mirroring the per-account RPC override.
	CustomRPC string
}

// AddAccount registers a deployed account with the wallet, initializes
// its authorization state and persists the snapshot.
func (w *Wallet) AddAccount(ctx context.Context, p AddAccountParams) (*ManagedAccount, error) {
	if p.CustomRPC == "" && !w.networks.Has(p.Network) {
		return nil, fmt.Errorf("%w: %s (add it to the registry or set CustomRPC)", config.ErrUnknownNetwork, p.Network)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.accounts[p.Network] {
		if existing.Address() == p.Address {
			return nil, fmt.Errorf("%w: %s on %s", ErrAccountExists, p.Address, p.Network)
		}
	}

	// The wallet can only sign for accounts it co-owns.
	if signer := w.keys.Address(); signer != (common.Address{}) && !containsAddress(p.Owners, signer) {
		return nil, fmt.Errorf("%w: signer %s", ErrSignerNotOwner, signer)
	}

	// Initialize against the nop sink: the registration is announced only
	// once the snapshot is durable, so a rejection never reaches the sink.
	acct := account.New(p.Address, p.EntryPoint, account.WithEventSink(account.NopSink))
	if err := acct.Initialize(p.Owners, p.Threshold, p.Guardians, p.GuardianThreshold); err != nil {
		return nil, err
	}

	managed := &ManagedAccount{
		Account:      acct,
		Network:      p.Network,
		BundlerURL:   p.BundlerURL,
		PaymasterURL: p.PaymasterURL,
	}
	if err := w.save(ctx, managed); err != nil {
		return nil, err
	}

	acct.SetEventSink(w.sink)
	w.accounts[p.Network] = append(w.accounts[p.Network], managed)

	w.sink.Emit(account.Event{
		Type:      account.EventInitialized,
		Account:   p.Address,
		Timestamp: time.Now().UTC(),
		Fields: map[string]string{
			"network":            p.Network,
			"owners":             strings.Join(formatAddresses(p.Owners), ","),
			"threshold":          strconv.FormatUint(p.Threshold, 10),
			"guardians":          strings.Join(formatAddresses(p.Guardians), ","),
			"guardian_threshold": strconv.FormatUint(p.GuardianThreshold, 10),
		},
	})
	return managed, nil
}

func containsAddress(set []common.Address, addr common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}

// GetAccount returns the account at address on the named network.
func (w *Wallet) GetAccount(network string, address common.Address) (*ManagedAccount, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, managed := range w.accounts[network] {
		if managed.Address() == address {
			return managed, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrAccountNotFound, address, network)
}

// FindAccount looks an account up by address across all networks.
func (w *Wallet) FindAccount(address common.Address) (*ManagedAccount, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, accounts := range w.accounts {
		for _, managed := range accounts {
			if managed.Address() == address {
				return managed, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
}

// Accounts returns the accounts managed on the named network.
func (w *Wallet) Accounts(network string) []*ManagedAccount {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*ManagedAccount(nil), w.accounts[network]...)
}

// ActiveNetworks returns the networks that have at least one account.
func (w *Wallet) ActiveNetworks() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	networks := make([]string, 0, len(w.accounts))
	for network, accounts := range w.accounts {
		if len(accounts) > 0 {
			networks = append(networks, network)
		}
	}
	return networks
}

// RemoveAccount drops an account from management and deletes its
// persisted snapshot. The deployed account itself is untouched.
func (w *Wallet) RemoveAccount(ctx context.Context, network string, address common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	accounts := w.accounts[network]
	for i, managed := range accounts {
		if managed.Address() != address {
			continue
		}
		if err := w.store.DeleteAccount(ctx, network, address.Hex()); err != nil && !errors.Is(err, sqlite.ErrNotFound) {
			return fmt.Errorf("delete account: %w", err)
		}
		w.accounts[network] = append(accounts[:i], accounts[i+1:]...)
		if len(w.accounts[network]) == 0 {
			delete(w.accounts, network)
		}
		return nil
	}
	return fmt.Errorf("%w: %s on %s", ErrAccountNotFound, address, network)
}

// Sync persists the account's current authorization state. Callers run
// it after every successful mutation so restarts observe the same owner
// and guardian sets the core does.
func (w *Wallet) Sync(ctx context.Context, managed *ManagedAccount) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.save(ctx, managed)
}

// Load restores managed accounts from the persisted snapshots.
func (w *Wallet) Load(ctx context.Context) error {
	records, err := w.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.accounts = make(map[string][]*ManagedAccount)
	for _, rec := range records {
		owners, err := parseAddresses(rec.Owners)
		if err != nil {
			return fmt.Errorf("account %s: %w", rec.Address, err)
		}
		guardians, err := parseAddresses(rec.Guardians)
		if err != nil {
			return fmt.Errorf("account %s: %w", rec.Address, err)
		}

		acct := account.New(common.HexToAddress(rec.Address), common.HexToAddress(rec.EntryPoint), account.WithEventSink(account.NopSink))
		if err := acct.Initialize(owners, rec.Threshold, guardians, rec.GuardianThreshold); err != nil {
			return fmt.Errorf("restore account %s: %w", rec.Address, err)
		}
		acct.SetEventSink(w.sink)

		w.accounts[rec.Network] = append(w.accounts[rec.Network], &ManagedAccount{
			Account:      acct,
			Network:      rec.Network,
			BundlerURL:   rec.BundlerURL,
			PaymasterURL: rec.PaymasterURL,
		})
	}
	return nil
}

func (w *Wallet) save(ctx context.Context, managed *ManagedAccount) error {
	rec := sqlite.AccountRecord{
		Network:           managed.Network,
		Address:           managed.Address().Hex(),
		EntryPoint:        managed.EntryPoint().Hex(),
		Owners:            formatAddresses(managed.Owners()),
		Threshold:         managed.Threshold(),
		Guardians:         formatAddresses(managed.Guardians()),
		GuardianThreshold: managed.GuardianThreshold(),
		BundlerURL:        managed.BundlerURL,
		PaymasterURL:      managed.PaymasterURL,
	}
	if err := w.store.SaveAccount(ctx, rec); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func parseAddresses(hexes []string) ([]common.Address, error) {
	addrs := make([]common.Address, len(hexes))
	for i, h := range hexes {
		if !common.IsHexAddress(h) {
			return nil, fmt.Errorf("invalid address %q", h)
		}
		addrs[i] = common.HexToAddress(h)
	}
	return addrs, nil
}

func formatAddresses(addrs []common.Address) []string {
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = strings.ToLower(a.Hex())
	}
	return hexes
}
