package server

import (
	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/audit"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/signature"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/wallet"
)

// Config holds server configuration.
type Config struct {
	Wallet       *wallet.Wallet
	Validator    *signature.Validator
	Audit        *audit.Log
	StoreManager *sqlite.StoreManager
}

// Option configures the server.
type Option func(*Config)

// WithWallet sets the wallet the server dispatches for.
func WithWallet(w *wallet.Wallet) Option {
	return func(c *Config) {
		c.Wallet = w
	}
}

// WithValidator sets the signature validator used by the execute
// endpoint. If nil (default), a validator with the default cache size is
// created.
func WithValidator(v *signature.Validator) Option {
	return func(c *Config) {
		c.Validator = v
	}
}

// WithAudit sets the audit log exposed by the audit endpoints.
func WithAudit(l *audit.Log) Option {
	return func(c *Config) {
		c.Audit = l
	}
}

// WithStoreManager sets the SQLite store manager.
func WithStoreManager(sm *sqlite.StoreManager) Option {
	return func(c *Config) {
		c.StoreManager = sm
	}
}

func applyOptions(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
