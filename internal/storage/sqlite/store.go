// Package sqlite persists wallet state: network configurations, account
// snapshots and the audit log. One database file per wallet name.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

// WalletStore is the SQLite-backed store for one wallet.
type WalletStore struct {
	db     *sql.DB
	wallet string
	dbPath string
}

// OpenWalletStore opens (creating if needed) the database for the named
// wallet under basePath.
func OpenWalletStore(basePath, wallet string) (*WalletStore, error) {
	walletDir := filepath.Join(basePath, "wallets", wallet)
	if err := os.MkdirAll(walletDir, 0755); err != nil {
		return nil, fmt.Errorf("create wallet directory: %w", err)
	}

	dbPath := filepath.Join(walletDir, "wallet.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+ // Wait up to 5s on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &WalletStore{
		db:     db,
		wallet: wallet,
		dbPath: dbPath,
	}, nil
}

func (s *WalletStore) Close() error {
	return s.db.Close()
}

func (s *WalletStore) Wallet() string {
	return s.wallet
}

func (s *WalletStore) DBPath() string {
	return s.dbPath
}

// NetworkRecord is a persisted network configuration row.
type NetworkRecord struct {
	Name              string
	ChainID           uint64
	RPCURL            string
	EntryPointAddress string
	FactoryAddress    string
	DisplayName       string
}

func (s *WalletStore) SaveNetwork(ctx context.Context, rec NetworkRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO networks (name, chain_id, rpc_url, entrypoint_address, factory_address, display_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   chain_id = excluded.chain_id,
		   rpc_url = excluded.rpc_url,
		   entrypoint_address = excluded.entrypoint_address,
		   factory_address = excluded.factory_address,
		   display_name = excluded.display_name`,
		rec.Name, rec.ChainID, rec.RPCURL, rec.EntryPointAddress, rec.FactoryAddress, rec.DisplayName)
	return err
}

func (s *WalletStore) GetNetwork(ctx context.Context, name string) (*NetworkRecord, error) {
	var rec NetworkRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT name, chain_id, rpc_url, entrypoint_address, factory_address, display_name
		 FROM networks WHERE name = ?`, name).
		Scan(&rec.Name, &rec.ChainID, &rec.RPCURL, &rec.EntryPointAddress, &rec.FactoryAddress, &rec.DisplayName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *WalletStore) ListNetworks(ctx context.Context) ([]NetworkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, chain_id, rpc_url, entrypoint_address, factory_address, display_name
		 FROM networks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []NetworkRecord
	for rows.Next() {
		var rec NetworkRecord
		if err := rows.Scan(&rec.Name, &rec.ChainID, &rec.RPCURL, &rec.EntryPointAddress, &rec.FactoryAddress, &rec.DisplayName); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *WalletStore) DeleteNetwork(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AccountRecord is a persisted snapshot of one account's configuration.
type AccountRecord struct {
	Network           string
	Address           string
	EntryPoint        string
	Owners            []string
	Threshold         uint64
	Guardians         []string
	GuardianThreshold uint64
	BundlerURL        string
	PaymasterURL      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SaveAccount upserts an account snapshot. The created_at timestamp of
// an existing row is preserved.
func (s *WalletStore) SaveAccount(ctx context.Context, rec AccountRecord) error {
	owners, err := json.Marshal(rec.Owners)
	if err != nil {
		return fmt.Errorf("encode owners: %w", err)
	}
	guardians, err := json.Marshal(rec.Guardians)
	if err != nil {
		return fmt.Errorf("encode guardians: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (network, address, entrypoint, owners, threshold, guardians, guardian_threshold,
		                       bundler_url, paymaster_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(network, address) DO UPDATE SET
		   entrypoint = excluded.entrypoint,
		   owners = excluded.owners,
		   threshold = excluded.threshold,
		   guardians = excluded.guardians,
		   guardian_threshold = excluded.guardian_threshold,
		   bundler_url = excluded.bundler_url,
		   paymaster_url = excluded.paymaster_url,
		   updated_at = excluded.updated_at`,
		rec.Network, rec.Address, rec.EntryPoint, string(owners), rec.Threshold, string(guardians),
		rec.GuardianThreshold, rec.BundlerURL, rec.PaymasterURL, now, now)
	return err
}

func (s *WalletStore) GetAccount(ctx context.Context, network, address string) (*AccountRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT network, address, entrypoint, owners, threshold, guardians, guardian_threshold,
		        bundler_url, paymaster_url, created_at, updated_at
		 FROM accounts WHERE network = ? AND address = ?`, network, address)
	return scanAccount(row.Scan)
}

func (s *WalletStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT network, address, entrypoint, owners, threshold, guardians, guardian_threshold,
		        bundler_url, paymaster_url, created_at, updated_at
		 FROM accounts ORDER BY network, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []AccountRecord
	for rows.Next() {
		rec, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *WalletStore) DeleteAccount(ctx context.Context, network, address string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE network = ? AND address = ?`, network, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(scan func(...any) error) (*AccountRecord, error) {
	var rec AccountRecord
	var owners, guardians, createdAt, updatedAt string

	err := scan(&rec.Network, &rec.Address, &rec.EntryPoint, &owners, &rec.Threshold,
		&guardians, &rec.GuardianThreshold, &rec.BundlerURL, &rec.PaymasterURL, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(owners), &rec.Owners); err != nil {
		return nil, fmt.Errorf("decode owners: %w", err)
	}
	if err := json.Unmarshal([]byte(guardians), &rec.Guardians); err != nil {
		return nil, fmt.Errorf("decode guardians: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// AuditRecord is one persisted audit log entry.
type AuditRecord struct {
	Seq       uint64
	LeafHash  []byte
	CID       string
	Payload   []byte
	CreatedAt time.Time
}

// AppendAuditEntry stores an audit entry at the given sequence number.
// Sequence numbers are assigned by the audit log and must be contiguous;
// the primary key rejects duplicates.
func (s *WalletStore) AppendAuditEntry(ctx context.Context, seq uint64, leafHash []byte, cid string, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (seq, leaf_hash, cid, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		seq, leafHash, cid, payload, now)
	return err
}

func (s *WalletStore) GetAuditEntry(ctx context.Context, seq uint64) (*AuditRecord, error) {
	var rec AuditRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, leaf_hash, cid, payload, created_at FROM audit_log WHERE seq = ?`, seq).
		Scan(&rec.Seq, &rec.LeafHash, &rec.CID, &rec.Payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}

// ListAuditLeafHashes returns all leaf hashes in sequence order, used to
// rebuild the Merkle range on startup.
func (s *WalletStore) ListAuditLeafHashes(ctx context.Context) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT leaf_hash FROM audit_log ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes [][]byte
	for rows.Next() {
		var h []byte
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (s *WalletStore) AuditSize(ctx context.Context) (uint64, error) {
	var size uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&size)
	return size, err
}
