// Package audit keeps a tamper-evident, append-only log of account
// authorization events. Entries are hashed into an RFC 6962 Merkle tree
// maintained as a compact range, so the current root commits to every
// decision the core has made, and each entry carries a content address
// external witnesses can reference without trusting sequence numbers.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/rfc6962"

	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
)

// Store is the persistence the log needs, satisfied by the sqlite
// WalletStore.
type Store interface {
	AppendAuditEntry(ctx context.Context, seq uint64, leafHash []byte, cid string, payload []byte) error
	ListAuditLeafHashes(ctx context.Context) ([][]byte, error)
}

// Record is one appended entry together with its proof material.
type Record struct {
	Seq      uint64
	LeafHash []byte
	CID      string
	Payload  []byte
}

// Log is an append-only Merkle log of account events.
type Log struct {
	mu    sync.Mutex
	store Store
	rng   *compact.Range
	size  uint64
}

var rangeFactory = &compact.RangeFactory{Hash: rfc6962.DefaultHasher.HashChildren}

// Open creates a Log over store, replaying persisted leaf hashes to
// rebuild the compact range.
func Open(ctx context.Context, store Store) (*Log, error) {
	rng := rangeFactory.NewEmptyRange(0)

	hashes, err := store.ListAuditLeafHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit leaves: %w", err)
	}
	for _, h := range hashes {
		if err := rng.Append(h, nil); err != nil {
			return nil, fmt.Errorf("replay audit leaf: %w", err)
		}
	}

	return &Log{
		store: store,
		rng:   rng,
		size:  uint64(len(hashes)),
	}, nil
}

// Append hashes and persists one account event, then folds it into the
// Merkle range.
func (l *Log) Append(ctx context.Context, event account.Event) (Record, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Record{}, fmt.Errorf("encode event: %w", err)
	}

	entryCID, err := ComputeCID(payload)
	if err != nil {
		return Record{}, fmt.Errorf("compute entry cid: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{
		Seq:      l.size,
		LeafHash: rfc6962.DefaultHasher.HashLeaf(payload),
		CID:      entryCID,
		Payload:  payload,
	}
	if err := l.store.AppendAuditEntry(ctx, rec.Seq, rec.LeafHash, rec.CID, rec.Payload); err != nil {
		return Record{}, fmt.Errorf("persist audit entry: %w", err)
	}
	if err := l.rng.Append(rec.LeafHash, nil); err != nil {
		return Record{}, fmt.Errorf("append to range: %w", err)
	}
	l.size++

	return rec, nil
}

// Size returns the number of entries in the log.
func (l *Log) Size() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Root returns the Merkle root over all entries. An empty log has the
// RFC 6962 empty root.
func (l *Log) Root() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size == 0 {
		return rfc6962.DefaultHasher.EmptyRoot(), nil
	}
	return l.rng.GetRootHash(nil)
}
