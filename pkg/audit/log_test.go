package audit_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/account"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/audit"
)

func testEvent(seq int) account.Event {
	return account.Event{
		Type:      account.EventOwnerAdded,
		Account:   common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		Timestamp: time.Unix(1700000000+int64(seq), 0).UTC(),
		Fields:    map[string]string{"owner": "0x0000000000000000000000000000000000000001"},
	}
}

func openLog(t *testing.T, basePath string) (*audit.Log, *sqlite.WalletStore) {
	t.Helper()
	store, err := sqlite.OpenWalletStore(basePath, "audit-test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log, err := audit.Open(context.Background(), store)
	require.NoError(t, err)
	return log, store
}

func TestLog_EmptyRoot(t *testing.T) {
	log, _ := openLog(t, t.TempDir())

	assert.Equal(t, uint64(0), log.Size())
	root, err := log.Root()
	require.NoError(t, err)
	assert.NotEmpty(t, root, "empty log still has the RFC 6962 empty root")
}

func TestLog_Append(t *testing.T) {
	log, store := openLog(t, t.TempDir())
	ctx := context.Background()

	rec, err := log.Append(ctx, testEvent(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.Seq)
	assert.NotEmpty(t, rec.LeafHash)
	assert.True(t, strings.HasPrefix(rec.CID, "b"), "CIDv1 string form")
	assert.Equal(t, uint64(1), log.Size())

	root1, err := log.Root()
	require.NoError(t, err)

	rec2, err := log.Append(ctx, testEvent(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec2.Seq)

	root2, err := log.Root()
	require.NoError(t, err)
	assert.NotEqual(t, root1, root2, "root commits to every entry")

	// The entry is persisted with its proof material.
	entry, err := store.GetAuditEntry(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, rec.LeafHash, entry.LeafHash)
	assert.Equal(t, rec.CID, entry.CID)
	assert.Equal(t, rec.Payload, entry.Payload)
}

func TestLog_ReplayRebuildsRoot(t *testing.T) {
	tmpDir := t.TempDir()
	log, store := openLog(t, tmpDir)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, testEvent(i))
		require.NoError(t, err)
	}
	want, err := log.Root()
	require.NoError(t, err)

	// A fresh log over the same store replays to the identical root.
	reopened, err := audit.Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), reopened.Size())

	got, err := reopened.Root()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestComputeCID(t *testing.T) {
	c1, err := audit.ComputeCID([]byte("payload"))
	require.NoError(t, err)
	c2, err := audit.ComputeCID([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "content address is deterministic")

	c3, err := audit.ComputeCID([]byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3)
}

func TestSink_EmitAppends(t *testing.T) {
	log, _ := openLog(t, t.TempDir())
	sink := audit.Sink{Log: log}

	sink.Emit(testEvent(0))
	sink.Emit(testEvent(1))

	assert.Equal(t, uint64(2), log.Size())
}
