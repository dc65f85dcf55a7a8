package keystore_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/keystore"
)

const password = "correct horse battery staple"

func newManager(t *testing.T) *keystore.KeyManager {
	t.Helper()
	return keystore.NewKeyManager(filepath.Join(t.TempDir(), "wallet.key"))
}

func TestKeyManager_CreateAndUnlock(t *testing.T) {
	m := newManager(t)

	addr, err := m.CreateKey(password)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, addr)
	assert.False(t, m.Unlocked(), "create leaves the manager locked")
	assert.Equal(t, addr, m.Address())

	unlocked, err := m.Unlock(password)
	require.NoError(t, err)
	assert.Equal(t, addr, unlocked)
	assert.True(t, m.Unlocked())

	m.Lock()
	assert.False(t, m.Unlocked())
}

func TestKeyManager_CreateInMissingDirectory(t *testing.T) {
	// First-run layout: the keystore directory does not exist yet.
	path := filepath.Join(t.TempDir(), "keystore", "default.key")
	m := keystore.NewKeyManager(path)

	addr, err := m.CreateKey(password)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, addr)

	unlocked, err := m.Unlock(password)
	require.NoError(t, err)
	assert.Equal(t, addr, unlocked)
}

func TestKeyManager_ImportKeystoreIntoMissingDirectory(t *testing.T) {
	m := newManager(t)
	addr, err := m.CreateKey(password)
	require.NoError(t, err)

	exported := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, m.ExportKeystore(exported))

	restored := keystore.NewKeyManager(filepath.Join(t.TempDir(), "keystore", "default.key"))
	got, err := restored.ImportKeystore(exported, password)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestKeyManager_UnlockWrongPassword(t *testing.T) {
	m := newManager(t)
	_, err := m.CreateKey(password)
	require.NoError(t, err)

	_, err = m.Unlock("nope")
	assert.ErrorIs(t, err, keystore.ErrWrongPassword)
	assert.False(t, m.Unlocked())
}

func TestKeyManager_UnlockMissing(t *testing.T) {
	m := newManager(t)
	_, err := m.Unlock(password)
	assert.ErrorIs(t, err, keystore.ErrKeystoreMissing)
}

func TestKeyManager_TamperedKeystore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.key")
	m := keystore.NewKeyManager(path)
	_, err := m.CreateKey(password)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not a keystore"), 0600))
	_, err = m.Unlock(password)
	assert.Error(t, err)
}

func TestKeyManager_ImportPrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := common.Bytes2Hex(crypto.FromECDSA(key))
	want := crypto.PubkeyToAddress(key.PublicKey)

	m := newManager(t)
	addr, err := m.ImportPrivateKey("0x"+keyHex, password)
	require.NoError(t, err)
	assert.Equal(t, want, addr)

	// And without the 0x prefix.
	m2 := newManager(t)
	addr2, err := m2.ImportPrivateKey(keyHex, password)
	require.NoError(t, err)
	assert.Equal(t, want, addr2)
}

func TestKeyManager_SignDigest(t *testing.T) {
	m := newManager(t)
	addr, err := m.CreateKey(password)
	require.NoError(t, err)

	digest := crypto.Keccak256Hash([]byte("operation"))
	_, err = m.SignDigest(digest)
	assert.ErrorIs(t, err, keystore.ErrLocked)

	_, err = m.Unlock(password)
	require.NoError(t, err)

	sig, err := m.SignDigest(digest)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	// v carries the Ethereum 27/28 convention.
	v := sig[crypto.SignatureLength-1]
	assert.True(t, v == 27 || v == 28)

	sig[crypto.SignatureLength-1] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub))
}

func TestKeyManager_SignMessage(t *testing.T) {
	m := newManager(t)
	addr, err := m.CreateKey(password)
	require.NoError(t, err)
	_, err = m.Unlock(password)
	require.NoError(t, err)

	message := []byte("hello nexus")
	sig, err := m.SignMessage(message)
	require.NoError(t, err)

	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	digest := crypto.Keccak256Hash([]byte(prefix), message)

	sig[crypto.SignatureLength-1] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, addr, crypto.PubkeyToAddress(*pub))
}

func TestKeyManager_ExportImportKeystore(t *testing.T) {
	m := newManager(t)
	addr, err := m.CreateKey(password)
	require.NoError(t, err)

	exported := filepath.Join(t.TempDir(), "backup.key")
	require.NoError(t, m.ExportKeystore(exported))

	restored := newManager(t)
	got, err := restored.ImportKeystore(exported, password)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = restored.Unlock(password)
	require.NoError(t, err)

	// Import with the wrong password must not install the file.
	another := newManager(t)
	_, err = another.ImportKeystore(exported, "nope")
	assert.ErrorIs(t, err, keystore.ErrWrongPassword)
	_, err = another.Unlock(password)
	assert.ErrorIs(t, err, keystore.ErrKeystoreMissing)
}
