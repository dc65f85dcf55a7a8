package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager manages one encrypted signing key on disk. The key material
// lives in memory only while unlocked.
type KeyManager struct {
	storagePath string

	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	address  common.Address
	unlocked bool
}

// NewKeyManager creates a KeyManager backed by the keystore file at path.
func NewKeyManager(path string) *KeyManager {
	return &KeyManager{storagePath: path}
}

// CreateKey generates a fresh key, writes it encrypted under password and
// returns its address. The manager stays locked.
func (m *KeyManager) CreateKey(password string) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	return m.storeKey(key, password)
}

// ImportPrivateKey writes an existing hex-encoded private key encrypted
// under password and returns its address. A 0x prefix is accepted.
func (m *KeyManager) ImportPrivateKey(privateKeyHex, password string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return m.storeKey(key, password)
}

func (m *KeyManager) storeKey(key *ecdsa.PrivateKey, password string) (common.Address, error) {
	envelope, err := encrypt(crypto.FromECDSA(key), password)
	if err != nil {
		return common.Address{}, fmt.Errorf("encrypt key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.storagePath), 0700); err != nil {
		return common.Address{}, fmt.Errorf("create keystore directory: %w", err)
	}
	if err := os.WriteFile(m.storagePath, envelope, 0600); err != nil {
		return common.Address{}, fmt.Errorf("write keystore: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	m.mu.Lock()
	m.address = addr
	m.mu.Unlock()
	return addr, nil
}

// Unlock decrypts the stored key into memory and returns its address.
func (m *KeyManager) Unlock(password string) (common.Address, error) {
	data, err := os.ReadFile(m.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return common.Address{}, ErrKeystoreMissing
		}
		return common.Address{}, fmt.Errorf("read keystore: %w", err)
	}

	keyBytes, err := decrypt(data, password)
	if err != nil {
		return common.Address{}, err
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: decrypted key invalid", ErrWrongPassword)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	m.address = crypto.PubkeyToAddress(key.PublicKey)
	m.unlocked = true
	return m.address, nil
}

// Lock drops the in-memory key material.
func (m *KeyManager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = nil
	m.unlocked = false
}

// Unlocked reports whether the key is available for signing.
func (m *KeyManager) Unlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlocked
}

// Address returns the key's address, or the zero address when the
// keystore has never been opened or written.
func (m *KeyManager) Address() common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// SignDigest signs a 32-byte digest and returns the 65-byte r||s||v
// signature with the Ethereum 27/28 recovery id convention.
func (m *KeyManager) SignDigest(digest common.Hash) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.unlocked {
		return nil, ErrLocked
	}
	sig, err := crypto.Sign(digest.Bytes(), m.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[crypto.SignatureLength-1] += 27
	return sig, nil
}

// SignMessage signs an arbitrary message under the EIP-191 personal
// message prefix.
func (m *KeyManager) SignMessage(message []byte) ([]byte, error) {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message))
	digest := crypto.Keccak256Hash([]byte(prefix), message)
	return m.SignDigest(digest)
}

// ExportKeystore copies the encrypted keystore file to dest without
// decrypting it.
func (m *KeyManager) ExportKeystore(dest string) error {
	data, err := os.ReadFile(m.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrKeystoreMissing
		}
		return fmt.Errorf("read keystore: %w", err)
	}
	if err := os.WriteFile(dest, data, 0600); err != nil {
		return fmt.Errorf("write keystore copy: %w", err)
	}
	return nil
}

// ImportKeystore verifies an exported keystore file against password and
// installs it as this manager's keystore.
func (m *KeyManager) ImportKeystore(src, password string) (common.Address, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return common.Address{}, fmt.Errorf("read keystore: %w", err)
	}

	keyBytes, err := decrypt(data, password)
	if err != nil {
		return common.Address{}, err
	}
	key, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: decrypted key invalid", ErrWrongPassword)
	}

	if err := os.MkdirAll(filepath.Dir(m.storagePath), 0700); err != nil {
		return common.Address{}, fmt.Errorf("create keystore directory: %w", err)
	}
	if err := os.WriteFile(m.storagePath, data, 0600); err != nil {
		return common.Address{}, fmt.Errorf("write keystore: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	m.mu.Lock()
	m.address = addr
	m.mu.Unlock()
	return addr, nil
}
