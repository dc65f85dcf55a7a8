// Package keystore stores a single secp256k1 signing key encrypted at
// rest and exposes locked/unlocked signing over operation digests.
//
// Envelope format (base64-encoded): salt(16) || iv(16) || ciphertext ||
// hmac(32). The key and the HMAC key are both derived from the password
// with PBKDF2-SHA256 over the same salt; the HMAC covers salt, iv and
// ciphertext. The format is compatible with keystores written by earlier
// releases of the wallet backend.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 16
	ivSize         = 16
	macSize        = 32
	keySize        = 32
	kdfIterations  = 390_000
	minEnvelopeLen = saltSize + ivSize + macSize
)

var (
	ErrWrongPassword    = errors.New("wrong password or corrupted keystore")
	ErrKeystoreTampered = errors.New("keystore integrity check failed")
	ErrLocked           = errors.New("keystore is locked")
	ErrKeystoreMissing  = errors.New("keystore file not found")
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
}

// encrypt seals data under password into the base64 envelope.
func encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	key := deriveKey(password, salt)
	hmacKey := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	ciphertext := make([]byte, len(data))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(ciphertext, data)

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(salt)
	mac.Write(iv)
	mac.Write(ciphertext)

	raw := make([]byte, 0, len(data)+minEnvelopeLen)
	raw = append(raw, salt...)
	raw = append(raw, iv...)
	raw = append(raw, ciphertext...)
	raw = append(raw, mac.Sum(nil)...)

	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(encoded, raw)
	return encoded, nil
}

// decrypt opens the base64 envelope with password. An HMAC mismatch is
// indistinguishable from a wrong password without trial decryption, so
// both surface as ErrWrongPassword; a structurally broken envelope is
// reported as tampering.
func decrypt(encoded []byte, password string) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(raw, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrKeystoreTampered, err)
	}
	raw = raw[:n]
	if len(raw) < minEnvelopeLen {
		return nil, fmt.Errorf("%w: envelope too short", ErrKeystoreTampered)
	}

	salt := raw[:saltSize]
	iv := raw[saltSize : saltSize+ivSize]
	ciphertext := raw[saltSize+ivSize : len(raw)-macSize]
	mac := raw[len(raw)-macSize:]

	key := deriveKey(password, salt)
	hmacKey := deriveKey(password, salt)

	wantMAC := hmac.New(sha256.New, hmacKey)
	wantMAC.Write(salt)
	wantMAC.Write(iv)
	wantMAC.Write(ciphertext)
	if !hmac.Equal(mac, wantMAC.Sum(nil)) {
		return nil, ErrWrongPassword
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
