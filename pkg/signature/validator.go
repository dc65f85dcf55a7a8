// Package signature validates ordered bundles of independent single-owner
// signatures against an account's signature threshold. It is the hot path
// of operation authorization: the dispatcher runs every user operation
// digest through ValidateBundle before executing anything.
package signature

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2"
)

// SignatureLength is the fixed size of one r||s||v secp256k1 signature.
const SignatureLength = crypto.SignatureLength

var (
	ErrMalformedSignatureBundle   = errors.New("signature bundle length is not a multiple of the signature size")
	ErrInsufficientSignatureCount = errors.New("fewer signatures than the threshold requires")
)

// Validator recovers signer addresses from signature bundles. Recovered
// (digest, signature) pairs are cached because dispatchers re-validate
// identical bundles during simulation and again at inclusion.
type Validator struct {
	cache *lru.Cache[cacheKey, common.Address]
}

type cacheKey struct {
	digest common.Hash
	sig    [SignatureLength]byte
}

// DefaultCacheSize bounds the recovered-signer cache.
const DefaultCacheSize = 4096

// NewValidator creates a Validator with a recovered-signer cache of the
// given size. A size <= 0 uses DefaultCacheSize.
func NewValidator(cacheSize int) *Validator {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[cacheKey, common.Address](cacheSize)
	return &Validator{cache: cache}
}

// ValidateBundle checks an operation digest's signature bundle against
// the current owner predicate and threshold.
//
// The bundle is a concatenation of fixed-size signatures. A bundle whose
// length is not an exact multiple of the signature size is rejected, as
// is a bundle carrying fewer signatures than the threshold. Individual
// signatures that fail recovery contribute nothing but do not abort the
// bundle. Recovered addresses are de-duplicated, so the same owner
// signing twice counts once.
//
// The boolean result is the authorization outcome; false with a nil
// error is a normal negative decision, not a failure.
func (v *Validator) ValidateBundle(digest common.Hash, bundle []byte, threshold uint64, isOwner func(common.Address) bool) (bool, error) {
	if len(bundle)%SignatureLength != 0 {
		return false, fmt.Errorf("%w: %d bytes", ErrMalformedSignatureBundle, len(bundle))
	}
	count := uint64(len(bundle) / SignatureLength)
	if count < threshold {
		return false, fmt.Errorf("%w: %d signatures, threshold %d", ErrInsufficientSignatureCount, count, threshold)
	}

	var valid uint64
	seen := make(map[common.Address]struct{}, count)
	for off := 0; off < len(bundle); off += SignatureLength {
		signer, err := v.RecoverSigner(digest, bundle[off:off+SignatureLength])
		if err != nil {
			continue
		}
		if _, dup := seen[signer]; dup {
			continue
		}
		seen[signer] = struct{}{}
		if isOwner(signer) {
			valid++
		}
	}

	return valid >= threshold, nil
}

// RecoverSigner recovers the address that produced sig over digest. The
// recovery id byte accepts both the raw 0/1 form and the Ethereum 27/28
// convention.
func (v *Validator) RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}

	var key cacheKey
	key.digest = digest
	copy(key.sig[:], sig)
	if addr, ok := v.cache.Get(key); ok {
		return addr, nil
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[SignatureLength-1] >= 27 {
		normalized[SignatureLength-1] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	addr := crypto.PubkeyToAddress(*pub)

	v.cache.Add(key, addr)
	return addr, nil
}
