package audit

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
)

// ComputeCID computes the content address of an audit entry payload:
// CIDv1, raw codec, keccak-256 multihash. Keccak keeps the address in
// the same hash family the account core uses for its digests.
func ComputeCID(payload []byte) (string, error) {
	hash, err := mh.Sum(payload, mh.KECCAK_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(uint64(multicodec.Raw), hash).String(), nil
}
