// Package userop builds user operations for account-abstraction accounts
// and computes the operation digest that owners sign and the signature
// validator authorizes.
package userop

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the packed user operation form: gas limits and gas
// fees are each packed into a single 32-byte word (high 128 bits first).
type UserOperation struct {
	Sender             common.Address `json:"sender"`
	Nonce              uint64         `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   common.Hash    `json:"accountGasLimits"`
	PreVerificationGas uint64         `json:"preVerificationGas"`
	GasFees            common.Hash    `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

// PackGasLimits packs verificationGasLimit||callGasLimit into one word.
func PackGasLimits(verificationGasLimit, callGasLimit uint64) common.Hash {
	return packPair(verificationGasLimit, new(big.Int).SetUint64(callGasLimit))
}

// PackGasFees packs maxPriorityFeePerGas||maxFeePerGas into one word.
func PackGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) common.Hash {
	packed := new(big.Int).Lsh(maxPriorityFeePerGas, 128)
	packed.Or(packed, maxFeePerGas)
	return common.BigToHash(packed)
}

func packPair(high uint64, low *big.Int) common.Hash {
	packed := new(big.Int).Lsh(new(big.Int).SetUint64(high), 128)
	packed.Or(packed, low)
	return common.BigToHash(packed)
}

// VerificationGasLimit unpacks the high half of AccountGasLimits.
func (op *UserOperation) VerificationGasLimit() uint64 {
	return new(big.Int).Rsh(op.AccountGasLimits.Big(), 128).Uint64()
}

// CallGasLimit unpacks the low half of AccountGasLimits.
func (op *UserOperation) CallGasLimit() uint64 {
	low := new(big.Int).And(op.AccountGasLimits.Big(), maxUint128)
	return low.Uint64()
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// HasPaymaster reports whether the operation names a paymaster. The first
// 20 bytes of PaymasterAndData are the paymaster address.
func (op *UserOperation) HasPaymaster() bool {
	return len(op.PaymasterAndData) >= common.AddressLength
}

// PaymasterAddress extracts the paymaster address, or the zero address
// when none is set.
func (op *UserOperation) PaymasterAddress() common.Address {
	if !op.HasPaymaster() {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// Hash computes the keccak256 digest of the packed operation encoding:
// sender, nonce word, call data, packed gas limits, pre-verification gas
// word, packed gas fees, paymaster data. This digest is what each owner
// signs.
func (op *UserOperation) Hash() common.Hash {
	packed := make([]byte, 0, 256+len(op.CallData)+len(op.PaymasterAndData))
	packed = append(packed, op.Sender.Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(op.Nonce)).Bytes()...)
	packed = append(packed, op.CallData...)
	packed = append(packed, op.AccountGasLimits.Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(op.PreVerificationGas)).Bytes()...)
	packed = append(packed, op.GasFees.Bytes()...)
	packed = append(packed, op.PaymasterAndData...)
	return common.BytesToHash(crypto.Keccak256(packed))
}

// Serialize encodes the operation as JSON for transport to a bundler.
func (op *UserOperation) Serialize() ([]byte, error) {
	return json.Marshal(op)
}

// Deserialize populates the operation from JSON bytes.
func (op *UserOperation) Deserialize(data []byte) error {
	return json.Unmarshal(data, op)
}
