package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Gas defaults applied when BuildParams leaves a limit unset, matching
// the bundler-facing defaults the account service has always used.
const (
	DefaultCallGasLimit         = 100_000
	DefaultVerificationGasLimit = 150_000
	DefaultPreVerificationGas   = 21_000
)

// BuildParams carries the caller-supplied parts of a user operation.
// Zero gas limits fall back to the defaults above; nil fees fall back to
// DefaultMaxFeePerGas / DefaultMaxPriorityFeePerGas of the params.
type BuildParams struct {
	Nonce                uint64
	InitCode             []byte
	CallData             []byte
	CallGasLimit         uint64
	VerificationGasLimit uint64
	PreVerificationGas   uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
}

// Builder constructs user operations for one sender account.
type Builder struct {
	sender common.Address

	// Fallback fees used when params omit them, typically refreshed from
	// the chain by the caller before building.
	DefaultMaxFeePerGas         *big.Int
	DefaultMaxPriorityFeePerGas *big.Int
}

// NewBuilder creates a Builder for the given sender address with 2 gwei
// fallback fees.
func NewBuilder(sender common.Address) *Builder {
	gwei := big.NewInt(1_000_000_000)
	return &Builder{
		sender:                      sender,
		DefaultMaxFeePerGas:         new(big.Int).Mul(big.NewInt(2), gwei),
		DefaultMaxPriorityFeePerGas: new(big.Int).Mul(big.NewInt(2), gwei),
	}
}

// Build assembles a packed user operation, applying defaults for any
// unset gas parameter. The signature field is left empty for signing.
func (b *Builder) Build(p BuildParams) *UserOperation {
	callGas := p.CallGasLimit
	if callGas == 0 {
		callGas = DefaultCallGasLimit
	}
	verificationGas := p.VerificationGasLimit
	if verificationGas == 0 {
		verificationGas = DefaultVerificationGasLimit
	}
	preVerificationGas := p.PreVerificationGas
	if preVerificationGas == 0 {
		preVerificationGas = DefaultPreVerificationGas
	}
	maxFee := p.MaxFeePerGas
	if maxFee == nil {
		maxFee = b.DefaultMaxFeePerGas
	}
	maxPriorityFee := p.MaxPriorityFeePerGas
	if maxPriorityFee == nil {
		maxPriorityFee = b.DefaultMaxPriorityFeePerGas
	}

	return &UserOperation{
		Sender:             b.sender,
		Nonce:              p.Nonce,
		InitCode:           p.InitCode,
		CallData:           p.CallData,
		AccountGasLimits:   PackGasLimits(verificationGas, callGas),
		PreVerificationGas: preVerificationGas,
		GasFees:            PackGasFees(maxPriorityFee, maxFee),
		PaymasterAndData:   p.PaymasterAndData,
	}
}
