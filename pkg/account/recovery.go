package account

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Social recovery lets an m-of-n guardian quorum replace the owner set
// without any owner signature. Each proposed (newOwners, newThreshold)
// pair is an independent recovery request identified by its digest, so
// guardians that disagree on the outcome can accumulate approvals for
// competing proposals concurrently.
//
// Per-digest lifecycle: no approvals -> pending -> quorate -> executed,
// at which point the digest's approvals are cleared and the record is
// dropped.

// RecoveryDigest computes the identifying digest of a proposed recovery:
// keccak256 over each proposed owner address left-padded to a 32-byte
// word, followed by the threshold word.
func RecoveryDigest(newOwners []common.Address, newThreshold uint64) common.Hash {
	packed := make([]byte, 0, 32*(len(newOwners)+1))
	for _, owner := range newOwners {
		packed = append(packed, common.LeftPadBytes(owner.Bytes(), 32)...)
	}
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(newThreshold)).Bytes()...)
	return common.BytesToHash(crypto.Keccak256(packed))
}

// ApproveRecovery records the caller's approval for replacing the owner
// set with (newOwners, newThreshold). Only current guardians may approve,
// and only once per request.
func (a *Account) ApproveRecovery(caller common.Address, newOwners []common.Address, newThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if len(a.guardians) == 0 {
		return ErrRecoveryDisabled
	}
	if !contains(a.guardians, caller) {
		return fmt.Errorf("%w: %s", ErrNotGuardian, caller)
	}
	if err := validateOwnerConfig(newOwners, newThreshold); err != nil {
		return err
	}

	digest := RecoveryDigest(newOwners, newThreshold)
	record := a.approvals[digest]
	if record == nil {
		record = make(map[common.Address]bool)
		a.approvals[digest] = record
	}
	if record[caller] {
		return fmt.Errorf("%w: guardian %s, recovery %s", ErrAlreadyApproved, caller, digest)
	}
	record[caller] = true

	a.emit(EventRecoveryApproved, map[string]string{
		"guardian":       caller.Hex(),
		"recovery":       digest.Hex(),
		"approval_count": strconv.FormatUint(a.approvalCount(digest), 10),
	})
	return nil
}

// RevokeRecoveryApproval withdraws the caller's earlier approval for the
// given proposal.
func (a *Account) RevokeRecoveryApproval(caller common.Address, newOwners []common.Address, newThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if !contains(a.guardians, caller) {
		return fmt.Errorf("%w: %s", ErrNotGuardian, caller)
	}

	digest := RecoveryDigest(newOwners, newThreshold)
	record := a.approvals[digest]
	if record == nil || !record[caller] {
		return fmt.Errorf("%w: guardian %s, recovery %s", ErrNotApproved, caller, digest)
	}
	delete(record, caller)
	if len(record) == 0 {
		delete(a.approvals, digest)
	}

	a.emit(EventRecoveryApprovalRevoked, map[string]string{
		"guardian":       caller.Hex(),
		"recovery":       digest.Hex(),
		"approval_count": strconv.FormatUint(a.approvalCount(digest), 10),
	})
	return nil
}

// ExecuteRecovery replaces the owner set and threshold once the proposal
// has reached guardian quorum, bypassing owner signatures entirely. Any
// caller may trigger execution. Approvals for the executed digest are
// cleared; other pending proposals are unaffected.
func (a *Account) ExecuteRecovery(caller common.Address, newOwners []common.Address, newThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if len(a.guardians) == 0 {
		return ErrRecoveryDisabled
	}
	if err := validateOwnerConfig(newOwners, newThreshold); err != nil {
		return err
	}

	digest := RecoveryDigest(newOwners, newThreshold)
	count := a.approvalCount(digest)
	if count < a.guardianThreshold {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientApprovals, count, a.guardianThreshold)
	}

	a.owners = append([]common.Address(nil), newOwners...)
	a.threshold = newThreshold

	// Clear the executed request. Scans the current guardian list, so
	// approvals left behind by since-removed guardians are discarded with
	// the record rather than individually.
	record := a.approvals[digest]
	for _, g := range a.guardians {
		delete(record, g)
	}
	delete(a.approvals, digest)

	a.emit(EventRecoveryExecuted, map[string]string{
		"caller":    caller.Hex(),
		"recovery":  digest.Hex(),
		"owners":    joinAddresses(a.owners),
		"threshold": strconv.FormatUint(newThreshold, 10),
	})
	return nil
}

// RecoveryApprovalCount returns how many current guardians have approved
// the given proposal. Approvals from guardians that have since been
// removed do not count.
func (a *Account) RecoveryApprovalCount(newOwners []common.Address, newThreshold uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.approvalCount(RecoveryDigest(newOwners, newThreshold))
}

// HasApprovedRecovery reports whether guardian currently counts as having
// approved the given proposal.
func (a *Account) HasApprovedRecovery(guardian common.Address, newOwners []common.Address, newThreshold uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !contains(a.guardians, guardian) {
		return false
	}
	record := a.approvals[RecoveryDigest(newOwners, newThreshold)]
	return record != nil && record[guardian]
}

// approvalCount must be called with a.mu held. It counts approvals of
// current guardians only, keeping the count consistent under guardian
// set changes between approval and execution.
func (a *Account) approvalCount(digest common.Hash) uint64 {
	record := a.approvals[digest]
	if record == nil {
		return 0
	}
	var count uint64
	for _, g := range a.guardians {
		if record[g] {
			count++
		}
	}
	return count
}
