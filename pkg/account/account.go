// Package account implements the authorization core of a smart contract
// account: a rotating multi-signature owner set with an independent
// guardian quorum that can replace the owners through social recovery.
//
// One Account instance holds the state of one deployed account. Every
// public operation is atomic with respect to every other operation; the
// instance imposes a total order on calls and never leaves partially
// applied state behind a rejection.
package account

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Account owns the owner set, signature threshold, guardian set and
// guardian threshold for a single smart contract account, plus the
// pending recovery approvals keyed by recovery digest.
type Account struct {
	mu sync.Mutex

	address    common.Address // the account contract itself
	entryPoint common.Address // trusted dispatcher

	owners            []common.Address
	threshold         uint64
	guardians         []common.Address
	guardianThreshold uint64

	// approvals maps recovery digest -> set of guardians that approved.
	// Records are created lazily on first approval and dropped when the
	// recovery executes or the last approval is revoked.
	approvals map[common.Hash]map[common.Address]bool

	initialized bool
	sink        EventSink
}

// Option configures an Account at construction time.
type Option func(*Account)

// WithEventSink routes state-transition events to sink instead of the
// default slog sink.
func WithEventSink(sink EventSink) Option {
	return func(a *Account) {
		if sink != nil {
			a.sink = sink
		}
	}
}

// New creates an uninitialized Account bound to its own contract address
// and the trusted entry-point (dispatcher) address.
func New(address, entryPoint common.Address, opts ...Option) *Account {
	a := &Account{
		address:    address,
		entryPoint: entryPoint,
		approvals:  make(map[common.Hash]map[common.Address]bool),
		sink:       SlogSink{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetEventSink replaces the event sink. Used when restoring an account
// from a persisted snapshot, where the replayed initialization should
// not be re-announced.
func (a *Account) SetEventSink(sink EventSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sink != nil {
		a.sink = sink
	}
}

// Initialize sets the owner and guardian configuration. It can succeed at
// most once per Account.
func (a *Account) Initialize(owners []common.Address, threshold uint64, guardians []common.Address, guardianThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return ErrAlreadyInitialized
	}
	if err := validateOwnerConfig(owners, threshold); err != nil {
		return err
	}
	if err := validateGuardianConfig(guardians, guardianThreshold); err != nil {
		return err
	}

	a.owners = append([]common.Address(nil), owners...)
	a.threshold = threshold
	a.guardians = append([]common.Address(nil), guardians...)
	a.guardianThreshold = guardianThreshold
	a.initialized = true

	a.emit(EventInitialized, map[string]string{
		"owners":             joinAddresses(a.owners),
		"threshold":          strconv.FormatUint(threshold, 10),
		"guardians":          joinAddresses(a.guardians),
		"guardian_threshold": strconv.FormatUint(guardianThreshold, 10),
	})
	return nil
}

// UpdateOwners atomically replaces the owner set and threshold. Pending
// recovery approvals are untouched; they stay keyed by their digests.
func (a *Account) UpdateOwners(caller common.Address, newOwners []common.Address, newThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	if err := validateOwnerConfig(newOwners, newThreshold); err != nil {
		return err
	}

	a.owners = append([]common.Address(nil), newOwners...)
	a.threshold = newThreshold

	a.emit(EventOwnersUpdated, map[string]string{
		"owners":    joinAddresses(a.owners),
		"threshold": strconv.FormatUint(newThreshold, 10),
	})
	return nil
}

// AddOwner appends a new owner. The threshold is unchanged.
func (a *Account) AddOwner(caller, owner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	if owner == (common.Address{}) {
		return ErrInvalidMember
	}
	if contains(a.owners, owner) {
		return fmt.Errorf("%w: owner %s", ErrDuplicateMember, owner)
	}

	a.owners = append(a.owners, owner)

	a.emit(EventOwnerAdded, map[string]string{"owner": owner.Hex()})
	return nil
}

// RemoveOwner removes an owner using swap-with-last-and-truncate, so the
// remaining order is not preserved. Removal is rejected whenever it would
// leave fewer owners than the current threshold requires.
func (a *Account) RemoveOwner(caller, owner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	idx := indexOf(a.owners, owner)
	if idx < 0 {
		return fmt.Errorf("%w: owner %s", ErrUnknownMember, owner)
	}
	if uint64(len(a.owners)-1) < a.threshold {
		return fmt.Errorf("%w: %d owners remaining, threshold %d", ErrThresholdViolation, len(a.owners)-1, a.threshold)
	}

	a.owners = swapTruncate(a.owners, idx)

	a.emit(EventOwnerRemoved, map[string]string{"owner": owner.Hex()})
	return nil
}

// UpdateGuardians atomically replaces the guardian set and guardian
// threshold.
func (a *Account) UpdateGuardians(caller common.Address, newGuardians []common.Address, newGuardianThreshold uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	if err := validateGuardianConfig(newGuardians, newGuardianThreshold); err != nil {
		return err
	}

	a.guardians = append([]common.Address(nil), newGuardians...)
	a.guardianThreshold = newGuardianThreshold

	a.emit(EventGuardiansUpdated, map[string]string{
		"guardians":          joinAddresses(a.guardians),
		"guardian_threshold": strconv.FormatUint(newGuardianThreshold, 10),
	})
	return nil
}

// AddGuardian appends a new guardian. Adding the first guardian enables
// recovery with a threshold of 1.
func (a *Account) AddGuardian(caller, guardian common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	if guardian == (common.Address{}) {
		return ErrInvalidMember
	}
	if contains(a.guardians, guardian) {
		return fmt.Errorf("%w: guardian %s", ErrDuplicateMember, guardian)
	}

	a.guardians = append(a.guardians, guardian)
	if a.guardianThreshold == 0 {
		a.guardianThreshold = 1
	}

	a.emit(EventGuardianAdded, map[string]string{"guardian": guardian.Hex()})
	return nil
}

// RemoveGuardian removes a guardian using swap-and-truncate. Guardian
// shrinkage heals the guardian threshold instead of failing: the
// threshold is clamped to the new set size, and forced to zero when the
// last guardian leaves.
func (a *Account) RemoveGuardian(caller, guardian common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwnerOrSelf(caller); err != nil {
		return err
	}
	idx := indexOf(a.guardians, guardian)
	if idx < 0 {
		return fmt.Errorf("%w: guardian %s", ErrUnknownMember, guardian)
	}

	a.guardians = swapTruncate(a.guardians, idx)
	switch {
	case len(a.guardians) == 0:
		a.guardianThreshold = 0
	case a.guardianThreshold > uint64(len(a.guardians)):
		a.guardianThreshold = uint64(len(a.guardians))
	}

	a.emit(EventGuardianRemoved, map[string]string{"guardian": guardian.Hex()})
	return nil
}

// Address returns the account's own contract address.
func (a *Account) Address() common.Address {
	return a.address
}

// EntryPoint returns the trusted dispatcher address.
func (a *Account) EntryPoint() common.Address {
	return a.entryPoint
}

// Owners returns a copy of the current owner set.
func (a *Account) Owners() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]common.Address(nil), a.owners...)
}

// Threshold returns the current signature threshold.
func (a *Account) Threshold() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threshold
}

// Guardians returns a copy of the current guardian set.
func (a *Account) Guardians() []common.Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]common.Address(nil), a.guardians...)
}

// GuardianThreshold returns the current guardian approval threshold.
func (a *Account) GuardianThreshold() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.guardianThreshold
}

// IsOwner reports whether addr is a current owner.
func (a *Account) IsOwner(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return contains(a.owners, addr)
}

// IsGuardian reports whether addr is a current guardian.
func (a *Account) IsGuardian(addr common.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return contains(a.guardians, addr)
}

// RecoveryEnabled reports whether the account has any guardians.
func (a *Account) RecoveryEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.guardians) > 0
}

// Initialized reports whether Initialize has succeeded.
func (a *Account) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// validateOwnerConfig checks that owners is a non-empty set of distinct
// non-zero addresses and that 1 <= threshold <= len(owners).
func validateOwnerConfig(owners []common.Address, threshold uint64) error {
	if len(owners) == 0 {
		return fmt.Errorf("%w: no owners", ErrInvalidConfiguration)
	}
	if threshold < 1 || threshold > uint64(len(owners)) {
		return fmt.Errorf("%w: threshold %d for %d owners", ErrInvalidConfiguration, threshold, len(owners))
	}
	if err := checkMembers(owners); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// validateGuardianConfig checks that the guardian threshold is zero iff
// the guardian set is empty and otherwise within [1, len(guardians)].
func validateGuardianConfig(guardians []common.Address, threshold uint64) error {
	if len(guardians) == 0 {
		if threshold != 0 {
			return fmt.Errorf("%w: guardian threshold %d with no guardians", ErrInvalidConfiguration, threshold)
		}
		return nil
	}
	if threshold < 1 || threshold > uint64(len(guardians)) {
		return fmt.Errorf("%w: guardian threshold %d for %d guardians", ErrInvalidConfiguration, threshold, len(guardians))
	}
	if err := checkMembers(guardians); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

func checkMembers(members []common.Address) error {
	seen := make(map[common.Address]struct{}, len(members))
	for _, m := range members {
		if m == (common.Address{}) {
			return fmt.Errorf("zero address member")
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("duplicate member %s", m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

func contains(set []common.Address, addr common.Address) bool {
	return indexOf(set, addr) >= 0
}

func indexOf(set []common.Address, addr common.Address) int {
	for i, m := range set {
		if m == addr {
			return i
		}
	}
	return -1
}

// swapTruncate removes set[idx] by swapping in the last element and
// truncating. Matches the source contract's compaction, so order is not
// preserved across removals.
func swapTruncate(set []common.Address, idx int) []common.Address {
	last := len(set) - 1
	set[idx] = set[last]
	set[last] = common.Address{}
	return set[:last]
}

func joinAddresses(set []common.Address) string {
	hexes := make([]string, len(set))
	for i, a := range set {
		hexes[i] = a.Hex()
	}
	return strings.Join(hexes, ",")
}
