package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Two privilege tiers gate the account's entry points. Management calls
// require owner-or-self: a current owner calling directly, or the account
// acting on its own behalf through the generic execute indirection. The
// execute entry point itself requires entrypoint-or-owner: the trusted
// dispatcher, or a current owner calling directly.

// AuthorizeExecute checks the entrypoint-or-owner tier for the generic
// execute entry point.
func (a *Account) AuthorizeExecute(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireEntryPointOrOwner(caller)
}

// AuthorizeManagement checks the owner-or-self tier. Mutating operations
// run this internally; it is exported for dispatchers that want to
// pre-flight a call without applying it.
func (a *Account) AuthorizeManagement(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requireOwnerOrSelf(caller)
}

// requireOwnerOrSelf must be called with a.mu held.
func (a *Account) requireOwnerOrSelf(caller common.Address) error {
	if !a.initialized {
		return ErrNotInitialized
	}
	if caller == a.address || contains(a.owners, caller) {
		return nil
	}
	return fmt.Errorf("%w: %s is not an owner or the account itself", ErrUnauthorized, caller)
}

// requireEntryPointOrOwner must be called with a.mu held.
func (a *Account) requireEntryPointOrOwner(caller common.Address) error {
	if !a.initialized {
		return ErrNotInitialized
	}
	if caller == a.entryPoint || contains(a.owners, caller) {
		return nil
	}
	return fmt.Errorf("%w: %s is not the entry point or an owner", ErrUnauthorized, caller)
}
