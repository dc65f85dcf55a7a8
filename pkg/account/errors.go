package account

import "errors"

var (
	// Configuration errors: the requested owner/guardian configuration can
	// never be valid, regardless of current state.
	ErrInvalidConfiguration = errors.New("invalid account configuration")
	ErrInvalidMember        = errors.New("zero address is not a valid member")
	ErrDuplicateMember      = errors.New("member already present")

	// Authorization errors: the caller lacks the privilege tier.
	ErrUnauthorized = errors.New("caller not authorized")
	ErrNotOwner     = errors.New("caller is not an owner")
	ErrNotGuardian  = errors.New("caller is not a guardian")

	// State errors: the operation is well-formed but inconsistent with the
	// account's current state.
	ErrAlreadyInitialized    = errors.New("account already initialized")
	ErrNotInitialized        = errors.New("account not initialized")
	ErrUnknownMember         = errors.New("member not found")
	ErrThresholdViolation    = errors.New("removal would make threshold unreachable")
	ErrRecoveryDisabled      = errors.New("recovery disabled: no guardians configured")
	ErrAlreadyApproved       = errors.New("guardian already approved this recovery")
	ErrNotApproved           = errors.New("guardian has not approved this recovery")
	ErrInsufficientApprovals = errors.New("insufficient guardian approvals")
)
