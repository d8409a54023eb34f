package vault

import (
	"errors"
	"fmt"
)

// The error taxonomy exposed at the vault boundary. Credential problems
// collapse into ErrAuthFailure so callers can never distinguish an unknown
// user from a wrong password.
var (
	ErrAuthFailure   = errors.New("vault: authentication failed")
	ErrAuthorization = errors.New("vault: capability insufficient")
	ErrRateLimited   = errors.New("vault: too many attempts")
	ErrInvalidInvite = errors.New("vault: invite invalid, expired, or consumed")
	ErrIntegrity     = errors.New("vault: stored ciphertext failed integrity check")
)

var (
	ErrAlreadyInitialized = errors.New("vault: an owner already exists")
	ErrNotInitialized     = errors.New("vault: no owner has been created")
	ErrUserNotFound       = errors.New("vault: user not found")
	ErrDuplicateUser      = errors.New("vault: user already exists")

	// Revoking the sole remaining owner would leave the vault permanently
	// unmanageable, so it is refused.
	ErrLastOwner = fmt.Errorf("%w: cannot revoke the last owner", ErrAuthorization)
)
