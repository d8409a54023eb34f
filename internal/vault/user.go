package vault

import (
	"context"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
)

// Capability is the admin permission tier. Owners manage users and the
// vault itself; managers run day-to-day operations only.
type Capability string

const (
	CapabilityOwner   Capability = "owner"
	CapabilityManager Capability = "manager"
)

func (c Capability) CanManageUsers() bool { return c == CapabilityOwner }

// AdminUser is one administrator's vault record. Exactly the set of rows
// with a non-nil WrappedKey can decrypt PII.
type AdminUser struct {
	ID string

	// IdentityHash is the salted slow hash used for the fast-reject
	// password check, distinct in salt and purpose from the KEK derivation.
	IdentityHash string

	// IdentityIndex is the deterministic HMAC of the normalized username,
	// giving O(1) lookup without storing the username in plaintext.
	IdentityIndex []byte

	// IdentityCiphertext is the username sealed under the DEK, recoverable
	// only post-authentication for display.
	IdentityCiphertext []byte

	// WrappedKey is the tenant DEK sealed under this user's personal KEK.
	// Nil for a user who has not completed the join flow.
	WrappedKey []byte

	// KDF holds the Argon2id parameters and per-user salt for the KEK.
	KDF crypto.KDFParams

	Capability Capability
	CreatedAt  time.Time
}

// UserStore is the durable admin-user repository. Implementations must
// enforce uniqueness of IdentityIndex.
type UserStore interface {
	Add(ctx context.Context, u *AdminUser) error
	FindByIndex(ctx context.Context, index []byte) (*AdminUser, error)
	FindByID(ctx context.Context, id string) (*AdminUser, error)
	Update(ctx context.Context, u *AdminUser) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	CountByCapability(ctx context.Context, c Capability) (int64, error)
}
