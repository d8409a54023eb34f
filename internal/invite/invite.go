package invite

import (
	"context"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

// Invite is a single-use, time-limited join offer. Only a hash of the code
// is stored; the code itself is handed to the invitee out of band and acts
// as a temporary high-entropy password protecting the staged key.
type Invite struct {
	ID         string
	CodeHash   []byte
	Capability vault.Capability

	// StagedKey is the tenant DEK sealed under a KEK derived from the
	// invite code, so redemption does not need a live owner session and
	// the DEK is never stored unwrapped.
	StagedKey []byte
	KDF       crypto.KDFParams

	Expires    time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (i *Invite) usable(now time.Time) bool {
	return i.ConsumedAt == nil && now.Before(i.Expires)
}

// Store persists invites. Consume must be atomic: of two concurrent
// redemptions of the same code, exactly one may succeed. Release undoes a
// consumption whose provisioning failed, making the code usable again.
type Store interface {
	Add(ctx context.Context, i *Invite) error
	FindByCodeHash(ctx context.Context, hash []byte) (*Invite, error)
	Consume(ctx context.Context, id string, at time.Time) error
	Release(ctx context.Context, id string) error
}
