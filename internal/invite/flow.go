package invite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

const (
	codeBytes  = 24
	DefaultTTL = 48 * time.Hour
)

// Flow provisions new administrators: an owner creates a code, the
// invitee later sets their own password and receives a wrapped DEK copy
// without either party ever seeing the key in transit.
type Flow struct {
	invites Store
	vault   *vault.Vault
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Flow)

func WithTTL(d time.Duration) Option {
	return func(f *Flow) { f.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

func New(invites Store, v *vault.Vault, opts ...Option) *Flow {
	f := &Flow{invites: invites, vault: v, ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	return f
}

func codeHash(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

// Create mints a join code for the given capability. Owner only. The
// caller supplies the unwrapped DEK from its authenticated session; the
// DEK is staged under a KEK derived from the code and not retained.
func (f *Flow) Create(ctx context.Context, actorCapability vault.Capability, dek []byte, capability vault.Capability) (string, *Invite, error) {
	if !actorCapability.CanManageUsers() {
		return "", nil, vault.ErrAuthorization
	}

	raw := make([]byte, codeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	code := hex.EncodeToString(raw)

	kdf := f.vault.NewKDFParams()
	kek := crypto.DeriveKEK([]byte(code), kdf)
	defer crypto.Zero32(&kek)
	staged, err := crypto.StageKey(dek, kek)
	if err != nil {
		return "", nil, err
	}

	inv := &Invite{
		ID:         uuid.NewString(),
		CodeHash:   codeHash(code),
		Capability: capability,
		StagedKey:  staged,
		KDF:        kdf,
		Expires:    f.now().Add(f.ttl),
		CreatedAt:  f.now(),
	}
	if err := f.invites.Add(ctx, inv); err != nil {
		return "", nil, err
	}
	f.logger.Info("invite created", "invite_id", inv.ID, "capability", capability)
	return code, inv, nil
}

// Redeem consumes a code exactly once and provisions the new admin with a
// fresh wrap under a KEK derived from their chosen password. Expired,
// unknown, consumed, and replayed codes all come back as ErrInvalidInvite.
func (f *Flow) Redeem(ctx context.Context, code, username, password string) (*vault.AdminUser, error) {
	inv, err := f.invites.FindByCodeHash(ctx, codeHash(code))
	if err != nil {
		return nil, vault.ErrInvalidInvite
	}
	if !inv.usable(f.now()) {
		return nil, vault.ErrInvalidInvite
	}

	kek := crypto.DeriveKEK([]byte(code), inv.KDF)
	defer crypto.Zero32(&kek)
	dek, err := crypto.UnstageKey(inv.StagedKey, kek)
	if err != nil {
		return nil, vault.ErrInvalidInvite
	}
	defer crypto.Zero(dek)

	// Consume before provisioning so a racing replay loses here rather
	// than after a second user row exists.
	if err := f.invites.Consume(ctx, inv.ID, f.now()); err != nil {
		return nil, vault.ErrInvalidInvite
	}

	u, err := f.vault.ProvisionUser(ctx, username, password, dek, inv.Capability)
	if err != nil {
		// No user row was created, so give the code back: a rejected
		// username must not burn the invite.
		if rerr := f.invites.Release(ctx, inv.ID); rerr != nil {
			f.logger.Error("invite release", "invite_id", inv.ID, "error", rerr)
		}
		return nil, err
	}
	f.logger.Info("invite redeemed", "invite_id", inv.ID, "user_id", u.ID)
	return u, nil
}
