package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
)

// Vault owns the key hierarchy for one deployment: the tenant DEK exists
// only as transient in-memory material, reconstructed per request from
// some user's wrapped copy. Construct one Vault per process (or per test);
// there are no package-level singletons.
type Vault struct {
	users  UserStore
	meta   MetaStore
	newKDF func() crypto.KDFParams
	argon  ArgonParams
	logger *slog.Logger

	mu       sync.Mutex
	indexKey []byte
}

type Option func(*Vault)

// WithKDF overrides the KEK derivation parameters, mainly so tests can use
// cheap costs.
func WithKDF(f func() crypto.KDFParams) Option {
	return func(v *Vault) { v.newKDF = f }
}

func WithArgon(p ArgonParams) Option {
	return func(v *Vault) { v.argon = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

func New(users UserStore, meta MetaStore, opts ...Option) *Vault {
	v := &Vault{
		users:  users,
		meta:   meta,
		newKDF: crypto.DefaultKDF,
		argon:  DefaultArgon,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// NewKDFParams exposes the vault's configured derivation parameters, with a
// fresh salt, for collaborators that stage their own wraps (invite flow).
func (v *Vault) NewKDFParams() crypto.KDFParams { return v.newKDF() }

// Initialized reports whether an owner has been created.
func (v *Vault) Initialized(ctx context.Context) (bool, error) {
	n, err := v.users.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Index computes the deterministic lookup token for a value. Fails with
// ErrNotInitialized before first setup, since the index seed does not
// exist yet.
func (v *Vault) Index(ctx context.Context, value string) ([]byte, error) {
	key, err := v.loadIndexKey(ctx)
	if err != nil {
		return nil, err
	}
	return crypto.DeterministicIndex(key, value), nil
}

func (v *Vault) loadIndexKey(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indexKey != nil {
		return v.indexKey, nil
	}
	m, err := v.meta.Load(ctx)
	if errors.Is(err, ErrNoMeta) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveIndexKey(m.IndexSeed)
	if err != nil {
		return nil, err
	}
	v.indexKey = key
	return key, nil
}

// CreateOwner performs first-time setup: it is only valid while zero users
// exist. It generates the tenant DEK and the index seed, then provisions
// the first administrator with owner capability.
func (v *Vault) CreateOwner(ctx context.Context, username, password string) (*AdminUser, error) {
	n, err := v.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAlreadyInitialized
	}

	seed, err := crypto.NewIndexSeed()
	if err != nil {
		return nil, err
	}
	if err := v.meta.Save(ctx, &Meta{IndexSeed: seed, CreatedAt: time.Now().UTC()}); err != nil {
		return nil, err
	}

	dek, err := crypto.NewDEK()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(dek)

	u, err := v.ProvisionUser(ctx, username, password, dek, CapabilityOwner)
	if err != nil {
		return nil, err
	}
	v.logger.Info("vault initialized", "user_id", u.ID)
	return u, nil
}

// ProvisionUser builds and stores an AdminUser row with a fresh wrap of
// the given DEK under a KEK derived from the chosen password. The DEK is
// not retained.
func (v *Vault) ProvisionUser(ctx context.Context, username, password string, dek []byte, capability Capability) (*AdminUser, error) {
	indexKey, err := v.loadIndexKey(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(v.argon, password)
	if err != nil {
		return nil, err
	}

	kdf := v.newKDF()
	kek := crypto.DeriveKEK([]byte(password), kdf)
	defer crypto.Zero32(&kek)

	wrapped, err := crypto.WrapKey(dek, kek)
	if err != nil {
		return nil, err
	}
	identityCT, err := crypto.EncryptField(dek, []byte(crypto.Normalize(username)))
	if err != nil {
		return nil, err
	}

	u := &AdminUser{
		ID:                 uuid.NewString(),
		IdentityHash:       hash,
		IdentityIndex:      crypto.DeterministicIndex(indexKey, username),
		IdentityCiphertext: identityCT,
		WrappedKey:         wrapped,
		KDF:                kdf,
		Capability:         capability,
		CreatedAt:          time.Now().UTC(),
	}
	if err := v.users.Add(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// VerifyPassword authenticates a user and, on success, returns the
// unwrapped DEK. Unknown user and wrong password both come back as a bare
// ErrAuthFailure; a KDF is burned on the unknown-user path so timing does
// not aid enumeration.
func (v *Vault) VerifyPassword(ctx context.Context, username, password string) (*AdminUser, []byte, error) {
	index, err := v.Index(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	u, err := v.users.FindByIndex(ctx, index)
	if errors.Is(err, ErrUserNotFound) {
		kek := crypto.DeriveKEK([]byte(password), v.newKDF())
		crypto.Zero32(&kek)
		return nil, nil, ErrAuthFailure
	}
	if err != nil {
		return nil, nil, err
	}

	// Fast-reject before the second expensive derivation.
	ok, err := VerifyPasswordHash(password, u.IdentityHash)
	if err != nil || !ok {
		return nil, nil, ErrAuthFailure
	}
	if u.WrappedKey == nil {
		// Join flow never completed; this user holds no key share.
		return nil, nil, ErrAuthFailure
	}

	kek := crypto.DeriveKEK([]byte(password), u.KDF)
	defer crypto.Zero32(&kek)
	dek, err := crypto.UnwrapKey(u.WrappedKey, kek)
	if err != nil {
		return nil, nil, ErrAuthFailure
	}
	return u, dek, nil
}

// ChangePassword proves possession of the old password by unwrapping with
// it, then atomically replaces the wrap, salt, and verification hash. The
// old wrapped copy is overwritten, never left retrievable. Callers must
// invalidate the user's sessions before reporting success.
func (v *Vault) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	u, err := v.users.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return ErrAuthFailure
	}
	if err != nil {
		return err
	}
	if u.WrappedKey == nil {
		return ErrAuthFailure
	}

	oldKEK := crypto.DeriveKEK([]byte(oldPassword), u.KDF)
	defer crypto.Zero32(&oldKEK)
	dek, err := crypto.UnwrapKey(u.WrappedKey, oldKEK)
	if err != nil {
		return ErrAuthFailure
	}
	defer crypto.Zero(dek)

	newKDF := v.newKDF()
	newKEK := crypto.DeriveKEK([]byte(newPassword), newKDF)
	defer crypto.Zero32(&newKEK)
	wrapped, err := crypto.WrapKey(dek, newKEK)
	if err != nil {
		return err
	}
	hash, err := HashPassword(v.argon, newPassword)
	if err != nil {
		return err
	}

	u.WrappedKey = wrapped
	u.KDF = newKDF
	u.IdentityHash = hash
	if err := v.users.Update(ctx, u); err != nil {
		return fmt.Errorf("replace wrapped key: %w", err)
	}
	v.logger.Info("password changed, key re-wrapped", "user_id", u.ID)
	return nil
}

// GetUser loads a user by id.
func (v *Vault) GetUser(ctx context.Context, id string) (*AdminUser, error) {
	return v.users.FindByID(ctx, id)
}

// RevokeUser removes an administrator's record and with it their key
// share. Only owners may revoke, and the last owner can never be removed.
func (v *Vault) RevokeUser(ctx context.Context, actor *AdminUser, targetID string) error {
	if actor == nil || !actor.Capability.CanManageUsers() {
		return ErrAuthorization
	}
	target, err := v.users.FindByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Capability == CapabilityOwner {
		owners, err := v.users.CountByCapability(ctx, CapabilityOwner)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	if err := v.users.Delete(ctx, targetID); err != nil {
		return err
	}
	v.logger.Info("user revoked", "actor_id", actor.ID, "target_id", targetID)
	return nil
}

// DecryptIdentity recovers a user's display name with the DEK. A tag
// mismatch here signals corruption or tampering of the stored row, not a
// credential problem.
func (v *Vault) DecryptIdentity(dek []byte, u *AdminUser) (string, error) {
	pt, err := crypto.DecryptField(dek, u.IdentityCiphertext)
	if err != nil {
		return "", fmt.Errorf("%w: identity ciphertext", ErrIntegrity)
	}
	return string(pt), nil
}
