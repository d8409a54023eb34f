package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/invite"
	"github.com/chobbledotcom/tickets-sub001/internal/throttle"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testKDF() crypto.KDFParams {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return crypto.KDFParams{M: 8 * 1024, T: 1, P: 1, Salt: salt}
}

var testArgon = vault.ArgonParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

type fixture struct {
	vault *vault.Vault
	mgr   *Manager
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	v := vault.New(vault.NewMemoryUserStore(), vault.NewMemoryMetaStore(),
		vault.WithKDF(testKDF), vault.WithArgon(testArgon))
	lim := throttle.New(throttle.NewMemoryStore(), throttle.WithClock(clock.Now))
	flow := invite.New(invite.NewMemoryStore(), v, invite.WithClock(clock.Now))
	mgr := NewManager(NewMemoryStore(), v, lim,
		WithClock(clock.Now), WithInvites(flow))

	_, err := v.CreateOwner(context.Background(), "alice", "correct-horse-1")
	require.NoError(t, err)
	return &fixture{vault: v, mgr: mgr, clock: clock}
}

func TestAuthenticateAndRequire(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotEmpty(t, sess.CSRFToken)
	assert.NotEqual(t, sess.Token, sess.CSRFToken)

	// Read-only request, no CSRF needed.
	actx, err := f.mgr.Require(ctx, sess.Token, "", false)
	require.NoError(t, err)
	defer actx.Close()
	assert.Equal(t, vault.CapabilityOwner, actx.Capability())

	// State-changing request with a wrong CSRF value is rejected.
	_, err = f.mgr.Require(ctx, sess.Token, "not-the-csrf-token", true)
	assert.ErrorIs(t, err, vault.ErrAuthFailure)

	actx2, err := f.mgr.Require(ctx, sess.Token, sess.CSRFToken, true)
	require.NoError(t, err)
	defer actx2.Close()

	// Field crypto bound to the request's DEK.
	ct, err := actx2.Encrypt([]byte("attendee@example.com"))
	require.NoError(t, err)
	pt, err := actx2.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("attendee@example.com"), pt)

	// Tampered stored PII is integrity, not credentials.
	ct[len(ct)-1] ^= 0xFF
	_, err = actx2.Decrypt(ct)
	assert.ErrorIs(t, err, vault.ErrIntegrity)

	name, err := actx2.Identity()
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestAuthenticateBadCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.Authenticate(ctx, "alice", "wrong-password-9", "10.0.0.1")
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
	_, err = f.mgr.Authenticate(ctx, "mallory", "correct-horse-1", "10.0.0.1")
	assert.ErrorIs(t, err, vault.ErrAuthFailure)

	_, err = f.mgr.Require(ctx, "no-such-token", "", false)
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
}

func TestLockoutRejectsCorrectPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.mgr.Authenticate(ctx, "alice", "wrong-password-9", "10.0.0.1")
		assert.ErrorIs(t, err, vault.ErrAuthFailure)
	}

	// Sixth attempt is rejected before verification even with the right
	// password.
	_, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "10.0.0.1")
	assert.ErrorIs(t, err, vault.ErrRateLimited)

	// A different client identity is not affected.
	_, err = f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "10.0.0.2")
	require.NoError(t, err)

	// After the lockout passes, the correct password works and the
	// counter starts over.
	f.clock.Advance(throttle.DefaultLockout + time.Second)
	_, err = f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "10.0.0.1")
	require.NoError(t, err)
}

func TestExpiredSessionLazilyDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip")
	require.NoError(t, err)

	f.clock.Advance(DefaultTTL + time.Minute)
	_, err = f.mgr.Require(ctx, sess.Token, "", false)
	assert.ErrorIs(t, err, vault.ErrAuthFailure)

	// The stale row was removed on the way through.
	_, err = f.mgr.sessions.Get(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChangePasswordInvalidatesAllSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s1, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip-1")
	require.NoError(t, err)
	s2, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip-2")
	require.NoError(t, err)

	actx, err := f.mgr.Require(ctx, s1.Token, s1.CSRFToken, true)
	require.NoError(t, err)
	defer actx.Close()

	require.NoError(t, f.mgr.ChangePassword(ctx, actx, "correct-horse-1", "new-password-2"))

	for _, token := range []string{s1.Token, s2.Token} {
		_, err = f.mgr.Require(ctx, token, "", false)
		assert.ErrorIs(t, err, vault.ErrAuthFailure)
	}

	_, err = f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip-3")
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
	_, err = f.mgr.Authenticate(ctx, "alice", "new-password-2", "ip-3")
	require.NoError(t, err)
}

func TestLogoutOthersKeepsCaller(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s1, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip-1")
	require.NoError(t, err)
	s2, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip-2")
	require.NoError(t, err)

	require.NoError(t, f.mgr.LogoutOthers(ctx, s1.UserID, s1.Token))

	_, err = f.mgr.Require(ctx, s1.Token, "", false)
	require.NoError(t, err)
	_, err = f.mgr.Require(ctx, s2.Token, "", false)
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
}

func TestInviteLifecycleThroughManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip")
	require.NoError(t, err)
	actx, err := f.mgr.Require(ctx, sess.Token, sess.CSRFToken, true)
	require.NoError(t, err)
	defer actx.Close()

	code, err := f.mgr.CreateInvite(ctx, actx, vault.CapabilityManager)
	require.NoError(t, err)

	u, err := f.mgr.RedeemInvite(ctx, code, "bob", "manager-pass-1")
	require.NoError(t, err)
	assert.Equal(t, vault.CapabilityManager, u.Capability)

	// The new admin holds a working key share: the DEK they unwrap is the
	// same one sealed into the owner's records.
	bobSess, err := f.mgr.Authenticate(ctx, "bob", "manager-pass-1", "ip-2")
	require.NoError(t, err)
	bobCtx, err := f.mgr.Require(ctx, bobSess.Token, "", false)
	require.NoError(t, err)
	defer bobCtx.Close()

	ct, err := actx.Encrypt([]byte("shared-pii"))
	require.NoError(t, err)
	pt, err := bobCtx.Decrypt(ct)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("shared-pii"), pt))

	// Single use.
	_, err = f.mgr.RedeemInvite(ctx, code, "carol", "another-pass-2")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)

	// Managers cannot mint invites.
	bobCSRF, err := f.mgr.Require(ctx, bobSess.Token, bobSess.CSRFToken, true)
	require.NoError(t, err)
	defer bobCSRF.Close()
	_, err = f.mgr.CreateInvite(ctx, bobCSRF, vault.CapabilityManager)
	assert.ErrorIs(t, err, vault.ErrAuthorization)
}

func TestRevokedUserSessionDies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ownerSess, err := f.mgr.Authenticate(ctx, "alice", "correct-horse-1", "ip")
	require.NoError(t, err)
	ownerCtx, err := f.mgr.Require(ctx, ownerSess.Token, ownerSess.CSRFToken, true)
	require.NoError(t, err)
	defer ownerCtx.Close()

	code, err := f.mgr.CreateInvite(ctx, ownerCtx, vault.CapabilityManager)
	require.NoError(t, err)
	bob, err := f.mgr.RedeemInvite(ctx, code, "bob", "manager-pass-1")
	require.NoError(t, err)

	bobSess, err := f.mgr.Authenticate(ctx, "bob", "manager-pass-1", "ip-2")
	require.NoError(t, err)

	require.NoError(t, f.mgr.RevokeUser(ctx, ownerCtx, bob.ID))

	_, err = f.mgr.Require(ctx, bobSess.Token, "", false)
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
	_, err = f.mgr.Authenticate(ctx, "bob", "manager-pass-1", "ip-2")
	assert.ErrorIs(t, err, vault.ErrAuthFailure)
}
