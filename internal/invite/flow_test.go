package invite

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

func testKDF() crypto.KDFParams {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return crypto.KDFParams{M: 8 * 1024, T: 1, P: 1, Salt: salt}
}

var testArgon = vault.ArgonParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}

func testVault(t *testing.T) (*vault.Vault, []byte) {
	t.Helper()
	v := vault.New(vault.NewMemoryUserStore(), vault.NewMemoryMetaStore(),
		vault.WithKDF(testKDF), vault.WithArgon(testArgon))
	_, err := v.CreateOwner(context.Background(), "alice", "correct-horse-1")
	require.NoError(t, err)
	_, dek, err := v.VerifyPassword(context.Background(), "alice", "correct-horse-1")
	require.NoError(t, err)
	return v, dek
}

func TestCreateRequiresOwner(t *testing.T) {
	v, dek := testVault(t)
	f := New(NewMemoryStore(), v)

	_, _, err := f.Create(context.Background(), vault.CapabilityManager, dek, vault.CapabilityManager)
	assert.ErrorIs(t, err, vault.ErrAuthorization)
}

func TestRedeemProvisionsUserWithSameKey(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)
	f := New(NewMemoryStore(), v)

	code, inv, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Nil(t, inv.ConsumedAt)

	u, err := f.Redeem(ctx, code, "bob", "manager-pass-1")
	require.NoError(t, err)
	assert.Equal(t, vault.CapabilityManager, u.Capability)

	// Bob's password unwraps the very DEK the owner holds.
	_, bobDEK, err := v.VerifyPassword(ctx, "bob", "manager-pass-1")
	require.NoError(t, err)
	assert.Equal(t, dek, bobDEK)

	name, err := v.DecryptIdentity(bobDEK, u)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestRedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)
	f := New(NewMemoryStore(), v)

	code, _, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)

	_, err = f.Redeem(ctx, code, "bob", "manager-pass-1")
	require.NoError(t, err)
	_, err = f.Redeem(ctx, code, "carol", "another-pass-2")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)
}

func TestRedeemRejectsUnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)

	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := New(NewMemoryStore(), v, WithClock(clock))

	_, err := f.Redeem(ctx, "never-issued", "bob", "manager-pass-1")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)

	code, _, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(DefaultTTL + time.Minute)
	mu.Unlock()

	_, err = f.Redeem(ctx, code, "bob", "manager-pass-1")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)
}

func TestRedeemSurvivesRejectedUsername(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)
	f := New(NewMemoryStore(), v)

	code, _, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)

	// The owner's username is taken; provisioning fails and the code
	// must remain redeemable.
	_, err = f.Redeem(ctx, code, "alice", "manager-pass-1")
	assert.ErrorIs(t, err, vault.ErrDuplicateUser)

	u, err := f.Redeem(ctx, code, "bob", "manager-pass-1")
	require.NoError(t, err)
	assert.Equal(t, vault.CapabilityManager, u.Capability)

	// Once a redemption succeeds the code is spent for good.
	_, err = f.Redeem(ctx, code, "carol", "another-pass-2")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)
}

func TestRedeemConcurrentReplayLoses(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)
	f := New(NewMemoryStore(), v)

	code, _, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('b' + n))
			_, err := f.Redeem(ctx, code, "user-"+name, "manager-pass-1")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, vault.ErrInvalidInvite)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestCorruptedStagedKeyIsInvalid(t *testing.T) {
	ctx := context.Background()
	v, dek := testVault(t)
	store := NewMemoryStore()
	f := New(store, v)

	code, inv, err := f.Create(ctx, vault.CapabilityOwner, dek, vault.CapabilityManager)
	require.NoError(t, err)

	inv.StagedKey[len(inv.StagedKey)-1] ^= 0xFF
	require.NoError(t, store.Add(ctx, inv))

	_, err = f.Redeem(ctx, code, "bob", "manager-pass-1")
	assert.ErrorIs(t, err, vault.ErrInvalidInvite)
}
