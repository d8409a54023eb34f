package session

import (
	"context"
	"fmt"

	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

// ErrKeyUnavailable means the session is valid but this process has no
// cached DEK for it (restart, or a different instance handled the login).
// The caller must authenticate again to re-derive the key.
var ErrKeyUnavailable = fmt.Errorf("%w: data key not cached, re-authenticate", vault.ErrAuthFailure)

// AuthenticatedContext is the request-scoped handle collaborators use to
// touch PII. It binds the unwrapped DEK to one request; Close wipes the
// key copy and must be deferred by the caller.
type AuthenticatedContext struct {
	session Session
	user    *vault.AdminUser
	dek     []byte
	v       *vault.Vault
}

func (c *AuthenticatedContext) UserID() string               { return c.user.ID }
func (c *AuthenticatedContext) Capability() vault.Capability { return c.user.Capability }
func (c *AuthenticatedContext) Token() string                { return c.session.Token }
func (c *AuthenticatedContext) CSRFToken() string            { return c.session.CSRFToken }
func (c *AuthenticatedContext) User() *vault.AdminUser       { return c.user }

// Encrypt seals a PII field under the request's DEK.
func (c *AuthenticatedContext) Encrypt(plaintext []byte) ([]byte, error) {
	if c.dek == nil {
		return nil, ErrKeyUnavailable
	}
	return crypto.EncryptField(c.dek, plaintext)
}

// Decrypt opens a stored PII field. A tag mismatch surfaces as
// ErrIntegrity: the credential was fine, the stored row was not.
func (c *AuthenticatedContext) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.dek == nil {
		return nil, ErrKeyUnavailable
	}
	pt, err := crypto.DecryptField(c.dek, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: field ciphertext", vault.ErrIntegrity)
	}
	return pt, nil
}

// Index computes the deterministic lookup token for a value, for equality
// searches over encrypted columns.
func (c *AuthenticatedContext) Index(ctx context.Context, value string) ([]byte, error) {
	return c.v.Index(ctx, value)
}

// Identity decrypts the caller's own username for display.
func (c *AuthenticatedContext) Identity() (string, error) {
	if c.dek == nil {
		return "", ErrKeyUnavailable
	}
	return c.v.DecryptIdentity(c.dek, c.user)
}

// Close wipes this context's DEK copy. Safe to call more than once.
func (c *AuthenticatedContext) Close() {
	crypto.Zero(c.dek)
	c.dek = nil
}
