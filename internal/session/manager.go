package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chobbledotcom/tickets-sub001/internal/audit"
	"github.com/chobbledotcom/tickets-sub001/internal/crypto"
	"github.com/chobbledotcom/tickets-sub001/internal/invite"
	"github.com/chobbledotcom/tickets-sub001/internal/throttle"
	"github.com/chobbledotcom/tickets-sub001/internal/vault"
)

const DefaultTTL = 24 * time.Hour

type dekEntry struct {
	dek    []byte
	userID string
}

// Manager is the authentication facade: login, session checks, logout,
// password change, user revocation, and invites, all with the session
// bookkeeping those operations imply. Unwrapped DEKs live only in the
// in-process cache keyed by session token; durable storage holds nothing
// but wrapped copies.
type Manager struct {
	sessions Store
	vault    *vault.Vault
	throttle *throttle.Limiter
	invites  *invite.Flow
	trail    *audit.Log
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	deks map[string]dekEntry
}

type Option func(*Manager)

func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithInvites(f *invite.Flow) Option {
	return func(m *Manager) { m.invites = f }
}

func WithAudit(l *audit.Log) Option {
	return func(m *Manager) { m.trail = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(sessions Store, v *vault.Vault, lim *throttle.Limiter, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		vault:    v,
		throttle: lim,
		trail:    audit.New(),
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   slog.Default(),
		deks:     map[string]dekEntry{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Audit exposes the event trail.
func (m *Manager) Audit() *audit.Log { return m.trail }

// RetryAfter reports how long a locked-out client identity must wait.
func (m *Manager) RetryAfter(ctx context.Context, clientIdentity string) time.Duration {
	d, err := m.throttle.RetryAfter(ctx, clientIdentity)
	if err != nil {
		m.logger.Error("throttle retry-after", "error", err)
		return 0
	}
	return d
}

// Authenticate runs the full login path: throttle check (before any KDF
// work), password verification, session mint. The DEK recovered from the
// user's wrapped copy is parked in the process-local cache for the life
// of the session.
func (m *Manager) Authenticate(ctx context.Context, username, password, clientIdentity string) (*Session, error) {
	locked, err := m.throttle.IsLocked(ctx, clientIdentity)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, vault.ErrRateLimited
	}

	user, dek, err := m.vault.VerifyPassword(ctx, username, password)
	if err != nil {
		if errors.Is(err, vault.ErrAuthFailure) {
			if _, terr := m.throttle.RecordFailure(ctx, clientIdentity); terr != nil {
				m.logger.Error("throttle record failure", "error", terr)
			}
			m.trail.Append(audit.EventLoginFailed, clientIdentity)
		}
		return nil, err
	}
	if err := m.throttle.RecordSuccess(ctx, clientIdentity); err != nil {
		m.logger.Error("throttle reset", "error", err)
	}

	token, err := NewToken()
	if err != nil {
		crypto.Zero(dek)
		return nil, err
	}
	csrf, err := NewToken()
	if err != nil {
		crypto.Zero(dek)
		return nil, err
	}
	sess := &Session{
		Token:     token,
		CSRFToken: csrf,
		Expires:   m.now().Add(m.ttl),
		UserID:    user.ID,
	}
	if err := m.sessions.Put(ctx, sess); err != nil {
		crypto.Zero(dek)
		return nil, err
	}

	m.mu.Lock()
	m.deks[token] = dekEntry{dek: dek, userID: user.ID}
	m.mu.Unlock()

	m.trail.Append(audit.EventLogin, user.ID)
	m.logger.Info("login", "user_id", user.ID)
	c := *sess
	return &c, nil
}

// Require resolves a bearer token into an AuthenticatedContext. Expired
// sessions are deleted on the way through; on state-changing requests the
// submitted CSRF value must match the session's in constant time.
func (m *Manager) Require(ctx context.Context, token, csrfToken string, requireCSRF bool) (*AuthenticatedContext, error) {
	sess, err := m.sessions.Get(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, vault.ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		m.dropSession(ctx, token)
		return nil, vault.ErrAuthFailure
	}
	if requireCSRF {
		if subtle.ConstantTimeCompare([]byte(csrfToken), []byte(sess.CSRFToken)) != 1 {
			return nil, vault.ErrAuthFailure
		}
	}

	user, err := m.vault.GetUser(ctx, sess.UserID)
	if errors.Is(err, vault.ErrUserNotFound) {
		// Revoked since login; the session dies with the user.
		m.dropSession(ctx, token)
		return nil, vault.ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}

	// A context without a cached key still authenticates; its crypto ops
	// fail with ErrKeyUnavailable until the user logs in on this instance.
	m.mu.Lock()
	var dek []byte
	if entry, ok := m.deks[token]; ok {
		dek = append([]byte(nil), entry.dek...)
	}
	m.mu.Unlock()

	return &AuthenticatedContext{session: *sess, user: user, dek: dek, v: m.vault}, nil
}

// Logout deletes the single session behind the token.
func (m *Manager) Logout(ctx context.Context, token string) error {
	var userID string
	m.mu.Lock()
	if e, ok := m.deks[token]; ok {
		userID = e.userID
	}
	m.mu.Unlock()
	m.dropSession(ctx, token)
	if userID != "" {
		m.trail.Append(audit.EventLogout, userID)
	}
	return nil
}

// LogoutAll deletes every session for the user, including the caller's.
func (m *Manager) LogoutAll(ctx context.Context, userID string) error {
	if err := m.sessions.DeleteByUser(ctx, userID, ""); err != nil {
		return err
	}
	m.evictUser(userID, "")
	return nil
}

// LogoutOthers deletes every session for the user except keepToken.
func (m *Manager) LogoutOthers(ctx context.Context, userID, keepToken string) error {
	if err := m.sessions.DeleteByUser(ctx, userID, keepToken); err != nil {
		return err
	}
	m.evictUser(userID, keepToken)
	return nil
}

// ChangePassword rotates the caller's wrap and then invalidates every one
// of their sessions before reporting success, so no session minted under
// the old credential can outlive the rotation.
func (m *Manager) ChangePassword(ctx context.Context, actx *AuthenticatedContext, oldPassword, newPassword string) error {
	if err := m.vault.ChangePassword(ctx, actx.UserID(), oldPassword, newPassword); err != nil {
		return err
	}
	if err := m.LogoutAll(ctx, actx.UserID()); err != nil {
		return err
	}
	m.trail.Append(audit.EventPasswordChange, actx.UserID())
	return nil
}

// RevokeUser removes the target admin and kills their sessions.
func (m *Manager) RevokeUser(ctx context.Context, actx *AuthenticatedContext, targetID string) error {
	if err := m.vault.RevokeUser(ctx, actx.User(), targetID); err != nil {
		return err
	}
	if err := m.LogoutAll(ctx, targetID); err != nil {
		return err
	}
	m.trail.Append(audit.EventUserRevoked, actx.UserID())
	return nil
}

// CreateInvite mints a join code using the caller's live DEK.
func (m *Manager) CreateInvite(ctx context.Context, actx *AuthenticatedContext, capability vault.Capability) (string, error) {
	if m.invites == nil {
		return "", errors.New("session: invite flow not configured")
	}
	if actx.dek == nil {
		return "", ErrKeyUnavailable
	}
	code, _, err := m.invites.Create(ctx, actx.Capability(), actx.dek, capability)
	if err != nil {
		return "", err
	}
	m.trail.Append(audit.EventInviteCreated, actx.UserID())
	return code, nil
}

// RedeemInvite provisions a new admin from a join code. No session is
// required; the code itself is the credential.
func (m *Manager) RedeemInvite(ctx context.Context, code, username, password string) (*vault.AdminUser, error) {
	if m.invites == nil {
		return nil, errors.New("session: invite flow not configured")
	}
	u, err := m.invites.Redeem(ctx, code, username, password)
	if err != nil {
		return nil, err
	}
	m.trail.Append(audit.EventInviteRedeemed, u.ID)
	return u, nil
}

func (m *Manager) dropSession(ctx context.Context, token string) {
	if err := m.sessions.Delete(ctx, token); err != nil {
		m.logger.Error("session delete", "error", err)
	}
	m.mu.Lock()
	if e, ok := m.deks[token]; ok {
		crypto.Zero(e.dek)
		delete(m.deks, token)
	}
	m.mu.Unlock()
}

func (m *Manager) evictUser(userID, keepToken string) {
	m.mu.Lock()
	for token, e := range m.deks {
		if e.userID == userID && token != keepToken {
			crypto.Zero(e.dek)
			delete(m.deks, token)
		}
	}
	m.mu.Unlock()
}
