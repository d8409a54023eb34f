// Package throttle tracks failed login attempts per client identity and
// enforces a time-boxed lockout. It runs before any password verification
// so the expensive KDF is never reached while an identity is locked, and
// it is independent of whether the attempted username even exists.
package throttle

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
)

// Attempt is the persisted counter for one client identity.
type Attempt struct {
	Identity    string
	Count       int
	LockedUntil time.Time
}

// Store is the durable counter backend. Incr must be atomic: two parallel
// failures may never both observe count-1 and slip under the threshold.
type Store interface {
	Incr(ctx context.Context, identity string) (int, error)
	Lock(ctx context.Context, identity string, until time.Time) error
	Get(ctx context.Context, identity string) (*Attempt, error)
	Reset(ctx context.Context, identity string) error
}

type Limiter struct {
	store   Store
	max     int
	lockout time.Duration
	now     func() time.Time
}

type Option func(*Limiter)

func WithMaxAttempts(n int) Option {
	return func(l *Limiter) { l.max = n }
}

func WithLockout(d time.Duration) Option {
	return func(l *Limiter) { l.lockout = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, max: DefaultMaxAttempts, lockout: DefaultLockout, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// IsLocked reports whether the identity is currently locked out. An
// expired lockout resets the counter to zero on the way through.
func (l *Limiter) IsLocked(ctx context.Context, identity string) (bool, error) {
	a, err := l.store.Get(ctx, identity)
	if err != nil {
		return false, err
	}
	if a == nil || a.LockedUntil.IsZero() {
		return false, nil
	}
	if l.now().Before(a.LockedUntil) {
		return true, nil
	}
	if err := l.store.Reset(ctx, identity); err != nil {
		return false, err
	}
	return false, nil
}

// RecordFailure increments the counter and reports whether this failure
// tripped the lockout.
func (l *Limiter) RecordFailure(ctx context.Context, identity string) (bool, error) {
	n, err := l.store.Incr(ctx, identity)
	if err != nil {
		return false, err
	}
	if n < l.max {
		return false, nil
	}
	if err := l.store.Lock(ctx, identity, l.now().Add(l.lockout)); err != nil {
		return true, err
	}
	return true, nil
}

// RecordSuccess clears the counter after a successful login.
func (l *Limiter) RecordSuccess(ctx context.Context, identity string) error {
	return l.store.Reset(ctx, identity)
}

// RetryAfter returns how long the identity must wait, zero if not locked.
func (l *Limiter) RetryAfter(ctx context.Context, identity string) (time.Duration, error) {
	a, err := l.store.Get(ctx, identity)
	if err != nil || a == nil {
		return 0, err
	}
	if d := a.LockedUntil.Sub(l.now()); d > 0 {
		return d, nil
	}
	return 0, nil
}
