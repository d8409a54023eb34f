package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Session is the server-side state behind one bearer cookie. The token is
// the only thing the client stores; the CSRF token travels separately in
// request bodies or headers and is required on state-changing calls.
type Session struct {
	Token     string
	CSRFToken string
	Expires   time.Time
	UserID    string
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Expires)
}

var ErrSessionNotFound = errors.New("session: not found")

// Store persists sessions. DeleteByUser removes every session owned by a
// user except keepToken (pass "" to remove them all).
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID, keepToken string) error
}

const tokenBytes = 32

// NewToken returns a high-entropy random bearer value. CSRF tokens use the
// same generator but are minted independently, never derived from the
// session token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
