// Package audit keeps a hash-chained, append-only trail of vault security
// events. Each entry's hash covers the previous hash, so truncation or
// in-place edits are detectable with Verify.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

type Event string

const (
	EventVaultCreated   Event = "vault.created"
	EventLogin          Event = "auth.login"
	EventLoginFailed    Event = "auth.login_failed"
	EventLogout         Event = "auth.logout"
	EventPasswordChange Event = "auth.password_changed"
	EventInviteCreated  Event = "invite.created"
	EventInviteRedeemed Event = "invite.redeemed"
	EventUserRevoked    Event = "user.revoked"
)

type Entry struct {
	TS    int64  `json:"ts"`
	Event Event  `json:"event"`
	Actor string `json:"actor"` // user id or client identity, never a username
	Hash  string `json:"hash"`
}

type Log struct {
	mu       sync.Mutex
	lastHash []byte
	entries  []Entry
}

func New() *Log { return &Log{} }

func (l *Log) Append(event Event, actor string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(event))
	h.Write([]byte(actor))
	sum := h.Sum(nil)
	l.lastHash = sum
	e := Entry{TS: time.Now().Unix(), Event: event, Actor: actor, Hash: hex.EncodeToString(sum)}
	l.entries = append(l.entries, e)
	return e
}

// Verify walks the chain from the start and fails on the first entry whose
// hash does not commit to its predecessor.
func (l *Log) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var prev []byte
	for i, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.Event))
		h.Write([]byte(e.Actor))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
