package vault

import (
	"context"
	"errors"
	"time"
)

// Meta is the single deployment-wide record created at first setup. The
// index seed lives here so index tokens can be computed before anyone has
// authenticated; it yields only equality information, never plaintext.
type Meta struct {
	IndexSeed []byte
	CreatedAt time.Time
}

var ErrNoMeta = errors.New("vault: meta record not found")

type MetaStore interface {
	Load(ctx context.Context) (*Meta, error)
	Save(ctx context.Context, m *Meta) error
}
