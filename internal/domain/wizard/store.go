package wizard

import (
	"context"
	"errors"
	"time"
)

const DefaultTTL = 2 * time.Hour

var (
	ErrSessionConflict = errors.New("wizard: session modified concurrently")
	ErrEmptySessionID  = errors.New("wizard: empty session id")
)

// Store owns sessions keyed by conversation id. Lookups treat sessions idle
// longer than the store's TTL as absent and drop them.
type Store interface {
	GetOrCreate(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	// Update runs fn on the current (or a fresh) session and saves the result.
	// Calls for the same id never interleave. If fn fails nothing is saved.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
}

// Sweeper is implemented by stores that can purge expired sessions in bulk.
// Expiry on read does not depend on it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Clock is injected into stores so expiry can be tested.
type Clock func() time.Time
