package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
	"github.com/Mahaseias/sendzap/internal/infra/keylock"
)

// Store keeps sessions in process memory. It is the default backend and the
// one used by tests; it does not survive restarts or span instances.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*wizard.Session
	locks    *keylock.Locker
	ttl      time.Duration
	now      wizard.Clock

	// proposals is a ring: once full, next is the oldest slot.
	proposals    []dispatch.Record
	next         int
	maxProposals int
}

// MaxProposals bounds the in-memory proposal log.
const MaxProposals = 500

type Option func(*Store)

func WithClock(c wizard.Clock) Option {
	return func(s *Store) { s.now = c }
}

func WithProposalLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxProposals = n
		}
	}
}

func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: map[string]*wizard.Session{},
		locks:    keylock.New(),
		ttl:      ttl,
		now:      time.Now,

		maxProposals: MaxProposals,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) GetOrCreate(_ context.Context, id string) (*wizard.Session, error) {
	if id == "" {
		return nil, wizard.ErrEmptySessionID
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[id]; ok {
		if !cur.Expired(now, s.ttl) {
			return cur.Clone(), nil
		}
		delete(s.sessions, id)
	}
	return wizard.NewSession(id, now), nil
}

func (s *Store) Save(_ context.Context, sess *wizard.Session) error {
	if sess.ID == "" {
		return wizard.ErrEmptySessionID
	}
	sess.UpdatedAt = s.now()
	sess.Version++
	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(*wizard.Session) error) (*wizard.Session, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Sweep(_ context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.Expired(now, s.ttl) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) RecordProposal(_ context.Context, rec dispatch.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.proposals) < s.maxProposals {
		s.proposals = append(s.proposals, rec)
		return nil
	}
	s.proposals[s.next] = rec
	s.next = (s.next + 1) % len(s.proposals)
	return nil
}

func (s *Store) RecentProposals(_ context.Context, limit int) ([]dispatch.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.proposals)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]dispatch.Record, 0, limit)
	for k := 0; k < limit; k++ {
		out = append(out, s.proposals[(s.next-1-k+n)%n])
	}
	return out, nil
}
