package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Mahaseias/sendzap/internal/domain/wizard"
	"github.com/Mahaseias/sendzap/internal/infra/keylock"
)

type sessionRow struct {
	ID        string `db:"wa_from"`
	State     string `db:"state"`
	Payload   string `db:"payload"`
	UpdatedAt int64  `db:"updated_at"`
}

// SessionStore keeps sessions in a local SQLite file. Per-conversation
// exclusion is in-process, which matches SQLite's single-host use.
type SessionStore struct {
	db    *sqlx.DB
	locks *keylock.Locker
	ttl   time.Duration
	now   wizard.Clock
}

type Option func(*SessionStore)

func WithClock(c wizard.Clock) Option {
	return func(s *SessionStore) { s.now = c }
}

func NewSessionStore(db *sqlx.DB, ttl time.Duration, opts ...Option) *SessionStore {
	s := &SessionStore{db: db, locks: keylock.New(), ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SessionStore) GetOrCreate(ctx context.Context, id string) (*wizard.Session, error) {
	if id == "" {
		return nil, wizard.ErrEmptySessionID
	}
	now := s.now()
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT wa_from, state, payload, updated_at FROM sessions WHERE wa_from = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return wizard.NewSession(id, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess, decodeErr := row.decode()
	if decodeErr != nil {
		log.Printf("sqlite: dropping unreadable session id=%s err=%v", id, decodeErr)
	}
	if decodeErr != nil || sess.Expired(now, s.ttl) {
		if err := s.Delete(ctx, id); err != nil {
			return nil, err
		}
		return wizard.NewSession(id, now), nil
	}
	return sess, nil
}

func (r sessionRow) decode() (*wizard.Session, error) {
	var sess wizard.Session
	if err := json.Unmarshal([]byte(r.Payload), &sess); err != nil {
		return nil, err
	}
	st, err := wizard.ParseState(r.State)
	if err != nil {
		return nil, err
	}
	sess.ID = r.ID
	sess.State = st
	sess.UpdatedAt = time.Unix(0, r.UpdatedAt).UTC()
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *wizard.Session) error {
	if sess.ID == "" {
		return wizard.ErrEmptySessionID
	}
	sess.UpdatedAt = s.now()
	sess.Version++
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	row := sessionRow{
		ID:        sess.ID,
		State:     sess.State.String(),
		Payload:   string(payload),
		UpdatedAt: sess.UpdatedAt.UnixNano(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO sessions (wa_from, state, payload, updated_at)
		VALUES (:wa_from, :state, :payload, :updated_at)
		ON CONFLICT(wa_from) DO UPDATE SET
			state = excluded.state,
			payload = excluded.payload,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE wa_from = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, id string, fn func(*wizard.Session) error) (*wizard.Session, error) {
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

func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, s.now().Add(-s.ttl).UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
