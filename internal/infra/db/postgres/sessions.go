package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

// SessionStore keeps wizard sessions in the sessions table. Update holds a
// transaction-scoped advisory lock on the conversation id, so instances
// sharing the database serialize per conversation.
type SessionStore struct {
	db  *DB
	ttl time.Duration
	now wizard.Clock
}

func NewSessionStore(db *DB, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SessionStore) load(ctx context.Context, q querier, id string) (*wizard.Session, error) {
	if id == "" {
		return nil, wizard.ErrEmptySessionID
	}
	now := s.now()
	var (
		state   string
		payload []byte
		updated time.Time
	)
	err := q.QueryRow(ctx,
		`SELECT state, payload, updated_at FROM sessions WHERE wa_from = $1`, id,
	).Scan(&state, &payload, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return wizard.NewSession(id, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess, decodeErr := decodeSession(id, state, payload, updated)
	if decodeErr != nil {
		log.Printf("postgres: dropping unreadable session id=%s err=%v", id, decodeErr)
	}
	if decodeErr != nil || sess.Expired(now, s.ttl) {
		if _, err := q.Exec(ctx, `DELETE FROM sessions WHERE wa_from = $1`, id); err != nil {
			return nil, fmt.Errorf("drop expired session: %w", err)
		}
		return wizard.NewSession(id, now), nil
	}
	return sess, nil
}

func decodeSession(id, state string, payload []byte, updated time.Time) (*wizard.Session, error) {
	var sess wizard.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, err
	}
	st, err := wizard.ParseState(state)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	sess.State = st
	sess.UpdatedAt = updated
	return &sess, nil
}

func (s *SessionStore) save(ctx context.Context, q querier, sess *wizard.Session) error {
	if sess.ID == "" {
		return wizard.ErrEmptySessionID
	}
	sess.UpdatedAt = s.now()
	sess.Version++
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO sessions (wa_from, state, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wa_from) DO UPDATE SET
			state = EXCLUDED.state,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.State.String(), string(payload), sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetOrCreate(ctx context.Context, id string) (*wizard.Session, error) {
	return s.load(ctx, s.db.Pool, id)
}

func (s *SessionStore) Save(ctx context.Context, sess *wizard.Session) error {
	return s.save(ctx, s.db.Pool, sess)
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE wa_from = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) Update(ctx context.Context, id string, fn func(*wizard.Session) error) (*wizard.Session, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	sess, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, sess); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
