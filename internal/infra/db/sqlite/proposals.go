package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
)

type proposalRow struct {
	ID          string `db:"id"`
	WaFrom      string `db:"wa_from"`
	ClientEmail string `db:"client_email"`
	CreatedAt   int64  `db:"created_at"`
}

type ProposalLog struct {
	db *sqlx.DB
}

func NewProposalLog(db *sqlx.DB) *ProposalLog { return &ProposalLog{db: db} }

func (l *ProposalLog) RecordProposal(ctx context.Context, rec dispatch.Record) error {
	row := proposalRow{
		ID:          rec.ID,
		WaFrom:      rec.ConversationID,
		ClientEmail: rec.ClientEmail,
		CreatedAt:   rec.CreatedAt.UnixNano(),
	}
	_, err := l.db.NamedExecContext(ctx,
		`INSERT INTO proposals (id, wa_from, client_email, created_at) VALUES (:id, :wa_from, :client_email, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("record proposal: %w", err)
	}
	return nil
}

func (l *ProposalLog) RecentProposals(ctx context.Context, limit int) ([]dispatch.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []proposalRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT id, wa_from, client_email, created_at FROM proposals ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	out := make([]dispatch.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, dispatch.Record{
			ID:             r.ID,
			ConversationID: r.WaFrom,
			ClientEmail:    r.ClientEmail,
			CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
		})
	}
	return out, nil
}
