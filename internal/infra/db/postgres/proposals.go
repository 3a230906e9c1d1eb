package postgres

import (
	"context"
	"fmt"

	"github.com/Mahaseias/sendzap/internal/domain/proposal/dispatch"
)

type ProposalLog struct {
	db *DB
}

func NewProposalLog(db *DB) *ProposalLog { return &ProposalLog{db: db} }

func (l *ProposalLog) RecordProposal(ctx context.Context, rec dispatch.Record) error {
	_, err := l.db.Pool.Exec(ctx,
		`INSERT INTO proposals (id, wa_from, client_email, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.ConversationID, rec.ClientEmail, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record proposal: %w", err)
	}
	return nil
}

func (l *ProposalLog) RecentProposals(ctx context.Context, limit int) ([]dispatch.Record, error) {
	rows, err := l.db.Pool.Query(ctx,
		`SELECT id::text, wa_from, client_email, created_at FROM proposals ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Record
	for rows.Next() {
		var r dispatch.Record
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.ClientEmail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
