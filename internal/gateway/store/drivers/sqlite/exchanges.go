package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/pkg/idx"
)

type exchangesRepo struct {
	db *sql.DB
}

func (r *exchangesRepo) RecordExchange(ctx context.Context, rec domain.ExchangeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, user_id, provider, client_key, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.UserID, rec.Provider, rec.ClientKey, rec.Outcome, rec.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *exchangesRepo) ListRecentExchanges(ctx context.Context, userID string, limit int) ([]domain.ExchangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, provider, client_key, outcome, created_at
		FROM exchanges WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExchangeRecord
	for rows.Next() {
		var (
			rec domain.ExchangeRecord
			id  string
		)
		if err := rows.Scan(&id, &rec.UserID, &rec.Provider, &rec.ClientKey, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ID = idx.ID(id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *exchangesRepo) DeleteExchangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
