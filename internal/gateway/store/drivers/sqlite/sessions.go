package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/pkg/idx"
)

type sessionsRepo struct {
	db *sql.DB
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, fingerprint, user_id, provider, auth_mode, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.Fingerprint, s.UserID, s.Provider, s.AuthMode, s.CreatedAt, s.ExpiresAt,
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByFingerprint(ctx context.Context, fingerprint string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, fingerprint, user_id, provider, auth_mode, created_at, expires_at
		FROM sessions WHERE fingerprint = ?`, fingerprint)

	var (
		s  domain.Session
		id string
	)
	err := row.Scan(&id, &s.Fingerprint, &s.UserID, &s.Provider, &s.AuthMode, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.ID = idx.ID(id)
	return s, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sessionsRepo) CountSessions(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}
