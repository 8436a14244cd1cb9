// Package store defines the data access interfaces for sessions and
// exchange audit records. Concrete drivers live under drivers/; the
// default deployment uses memory, persistence-minded ones use sqlite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. It exposes sub-repositories
// to keep concerns tidy and testable.
type Store interface {
	Sessions() Sessions
	Exchanges() Exchanges

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing store is still reachable.
	Ping(ctx context.Context) error
}

type Sessions interface {
	// CreateSession inserts a new session (id is provided by app via ULID).
	// Fingerprints are unique; a collision returns ErrAlreadyExists.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByFingerprint looks a session up by token fingerprint. The
	// raw token never reaches the store.
	GetSessionByFingerprint(ctx context.Context, fingerprint string) (domain.Session, error)

	// DeleteSession removes a session by id (explicit logout).
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions is housekeeping; returns how many rows went.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// CountSessions returns the number of stored sessions, expired or not.
	CountSessions(ctx context.Context) (int, error)
}

type Exchanges interface {
	// RecordExchange appends one audit row for an exchange attempt.
	RecordExchange(ctx context.Context, rec domain.ExchangeRecord) error

	// ListRecentExchanges returns the newest audit rows for a user.
	ListRecentExchanges(ctx context.Context, userID string, limit int) ([]domain.ExchangeRecord, error)

	// DeleteExchangesBefore is housekeeping; returns how many rows went.
	DeleteExchangesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
