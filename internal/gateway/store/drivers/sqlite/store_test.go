package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/internal/gateway/store"
	"github.com/driftlock/gateway/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func testSession(fingerprint, userID string, ttl time.Duration) domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Session{
		ID:          idx.New(),
		Fingerprint: fingerprint,
		UserID:      userID,
		Provider:    "external-jwks",
		AuthMode:    "configured-issuer",
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestSessions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := testSession("fp-1", "user-1", time.Hour)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	got, err := s.Sessions().GetSessionByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, sess.UserID, got.UserID)
	require.Equal(t, sess.Provider, got.Provider)
	require.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.Sessions().GetSessionByFingerprint(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessions_UniqueFingerprint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Sessions().CreateSession(ctx, testSession("fp-1", "user-1", time.Hour)))
	err := s.Sessions().CreateSession(ctx, testSession("fp-1", "user-2", time.Hour))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestSessions_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Sessions().CreateSession(ctx, testSession("fp-live", "user-1", time.Hour)))
	require.NoError(t, s.Sessions().CreateSession(ctx, testSession("fp-dead", "user-2", -time.Minute)))

	n, err := s.Sessions().DeleteExpiredSessions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	count, err := s.Sessions().CountSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestExchanges_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	outcomes := []string{domain.ExchangeOK, domain.ExchangeRateLimited, domain.ExchangeDenied}
	for i, outcome := range outcomes {
		require.NoError(t, s.Exchanges().RecordExchange(ctx, domain.ExchangeRecord{
			ID:        idx.New(),
			UserID:    "user-1",
			Provider:  "clerk",
			ClientKey: "hashed",
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := s.Exchanges().ListRecentExchanges(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.ExchangeDenied, recent[0].Outcome)
	require.Equal(t, domain.ExchangeRateLimited, recent[1].Outcome)

	n, err := s.Exchanges().DeleteExchangesBefore(ctx, base.Add(time.Second))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}
