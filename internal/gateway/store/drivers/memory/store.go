// Package memory is the default store driver: plain maps under a mutex.
// Sessions evaporate on restart, which is acceptable for the gateway's
// short session lifetimes; deployments that want persistence use the
// sqlite driver instead.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/internal/gateway/store"
)

type Store struct {
	mu sync.RWMutex

	sessions      map[string]domain.Session // id -> session
	byFingerprint map[string]string         // fingerprint -> id
	exchanges     []domain.ExchangeRecord

	maxExchanges int
}

// NewStore returns an empty in-memory store. maxExchanges bounds the
// audit log so an unattended gateway cannot grow without limit; zero
// means the default of 10000.
func NewStore(maxExchanges int) *Store {
	if maxExchanges <= 0 {
		maxExchanges = 10000
	}
	return &Store{
		sessions:      make(map[string]domain.Session),
		byFingerprint: make(map[string]string),
		maxExchanges:  maxExchanges,
	}
}

func (s *Store) Sessions() store.Sessions   { return (*sessionsRepo)(s) }
func (s *Store) Exchanges() store.Exchanges { return (*exchangesRepo)(s) }

func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

type sessionsRepo Store

func (r *sessionsRepo) CreateSession(_ context.Context, sess domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byFingerprint[sess.Fingerprint]; ok {
		return store.ErrAlreadyExists
	}
	if _, ok := r.sessions[sess.ID.String()]; ok {
		return store.ErrAlreadyExists
	}
	r.sessions[sess.ID.String()] = sess
	r.byFingerprint[sess.Fingerprint] = sess.ID.String()
	return nil
}

func (r *sessionsRepo) GetSessionByFingerprint(_ context.Context, fingerprint string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byFingerprint[fingerprint]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return r.sessions[id], nil
}

func (r *sessionsRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(r.sessions, id)
	delete(r.byFingerprint, sess.Fingerprint)
	return nil
}

func (r *sessionsRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, sess := range r.sessions {
		if sess.Expired(now) {
			delete(r.sessions, id)
			delete(r.byFingerprint, sess.Fingerprint)
			n++
		}
	}
	return n, nil
}

func (r *sessionsRepo) CountSessions(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

type exchangesRepo Store

func (r *exchangesRepo) RecordExchange(_ context.Context, rec domain.ExchangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.exchanges = append(r.exchanges, rec)
	if len(r.exchanges) > r.maxExchanges {
		// Drop the oldest half rather than one at a time, so a busy
		// gateway is not shifting the slice on every exchange.
		keep := r.maxExchanges / 2
		r.exchanges = append(r.exchanges[:0:0], r.exchanges[len(r.exchanges)-keep:]...)
	}
	return nil
}

func (r *exchangesRepo) ListRecentExchanges(_ context.Context, userID string, limit int) ([]domain.ExchangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.ExchangeRecord
	for i := len(r.exchanges) - 1; i >= 0 && len(out) < limit; i-- {
		if r.exchanges[i].UserID == userID {
			out = append(out, r.exchanges[i])
		}
	}
	// Appended newest-first already; keep the contract explicit anyway.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *exchangesRepo) DeleteExchangesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.exchanges[:0]
	var n int64
	for _, rec := range r.exchanges {
		if rec.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.exchanges = kept
	return n, nil
}
