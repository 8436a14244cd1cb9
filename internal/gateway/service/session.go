// Package service implements the gateway's application services: minting
// and verifying opaque sessions, running the token exchange, and the
// background housekeeping worker.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftlock/gateway/internal/gateway/domain"
	"github.com/driftlock/gateway/internal/gateway/store"
	"github.com/driftlock/gateway/pkg/cryptox"
	"github.com/driftlock/gateway/pkg/idx"
)

// DefaultSessionTTL is how long a minted session stays valid.
const DefaultSessionTTL = 10 * time.Minute

var (
	ErrSessionNotFound = errors.New("service: session not found")
	ErrSessionExpired  = errors.New("service: session expired")
)

// SessionService mints and resolves opaque session tokens. The raw token
// is returned to the caller exactly once; only its fingerprint is stored.
type SessionService struct {
	Store  store.Store
	TTL    time.Duration
	Logger *slog.Logger
}

func NewSessionService(st store.Store, ttl time.Duration, logger *slog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{Store: st, TTL: ttl, Logger: logger}
}

// Mint creates a session for a verified identity and returns it together
// with the raw opaque token.
func (s *SessionService) Mint(ctx context.Context, userID, provider, authMode string) (domain.Session, string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("mint session token: %w", err)
	}

	now := time.Now().UTC()
	sess := domain.Session{
		ID:          idx.New(),
		Fingerprint: cryptox.FingerprintToken(raw),
		UserID:      userID,
		Provider:    provider,
		AuthMode:    authMode,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.TTL),
	}

	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.Session{}, "", fmt.Errorf("store session: %w", err)
	}
	return sess, raw, nil
}

// Verify resolves a raw session token to its session, rejecting unknown
// and expired tokens.
func (s *SessionService) Verify(ctx context.Context, rawToken string) (domain.Session, error) {
	if rawToken == "" {
		return domain.Session{}, ErrSessionNotFound
	}

	sess, err := s.Store.Sessions().GetSessionByFingerprint(ctx, cryptox.FingerprintToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrSessionNotFound
		}
		return domain.Session{}, err
	}

	if sess.Expired(time.Now().UTC()) {
		// Best effort; housekeeping sweeps anything we miss here.
		_ = s.Store.Sessions().DeleteSession(ctx, sess.ID.String())
		return domain.Session{}, ErrSessionExpired
	}
	return sess, nil
}

// Revoke invalidates a session by its raw token (logout). Revoking an
// unknown token returns ErrSessionNotFound.
func (s *SessionService) Revoke(ctx context.Context, rawToken string) error {
	sess, err := s.Store.Sessions().GetSessionByFingerprint(ctx, cryptox.FingerprintToken(rawToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if err := s.Store.Sessions().DeleteSession(ctx, sess.ID.String()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.Logger.Info("session revoked", "session_id", sess.ID.String(), "user_id", sess.UserID)
	return nil
}
