package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftlock/gateway/internal/gateway/store"
)

// DefaultAuditRetention is how long exchange audit rows are kept.
const DefaultAuditRetention = 7 * 24 * time.Hour

// HousekeepingService periodically deletes expired sessions and aged-out
// exchange audit rows to prevent unbounded growth.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. A non-positive
// interval defaults to 1 hour, a non-positive retention to 7 days.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = DefaultAuditRetention
	}
	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress cleanup is
// finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the deletions. Each one is independent; a failure in
// one does not stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()

	if n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	} else if n > 0 {
		s.Logger.Info("deleted expired sessions", "count", n)
	}

	if n, err := s.Store.Exchanges().DeleteExchangesBefore(ctx, now.Add(-s.Retention)); err != nil {
		s.Logger.Error("failed to delete old exchange records", "error", err)
	} else if n > 0 {
		s.Logger.Info("deleted old exchange records", "count", n)
	}
}
