package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/damku999/trustengine/internal/engine/store"
)

// Retention applied by the housekeeping pass. Audit entries and
// verification attempts are never pruned here; retention for those is
// an external policy concern.
const (
	expiredWindowRetention = 24 * time.Hour
	revokedDeviceRetention = 90 * 24 * time.Hour
	defaultCleanupInterval = 1 * time.Hour
)

// HousekeepingService periodically prunes rows that no longer carry
// meaning: rate-limit windows long past expiry and devices revoked
// months ago.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. If interval is 0 or
// negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress cleanup
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

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

// cleanup runs each pruning step independently; one failing does not
// stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()

	if n, err := s.Store.RateLimits().DeleteExpiredBefore(ctx, now.Add(-expiredWindowRetention)); err != nil {
		s.Logger.Error("failed to prune rate limit windows", "error", err)
	} else if n > 0 {
		s.Logger.Debug("pruned rate limit windows", "count", n)
	}

	if n, err := s.Store.Devices().DeleteRevokedBefore(ctx, now.Add(-revokedDeviceRetention)); err != nil {
		s.Logger.Error("failed to prune revoked devices", "error", err)
	} else if n > 0 {
		s.Logger.Debug("pruned revoked devices", "count", n)
	}
}
