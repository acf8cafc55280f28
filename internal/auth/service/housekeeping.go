package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idp/internal/auth/store"
)

// HousekeepingService runs periodic maintenance: purging expired
// authorization codes, pulling key changes made by other processes, and
// rotating the signing key when it is due.
type HousekeepingService struct {
	Codes    store.AuthorizationCodes
	Keys     *KeyRotationService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults the interval to one hour.
func NewHousekeepingService(codes store.AuthorizationCodes, keys *KeyRotationService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Codes:    codes,
		Keys:     keys,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to end it.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress run has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one pass. Each step is independent; a failure is logged
// and the next step still runs.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	if n, err := s.Codes.DeleteExpiredAuthorizationCodes(ctx, time.Now()); err != nil {
		s.Logger.Error("failed to delete expired authorization codes", "error", err)
	} else if n > 0 {
		s.Logger.Debug("deleted expired authorization codes", "count", n)
	}

	if s.Keys == nil {
		return
	}

	if err := s.Keys.KeyManager.Refresh(ctx); err != nil {
		s.Logger.Error("failed to refresh signing keys", "error", err)
	}

	rotated, err := s.Keys.RotateIfDue(ctx)
	if err != nil {
		s.Logger.Error("scheduled key rotation failed", "error", err)
	} else if rotated {
		s.Logger.Info("scheduled key rotation completed")
	}
}
