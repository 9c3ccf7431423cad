package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically deactivates expired sessions and drops
// lapsed two-factor setups and challenges.
type HousekeepingService struct {
	Sessions *SessionService
	MFA      *MFAService
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a worker. A non-positive interval defaults
// to one hour.
func NewHousekeepingService(sessions *SessionService, mfa *MFAService, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Sessions: sessions,
		MFA:      mfa,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single cleanup pass. Each step is independent; a
// failure is logged and the next step still runs.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	s.Logger.Debug("starting housekeeping cleanup")

	sessions, err := s.Sessions.CleanExpired(ctx)
	if err != nil {
		s.Logger.Error("failed to clean expired sessions", "error", err)
	}

	setups, logins, err := s.MFA.CleanExpired(ctx)
	if err != nil {
		s.Logger.Error("failed to clean expired two-factor state", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"sessions_deactivated", sessions,
		"setups_deleted", setups,
		"challenges_deleted", logins,
	)
}
