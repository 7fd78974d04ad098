package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authz/internal/auth/metrics"
	"github.com/aussiebroadwan/authz/internal/auth/store"
)

// KeyRotator is the part of jwtx.KeyManager housekeeping drives.
type KeyRotator interface {
	Rotate() (string, error)
	PruneRetired(now time.Time) int
}

// HousekeepingService periodically removes expired codes, tokens and SSO
// sessions, and rotates the signing key when a rotation interval is set.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  metrics.Recorder

	// Keys is rotated every RotateEvery. Both must be set to enable it.
	Keys        KeyRotator
	RotateEvery time.Duration

	Now func() time.Time

	lastRotation time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to one minute.
func NewHousekeepingService(s store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HousekeepingService{
		Store:    s,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *HousekeepingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	s.lastRotation = s.now()
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "key_rotation", s.RotateEvery)
}

// Stop blocks until any in-progress pass has finished.
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

// RunOnce performs one pass. A failing sweep is logged and does not stop
// the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	now := s.now()
	rec := metrics.OrNoop(s.Metrics)

	sweeps := []struct {
		kind string
		fn   func(context.Context, time.Time) (int64, error)
	}{
		{"authorization_codes", s.Store.AuthorizationCodes().DeleteExpired},
		{"access_tokens", s.Store.AccessTokens().DeleteExpired},
		{"sso_sessions", s.Store.SSOSessions().DeleteExpired},
	}

	var total int64
	for _, sw := range sweeps {
		n, err := sw.fn(ctx, now)
		if err != nil {
			s.Logger.Error("housekeeping sweep failed", "kind", sw.kind, "error", err)
			continue
		}
		rec.RecordSweep(sw.kind, n)
		total += n
	}
	s.Logger.Debug("housekeeping sweep completed", "deleted", total)

	s.rotateKeys(now)
}

func (s *HousekeepingService) rotateKeys(now time.Time) {
	if s.Keys == nil || s.RotateEvery <= 0 {
		return
	}
	rec := metrics.OrNoop(s.Metrics)

	if pruned := s.Keys.PruneRetired(now); pruned > 0 {
		s.Logger.Info("pruned retired signing keys", "count", pruned)
	}
	if now.Sub(s.lastRotation) < s.RotateEvery {
		return
	}

	kid, err := s.Keys.Rotate()
	if err != nil {
		rec.RecordKeyRotation(false)
		s.Logger.Error("signing key rotation failed", "error", err)
		return
	}
	s.lastRotation = now
	rec.RecordKeyRotation(true)
	s.Logger.Info("signing key rotated", "kid", kid)
}
