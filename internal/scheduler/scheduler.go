package scheduler

import (
	"context"
	"time"

	"github.com/vantagepsp/psp-core/config"
	"github.com/vantagepsp/psp-core/internal/core/ports"

	"github.com/rs/zerolog"
)

// SettlementScheduler triggers the daily settlement run at a fixed UTC hour.
// Settled periods are skipped inside the service, so an extra run after a
// restart is harmless.
type SettlementScheduler struct {
	svc ports.SettlementService
	cfg config.SettlementConfig
	log zerolog.Logger

	now func() time.Time
}

// NewSettlementScheduler creates a new SettlementScheduler.
func NewSettlementScheduler(svc ports.SettlementService, cfg config.SettlementConfig, log zerolog.Logger) *SettlementScheduler {
	return &SettlementScheduler{
		svc: svc,
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Run blocks until ctx is cancelled, firing the settlement run once per day.
func (s *SettlementScheduler) Run(ctx context.Context) {
	for {
		wait := time.Until(s.nextRun(s.now().UTC()))
		s.log.Info().Dur("wait", wait).Int("run_hour_utc", s.cfg.RunHourUTC).Msg("settlement run scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("settlement scheduler stopped")
			return
		case <-timer.C:
		}

		s.runWithRetry(ctx)
	}
}

// nextRun returns the next occurrence of the configured run hour after now.
func (s *SettlementScheduler) nextRun(now time.Time) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.RunHourUTC, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}

// runWithRetry executes the daily run, retrying transient failures with a
// fixed backoff. Per-account failures inside a run are already isolated;
// this only retries runs that failed outright.
func (s *SettlementScheduler) runWithRetry(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		summary, err := s.svc.ProcessDailySettlements(ctx, s.now().UTC())
		if err == nil {
			s.log.Info().
				Int("settled", summary.Settled).
				Int("skipped", summary.Skipped).
				Int("failed", summary.Failed).
				Msg("scheduled settlement run completed")
			return
		}

		if attempt >= s.cfg.MaxRetries {
			s.log.Error().Err(err).Int("attempts", attempt+1).Msg("settlement run failed, giving up until next schedule")
			return
		}

		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("settlement run failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryBackoff):
		}
	}
}
