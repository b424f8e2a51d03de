package service

import (
	"context"
	"time"
)

// Background eviction. Each sweep is one bounded pass over its store;
// none holds a store lock across passes. All three loops exit when the
// service's stop channel closes, so Close leaves no dangling timers.

func (s *Service) startJanitors(ctx context.Context) {
	s.done.Add(3)
	go s.loop(s.hourly, func() { s.hourlySweep(ctx) })
	go s.loop(s.daily, s.dailySweep)
	go s.loop(s.weekly, s.weeklySweep)
}

func (s *Service) loop(interval time.Duration, sweep func()) {
	defer s.done.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-s.stop:
			return
		}
	}
}

// hourlySweep drops expired refresh records and spent blacklist entries.
func (s *Service) hourlySweep(ctx context.Context) {
	removed, err := s.tokens.Cleanup(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("token cleanup sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("token cleanup sweep")
	}
}

// dailySweep handles the slower stores: stale devices, elapsed
// lockouts, and audit overflow.
func (s *Service) dailySweep() {
	devices := s.engine.CleanupStaleDevices(s.staleDeviceAge)
	lockouts := s.engine.CleanupExpiredLockouts()
	evicted := s.auditLog.EvictOverflow()
	if devices+lockouts+evicted > 0 {
		s.logger.Debug().
			Int("stale_devices", devices).
			Int("expired_lockouts", lockouts).
			Int("audit_evicted", evicted).
			Msg("daily cleanup sweep")
	}
}

// weeklySweep trims the spent backup-code ledger.
func (s *Service) weeklySweep() {
	trimmed := s.mfa.TrimSpentLedger(s.spentCodeRetention)
	if trimmed > 0 {
		s.logger.Debug().Int("trimmed", trimmed).Msg("spent code ledger sweep")
	}
}
