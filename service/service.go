package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-identity-core/audit"
	"github.com/jrsteele09/go-identity-core/internal/config"
	"github.com/jrsteele09/go-identity-core/mfa"
	"github.com/jrsteele09/go-identity-core/rbac"
	"github.com/jrsteele09/go-identity-core/security"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
)

// Service wires the security core together: permission registry, token
// manager, device & risk engine, MFA manager, and audit log, plus the
// background janitors that keep their stores bounded. Construct with
// New, tear down with Close; Close stops every janitor before returning.
type Service struct {
	registry *rbac.Registry
	tokens   *token.Manager
	engine   *security.Engine
	mfa      *mfa.Manager
	auditLog *audit.Log

	logger zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup

	hourly time.Duration
	daily  time.Duration
	weekly time.Duration

	staleDeviceAge     time.Duration
	spentCodeRetention time.Duration
}

type Option func(*optionState)

type optionState struct {
	roles       []rbac.Role
	refreshRepo refresh.Repo
	sinks       []audit.Sink
	logger      zerolog.Logger
	hourly      time.Duration
	daily       time.Duration
	weekly      time.Duration
}

// WithRoles replaces the default role set.
func WithRoles(roles []rbac.Role) Option {
	return func(s *optionState) {
		s.roles = roles
	}
}

// WithRefreshRepo swaps the refresh record store; the default is the
// in-memory repo.
func WithRefreshRepo(repo refresh.Repo) Option {
	return func(s *optionState) {
		s.refreshRepo = repo
	}
}

// WithAuditSink adds a downstream audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *optionState) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *optionState) {
		s.logger = logger
	}
}

// WithJanitorIntervals overrides the sweep cadence. Intended for tests.
func WithJanitorIntervals(hourly, daily, weekly time.Duration) Option {
	return func(s *optionState) {
		s.hourly = hourly
		s.daily = daily
		s.weekly = weekly
	}
}

// New builds and starts the security core. A malformed role registry is
// fatal here, before any traffic is accepted.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	state := &optionState{
		roles:  rbac.DefaultRoles(),
		logger: zerolog.Nop(),
		hourly: time.Hour,
		daily:  24 * time.Hour,
		weekly: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(state)
	}
	if state.refreshRepo == nil {
		state.refreshRepo = refresh.NewInMemoryRepo()
	}

	registry, err := rbac.NewRegistry(state.roles)
	if err != nil {
		return nil, err
	}

	auditOpts := []audit.LogOption{
		audit.WithLogger(state.logger),
		audit.WithAnomalyThresholds(audit.AnomalyThresholds{
			EventsPerUser:     cfg.GetAnomalyEventsPerUser(),
			FailedAuthPerUser: cfg.GetAnomalyFailedAuthPerUser(),
			EventsPerIP:       cfg.GetAnomalyEventsPerIP(),
			FailedLoginsPerIP: cfg.GetAnomalyFailedLoginsPerIP(),
		}),
	}
	for _, sink := range state.sinks {
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	auditLog := audit.NewLog(cfg.GetAuditRetentionCap(), auditOpts...)

	tokens, err := token.NewManager(
		state.refreshRepo,
		cfg.GetAccessTokenSecret(),
		cfg.GetRefreshTokenSecret(),
		token.WithTokenExpiry(
			cfg.GetAccessTokenExpiry(),
			cfg.GetRememberMeAccessExpiry(),
			cfg.GetRefreshTokenExpiry(),
			cfg.GetRememberMeRefreshExpiry(),
		),
		token.WithRenewalWindow(cfg.GetRenewalWindow()),
		token.WithRecorder(auditLog),
	)
	if err != nil {
		return nil, err
	}

	engine, err := security.NewEngine(auditLog,
		security.WithLockoutPolicy(cfg.GetLockoutThreshold(), cfg.GetLockoutDuration()),
		security.WithSuspiciousIPThreshold(cfg.GetSuspiciousIPUserThreshold()),
		security.WithMFARiskThreshold(cfg.GetRiskMFAThreshold()),
		security.WithEventCap(cfg.GetSecurityEventCap()),
		security.WithLogger(state.logger),
	)
	if err != nil {
		return nil, err
	}

	mfaManager, err := mfa.NewManager(cfg.GetTOTPIssuer(), auditLog,
		mfa.WithBackupCodePolicy(cfg.GetBackupCodeCount(), cfg.GetBackupCodeLength()),
		mfa.WithLogger(state.logger),
	)
	if err != nil {
		return nil, err
	}

	s := &Service{
		registry: registry,
		tokens:   tokens,
		engine:   engine,
		mfa:      mfaManager,
		auditLog: auditLog,
		logger:   state.logger,
		stop:     make(chan struct{}),

		hourly: state.hourly,
		daily:  state.daily,
		weekly: state.weekly,

		staleDeviceAge:     cfg.GetStaleDeviceAge(),
		spentCodeRetention: cfg.GetSpentCodeRetention(),
	}
	s.startJanitors(context.Background())
	return s, nil
}

// RBAC returns the permission registry.
func (s *Service) RBAC() *rbac.Registry { return s.registry }

// Tokens returns the token manager.
func (s *Service) Tokens() *token.Manager { return s.tokens }

// Security returns the device & risk engine.
func (s *Service) Security() *security.Engine { return s.engine }

// MFA returns the MFA manager.
func (s *Service) MFA() *mfa.Manager { return s.mfa }

// Audit returns the audit log.
func (s *Service) Audit() *audit.Log { return s.auditLog }

// Close stops every background janitor, waits for them to finish, and
// closes the audit sinks. Safe to call more than once.
func (s *Service) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		s.done.Wait()
		err = s.auditLog.Close()
	})
	return err
}

