package security

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-identity-core/audit"
	errs "github.com/jrsteele09/go-identity-core/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Request is one inbound login-time validation.
type Request struct {
	UserID    string
	SessionID string
	IPAddress string
	UserAgent string
	DeviceID  string
}

// Result is the engine's verdict on a request.
type Result struct {
	Allowed     bool
	Reason      string
	IsNewDevice bool
	RiskScore   int
	RequiresMFA bool
}

// Denial reasons. These are stable strings the middleware layer maps to
// responses; the audit trail carries the richer detail.
const (
	ReasonAccountLocked = "account_locked"
	ReasonSuspiciousIP  = "suspicious_ip"
)

// Err maps a verdict onto the error taxonomy. An allowed request that
// still needs a second factor surfaces ErrMFARequired so the middleware
// branches to the MFA step instead of treating it as a denial.
func (r Result) Err() error {
	if !r.Allowed {
		if r.Reason == ReasonAccountLocked {
			return errs.ErrAccountLocked
		}
		return errs.ErrSuspiciousActivity
	}
	if r.RequiresMFA {
		return errs.ErrMFARequired
	}
	return nil
}

// lockout is the per-user failed-login state.
type lockout struct {
	FailedCount int
	LastAttempt time.Time
	Locked      bool
	LockedAt    time.Time
}

// Risk score weights. The final score is clamped to [0,10].
const (
	riskMax             = 10
	riskNewDevice       = 5
	riskIPChanged       = 3
	riskUserAgentChange = 2
	riskTrustSuspicious = 7
	riskTrustUnknown    = 3
	riskTrustTrusted    = -2
	riskPerSuspicious   = 2
	riskRapidLogins     = 3

	suspiciousEventWindow = 24 * time.Hour
	rapidLoginWindow      = time.Hour
	rapidLoginThreshold   = 5
)

// Engine fingerprints devices, scores request risk, and enforces the
// lockout and suspicious-IP policy. All stores are guarded by one
// mutex; every operation is a short in-memory pass.
type Engine struct {
	mu            sync.Mutex
	devices       map[string]map[string]*Device // userID -> deviceID -> device
	lockouts      map[string]*lockout           // userID -> state
	suspiciousIPs map[string]time.Time          // ip -> when flagged
	lockedUsersIP map[string]map[string]bool    // ip -> set of users locked out from it
	events        map[string][]Event            // userID -> bounded history

	recorder audit.Recorder
	logger   zerolog.Logger
	nowFunc  func() time.Time

	lockoutThreshold int
	lockoutDuration  time.Duration
	ipUserThreshold  int
	mfaRiskThreshold int
	eventCap         int
}

type EngineOption func(*Engine)

func WithLockoutPolicy(threshold int, duration time.Duration) EngineOption {
	return func(e *Engine) {
		e.lockoutThreshold = threshold
		e.lockoutDuration = duration
	}
}

// WithSuspiciousIPThreshold sets how many distinct users must lock out
// from one IP before the IP itself is blocked.
func WithSuspiciousIPThreshold(users int) EngineOption {
	return func(e *Engine) {
		e.ipUserThreshold = users
	}
}

func WithMFARiskThreshold(score int) EngineOption {
	return func(e *Engine) {
		e.mfaRiskThreshold = score
	}
}

func WithEventCap(cap int) EngineOption {
	return func(e *Engine) {
		e.eventCap = cap
	}
}

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithNowFunc(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

// NewEngine creates a device & risk engine. The recorder receives one
// audit event per outcome and may not be nil.
func NewEngine(recorder audit.Recorder, opts ...EngineOption) (*Engine, error) {
	if recorder == nil {
		return nil, errs.Wrapf(errs.ErrConfiguration, "security engine requires an audit recorder")
	}
	e := &Engine{
		devices:       make(map[string]map[string]*Device),
		lockouts:      make(map[string]*lockout),
		suspiciousIPs: make(map[string]time.Time),
		lockedUsersIP: make(map[string]map[string]bool),
		events:        make(map[string][]Event),

		recorder: recorder,
		logger:   zerolog.Nop(),
		nowFunc:  func() time.Time { return NowTimeFunc() },

		lockoutThreshold: 5,
		lockoutDuration:  15 * time.Minute,
		ipUserThreshold:  3,
		mfaRiskThreshold: 7,
		eventCap:         100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ValidateRequest runs the login-time policy: lockout, suspicious IP,
// device resolution, risk scoring, and the MFA decision. Every outcome
// is recorded.
func (e *Engine) ValidateRequest(_ context.Context, req Request) Result {
	e.mu.Lock()
	now := e.nowFunc()

	if state, ok := e.lockouts[req.UserID]; ok && state.Locked {
		if now.Sub(state.LockedAt) < e.lockoutDuration {
			e.appendEventLocked(Event{
				UserID:    req.UserID,
				SessionID: req.SessionID,
				Type:      EventAccountLocked,
				Details:   "request denied: account locked",
				IPAddress: req.IPAddress,
				UserAgent: req.UserAgent,
				RiskScore: riskMax,
				Timestamp: now,
			})
			e.mu.Unlock()
			e.mirror(req, EventAccountLocked, false, riskMax, audit.SeverityHigh, "account locked")
			return Result{Allowed: false, Reason: ReasonAccountLocked, RiskScore: riskMax}
		}
		// Lockout window elapsed: clear it and let the request proceed.
		delete(e.lockouts, req.UserID)
	}

	if _, flagged := e.suspiciousIPs[req.IPAddress]; flagged {
		e.appendEventLocked(Event{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Type:      EventSuspiciousIPBlocked,
			Details:   "request denied: source ip flagged",
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			RiskScore: riskMax,
			Timestamp: now,
		})
		e.mu.Unlock()
		e.mirror(req, EventSuspiciousIPBlocked, false, riskMax, audit.SeverityCritical, "suspicious source ip")
		return Result{Allowed: false, Reason: ReasonSuspiciousIP, RiskScore: riskMax}
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = Fingerprint(req.UserAgent, req.IPAddress)
	}

	userDevices, ok := e.devices[req.UserID]
	if !ok {
		userDevices = make(map[string]*Device)
		e.devices[req.UserID] = userDevices
	}

	device, known := userDevices[deviceID]
	isNew := !known
	if isNew {
		device = &Device{
			DeviceID:    deviceID,
			UserID:      req.UserID,
			IPAddress:   req.IPAddress,
			UserAgent:   req.UserAgent,
			Fingerprint: Fingerprint(req.UserAgent, req.IPAddress),
			FirstSeen:   now,
			TrustLevel:  TrustUnknown,
		}
		userDevices[deviceID] = device
	}

	score := e.riskScoreLocked(req, device, isNew, now)

	device.LastSeen = now
	device.LoginCount++
	device.IPAddress = req.IPAddress
	device.UserAgent = req.UserAgent

	e.appendEventLocked(Event{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Type:      EventLoginSuccess,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		RiskScore: score,
		Timestamp: now,
	})
	e.mu.Unlock()

	requiresMFA := score >= e.mfaRiskThreshold || isNew
	e.mirror(req, EventLoginSuccess, true, score, audit.SeverityLow, "")

	return Result{
		Allowed:     true,
		IsNewDevice: isNew,
		RiskScore:   score,
		RequiresMFA: requiresMFA,
	}
}

// riskScoreLocked computes the additive risk score for a request against
// its resolved device. Caller holds e.mu.
func (e *Engine) riskScoreLocked(req Request, device *Device, isNew bool, now time.Time) int {
	score := 0

	if isNew {
		score += riskNewDevice
	} else {
		if device.IPAddress != req.IPAddress {
			score += riskIPChanged
		}
		if device.UserAgent != req.UserAgent {
			score += riskUserAgentChange
		}
	}

	switch device.TrustLevel {
	case TrustSuspicious:
		score += riskTrustSuspicious
	case TrustUnknown:
		score += riskTrustUnknown
	case TrustTrusted:
		score += riskTrustTrusted
	}
	if score < 0 {
		score = 0
	}

	suspicious := 0
	recentLogins := 0
	for _, event := range e.events[req.UserID] {
		age := now.Sub(event.Timestamp)
		if event.suspicious() && age <= suspiciousEventWindow {
			suspicious++
		}
		if event.Type == EventLoginSuccess && age <= rapidLoginWindow {
			recentLogins++
		}
	}
	score += riskPerSuspicious * suspicious
	if recentLogins > rapidLoginThreshold {
		score += riskRapidLogins
	}

	if score > riskMax {
		score = riskMax
	}
	if score < 0 {
		score = 0
	}
	return score
}

// RecordFailedLogin counts a failed attempt. Crossing the threshold
// locks the account for the lockout window, and an IP that has locked
// out enough distinct users is escalated to suspicious.
func (e *Engine) RecordFailedLogin(_ context.Context, userID, ipAddress, userAgent, reason string) {
	e.mu.Lock()
	now := e.nowFunc()

	state, ok := e.lockouts[userID]
	if !ok {
		state = &lockout{}
		e.lockouts[userID] = state
	}
	state.FailedCount++
	state.LastAttempt = now

	e.appendEventLocked(Event{
		UserID:    userID,
		Type:      EventLoginFailed,
		Details:   reason,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Timestamp: now,
	})

	locked := false
	ipEscalated := false
	if !state.Locked && state.FailedCount >= e.lockoutThreshold {
		state.Locked = true
		state.LockedAt = now
		locked = true

		users, ok := e.lockedUsersIP[ipAddress]
		if !ok {
			users = make(map[string]bool)
			e.lockedUsersIP[ipAddress] = users
		}
		users[userID] = true
		if len(users) >= e.ipUserThreshold {
			if _, already := e.suspiciousIPs[ipAddress]; !already {
				e.suspiciousIPs[ipAddress] = now
				ipEscalated = true
			}
		}

		e.appendEventLocked(Event{
			UserID:    userID,
			Type:      EventAccountLocked,
			Details:   "failed login threshold reached",
			IPAddress: ipAddress,
			UserAgent: userAgent,
			RiskScore: riskMax,
			Timestamp: now,
		})
	}
	e.mu.Unlock()

	_ = e.recorder.Record(audit.Event{
		UserID:       userID,
		Category:     audit.CategoryAuth,
		Action:       "login_failed",
		Success:      false,
		ErrorMessage: reason,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Severity:     audit.SeverityMedium,
	})
	if locked {
		_ = e.recorder.Record(audit.Event{
			UserID:    userID,
			Category:  audit.CategorySecurity,
			Action:    "account_locked",
			Success:   false,
			IPAddress: ipAddress,
			RiskScore: riskMax,
			Severity:  audit.SeverityHigh,
		})
		e.logger.Warn().Str("user_id", userID).Str("ip", ipAddress).Msg("account locked")
	}
	if ipEscalated {
		_ = e.recorder.Record(audit.Event{
			Category:  audit.CategorySecurity,
			Action:    "suspicious_ip_flagged",
			Success:   false,
			IPAddress: ipAddress,
			RiskScore: riskMax,
			Severity:  audit.SeverityCritical,
		})
		e.logger.Warn().Str("ip", ipAddress).Msg("ip escalated to suspicious")
	}
}

// ClearFailedAttempts resets the failure counter after a successful
// login.
func (e *Engine) ClearFailedAttempts(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lockouts, userID)
}

// IsLocked reports whether the user is currently inside a lockout
// window.
func (e *Engine) IsLocked(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.lockouts[userID]
	if !ok || !state.Locked {
		return false
	}
	return e.nowFunc().Sub(state.LockedAt) < e.lockoutDuration
}

// mirror records one audit event for a validation outcome.
func (e *Engine) mirror(req Request, eventType EventType, success bool, score int, severity audit.Severity, errMsg string) {
	_ = e.recorder.Record(audit.Event{
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Category:     audit.CategorySecurity,
		Action:       string(eventType),
		Success:      success,
		ErrorMessage: errMsg,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		RiskScore:    score,
		Severity:     severity,
	})
}

// appendEventLocked pushes onto the user's bounded history. Caller
// holds e.mu.
func (e *Engine) appendEventLocked(event Event) {
	event.ID = uuid.New().String()
	history := append(e.events[event.UserID], event)
	if len(history) > e.eventCap {
		history = history[len(history)-e.eventCap:]
	}
	e.events[event.UserID] = history
}
