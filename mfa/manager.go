package mfa

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-identity-core/audit"
	errs "github.com/jrsteele09/go-identity-core/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	totpReplayWindow  = 30 * time.Second
	lowBackupCodeMark = 3
	qrRenderEndpoint  = "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data="
)

// Record is the per-user MFA state. A user is "pending" between Setup
// and Enable; disable in any form deletes the record outright — there is
// no disabled-but-retained state.
type Record struct {
	UserID       string
	Enabled      bool
	Secret       string
	BackupCodes  map[string]bool // code hash -> unconsumed
	LastUsedCode string
	LastUsedAt   time.Time
	SetupAt      time.Time
}

// SetupResult is returned once, at provisioning time; the secret and
// plaintext backup codes are never retrievable again.
type SetupResult struct {
	Secret          string
	ProvisioningURI string
	QRCodeURL       string
	BackupCodes     []string
}

// ValidateResult reports a successful second-factor check.
type ValidateResult struct {
	Method               string // "totp" or "backup_code"
	RemainingBackupCodes int
	Warning              string
}

// Status is the introspection view of a user's MFA state.
type Status struct {
	Enabled              bool
	Pending              bool
	RemainingBackupCodes int
	SetupAt              time.Time
}

// Manager owns TOTP provisioning, second-factor validation, and backup
// code lifecycle for all users.
type Manager struct {
	mu      sync.Mutex
	records map[string]*Record
	spent   map[string]time.Time // code hash -> when consumed, across all users

	totp       *TOTP
	recorder   audit.Recorder
	logger     zerolog.Logger
	nowFunc    func() time.Time
	codeCount  int
	codeLength int
}

type ManagerOption func(*Manager)

func WithBackupCodePolicy(count, length int) ManagerOption {
	return func(m *Manager) {
		m.codeCount = count
		m.codeLength = length
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates an MFA manager issuing TOTP enrollments under the
// given issuer name.
func NewManager(issuer string, recorder audit.Recorder, opts ...ManagerOption) (*Manager, error) {
	if recorder == nil {
		return nil, errs.Wrapf(errs.ErrConfiguration, "mfa manager requires an audit recorder")
	}
	m := &Manager{
		records:    make(map[string]*Record),
		spent:      make(map[string]time.Time),
		totp:       NewTOTP(issuer),
		recorder:   recorder,
		logger:     zerolog.Nop(),
		nowFunc:    func() time.Time { return NowTimeFunc() },
		codeCount:  10,
		codeLength: 8,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Setup provisions a TOTP secret and backup codes for a user. The
// account is not protected until Enable confirms the authenticator.
func (m *Manager) Setup(_ context.Context, userID, email string) (*SetupResult, error) {
	secret, err := m.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if record, ok := m.records[userID]; ok && record.Enabled {
		m.mu.Unlock()
		return nil, errs.ErrMFAAlreadyEnabled
	}
	codes, hashes, err := m.freshBackupCodesLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.records[userID] = &Record{
		UserID:      userID,
		Secret:      secret,
		BackupCodes: hashes,
	}
	m.mu.Unlock()

	uri := m.totp.ProvisioningURI(secret, email)
	m.record(userID, "mfa_setup_started", true, "", audit.SeverityLow)

	return &SetupResult{
		Secret:          secret,
		ProvisioningURI: uri,
		QRCodeURL:       qrRenderEndpoint + url.QueryEscape(uri),
		BackupCodes:     codes,
	}, nil
}

// Enable confirms the pending enrollment by verifying one TOTP code
// from the authenticator, then turns protection on.
func (m *Manager) Enable(_ context.Context, userID, code string) error {
	m.mu.Lock()
	record, ok := m.records[userID]
	if !ok {
		m.mu.Unlock()
		return errs.ErrMFANotConfigured
	}
	if record.Enabled {
		m.mu.Unlock()
		return errs.ErrMFAAlreadyEnabled
	}

	now := m.nowFunc()
	valid, _, err := m.totp.VerifyCode(record.Secret, code, now)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !valid {
		m.mu.Unlock()
		m.record(userID, "mfa_enable_failed", false, "code mismatch", audit.SeverityMedium)
		return errs.ErrMFAInvalidCode
	}

	record.Enabled = true
	record.SetupAt = now
	record.LastUsedCode = code
	record.LastUsedAt = now
	m.mu.Unlock()

	m.record(userID, "mfa_enabled", true, "", audit.SeverityLow)
	return nil
}

// Validate checks a second factor, dispatching on code shape: six
// digits goes down the TOTP path, anything of backup-code length down
// the backup path. TOTP rejects the identical code replayed inside one
// step; a backup code is consumed atomically and can never validate
// again.
func (m *Manager) Validate(ctx context.Context, userID, code string) (*ValidateResult, error) {
	if len(code) == totpDigits && isNumeric(code) {
		return m.validateTOTP(ctx, userID, code)
	}
	if len(code) == m.codeLength {
		return m.validateBackupCode(ctx, userID, code)
	}
	m.record(userID, "mfa_validate_failed", false, "unrecognized code shape", audit.SeverityMedium)
	return nil, errs.ErrMFAInvalidCode
}

func (m *Manager) validateTOTP(_ context.Context, userID, code string) (*ValidateResult, error) {
	m.mu.Lock()
	record, ok := m.records[userID]
	if !ok || !record.Enabled {
		m.mu.Unlock()
		return nil, errs.ErrMFANotConfigured
	}

	now := m.nowFunc()
	if code == record.LastUsedCode && now.Sub(record.LastUsedAt) < totpReplayWindow {
		m.mu.Unlock()
		m.record(userID, "mfa_validate_failed", false, "totp replay", audit.SeverityHigh)
		return nil, errs.ErrMFAInvalidCode
	}

	valid, _, err := m.totp.VerifyCode(record.Secret, code, now)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if !valid {
		m.mu.Unlock()
		m.record(userID, "mfa_validate_failed", false, "code mismatch", audit.SeverityMedium)
		return nil, errs.ErrMFAInvalidCode
	}

	record.LastUsedCode = code
	record.LastUsedAt = now
	remaining := len(record.BackupCodes)
	m.mu.Unlock()

	m.record(userID, "mfa_validated", true, "", audit.SeverityLow)
	return &ValidateResult{Method: "totp", RemainingBackupCodes: remaining}, nil
}

func (m *Manager) validateBackupCode(_ context.Context, userID, code string) (*ValidateResult, error) {
	hash := hashCode(code)

	m.mu.Lock()
	record, ok := m.records[userID]
	if !ok || !record.Enabled {
		m.mu.Unlock()
		return nil, errs.ErrMFANotConfigured
	}

	if _, consumed := m.spent[hash]; consumed {
		m.mu.Unlock()
		m.record(userID, "mfa_validate_failed", false, "backup code already used", audit.SeverityHigh)
		return nil, errs.ErrBackupCodeConsumed
	}
	if !record.BackupCodes[hash] {
		exhausted := len(record.BackupCodes) == 0
		m.mu.Unlock()
		if exhausted {
			m.record(userID, "mfa_validate_failed", false, "backup codes exhausted", audit.SeverityHigh)
			return nil, errs.ErrBackupCodesExhausted
		}
		m.record(userID, "mfa_validate_failed", false, "unknown backup code", audit.SeverityMedium)
		return nil, errs.ErrMFAInvalidCode
	}

	delete(record.BackupCodes, hash)
	m.spent[hash] = m.nowFunc()
	remaining := len(record.BackupCodes)
	m.mu.Unlock()

	m.record(userID, "mfa_backup_code_used", true, "", audit.SeverityLow)

	result := &ValidateResult{Method: "backup_code", RemainingBackupCodes: remaining}
	if remaining <= lowBackupCodeMark {
		result.Warning = "backup codes running low; regenerate soon"
		m.logger.Warn().Str("user_id", userID).Int("remaining", remaining).Msg("backup codes running low")
	}
	return result, nil
}

// Disable turns MFA off after verifying one factor (TOTP or backup
// code). All remaining backup codes are pushed into the spent ledger and
// the record is deleted.
func (m *Manager) Disable(ctx context.Context, userID, code string) error {
	if _, err := m.Validate(ctx, userID, code); err != nil {
		return err
	}
	m.wipe(userID)
	m.record(userID, "mfa_disabled", true, "", audit.SeverityMedium)
	return nil
}

// ForceDisable is the administrative override: no second factor needed.
func (m *Manager) ForceDisable(_ context.Context, userID, adminID string) error {
	m.mu.Lock()
	_, ok := m.records[userID]
	m.mu.Unlock()
	if !ok {
		return errs.ErrMFANotConfigured
	}
	m.wipe(userID)

	_ = m.recorder.Record(audit.Event{
		UserID:     adminID,
		Category:   audit.CategoryAdmin,
		Action:     "mfa_force_disabled",
		Resource:   "user",
		ResourceID: userID,
		Success:    true,
		Severity:   audit.SeverityHigh,
	})
	return nil
}

// RegenerateBackupCodes issues a fresh code set, optionally gated on a
// TOTP check. Every prior code is spent immediately; a spent code is
// never handed out again.
func (m *Manager) RegenerateBackupCodes(_ context.Context, userID, totpCode string) ([]string, error) {
	m.mu.Lock()
	record, ok := m.records[userID]
	if !ok || !record.Enabled {
		m.mu.Unlock()
		return nil, errs.ErrMFANotConfigured
	}

	if totpCode != "" {
		valid, _, err := m.totp.VerifyCode(record.Secret, totpCode, m.nowFunc())
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if !valid {
			m.mu.Unlock()
			m.record(userID, "mfa_regenerate_failed", false, "code mismatch", audit.SeverityMedium)
			return nil, errs.ErrMFAInvalidCode
		}
	}

	now := m.nowFunc()
	for hash := range record.BackupCodes {
		m.spent[hash] = now
	}
	codes, hashes, err := m.freshBackupCodesLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	record.BackupCodes = hashes
	m.mu.Unlock()

	m.record(userID, "mfa_backup_codes_regenerated", true, "", audit.SeverityMedium)
	return codes, nil
}

// Status reports the user's MFA state without exposing secrets.
func (m *Manager) Status(userID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[userID]
	if !ok {
		return Status{}
	}
	return Status{
		Enabled:              record.Enabled,
		Pending:              !record.Enabled,
		RemainingBackupCodes: len(record.BackupCodes),
		SetupAt:              record.SetupAt,
	}
}

// TrimSpentLedger drops ledger entries older than the retention period.
// Run by the weekly janitor pass.
func (m *Manager) TrimSpentLedger(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.nowFunc().Add(-retention)
	removed := 0
	for hash, when := range m.spent {
		if when.Before(cutoff) {
			delete(m.spent, hash)
			removed++
		}
	}
	return removed
}

// freshBackupCodesLocked generates a full code set, skipping any
// candidate whose hash already sits in the spent ledger. Caller holds
// m.mu.
func (m *Manager) freshBackupCodesLocked() ([]string, map[string]bool, error) {
	codes := make([]string, 0, m.codeCount)
	hashes := make(map[string]bool, m.codeCount)
	for len(codes) < m.codeCount {
		code, err := generateBackupCode(m.codeLength)
		if err != nil {
			return nil, nil, err
		}
		hash := hashCode(code)
		if _, consumed := m.spent[hash]; consumed {
			continue
		}
		if hashes[hash] {
			continue
		}
		codes = append(codes, code)
		hashes[hash] = true
	}
	return codes, hashes, nil
}

// wipe spends all remaining codes and deletes the record.
func (m *Manager) wipe(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[userID]
	if !ok {
		return
	}
	now := m.nowFunc()
	for hash := range record.BackupCodes {
		m.spent[hash] = now
	}
	delete(m.records, userID)
}

func (m *Manager) record(userID, action string, success bool, errMsg string, severity audit.Severity) {
	_ = m.recorder.Record(audit.Event{
		UserID:       userID,
		Category:     audit.CategoryMFA,
		Action:       action,
		Success:      success,
		ErrorMessage: errMsg,
		Severity:     severity,
	})
}
