package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-core/audit"
	errs "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token/refresh"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const sessionIDBytes = 16 // 128 bits of entropy

// UserData is the identity a token pair is issued for.
type UserData struct {
	UserID    string
	CompanyID string
	Role      string
}

// IssueOptions carries the per-login context for issuance.
type IssueOptions struct {
	RememberMe bool
	DeviceID   string
	IPAddress  string
	UserAgent  string
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// AccessValidation is the outcome of a successful access token check.
// NeedsRefresh signals the token is inside the renewal window: still
// valid, but the caller should mint a new pair rather than wait for a
// hard expiry.
type AccessValidation struct {
	Claims       *Claims
	NeedsRefresh bool
}

// SessionInfo describes one live refresh record for a user.
type SessionInfo struct {
	SessionID  string    `json:"sessionId"`
	DeviceID   string    `json:"deviceId,omitempty"`
	DeviceInfo string    `json:"deviceInfo,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Manager issues, validates, refreshes, and revokes session tokens. It
// owns the session-to-refresh-record mapping; access tokens validate
// without any store lookup beyond the blacklist.
type Manager struct {
	accessSigner  Signer
	refreshSigner Signer
	refreshRepo   refresh.Repo
	blacklist     RevokedTokenCache
	recorder      audit.Recorder

	accessTTL          time.Duration
	rememberAccessTTL  time.Duration
	refreshTTL         time.Duration
	rememberRefreshTTL time.Duration
	renewalWindow      time.Duration
	nowFunc            func() time.Time
}

type ManagerOption func(*Manager)

// WithTokenExpiry overrides the standard and remember-me TTL matrix.
func WithTokenExpiry(access, rememberAccess, refreshTTL, rememberRefresh time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTTL = access
		m.rememberAccessTTL = rememberAccess
		m.refreshTTL = refreshTTL
		m.rememberRefreshTTL = rememberRefresh
	}
}

func WithRenewalWindow(window time.Duration) ManagerOption {
	return func(m *Manager) {
		m.renewalWindow = window
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithRecorder wires an audit recorder; every issue, refresh, and
// revocation lands one event.
func WithRecorder(recorder audit.Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

func WithBlacklist(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.blacklist = cache
	}
}

// NewManager creates a token manager. The access and refresh secrets
// must differ: each token class is signed with its own key material so a
// refresh token can never verify as an access token.
func NewManager(repo refresh.Repo, accessSecret, refreshSecret string, opts ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errs.Wrapf(errs.ErrConfiguration, "refresh repo is required")
	}
	if accessSecret == "" || refreshSecret == "" {
		return nil, errs.Wrapf(errs.ErrConfiguration, "token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errs.Wrapf(errs.ErrConfiguration, "access and refresh secrets must differ")
	}

	m := &Manager{
		accessSigner:       NewHMACSigner(accessSecret),
		refreshSigner:      NewHMACSigner(refreshSecret),
		refreshRepo:        repo,
		blacklist:          NewInMemoryRevokedTokenCache(),
		accessTTL:          15 * time.Minute,
		rememberAccessTTL:  24 * time.Hour,
		refreshTTL:         7 * 24 * time.Hour,
		rememberRefreshTTL: 30 * 24 * time.Hour,
		renewalWindow:      5 * time.Minute,
		nowFunc:            func() time.Time { return NowTimeFunc() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue mints a new access/refresh pair under a fresh session id and
// stores the server-side refresh record.
func (m *Manager) Issue(ctx context.Context, user UserData, opts IssueOptions) (*Pair, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return nil, errors.Wrap(err, "generate session id")
	}
	pair, err := m.mint(ctx, user, sessionID, opts)
	if err != nil {
		return nil, err
	}

	m.record(audit.Event{
		UserID:    user.UserID,
		CompanyID: user.CompanyID,
		SessionID: sessionID,
		Category:  audit.CategoryToken,
		Action:    "token_issued",
		Success:   true,
		IPAddress: opts.IPAddress,
		UserAgent: opts.UserAgent,
		Severity:  audit.SeverityLow,
	})
	return pair, nil
}

func (m *Manager) mint(ctx context.Context, user UserData, sessionID string, opts IssueOptions) (*Pair, error) {
	accessTTL := m.accessTTL
	refreshTTL := m.refreshTTL
	if opts.RememberMe {
		accessTTL = m.rememberAccessTTL
		refreshTTL = m.rememberRefreshTTL
	}

	now := m.nowFunc()
	accessToken, err := m.accessSigner.Sign(m.claims(user, sessionID, opts.DeviceID, TypeAccess, now, accessTTL))
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.refreshSigner.Sign(m.claims(user, sessionID, opts.DeviceID, TypeRefresh, now, refreshTTL))
	if err != nil {
		return nil, err
	}

	record := &refresh.Record{
		TokenHash:  refresh.HashToken(refreshToken),
		SessionID:  sessionID,
		UserID:     user.UserID,
		CompanyID:  user.CompanyID,
		Role:       user.Role,
		DeviceID:   opts.DeviceID,
		DeviceInfo: opts.UserAgent,
		IPAddress:  opts.IPAddress,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(refreshTTL),
	}
	if err := m.refreshRepo.Upsert(ctx, record); err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		AccessTTL:    accessTTL,
		RefreshTTL:   refreshTTL,
	}, nil
}

func (m *Manager) claims(user UserData, sessionID, deviceID, tokenType string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		UserID:    user.UserID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		SessionID: sessionID,
		DeviceID:  deviceID,
		TokenType: tokenType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
}

// ValidateAccess verifies an access token. Each failure mode keeps its
// own reason: revoked, expired, malformed, wrong type, or bad signature.
func (m *Manager) ValidateAccess(_ context.Context, tokenStr string) (*AccessValidation, error) {
	if m.blacklist.IsRevoked(refresh.HashToken(tokenStr)) {
		return nil, errs.ErrTokenRevoked
	}

	claims, err := m.parse(tokenStr, m.accessSigner)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, errs.ErrWrongTokenType
	}

	needsRefresh := false
	if claims.ExpiresAt != nil {
		needsRefresh = claims.ExpiresAt.Time.Sub(m.nowFunc()) <= m.renewalWindow
	}
	return &AccessValidation{Claims: claims, NeedsRefresh: needsRefresh}, nil
}

// ValidateRefresh verifies a refresh token against both its signature
// and the server-side record; a valid use updates the record's
// last-used time.
func (m *Manager) ValidateRefresh(ctx context.Context, tokenStr string) (*Claims, error) {
	if m.blacklist.IsRevoked(refresh.HashToken(tokenStr)) {
		return nil, errs.ErrTokenRevoked
	}

	claims, err := m.parse(tokenStr, m.refreshSigner)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, errs.ErrWrongTokenType
	}

	record, err := m.refreshRepo.Get(ctx, refresh.HashToken(tokenStr))
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()
	if record.Expired(now) {
		_, _ = m.refreshRepo.Delete(ctx, record.TokenHash)
		return nil, errs.ErrRefreshExpired
	}

	// Touch never resurrects: if a concurrent rotation consumed the
	// record between the Get and here, the use fails.
	if err := m.refreshRepo.Touch(ctx, record.TokenHash, now); err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh rotates a refresh token: the old record is consumed before the
// new pair is minted, so a consumed refresh token can never be replayed.
// Consumption is an atomic take on the store; when several calls race on
// one token, only the goroutine whose delete removed the record mints a
// pair, the rest fail with ErrRefreshNotFound. The session id carries
// over — refresh continues a session, it does not start one.
func (m *Manager) Refresh(ctx context.Context, refreshToken string, opts IssueOptions) (*Pair, error) {
	claims, err := m.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	consumed, err := m.refreshRepo.Delete(ctx, refresh.HashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, errs.ErrRefreshNotFound
	}

	user := UserData{UserID: claims.UserID, CompanyID: claims.CompanyID, Role: claims.Role}
	if opts.DeviceID == "" {
		opts.DeviceID = claims.DeviceID
	}
	// Remember-me state is carried by the record's remaining lifetime at
	// issue time; rotation keeps the standard TTLs unless the caller says
	// otherwise.
	pair, err := m.mint(ctx, user, claims.SessionID, opts)
	if err != nil {
		return nil, err
	}

	m.record(audit.Event{
		UserID:    claims.UserID,
		CompanyID: claims.CompanyID,
		SessionID: claims.SessionID,
		Category:  audit.CategoryToken,
		Action:    "token_refreshed",
		Success:   true,
		IPAddress: opts.IPAddress,
		Severity:  audit.SeverityLow,
	})
	return pair, nil
}

// Revoke blacklists the exact token string for its remaining lifetime
// and, if it is a refresh token, drops its server-side record.
func (m *Manager) Revoke(ctx context.Context, tokenStr, reason string) error {
	exp := m.nowFunc().Add(m.rememberRefreshTTL)
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(tokenStr, claims); err == nil && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	hash := refresh.HashToken(tokenStr)
	if err := m.blacklist.Add(hash, exp); err != nil {
		return err
	}
	_, _ = m.refreshRepo.Delete(ctx, hash)

	m.record(audit.Event{
		UserID:       claims.UserID,
		SessionID:    claims.SessionID,
		Category:     audit.CategoryToken,
		Action:       "token_revoked",
		Success:      true,
		ErrorMessage: reason,
		Severity:     audit.SeverityMedium,
	})
	return nil
}

// RevokeAllForUser drops every refresh record for the user. Access
// tokens already in the wild stay valid until natural expiry; their
// window is bounded by the short access TTL.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	deleted, err := m.refreshRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	m.record(audit.Event{
		UserID:       userID,
		Category:     audit.CategoryToken,
		Action:       "sessions_revoked",
		Success:      true,
		ErrorMessage: reason,
		Severity:     audit.SeverityHigh,
	})
	return deleted, nil
}

// RevokeAllForSession drops the refresh records for one session. As with
// RevokeAllForUser, already-issued access tokens run out their short
// lifetime; use Revoke on the access token for a hard cut.
func (m *Manager) RevokeAllForSession(ctx context.Context, sessionID, reason string) (int, error) {
	deleted, err := m.refreshRepo.DeleteBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	m.record(audit.Event{
		SessionID:    sessionID,
		Category:     audit.CategoryToken,
		Action:       "session_revoked",
		Success:      true,
		ErrorMessage: reason,
		Severity:     audit.SeverityMedium,
	})
	return deleted, nil
}

// ActiveSessions lists the live refresh records for a user.
func (m *Manager) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	records, err := m.refreshRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()
	sessions := make([]SessionInfo, 0, len(records))
	for _, record := range records {
		if record.Expired(now) {
			continue
		}
		sessions = append(sessions, SessionInfo{
			SessionID:  record.SessionID,
			DeviceID:   record.DeviceID,
			DeviceInfo: record.DeviceInfo,
			IPAddress:  record.IPAddress,
			CreatedAt:  record.CreatedAt,
			LastUsedAt: record.LastUsedAt,
			ExpiresAt:  record.ExpiresAt,
		})
	}
	return sessions, nil
}

// Cleanup removes expired blacklist entries and refresh records. Run
// periodically by the service janitor.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	now := m.nowFunc()
	removed := m.blacklist.Cleanup(now)
	expired, err := m.refreshRepo.DeleteExpired(ctx, now)
	return removed + expired, err
}

func (m *Manager) parse(tokenStr string, signer Signer) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwtlib.WithTimeFunc(m.nowFunc),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, errs.ErrTokenExpired
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return nil, errs.ErrTokenMalformed
	default:
		return nil, errs.ErrInvalidToken
	}
}

func (m *Manager) record(event audit.Event) {
	if m.recorder == nil {
		return
	}
	_ = m.recorder.Record(event)
}

func newSessionID() (string, error) {
	raw := make([]byte, sessionIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
