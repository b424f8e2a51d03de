package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	errs "github.com/jrsteele09/go-identity-core/internal/errors"
	"github.com/jrsteele09/go-identity-core/token"
	"github.com/jrsteele09/go-identity-core/token/refresh"
)

const (
	accessSecret  = "test-access-secret"
	refreshSecret = "test-refresh-secret"
)

var testUser = token.UserData{UserID: "user-1", CompanyID: "company-1", Role: "manager"}

// testClock is a movable clock shared by a manager under test.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T) (*token.Manager, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now()}
	m, err := token.NewManager(refresh.NewInMemoryRepo(), accessSecret, refreshSecret,
		token.WithNowFunc(clock.Now),
	)
	require.NoError(t, err)
	return m, clock
}

func TestNewManagerRequiresDistinctSecrets(t *testing.T) {
	_, err := token.NewManager(refresh.NewInMemoryRepo(), "same", "same")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestIssueAndValidateAccess(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{
		IPAddress: "1.2.3.4", UserAgent: "go-test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	require.Len(t, pair.SessionID, 32) // 128 bits, hex encoded
	require.Equal(t, 15*time.Minute, pair.AccessTTL)

	v, err := m.ValidateAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", v.Claims.UserID)
	require.Equal(t, "company-1", v.Claims.CompanyID)
	require.Equal(t, "manager", v.Claims.Role)
	require.Equal(t, pair.SessionID, v.Claims.SessionID)
	require.False(t, v.NeedsRefresh)
}

func TestRememberMeExtendsTTLs(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{RememberMe: true})
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, pair.AccessTTL)
	require.Equal(t, 30*24*time.Hour, pair.RefreshTTL)
}

func TestValidateAccessNearExpirySignalsRenewal(t *testing.T) {
	m, clock := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	clock.Advance(11 * time.Minute) // 4 minutes left of 15
	v, err := m.ValidateAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.True(t, v.NeedsRefresh)
}

func TestValidateAccessExpired(t *testing.T) {
	m, clock := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = m.ValidateAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenExpired)
}

func TestValidateAccessMalformed(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.ValidateAccess(context.Background(), "not-a-token")
	require.ErrorIs(t, err, errs.ErrTokenMalformed)
}

func TestValidateAccessRejectsRefreshToken(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	// Signed with different key material, so it fails before the type
	// check ever runs.
	_, err = m.ValidateAccess(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestValidateRefreshRejectsWrongType(t *testing.T) {
	m, _ := newTestManager(t)

	// A token signed with the refresh key but carrying the access type
	// must be rejected on type, not signature.
	signer := token.NewHMACSigner(refreshSecret)
	forged, err := signer.Sign(&token.Claims{
		UserID:    "user-1",
		SessionID: "sess",
		TokenType: token.TypeAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	_, err = m.ValidateRefresh(context.Background(), forged)
	require.ErrorIs(t, err, errs.ErrWrongTokenType)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	rotated, err := m.Refresh(context.Background(), pair.RefreshToken, token.IssueOptions{})
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// Session continuity: the rotated pair keeps the original session id.
	require.Equal(t, pair.SessionID, rotated.SessionID)

	// Replaying the consumed refresh token must fail.
	_, err = m.Refresh(context.Background(), pair.RefreshToken, token.IssueOptions{})
	require.ErrorIs(t, err, errs.ErrRefreshNotFound)

	// The new one still works.
	_, err = m.ValidateRefresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	const n = 32
	start := make(chan struct{})
	results := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Refresh(context.Background(), pair.RefreshToken, token.IssueOptions{})
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, errs.ErrRefreshNotFound)
	}
	require.Equal(t, 1, success)

	// The losers consumed nothing: exactly one live session remains.
	sessions, err := m.ActiveSessions(context.Background(), testUser.UserID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, pair.SessionID, sessions[0].SessionID)
}

func TestRevokeBlacklistsExactToken(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), pair.AccessToken, "logout"))

	_, err = m.ValidateAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, errs.ErrTokenRevoked)

	// The refresh token was not blacklisted and still validates.
	_, err = m.ValidateRefresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
}

func TestRevokeAllForSessionLeavesAccessTokenAlive(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	deleted, err := m.RevokeAllForSession(context.Background(), pair.SessionID, "admin action")
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	// Refresh is dead immediately; the short-lived access token runs out
	// its natural lifetime. Deliberate bounded-exposure tradeoff.
	_, err = m.ValidateRefresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, errs.ErrRefreshNotFound)

	_, err = m.ValidateAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
}

func TestRevokeAllForUser(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)
	second, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	deleted, err := m.RevokeAllForUser(context.Background(), "user-1", "password change")
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	for _, refreshToken := range []string{first.RefreshToken, second.RefreshToken} {
		_, err = m.ValidateRefresh(context.Background(), refreshToken)
		require.ErrorIs(t, err, errs.ErrRefreshNotFound)
	}
}

func TestActiveSessions(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.Issue(context.Background(), testUser, token.IssueOptions{
		DeviceID: "dev-1", IPAddress: "1.2.3.4", UserAgent: "go-test",
	})
	require.NoError(t, err)

	sessions, err := m.ActiveSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, pair.SessionID, sessions[0].SessionID)
	require.Equal(t, "dev-1", sessions[0].DeviceID)
	require.Equal(t, "go-test", sessions[0].DeviceInfo)
}

func TestCleanupDropsExpiredRefreshRecords(t *testing.T) {
	m, clock := newTestManager(t)

	_, err := m.Issue(context.Background(), testUser, token.IssueOptions{})
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)
	removed, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	sessions, err := m.ActiveSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, sessions)
}
