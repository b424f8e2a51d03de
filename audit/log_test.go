package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-identity-core/audit"
)

type auditClock struct {
	now time.Time
}

func (c *auditClock) Now() time.Time { return c.now }

func (c *auditClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLog(retentionCap int, opts ...audit.LogOption) (*audit.Log, *auditClock) {
	clock := &auditClock{now: time.Unix(1700000000, 0)}
	opts = append([]audit.LogOption{audit.WithNowFunc(clock.Now)}, opts...)
	return audit.NewLog(retentionCap, opts...), clock
}

func authEvent(userID, ip string, success bool) audit.Event {
	return audit.Event{
		UserID:    userID,
		Category:  audit.CategoryAuth,
		Action:    "login",
		Success:   success,
		IPAddress: ip,
	}
}

func TestRecordValidation(t *testing.T) {
	log, _ := newTestLog(100)

	require.Error(t, log.Record(audit.Event{Action: "login"}))
	require.Error(t, log.Record(audit.Event{Category: audit.CategoryAuth}))
	require.Zero(t, log.Len())
}

func TestRecordDefaults(t *testing.T) {
	log, clock := newTestLog(100)

	require.NoError(t, log.Record(authEvent("user-1", "1.2.3.4", true)))

	events := log.Query(audit.Filter{})
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].ID)
	require.Equal(t, audit.SeverityLow, events[0].Severity)
	require.Equal(t, clock.Now(), events[0].Timestamp)
}

func TestPerUserTimestampsNeverRegress(t *testing.T) {
	log, clock := newTestLog(100)

	later := clock.Now().Add(time.Hour)
	require.NoError(t, log.Record(audit.Event{
		UserID: "user-1", Category: audit.CategoryAuth, Action: "login",
		Timestamp: later,
	}))
	// An explicitly earlier timestamp for the same user is clamped
	// forward.
	require.NoError(t, log.Record(audit.Event{
		UserID: "user-1", Category: audit.CategoryAuth, Action: "logout",
		Timestamp: clock.Now(),
	}))

	events := log.Query(audit.Filter{UserID: "user-1"})
	require.Len(t, events, 2)
	require.Equal(t, events[0].Timestamp, events[1].Timestamp)
}

func TestQueryNewestFirst(t *testing.T) {
	log, clock := newTestLog(100)

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record(authEvent(fmt.Sprintf("user-%d", i), "1.2.3.4", true)))
		clock.Advance(time.Minute)
	}

	events := log.Query(audit.Filter{})
	require.Len(t, events, 5)
	for i := 1; i < len(events); i++ {
		require.False(t, events[i].Timestamp.After(events[i-1].Timestamp))
	}
	require.Equal(t, "user-4", events[0].UserID)
	require.Equal(t, "user-0", events[4].UserID)
}

func TestQueryFilters(t *testing.T) {
	log, clock := newTestLog(100)

	require.NoError(t, log.Record(audit.Event{
		UserID: "user-1", CompanyID: "company-1", Category: audit.CategoryAuth,
		Action: "login", Success: true,
	}))
	clock.Advance(time.Minute)
	require.NoError(t, log.Record(audit.Event{
		UserID: "user-2", CompanyID: "company-1", Category: audit.CategorySecurity,
		Action: "account_locked", Severity: audit.SeverityHigh,
		ErrorMessage: "failed login threshold reached",
	}))
	clock.Advance(time.Minute)
	require.NoError(t, log.Record(audit.Event{
		UserID: "user-1", CompanyID: "company-2", Category: audit.CategoryToken,
		Action: "token_issued", Resource: "session",
	}))

	require.Len(t, log.Query(audit.Filter{UserID: "user-1"}), 2)
	require.Len(t, log.Query(audit.Filter{CompanyID: "company-1"}), 2)
	require.Len(t, log.Query(audit.Filter{Category: audit.CategorySecurity}), 1)
	require.Len(t, log.Query(audit.Filter{Severity: audit.SeverityHigh}), 1)
	require.Len(t, log.Query(audit.Filter{Resource: "session"}), 1)
	require.Len(t, log.Query(audit.Filter{UserID: "user-1", Category: audit.CategoryAuth}), 1)

	// Search spans action, resource, and error message.
	require.Len(t, log.Query(audit.Filter{Search: "THRESHOLD"}), 1)
	require.Len(t, log.Query(audit.Filter{Search: "token"}), 1)
	require.Empty(t, log.Query(audit.Filter{Search: "no such thing"}))

	// Time bounds.
	mid := time.Unix(1700000000, 0).Add(30 * time.Second)
	require.Len(t, log.Query(audit.Filter{From: mid}), 2)
	require.Len(t, log.Query(audit.Filter{To: mid}), 1)
}

func TestQueryPagination(t *testing.T) {
	log, clock := newTestLog(100)

	for i := 0; i < 10; i++ {
		require.NoError(t, log.Record(authEvent(fmt.Sprintf("user-%d", i), "1.2.3.4", true)))
		clock.Advance(time.Minute)
	}

	page := log.Query(audit.Filter{Offset: 2, Limit: 3})
	require.Len(t, page, 3)
	require.Equal(t, "user-7", page[0].UserID)
	require.Equal(t, "user-5", page[2].UserID)

	require.Empty(t, log.Query(audit.Filter{Offset: 50}))
	require.Len(t, log.Query(audit.Filter{Limit: 100}), 10)
}

func TestBatchEviction(t *testing.T) {
	log, clock := newTestLog(100)

	for i := 0; i < 100; i++ {
		require.NoError(t, log.Record(authEvent(fmt.Sprintf("user-%03d", i), "1.2.3.4", true)))
		clock.Advance(time.Second)
	}
	require.Equal(t, 100, log.Len())

	// The write that crosses the cap drops the oldest fifth in one
	// batch.
	require.NoError(t, log.Record(authEvent("user-100", "1.2.3.4", true)))
	require.Equal(t, 81, log.Len())

	events := log.Query(audit.Filter{})
	require.Equal(t, "user-100", events[0].UserID)
	require.Equal(t, "user-020", events[len(events)-1].UserID)
}

func TestEvictOverflowIsNoOpUnderCap(t *testing.T) {
	log, _ := newTestLog(100)

	require.NoError(t, log.Record(authEvent("user-1", "1.2.3.4", true)))
	require.Zero(t, log.EvictOverflow())
	require.Equal(t, 1, log.Len())
}

func TestSummarize(t *testing.T) {
	log, clock := newTestLog(1000)

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Record(authEvent("user-1", "1.2.3.4", true)))
		clock.Advance(time.Second)
	}
	require.NoError(t, log.Record(authEvent("user-2", "1.2.3.4", false)))
	require.NoError(t, log.Record(audit.Event{
		UserID: "user-2", Category: audit.CategorySecurity, Action: "account_locked",
		Severity: audit.SeverityHigh,
	}))

	s := log.Summarize()
	require.Equal(t, 5, s.Total)
	require.Equal(t, 4, s.ByCategory[audit.CategoryAuth])
	require.Equal(t, 1, s.ByCategory[audit.CategorySecurity])
	require.Equal(t, 4, s.BySeverity[audit.SeverityLow])
	require.Equal(t, 1, s.BySeverity[audit.SeverityHigh])

	require.Equal(t, []audit.ActorCount{{ID: "user-1", Count: 3}, {ID: "user-2", Count: 2}}, s.TopUsers)
	require.Equal(t, []audit.ActorCount{{ID: "login", Count: 4}, {ID: "account_locked", Count: 1}}, s.TopActions)

	require.Len(t, s.Recent, 5)
	require.Equal(t, "account_locked", s.Recent[0].Action)
}

func TestDetectAnomalies(t *testing.T) {
	log, clock := newTestLog(10000, audit.WithAnomalyThresholds(audit.AnomalyThresholds{
		EventsPerUser:     50,
		FailedAuthPerUser: 10,
		EventsPerIP:       100,
		FailedLoginsPerIP: 20,
	}))

	// Old failures fall outside the 24h window.
	for i := 0; i < 15; i++ {
		require.NoError(t, log.Record(authEvent("user-old", "8.8.8.8", false)))
	}
	clock.Advance(25 * time.Hour)

	// user-1 trips the failed-auth rule from one address; the same
	// address stays under its own failed-login rule.
	for i := 0; i < 11; i++ {
		require.NoError(t, log.Record(authEvent("user-1", "1.2.3.4", false)))
	}

	anomalies := log.DetectAnomalies()
	require.Len(t, anomalies, 1)
	require.Equal(t, audit.AnomalyCredentialStuffing, anomalies[0].Kind)
	require.Equal(t, "user-1", anomalies[0].Subject)
	require.Equal(t, 11, anomalies[0].Count)
	require.Equal(t, 10, anomalies[0].Threshold)
}

func TestDetectAnomaliesIPRules(t *testing.T) {
	log, _ := newTestLog(10000, audit.WithAnomalyThresholds(audit.AnomalyThresholds{
		EventsPerUser:     1000,
		FailedAuthPerUser: 1000,
		EventsPerIP:       1000,
		FailedLoginsPerIP: 20,
	}))

	// Failures spread across users so no per-user rule fires, but the
	// source address crosses its failed-login threshold.
	for i := 0; i < 21; i++ {
		require.NoError(t, log.Record(authEvent(fmt.Sprintf("user-%d", i), "9.9.9.9", false)))
	}

	anomalies := log.DetectAnomalies()
	require.Len(t, anomalies, 1)
	require.Equal(t, audit.AnomalyIPFailedLogins, anomalies[0].Kind)
	require.Equal(t, "9.9.9.9", anomalies[0].Subject)
}

// recordingSink captures fanned-out events and write failures.
type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	closed bool
}

func (s *recordingSink) Write(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestSinkFanOutPreservesPerUserOrder(t *testing.T) {
	sink := &recordingSink{}
	log := audit.NewLog(10000, audit.WithSink(sink))

	const writers, perWriter = 8, 50
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perWriter; j++ {
				_ = log.Record(authEvent("user-1", "1.2.3.4", true))
			}
		}()
	}
	close(start)
	wg.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, writers*perWriter)
	for i := 1; i < len(sink.events); i++ {
		require.False(t, sink.events[i].Timestamp.Before(sink.events[i-1].Timestamp),
			"sink received events out of order at index %d", i)
	}
}

func TestSinkFanOutAndClose(t *testing.T) {
	sink := &recordingSink{}
	log, _ := newTestLog(100, audit.WithSink(sink))

	require.NoError(t, log.Record(authEvent("user-1", "1.2.3.4", true)))
	require.NoError(t, log.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	require.Equal(t, "login", sink.events[0].Action)
	require.True(t, sink.closed)
}
