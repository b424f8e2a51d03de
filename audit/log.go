package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Log is the append-only in-process audit store. Writes are bounded by a
// hard retention cap; crossing it evicts the oldest 20% in one batch so
// steady-state appends do not thrash.
type Log struct {
	mu          sync.RWMutex
	events      []Event
	cap         int
	lastPerUser map[string]time.Time
	logger      zerolog.Logger
	nowFunc     func() time.Time
	thresholds  AnomalyThresholds

	// sinkMu sequences fan-out in append order without holding mu
	// across sink I/O; it is acquired before mu is released.
	sinkMu sync.Mutex
	sinks  []Sink
}

// AnomalyThresholds are the policy constants for the 24h anomaly sweep.
type AnomalyThresholds struct {
	EventsPerUser     int
	FailedAuthPerUser int
	EventsPerIP       int
	FailedLoginsPerIP int
}

// DefaultAnomalyThresholds returns the stock policy values.
func DefaultAnomalyThresholds() AnomalyThresholds {
	return AnomalyThresholds{
		EventsPerUser:     1000,
		FailedAuthPerUser: 10,
		EventsPerIP:       2000,
		FailedLoginsPerIP: 20,
	}
}

type LogOption func(*Log)

// WithSink adds a downstream sink; every recorded event is fanned out to
// it. Sink failures are logged and never fail the record.
func WithSink(sink Sink) LogOption {
	return func(l *Log) {
		l.sinks = append(l.sinks, sink)
	}
}

func WithLogger(logger zerolog.Logger) LogOption {
	return func(l *Log) {
		l.logger = logger
	}
}

func WithNowFunc(now func() time.Time) LogOption {
	return func(l *Log) {
		l.nowFunc = now
	}
}

func WithAnomalyThresholds(t AnomalyThresholds) LogOption {
	return func(l *Log) {
		l.thresholds = t
	}
}

// NewLog creates an audit log holding at most retentionCap events.
func NewLog(retentionCap int, opts ...LogOption) *Log {
	if retentionCap < 1 {
		retentionCap = 1
	}
	l := &Log{
		cap:         retentionCap,
		lastPerUser: make(map[string]time.Time),
		logger:      zerolog.Nop(),
		nowFunc:     func() time.Time { return NowTimeFunc() },
		thresholds:  DefaultAnomalyThresholds(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Recorder = (*Log)(nil)

// Record validates and appends an event. Category and Action are
// required; severity defaults to low. Timestamps are forced to be
// non-decreasing per user so readers can rely on per-user ordering.
func (l *Log) Record(event Event) error {
	if event.Category == "" {
		return fmt.Errorf("audit event requires a category")
	}
	if event.Action == "" {
		return fmt.Errorf("audit event requires an action")
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	l.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = l.nowFunc()
	}
	if event.UserID != "" {
		if last, ok := l.lastPerUser[event.UserID]; ok && event.Timestamp.Before(last) {
			event.Timestamp = last
		}
		l.lastPerUser[event.UserID] = event.Timestamp
	}

	l.events = append(l.events, event)
	if len(l.events) > l.cap {
		l.evictLocked()
	}
	// Taking sinkMu before releasing mu hands events to the sinks in
	// append order, so per-user ordering survives into them.
	l.sinkMu.Lock()
	l.mu.Unlock()
	defer l.sinkMu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Write(context.Background(), event); err != nil {
			l.logger.Warn().Err(err).Str("event", event.ID).Msg("audit sink write failed")
		}
	}
	return nil
}

// evictLocked drops the oldest fifth of the store in one batch.
func (l *Log) evictLocked() {
	drop := l.cap / 5
	if drop < 1 {
		drop = 1
	}
	remaining := len(l.events) - drop
	kept := make([]Event, remaining)
	copy(kept, l.events[drop:])
	l.events = kept
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// EvictOverflow forces a batch eviction if the store is over cap. The
// store already evicts on write; this exists for the periodic sweep so a
// lowered cap takes effect without waiting for the next append.
func (l *Log) EvictOverflow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.events)
	for len(l.events) > l.cap {
		l.evictLocked()
	}
	return before - len(l.events)
}

// Close flushes nothing (appends are synchronous) but closes all sinks
// once in-flight fan-out finishes.
func (l *Log) Close() error {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()

	var firstErr error
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
