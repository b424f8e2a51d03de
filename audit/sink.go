package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Sink receives every recorded event. Implementations must tolerate
// concurrent writes; a failing sink never fails the audit write itself.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// ZerologSink mirrors audit events onto a structured logger.
type ZerologSink struct {
	logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Write(_ context.Context, event Event) error {
	logEvent := s.logger.Info()
	switch event.Severity {
	case SeverityHigh:
		logEvent = s.logger.Warn()
	case SeverityCritical:
		logEvent = s.logger.Error()
	}
	logEvent.
		Str("audit_id", event.ID).
		Str("category", string(event.Category)).
		Str("action", event.Action).
		Str("user_id", event.UserID).
		Str("ip", event.IPAddress).
		Bool("success", event.Success).
		Int("risk_score", event.RiskScore).
		Time("at", event.Timestamp)
	if event.ErrorMessage != "" {
		logEvent = logEvent.Str("error", event.ErrorMessage)
	}
	logEvent.Msg("audit event")
	return nil
}

func (s *ZerologSink) Close() error {
	return nil
}
