package security

import "time"

// EventType classifies a security event.
type EventType string

const (
	EventLoginSuccess        EventType = "login_success"
	EventLoginFailed         EventType = "login_failed"
	EventAccountLocked       EventType = "account_locked"
	EventAccountUnlocked     EventType = "account_unlocked"
	EventSuspiciousIPBlocked EventType = "suspicious_ip_blocked"
	EventSecurityViolation   EventType = "security_violation"
	EventDeviceRevoked       EventType = "device_revoked"
	EventTrustChanged        EventType = "trust_changed"
)

// Event is one immutable security observation for a user. The engine
// keeps a bounded per-user history of these to drive the time-windowed
// risk factors.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId,omitempty"`
	Type      EventType `json:"eventType"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	RiskScore int       `json:"riskScore"`
	Timestamp time.Time `json:"timestamp"`
}

// suspicious reports whether the event counts toward the
// suspicious-activity risk factor.
func (e Event) suspicious() bool {
	switch e.Type {
	case EventAccountLocked, EventSuspiciousIPBlocked, EventSecurityViolation:
		return true
	}
	return false
}
