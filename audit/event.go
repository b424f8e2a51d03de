package audit

import "time"

// Category groups events by the subsystem that produced them.
type Category string

const (
	CategoryAuth          Category = "authentication"
	CategoryAuthorization Category = "authorization"
	CategoryToken         Category = "token"
	CategorySecurity      Category = "security"
	CategoryMFA           Category = "mfa"
	CategoryAdmin         Category = "admin"
)

// Severity classifies how much attention an event deserves.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a single immutable audit record. OldValues/NewValues carry
// before/after snapshots for mutating admin actions; both are flat
// string maps rather than open-ended payloads so sinks can rely on the
// shape.
type Event struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	CompanyID    string            `json:"companyId,omitempty"`
	SessionID    string            `json:"sessionId,omitempty"`
	Category     Category          `json:"category"`
	Action       string            `json:"action"`
	Resource     string            `json:"resource,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	OldValues    map[string]string `json:"oldValues,omitempty"`
	NewValues    map[string]string `json:"newValues,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	RiskScore    int               `json:"riskScore"`
	Severity     Severity          `json:"severity"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Recorder is the write-side contract the other components depend on.
// Data flows one way: producers record, they never read back.
type Recorder interface {
	Record(event Event) error
}
