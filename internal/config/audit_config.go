package config

type AuditConfig interface {
	GetAuditRetentionCap() int
	GetAnomalyEventsPerUser() int
	GetAnomalyFailedAuthPerUser() int
	GetAnomalyEventsPerIP() int
	GetAnomalyFailedLoginsPerIP() int
}

type Audit struct{}

var _ AuditConfig = Audit{}

func (Audit) GetAuditRetentionCap() int {
	return GetEnvInt("AUDIT_RETENTION_CAP", 50000)
}

// Anomaly thresholds are policy knobs, not invariants; they apply over a
// trailing 24 hour window.

func (Audit) GetAnomalyEventsPerUser() int {
	return GetEnvInt("ANOMALY_EVENTS_PER_USER", 1000)
}

func (Audit) GetAnomalyFailedAuthPerUser() int {
	return GetEnvInt("ANOMALY_FAILED_AUTH_PER_USER", 10)
}

func (Audit) GetAnomalyEventsPerIP() int {
	return GetEnvInt("ANOMALY_EVENTS_PER_IP", 2000)
}

func (Audit) GetAnomalyFailedLoginsPerIP() int {
	return GetEnvInt("ANOMALY_FAILED_LOGINS_PER_IP", 20)
}
