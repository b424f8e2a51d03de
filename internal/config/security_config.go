package config

import "time"

type SecurityConfig interface {
	GetLockoutThreshold() int
	GetLockoutDuration() time.Duration
	GetSuspiciousIPUserThreshold() int
	GetRiskMFAThreshold() int
	GetSecurityEventCap() int
	GetStaleDeviceAge() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetLockoutThreshold is the failed-login count at which an account locks.
func (Security) GetLockoutThreshold() int {
	return GetEnvInt("LOCKOUT_THRESHOLD", 5)
}

func (Security) GetLockoutDuration() time.Duration {
	return GetEnvDuration("LOCKOUT_DURATION", 15*time.Minute)
}

// GetSuspiciousIPUserThreshold is how many distinct users must lock out
// from one IP before that IP is blocked outright.
func (Security) GetSuspiciousIPUserThreshold() int {
	return GetEnvInt("SUSPICIOUS_IP_USER_THRESHOLD", 3)
}

// GetRiskMFAThreshold is the risk score at or above which a second
// factor is demanded.
func (Security) GetRiskMFAThreshold() int {
	return GetEnvInt("RISK_MFA_THRESHOLD", 7)
}

// GetSecurityEventCap bounds the per-user security event history used
// for time-windowed risk factors.
func (Security) GetSecurityEventCap() int {
	return GetEnvInt("SECURITY_EVENT_CAP", 100)
}

func (Security) GetStaleDeviceAge() time.Duration {
	return GetEnvDuration("STALE_DEVICE_AGE", 90*24*time.Hour)
}
