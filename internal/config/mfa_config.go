package config

import "time"

type MFAConfig interface {
	GetTOTPIssuer() string
	GetBackupCodeCount() int
	GetBackupCodeLength() int
	GetSpentCodeRetention() time.Duration
}

type MFA struct{}

var _ MFAConfig = MFA{}

func (MFA) GetTOTPIssuer() string {
	return GetEnv("TOTP_ISSUER", "IdentityCore")
}

func (MFA) GetBackupCodeCount() int {
	return GetEnvInt("BACKUP_CODE_COUNT", 10)
}

// GetBackupCodeLength is in hex characters.
func (MFA) GetBackupCodeLength() int {
	return GetEnvInt("BACKUP_CODE_LENGTH", 8)
}

// GetSpentCodeRetention is how long consumed backup codes stay in the
// spent ledger before the weekly trim drops them.
func (MFA) GetSpentCodeRetention() time.Duration {
	return GetEnvDuration("SPENT_CODE_RETENTION", 365*24*time.Hour)
}
