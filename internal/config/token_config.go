package config

import "time"

type TokenConfig interface {
	GetAccessTokenExpiry() time.Duration
	GetRememberMeAccessExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRememberMeRefreshExpiry() time.Duration
	GetRenewalWindow() time.Duration
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
}

type Token struct{}

var _ TokenConfig = Token{}

func (Token) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
}

func (Token) GetRememberMeAccessExpiry() time.Duration {
	return GetEnvDuration("REMEMBER_ME_ACCESS_EXPIRY", 24*time.Hour)
}

func (Token) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour)
}

func (Token) GetRememberMeRefreshExpiry() time.Duration {
	return GetEnvDuration("REMEMBER_ME_REFRESH_EXPIRY", 30*24*time.Hour)
}

// GetRenewalWindow is how close to expiry an access token may be before
// validation flags it for a soft renew.
func (Token) GetRenewalWindow() time.Duration {
	return 5 * time.Minute
}

func (Token) GetAccessTokenSecret() string {
	return GetEnv("ACCESS_TOKEN_SECRET", "dev-access-secret-change-me")
}

func (Token) GetRefreshTokenSecret() string {
	return GetEnv("REFRESH_TOKEN_SECRET", "dev-refresh-secret-change-me")
}
