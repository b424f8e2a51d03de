package config

type Config interface {
	EnvConfig
	TokenConfig
	SecurityConfig
	MFAConfig
	AuditConfig
}

type mainConfig struct {
	EnvVars
	Token
	Security
	MFA
	Audit
}

func New() Config {
	return mainConfig{}
}
