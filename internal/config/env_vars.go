package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar      = "APP_NAME"
	envVar          = "ENV"
	redisAddrVar    = "REDIS_ADDR"
	kafkaBrokersVar = "KAFKA_BROKERS"
	kafkaTopicVar   = "KAFKA_AUDIT_TOPIC"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetRedisAddr() string
	GetKafkaBrokers() []string
	GetKafkaAuditTopic() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Identity Core")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

// GetRedisAddr returns the Redis address for the refresh token store.
// Empty means the in-memory store is used instead.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

// GetKafkaBrokers returns broker addresses for the audit sink.
// Empty means audit events are kept in-process only.
func (EnvVars) GetKafkaBrokers() []string {
	raw := GetEnv(kafkaBrokersVar, "")
	if raw == "" {
		return nil
	}
	brokers := strings.Split(raw, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}

func (EnvVars) GetKafkaAuditTopic() string {
	return GetEnv(kafkaTopicVar, "identity.audit")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
