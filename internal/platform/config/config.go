package config

import (
	"os"
	"strings"
	"time"
)

// Server captures the runtime configuration for the verification service.
// The JWT signing key is injected from here so the token service never
// reaches into process-global state.
type Server struct {
	Addr          string
	JWTSigningKey string

	// RequestTTL bounds how long a verification request can dangle before
	// approval or consumption. The short window is itself a security
	// control: it limits the replay surface even before consumption
	// tracking kicks in.
	RequestTTL     time.Duration
	ProofTokenTTL  time.Duration
	AccessTokenTTL time.Duration

	PostgresURL string
	Redis       RedisConfig

	KafkaBrokers []string
	AuditTopic   string
}

// RedisConfig holds connection settings for the optional Redis-backed
// request store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TRUSTLESSID_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}
	auditTopic := os.Getenv("AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "trustlessid.audit"
	}

	return Server{
		Addr:           addr,
		JWTSigningKey:  jwtSigningKey,
		RequestTTL:     2 * time.Minute,
		ProofTokenTTL:  2 * time.Minute,
		AccessTokenTTL: 7 * 24 * time.Hour,
		PostgresURL:    os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		AuditTopic:   auditTopic,
	}
}
