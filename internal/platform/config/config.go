// Package config builds server configuration from environment variables
// so main stays lean. Artifact content itself is loaded elsewhere; this
// package only decides where to load from and which backends to wire.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "calibra/pkg/platform/strings"
)

// Defaults for the audit pipeline. Buffer and sample rate only apply
// when the async emit path is enabled.
const (
	DefaultAuditBuffer     = 1024
	DefaultAuditSampleRate = 1.0
)

// Server captures everything cmd/server needs to come up.
type Server struct {
	Addr          string
	ArtifactsDir  string
	GovernanceKey string

	AuditBackend    string
	AuditBrokers    []string
	AuditAsync      bool
	AuditBuffer     int
	AuditSampleRate float64

	Redis       RedisConfig
	PostgresURL string

	LogLevel string
	LogJSON  bool
}

// RedisConfig tunes the shared Redis client. An empty URL means Redis is
// not configured; the client constructor returns nil in that case.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
//
//	CALIBRA_ADDR            listen address, default ":8080"
//	CALIBRA_ARTIFACTS_DIR   directory with the five artifact files, default "testdata/artifacts"
//	CALIBRA_GOVERNANCE_KEY  HMAC key for catalog signature verification (optional)
//	CALIBRA_AUDIT_BACKEND   memory | redis | postgres, default "memory"
//	CALIBRA_AUDIT_BROKERS   comma-separated Kafka brokers, empty disables the sink
//	CALIBRA_AUDIT_ASYNC     "true" buffers audit writes off the request path
//	CALIBRA_AUDIT_BUFFER    async buffer capacity
//	CALIBRA_AUDIT_SAMPLE    operations-event sample rate in [0,1]
//	REDIS_URL               redis connection URL (audit backend "redis")
//	DATABASE_URL            postgres DSN (audit backend "postgres")
//	CALIBRA_LOG_LEVEL       debug | info | warn | error, default "info"
//	CALIBRA_LOG_JSON        "true" switches the log handler to JSON
func FromEnv() Server {
	return Server{
		Addr:          envOr("CALIBRA_ADDR", ":8080"),
		ArtifactsDir:  envOr("CALIBRA_ARTIFACTS_DIR", "testdata/artifacts"),
		GovernanceKey: os.Getenv("CALIBRA_GOVERNANCE_KEY"),

		AuditBackend:    strings.ToLower(envOr("CALIBRA_AUDIT_BACKEND", "memory")),
		AuditBrokers:    platformstrings.SplitAndDedupe(os.Getenv("CALIBRA_AUDIT_BROKERS")),
		AuditAsync:      os.Getenv("CALIBRA_AUDIT_ASYNC") == "true",
		AuditBuffer:     envInt("CALIBRA_AUDIT_BUFFER", DefaultAuditBuffer),
		AuditSampleRate: envFloat("CALIBRA_AUDIT_SAMPLE", DefaultAuditSampleRate),

		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		PostgresURL: os.Getenv("DATABASE_URL"),

		LogLevel: envOr("CALIBRA_LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("CALIBRA_LOG_JSON") == "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}
