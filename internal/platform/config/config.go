// Package config builds runtime configuration from the environment so main
// stays lean. Empty infrastructure URLs mean "run on the in-memory
// implementation", which keeps local development dependency-free.
package config

import (
	"os"
	"strings"
	"time"
)

// Server captures the process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// PostgresDSN selects the durable entry store and outbox; empty runs
	// in-memory.
	PostgresDSN string

	// Redis backs the correlation table when configured.
	Redis RedisConfig

	// KafkaBrokers and KafkaTopic enable the broker notification sink.
	KafkaBrokers []string
	KafkaTopic   string

	// OracleURL points at the external decryption oracle; empty runs the
	// in-process simulator.
	OracleURL string

	RevealTTL     time.Duration
	SweepInterval time.Duration
}

// RedisConfig carries connection tuning for the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("VEILSCREEN_ADDR")
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
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "veilscreen.notifications"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		OracleURL:     os.Getenv("ORACLE_URL"),
		RevealTTL:     durationEnv("REVEAL_TTL", 10*time.Minute),
		SweepInterval: durationEnv("SWEEP_INTERVAL", time.Minute),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
