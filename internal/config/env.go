// Package config loads the environment-variable surface of the sync core's
// binaries, with typed helpers that fall back to a default on unset or
// malformed values.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting the core binaries need.
type Config struct {
	ChannelEndpointURL string
	LogChannel         string

	SchemaCacheEnabled bool
	SchemaCacheTTL     time.Duration

	StrictValidation  bool
	DatabaseBacked    bool

	NATSURL     string
	AMQPURL     string
	PostgresDSN string
	MySQLDSN    string

	HTTPAddr string

	QueueConcurrency map[string]int
}

// FromEnv builds a Config from the process environment.
func FromEnv() Config {
	return Config{
		ChannelEndpointURL: EnvOrDefault("HTNG_CHANNEL_ENDPOINT", ""),
		LogChannel:         EnvOrDefault("HTNG_LOG_CHANNEL", "htngsync"),
		SchemaCacheEnabled: EnvBool("HTNG_SCHEMA_CACHE_ENABLED", true),
		SchemaCacheTTL:     EnvDuration("HTNG_SCHEMA_CACHE_TTL", 3600*time.Second),
		StrictValidation:   EnvBool("HTNG_STRICT_VALIDATION", true),
		DatabaseBacked:     EnvBool("HTNG_DATABASE_VALIDATION", true),
		NATSURL:            EnvOrDefault("NATS_URL", "nats://localhost:4222"),
		AMQPURL:            EnvOrDefault("AMQP_URL", ""),
		PostgresDSN:        EnvOrDefault("POSTGRES_DSN", "host=localhost port=5432 user=htng password=htng dbname=htngsync sslmode=disable"),
		MySQLDSN:           EnvOrDefault("MYSQL_DSN", ""),
		HTTPAddr:           EnvOrDefault("HTTP_ADDR", ":8443"),
		QueueConcurrency: map[string]int{
			"high":         EnvInt("HTNG_QUEUE_HIGH_CONCURRENCY", 5),
			"outbound":     EnvInt("HTNG_QUEUE_OUTBOUND_CONCURRENCY", 10),
			"inbound-work": EnvInt("HTNG_QUEUE_INBOUND_WORK_CONCURRENCY", 8),
			"low":          EnvInt("HTNG_QUEUE_LOW_CONCURRENCY", 3),
		},
	}
}

// EnvOrDefault returns the environment variable key, or def when unset/empty.
func EnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvDuration parses a duration from key, defaulting to def on parse error.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

// EnvBool parses a boolean from key, defaulting to def on parse error.
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return b
}

// EnvInt parses an int from key, defaulting to def on parse error.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}
