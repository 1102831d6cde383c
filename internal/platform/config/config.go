package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything cmd/server needs to wire the service.
type Config struct {
	Addr           string
	DatabaseURL    string
	AdminToken     string
	DefaultCountry string
	EntityTypes    []string

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig controls the optional view cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ViewTTL      time.Duration
}

// KafkaConfig controls the optional change-event stream. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
// DatabaseURL is deliberately allowed to be empty here; main treats it as a
// fatal configuration error so the failure is reported once, at startup.
func FromEnv() Config {
	return Config{
		Addr:           envOr("PHONES_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("PHONES_DATABASE_URL"),
		AdminToken:     os.Getenv("PHONES_ADMIN_TOKEN"),
		DefaultCountry: envOr("PHONES_DEFAULT_COUNTRY", "RU"),
		EntityTypes:    splitList(os.Getenv("PHONES_ENTITY_TYPES")),
		Redis: RedisConfig{
			URL:          os.Getenv("PHONES_REDIS_URL"),
			PoolSize:     envIntOr("PHONES_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("PHONES_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("PHONES_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("PHONES_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("PHONES_REDIS_WRITE_TIMEOUT", 3*time.Second),
			ViewTTL:      envDurationOr("PHONES_VIEW_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("PHONES_KAFKA_BROKERS")),
			Topic:   envOr("PHONES_KAFKA_TOPIC", "phones.change"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
