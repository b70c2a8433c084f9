package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string
	// OperatorPasswordHash is a bcrypt hash; the matching password unlocks the
	// operator endpoints (manual batch trigger, intake API).
	OperatorPasswordHash string
	HTTPAddr             string
	// SettleInterval is the period of the background batch runner.
	SettleInterval time.Duration
	// SettleMaxAttempts and SettleRetryBase bound the in-pass retry of
	// transient settlement errors.
	SettleMaxAttempts int
	SettleRetryBase   time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		KafkaBrokers:         []string{os.Getenv("KAFKA_BROKER")},
		JWTSecret:            os.Getenv("JWT_SECRET"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		HTTPAddr:             os.Getenv("HTTP_ADDR"),
		SettleInterval:       durationEnv("SETTLE_INTERVAL", 30*time.Second),
		SettleMaxAttempts:    intEnv("SETTLE_MAX_ATTEMPTS", 3),
		SettleRetryBase:      durationEnv("SETTLE_RETRY_BASE", 100*time.Millisecond),
	}

	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=settlement sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 1 && cfg.KafkaBrokers[0] == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	slog.Info("config loaded",
		"postgres_dsn", cfg.PostgresDSN,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"settle_interval", cfg.SettleInterval,
		"settle_max_attempts", cfg.SettleMaxAttempts)
	return cfg
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("invalid int env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
