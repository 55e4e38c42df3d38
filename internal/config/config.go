package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	CORSOrigins   string
	LogLevel      string

	SubmitTimeout      time.Duration
	DraftTTL           time.Duration
	CacheTTL           time.Duration
	GatewayDelay       time.Duration
	GatewaySuccessRate float64
	FinanceLatency     time.Duration
	FinanceFailureRate float64
}

// Load reads configuration from environment variables, after loading a .env
// file when one exists. Malformed values fall back to their default.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:          stringEnv("NFC_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CORSOrigins:   stringEnv("CORS_ORIGINS", "*"),
		LogLevel:      stringEnv("LOG_LEVEL", "info"),

		SubmitTimeout:      durationEnv("SUBMIT_TIMEOUT", 10*time.Second),
		DraftTTL:           durationEnv("DRAFT_TTL", 24*time.Hour),
		CacheTTL:           durationEnv("CACHE_TTL", time.Minute),
		GatewayDelay:       durationEnv("GATEWAY_DELAY", 1500*time.Millisecond),
		GatewaySuccessRate: rateEnv("GATEWAY_SUCCESS_RATE", 0.9),
		FinanceLatency:     durationEnv("FINANCE_LATENCY", 300*time.Millisecond),
		FinanceFailureRate: rateEnv("FINANCE_FAILURE_RATE", 0.1),
	}
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

// rateEnv reads a probability in [0, 1].
func rateEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		slog.Warn("invalid rate, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}
