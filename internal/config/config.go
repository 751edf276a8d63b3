package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string // empty -> in-memory stores
	RedisAddr    string
	KafkaBrokers []string
	ServiceName  string

	ReservationTTL     time.Duration
	SweepInterval      time.Duration
	DisputeWindow      time.Duration
	PayoutHold         time.Duration
	DefaultTakeRateBps int
}

func Load() Config {
	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ServiceName:  getenv("SERVICE_NAME", "marketplace-api"),

		ReservationTTL:     getdur("RESERVATION_TTL", 10*time.Minute),
		SweepInterval:      getdur("SWEEP_INTERVAL", time.Minute),
		DisputeWindow:      getdur("DISPUTE_WINDOW", 14*24*time.Hour),
		PayoutHold:         getdur("PAYOUT_HOLD", 7*24*time.Hour),
		DefaultTakeRateBps: getint("TAKE_RATE_BPS", 600),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
