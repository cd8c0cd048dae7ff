package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var ErrMissingPassphrase = errors.New("ENCRYPTION_PASSPHRASE is not set")

type Config struct {
	Port         string
	StoreDriver  string
	DatabaseURL  string
	RedisURL     string
	Passphrase   string
	JWTSecret    string
	TokenTTL     time.Duration
	HistoryLimit int
	EditWindow   time.Duration
	LogLevel     string
	LogFormat    string
	Timezone     *time.Location
}

// LoadEnv подхватывает .env.local, затем .env. Переменные окружения важнее
func LoadEnv() {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			logrus.Debug(".env not found, using environment variables")
		}
	}
}

func Load() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		StoreDriver:  getenv("STORE_DRIVER", DriverPostgres),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		Passphrase:   os.Getenv("ENCRYPTION_PASSPHRASE"),
		JWTSecret:    getenv("JWT_SECRET", "cipherchat-dev-secret"),
		TokenTTL:     getenvDuration("TOKEN_TTL", 24*time.Hour),
		HistoryLimit: getenvInt("HISTORY_LIMIT", 50),
		EditWindow:   getenvDuration("EDIT_WINDOW", 5*time.Minute),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "text"),
		Timezone:     time.Local,
	}

	if cfg.Passphrase == "" {
		return Config{}, ErrMissingPassphrase
	}

	switch cfg.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
		cfg.Timezone = loc
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
