package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

const minEncryptionKeyLen = 32

type Config struct {
	Port     string
	Env      string
	LogLevel string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	EncryptionKey string

	SlackClientID     string
	SlackClientSecret string
	SlackRedirectURI  string
	SlackAPIURL       string
	SlackTimeout      time.Duration
	SlackRatePerSec   float64

	SchedulerInterval time.Duration
	SchedulerWorkers  int
	SchedulerBatch    int

	RedisURL        string
	ChannelCacheTTL time.Duration

	NgrokAuthToken string
	FrontendURL    string
}

// LoadEnv loads variables from file (".env" when empty) unless running on
// Railway, where the platform injects them.
func LoadEnv(file string) {
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" {
		return
	}
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil {
		log.Warn().Str("file", file).Msg(".env file not loaded")
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func Load() Config {
	return Config{
		Port:     getenv("PORT", "8080"),
		Env:      getenv("APP_ENV", "dev"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", "postgres")),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SQLitePath:  getenv("SQLITE_PATH", "data/scheduler.db"),

		EncryptionKey: getenv("ENCRYPTION_KEY", ""),

		SlackClientID:     getenv("SLACK_CLIENT_ID", ""),
		SlackClientSecret: getenv("SLACK_CLIENT_SECRET", ""),
		SlackRedirectURI:  getenv("SLACK_REDIRECT_URI", ""),
		SlackAPIURL:       getenv("SLACK_API_URL", ""),
		SlackTimeout:      getDuration("SLACK_TIMEOUT", 10*time.Second),
		SlackRatePerSec:   getFloat("SLACK_RATE_PER_SEC", 1),

		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerWorkers:  getInt("SCHEDULER_WORKERS", 4),
		SchedulerBatch:    getInt("SCHEDULER_BATCH", 100),

		RedisURL:        getenv("REDIS_URL", ""),
		ChannelCacheTTL: getDuration("CHANNEL_CACHE_TTL", 5*time.Minute),

		NgrokAuthToken: getenv("NGROK_AUTHTOKEN", ""),
		FrontendURL:    getenv("FRONTEND_URL", "http://localhost:3000"),
	}
}

// Validate reports every configuration problem at once.
func Validate(cfg Config) error {
	var err error
	if cfg.Port == "" {
		err = multierr.Append(err, errors.New("PORT is required"))
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			err = multierr.Append(err, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			err = multierr.Append(err, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("STORE_DRIVER %q is not one of postgres, sqlite", cfg.StoreDriver))
	}
	if len(cfg.EncryptionKey) < minEncryptionKeyLen {
		err = multierr.Append(err, fmt.Errorf("ENCRYPTION_KEY must be at least %d characters", minEncryptionKeyLen))
	}
	if cfg.Env != "dev" {
		if cfg.SlackClientID == "" || cfg.SlackClientSecret == "" {
			err = multierr.Append(err, errors.New("SLACK_CLIENT_ID and SLACK_CLIENT_SECRET are required outside dev"))
		}
		if cfg.SlackRedirectURI == "" {
			err = multierr.Append(err, errors.New("SLACK_REDIRECT_URI is required outside dev"))
		}
	}
	return err
}
