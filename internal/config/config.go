package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Token          string
	ApplicationID  string
	DiscordGuildID string
	CommandsFile   string
	SyncInterval   time.Duration
	WorkerPoolSize int
	AlwaysPatch    bool
	MetricsAddr    string
	DatabaseURL    string
	ValkeyAddr     string
	LockTTL        time.Duration
	LogLevel       string
	LogFormat      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	token := readSecret("discord_token")
	if token == "" {
		token = os.Getenv("DISCORD_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not set (via secret or env var)")
	}

	dbURL := readSecret("database_url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}

	cfg := &Config{
		Token:          token,
		ApplicationID:  envString("DISCORD_APPLICATION_ID", ""),
		DiscordGuildID: envString("DISCORD_GUILD_ID", ""),
		CommandsFile:   envString("COMMANDS_FILE", "commands.yaml"),
		SyncInterval:   envDuration("SYNC_INTERVAL", 5*time.Minute),
		WorkerPoolSize: envInt("WORKER_POOL_SIZE", 4),
		AlwaysPatch:    envBool("ALWAYS_PATCH", false),
		MetricsAddr:    envString("METRICS_ADDR", ":2112"),
		DatabaseURL:    dbURL,
		ValkeyAddr:     envString("VALKEY_ADDR", ""),
		LockTTL:        envDuration("LOCK_TTL", time.Minute),
		LogLevel:       envString("LOG_LEVEL", "info"),
		LogFormat:      envString("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var secretsDir = "/run/secrets/"

func readSecret(name string) string {
	data, err := os.ReadFile(secretsDir + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
