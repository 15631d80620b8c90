package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation constants define acceptable bounds for configuration values
const (
	// Token validation
	minTokenLength = 50 // Discord tokens are typically 50+ characters

	// SyncInterval validation
	minSyncInterval = 30 * time.Second
	maxSyncInterval = 24 * time.Hour

	// WorkerPoolSize validation
	minWorkerPoolSize = 1
	maxWorkerPoolSize = 50 // Discord rate limits make more pointless

	// LockTTL validation
	minLockTTL = 5 * time.Second
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks if the configuration values are valid and within acceptable ranges.
// It returns all validation errors at once using errors.Join.
//
// Validated fields:
//   - Token: at least 50 characters
//   - ApplicationID, DiscordGuildID: numeric snowflakes when set
//   - CommandsFile: .yaml, .yml or .toml
//   - SyncInterval: between 30s and 24h
//   - WorkerPoolSize: between 1 and 50
//   - LockTTL: at least 5s
//   - LogLevel, LogFormat: known values
func (c *Config) Validate() error {
	var errs []error

	if err := c.validateToken(); err != nil {
		errs = append(errs, err)
	}

	if err := validateSnowflake("DISCORD_APPLICATION_ID", c.ApplicationID); err != nil {
		errs = append(errs, err)
	}

	if err := validateSnowflake("DISCORD_GUILD_ID", c.DiscordGuildID); err != nil {
		errs = append(errs, err)
	}

	if err := c.validateCommandsFile(); err != nil {
		errs = append(errs, err)
	}

	if err := c.validateSyncInterval(); err != nil {
		errs = append(errs, err)
	}

	if err := c.validateWorkerPoolSize(); err != nil {
		errs = append(errs, err)
	}

	if c.LockTTL < minLockTTL {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be at least %v, got %v", minLockTTL, c.LockTTL))
	}

	if err := validateOneOf("LOG_LEVEL", c.LogLevel, logLevels); err != nil {
		errs = append(errs, err)
	}

	if err := validateOneOf("LOG_FORMAT", c.LogFormat, logFormats); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  %w", errors.Join(errs...))
	}

	return nil
}

// validateToken ensures the Discord token is present and has valid length
func (c *Config) validateToken() error {
	if c.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required but not set")
	}

	if len(c.Token) < minTokenLength {
		return fmt.Errorf(
			"DISCORD_TOKEN appears invalid (too short: %d chars, expected %d+)",
			len(c.Token), minTokenLength,
		)
	}

	return nil
}

func (c *Config) validateCommandsFile() error {
	if c.CommandsFile == "" {
		return fmt.Errorf("COMMANDS_FILE is required")
	}

	lower := strings.ToLower(c.CommandsFile)
	for _, ext := range []string{".yaml", ".yml", ".toml"} {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	return fmt.Errorf("COMMANDS_FILE must be a .yaml, .yml or .toml file, got %q", c.CommandsFile)
}

func (c *Config) validateSyncInterval() error {
	if c.SyncInterval < minSyncInterval {
		return fmt.Errorf(
			"SYNC_INTERVAL must be at least %v to stay clear of rate limits, got %v",
			minSyncInterval, c.SyncInterval,
		)
	}

	if c.SyncInterval > maxSyncInterval {
		return fmt.Errorf("SYNC_INTERVAL must be at most %v, got %v", maxSyncInterval, c.SyncInterval)
	}

	return nil
}

func (c *Config) validateWorkerPoolSize() error {
	if c.WorkerPoolSize < minWorkerPoolSize {
		return fmt.Errorf("WORKER_POOL_SIZE must be at least %d, got %d", minWorkerPoolSize, c.WorkerPoolSize)
	}

	if c.WorkerPoolSize > maxWorkerPoolSize {
		return fmt.Errorf(
			"WORKER_POOL_SIZE must be at most %d, got %d (hint: recommended range is 2-8)",
			maxWorkerPoolSize, c.WorkerPoolSize,
		)
	}

	return nil
}

func validateSnowflake(key, value string) error {
	if value == "" {
		return nil
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return fmt.Errorf("%s must be a numeric id, got %q", key, value)
		}
	}
	return nil
}

func validateOneOf(key, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
