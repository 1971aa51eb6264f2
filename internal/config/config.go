package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	Token             string
	Channel           int64 // reference channel for subscription checks
	ChannelInviteHash string
	Administrators    []int64

	// Database
	DatabasePath string

	// Workflow
	Cooldown   time.Duration
	SessionTTL time.Duration

	// Logging
	LogLevel string
}

// Load reads the configuration from the environment. Missing required
// values are reported as an error so startup can fail fast.
func Load() (*Config, error) {
	cfg := &Config{
		Token:             os.Getenv("TOKEN"),
		ChannelInviteHash: os.Getenv("CHANNEL_INVITE_HASH"),
		DatabasePath:      getEnv("DATABASE_PATH", "doggywatch.db"),
		Cooldown:          getEnvDuration("COOLDOWN", 30*time.Second),
		SessionTTL:        getEnvDuration("SESSION_TTL", 10*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("TOKEN env not set")
	}

	channel := os.Getenv("CHANNEL")
	if channel == "" {
		return nil, fmt.Errorf("CHANNEL env not set")
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("CHANNEL is not a chat id: %w", err)
	}
	cfg.Channel = id

	cfg.Administrators = parseIDList(os.Getenv("ADMINISTRATORS"))

	return cfg, nil
}

// parseIDList splits a comma-separated id list, skipping anything that
// does not parse.
func parseIDList(val string) []int64 {
	var ids []int64
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
