// Package config loads runtime settings from the environment, with a .env
// file as a development convenience.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	// AgentURL is the voice-agent WebSocket endpoint.
	AgentURL string

	// HTTPPort serves health, diagnostics and metrics.
	HTTPPort string

	// SampleRate is the PCM sample rate of the agent's audio stream in Hz.
	SampleRate int

	// HistoryCapacity bounds the diagnostics event ring.
	HistoryCapacity int

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// SessionIdleTimeout closes message sessions with no activity.
	SessionIdleTimeout time.Duration

	// LogLevel is the minimum zap level (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		AgentURL:           getEnv("SWARA_AGENT_URL", "ws://localhost:8080/ws"),
		HTTPPort:           getEnv("PORT", "9090"),
		SampleRate:         24000,
		HistoryCapacity:    500,
		ConnectTimeout:     10 * time.Second,
		SessionIdleTimeout: 30 * time.Second,
		LogLevel:           getEnv("SWARA_LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SampleRate, err = getEnvInt("SWARA_SAMPLE_RATE", cfg.SampleRate); err != nil {
		return nil, err
	}
	if cfg.HistoryCapacity, err = getEnvInt("SWARA_HISTORY_CAPACITY", cfg.HistoryCapacity); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = getEnvDuration("SWARA_CONNECT_TIMEOUT", cfg.ConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getEnvDuration("SWARA_SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout); err != nil {
		return nil, err
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SWARA_SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
