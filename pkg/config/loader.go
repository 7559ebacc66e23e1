package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, raw, ErrInvalidValue)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, raw, ErrInvalidValue)
	}
	return time.Duration(secs) * time.Second, nil
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point, mirroring cmd/tarsy/main.go's
// godotenv.Load(configDir/.env) + getEnv(key, default) sequence.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Info("no .env file found, using process environment", "path", envPath)
	} else {
		log.Info("loaded environment file", "path", envPath)
	}

	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"log_level", cfg.LogLevel,
		"api_port", cfg.APIPort,
		"orchestrator_concurrency", cfg.OrchestratorConcurrency)

	return cfg, nil
}

func load() (*Config, error) {
	apiPort, err := getEnvInt("API_PORT", DefaultAPIPort)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("ORCHESTRATOR_CONCURRENCY", DefaultConcurrency)
	if err != nil {
		return nil, err
	}
	agentTimeout, err := getEnvDuration("AGENT_TIMEOUT_SECONDS", DefaultAgentTimeout)
	if err != nil {
		return nil, err
	}
	maxRuntime, err := getEnvInt("DEFAULT_MAX_RUNTIME_SECONDS", DefaultMaxRuntimeS)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:              getEnv("DATABASE_URL", DefaultDatabaseURL),
		LogLevel:                 getEnv("LOG_LEVEL", DefaultLogLevel),
		APIHost:                  getEnv("API_HOST", DefaultAPIHost),
		APIPort:                  apiPort,
		OrchestratorConcurrency:  concurrency,
		AgentTimeout:             agentTimeout,
		DefaultMaxRuntimeSeconds: maxRuntime,
	}, nil
}
