// Package config loads application configuration from the environment,
// the way cmd/tarsy's main.go does: an optional .env file plus getEnv-style
// fallbacks, never a YAML registry.
package config

import "time"

// Config is the ready-to-use application configuration returned by
// Initialize. Every field is one spec §6 names or an orchestrator tuning
// knob; of the knobs, only OrchestratorConcurrency is passed on to the run
// orchestrator.
type Config struct {
	// DatabaseURL addresses the entity store. The store itself is an
	// in-memory transactional key-value store (see pkg/store); this field
	// exists because spec §6 names it as application configuration, and is
	// otherwise informational.
	DatabaseURL string

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	APIHost string
	APIPort int

	// OrchestratorConcurrency bounds how many (candidate, scenario)
	// evaluation pairs the run orchestrator dispatches at once.
	OrchestratorConcurrency int

	// AgentTimeout is loaded, validated and reported by Stats; the gateway
	// does not apply it to agent invocations.
	AgentTimeout time.Duration

	// DefaultMaxRuntimeSeconds is loaded and validated; neither preflight
	// normalization nor the run orchestrator reads it.
	DefaultMaxRuntimeSeconds int
}

// Stats summarizes the loaded configuration for the health check endpoint,
// mirroring cmd/tarsy's ConfigStats-on-/health pattern.
type Stats struct {
	LogLevel     string
	APIPort      int
	Concurrency  int
	AgentTimeout time.Duration
}

func (c *Config) Stats() Stats {
	return Stats{
		LogLevel:     c.LogLevel,
		APIPort:      c.APIPort,
		Concurrency:  c.OrchestratorConcurrency,
		AgentTimeout: c.AgentTimeout,
	}
}
