package config

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return newValidationError("database_url", ErrMissingRequiredField)
	}
	if !validLogLevels[cfg.LogLevel] {
		return newValidationError("log_level", ErrInvalidValue)
	}
	if cfg.APIHost == "" {
		return newValidationError("api_host", ErrMissingRequiredField)
	}
	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		return newValidationError("api_port", ErrInvalidValue)
	}
	if cfg.OrchestratorConcurrency < 1 {
		return newValidationError("orchestrator_concurrency", ErrInvalidValue)
	}
	if cfg.AgentTimeout <= 0 {
		return newValidationError("agent_timeout", ErrInvalidValue)
	}
	if cfg.DefaultMaxRuntimeSeconds < 1 {
		return newValidationError("default_max_runtime_seconds", ErrInvalidValue)
	}
	return nil
}
