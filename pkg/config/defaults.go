package config

import "time"

// Defaults for fields spec §6 leaves unset. Mirrors the teacher's
// config.Defaults pattern: constants applied when an environment variable
// is absent, never silently overriding an explicit value.
const (
	DefaultDatabaseURL  = "memory://local"
	DefaultLogLevel     = "info"
	DefaultAPIHost      = "0.0.0.0"
	DefaultAPIPort      = 8080
	DefaultConcurrency  = 4
	DefaultAgentTimeout = 30 * time.Second
	DefaultMaxRuntimeS  = 300
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}
