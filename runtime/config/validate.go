package config

import (
	"fmt"
	"strings"

	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed with %d errors: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", logger.FormatJSON, logger.FormatText:
	default:
		add("logging.format: must be json or text, got %q", c.Logging.Format)
	}

	if c.Server.Addr == "" {
		add("server.addr: required")
	}
	if c.Server.MaxSessions < 0 {
		add("server.max_sessions: must not be negative")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout: must not be negative")
	}

	if err := c.VAD.Validate(); err != nil {
		add("vad: %v", err)
	}
	if err := c.Session.Turn.Validate(); err != nil {
		add("session.turn: %v", err)
	}
	if c.Session.SampleRate < 0 {
		add("session.sample_rate: must not be negative")
	}

	switch c.Store.Backend {
	case "", orderstore.BackendFile:
		if c.Store.Path == "" {
			add("store.path: required for the file backend")
		}
	case orderstore.BackendRedis:
		if c.Store.Redis.Addr == "" {
			add("store.redis.addr: required for the redis backend")
		}
	case orderstore.BackendMemory:
	default:
		add("store.backend: unknown backend %q", c.Store.Backend)
	}

	if c.Providers.Kind != ProviderMock {
		add("providers.kind: unsupported provider %q", c.Providers.Kind)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
