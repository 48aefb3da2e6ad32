// Package config loads the barista process configuration.
//
// One Config is built per process, from defaults overlaid with a YAML file,
// and passed by reference to everything that needs it. Durations are Go
// duration strings ("250ms", "6s").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
	"github.com/AltairaLabs/voicebarista/runtime/session"
	"github.com/AltairaLabs/voicebarista/runtime/telemetry"
	"github.com/AltairaLabs/voicebarista/runtime/transport"
	"github.com/AltairaLabs/voicebarista/runtime/worker"
)

// Provider kinds.
const (
	ProviderMock = "mock"
)

// Defaults for ServerConfig.
const (
	DefaultAddr            = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultServiceName     = "voicebarista"
)

// Config is the whole process configuration.
type Config struct {
	Logging   logger.Config     `yaml:"logging"`
	Server    ServerConfig      `yaml:"server"`
	Session   session.Config    `yaml:"session"`
	VAD       audio.VADParams   `yaml:"vad"`
	Transport transport.Config  `yaml:"transport"`
	Store     orderstore.Config `yaml:"store"`
	Telemetry telemetry.Config  `yaml:"telemetry"`
	Providers ProvidersConfig   `yaml:"providers"`
}

// ServerConfig configures the listening endpoints and session admission.
type ServerConfig struct {
	// Addr serves websocket sessions.
	Addr string `yaml:"addr"`

	// MetricsAddr serves /metrics. Empty disables the exporter.
	MetricsAddr string `yaml:"metrics_addr"`

	MaxSessions      int           `yaml:"max_sessions"`
	AdmissionTimeout time.Duration `yaml:"admission_timeout"`

	// ShutdownTimeout bounds how long running sessions get to finish.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the speech and language providers.
type ProvidersConfig struct {
	// Kind is the provider family. Only "mock" ships with this module.
	Kind string `yaml:"kind"`

	// Script is a mock conversation script. Empty uses the built-in one.
	Script string `yaml:"script"`
}

// Default returns the configuration of the production agent: preemptive
// generation and text pacing on, orders appended to orders.json.
func Default() *Config {
	return &Config{
		Logging: logger.Config{Level: "info", Format: logger.FormatText},
		Server: ServerConfig{
			Addr:             DefaultAddr,
			MetricsAddr:      DefaultMetricsAddr,
			MaxSessions:      worker.DefaultMaxSessions,
			AdmissionTimeout: worker.DefaultAdmissionTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
		},
		Session:   session.DefaultConfig(),
		VAD:       audio.DefaultVADParams(),
		Transport: transport.DefaultConfig(),
		Store:     orderstore.DefaultConfig(),
		Telemetry: telemetry.Config{ServiceName: DefaultServiceName},
		Providers: ProvidersConfig{Kind: ProviderMock},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected so a typo does not silently fall back to a default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Worker returns the worker configuration derived from c.
func (c *Config) Worker() worker.Config {
	return worker.Config{
		MaxSessions:      c.Server.MaxSessions,
		AdmissionTimeout: c.Server.AdmissionTimeout,
		Session:          c.Session,
		Transport:        c.Transport,
	}
}
