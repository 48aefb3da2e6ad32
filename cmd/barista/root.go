package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AltairaLabs/voicebarista/runtime/config"
	"github.com/AltairaLabs/voicebarista/runtime/logger"
)

const (
	flagConfig    = "config"
	flagEnvFile   = "env-file"
	flagLogLevel  = "log-level"
	flagStorePath = "store-path"

	defaultConfigFile = "barista.yaml"
	defaultEnvFile    = ".env.local"
	envPrefix         = "BARISTA"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "barista",
		Short:         "Voice barista - takes coffee orders over a voice session",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(cmd)
		},
	}
	root.PersistentFlags().StringP(flagConfig, "c", defaultConfigFile, "Configuration file path")
	root.PersistentFlags().String(flagEnvFile, defaultEnvFile, "Environment file loaded before the configuration")
	root.PersistentFlags().String(flagLogLevel, "", "Override logging.level (debug, info, warn, error)")
	root.PersistentFlags().String(flagStorePath, "", "Override store.path, the JSON lines order log")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup(flagLogLevel))
	_ = v.BindPFlag("store_path", root.PersistentFlags().Lookup(flagStorePath))

	root.AddCommand(newServeCmd(v), newOrdersCmd(v))
	return root
}

// loadEnvFile loads KEY=VALUE pairs without overriding the real environment.
// A missing default file is fine; a missing explicit one is not.
func loadEnvFile(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString(flagEnvFile)
	if err != nil {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed(flagEnvFile) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration file and applies flag and BARISTA_*
// environment overrides. Without an explicit --config a missing default
// file means built-in defaults.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if _, statErr := os.Stat(path); statErr != nil && !cmd.Flags().Changed(flagConfig) {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}

	applyOverrides(cfg, v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if s := v.GetString("log_level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := v.GetString("addr"); s != "" {
		cfg.Server.Addr = s
	}
	if s := v.GetString("metrics_addr"); s != "" {
		cfg.Server.MetricsAddr = s
	}
	if n := v.GetInt("max_sessions"); n > 0 {
		cfg.Server.MaxSessions = n
	}
	if s := v.GetString("script"); s != "" {
		cfg.Providers.Script = s
	}
	if s := v.GetString("store_path"); s != "" {
		cfg.Store.Path = s
	}
	if s := v.GetString("redis_addr"); s != "" {
		cfg.Store.Redis.Addr = s
	}
	if s := v.GetString("otlp_endpoint"); s != "" {
		cfg.Telemetry.Endpoint = s
	}
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Logging, cmd.ErrOrStderr())
}
