package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/AltairaLabs/voicebarista/runtime/audio"
	"github.com/AltairaLabs/voicebarista/runtime/config"
	promexport "github.com/AltairaLabs/voicebarista/runtime/metrics/prometheus"
	"github.com/AltairaLabs/voicebarista/runtime/orderstore"
	"github.com/AltairaLabs/voicebarista/runtime/providers/mock"
	"github.com/AltairaLabs/voicebarista/runtime/telemetry"
	"github.com/AltairaLabs/voicebarista/runtime/worker"
)

const readHeaderTimeout = 10 * time.Second

// runServe is replaced in tests.
var runServe = serve

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve voice sessions over websockets",
		Long: `Serve voice ordering sessions. Clients connect to /session?room=NAME,
stream 16-bit PCM as binary messages and receive the agent's speech back.
Prometheus metrics are served separately on the metrics address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cmd, cfg))
		},
	}

	cmd.Flags().String("addr", "", "Session listen address (default from config)")
	cmd.Flags().String("metrics-addr", "", "Metrics listen address (default from config)")
	cmd.Flags().Int("max-sessions", 0, "Maximum concurrent sessions (default from config)")
	cmd.Flags().String("script", "", "Mock provider conversation script (YAML)")
	cmd.Flags().String("redis-addr", "", "Redis address for the redis store")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP traces endpoint")

	for _, name := range []string{"addr", "metrics-addr", "max-sessions", "script", "redis-addr", "otlp-endpoint"} {
		_ = v.BindPFlag(flagKey(name), cmd.Flags().Lookup(name))
	}
	return cmd
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// serve runs the worker until ctx is cancelled, then drains sessions.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	vad, err := audio.LoadSimpleVADModel(cfg.VAD)
	if err != nil {
		return fmt.Errorf("loading vad model: %w", err)
	}

	store, err := orderstore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening order store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing order store", "error", err)
		}
	}()

	providers, err := mockProviders(cfg.Providers, cfg.VAD)
	if err != nil {
		return err
	}

	w, err := worker.New(cfg.Worker(), worker.Options{
		VAD:       vad,
		Store:     store,
		Providers: providers,
		Tracer:    telemetry.Tracer(tp),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	var exporter *promexport.Exporter
	if cfg.Server.MetricsAddr != "" {
		exporter = promexport.NewExporter(cfg.Server.MetricsAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving sessions", "addr", cfg.Server.Addr, "store", store.Backend(),
			"max_sessions", cfg.Server.MaxSessions)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if exporter != nil {
		g.Go(func() error {
			log.Info("serving metrics", "addr", cfg.Server.MetricsAddr)
			if err := exporter.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "active_sessions", w.Active())

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		errs := []error{srv.Shutdown(sctx), w.Shutdown(sctx)}
		if exporter != nil {
			errs = append(errs, exporter.Shutdown(sctx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// mockProviders builds a factory handing each session fresh scripted
// providers.
func mockProviders(cfg config.ProvidersConfig, vad audio.VADParams) (worker.ProviderFactory, error) {
	script := mock.DefaultScript()
	if cfg.Script != "" {
		var err error
		if script, err = mock.LoadScript(cfg.Script); err != nil {
			return nil, err
		}
	}
	return func(context.Context, string) (worker.Providers, error) {
		return worker.Providers{
			Engine: mock.NewEngine(script.Engine),
			STT:    mock.NewSTT(script.STT, vad),
			TTS:    mock.NewTTS(script.TTS),
			EOT:    mock.NewEOTModel(script.EOT),
		}, nil
	}, nil
}
