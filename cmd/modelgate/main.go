// Package main is the entry point for the modelgate binary.
// It starts the HTTP gateway in front of the upstream model provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/modelgate/modelgate/internal/governance"
	"github.com/modelgate/modelgate/pkg/auth"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/gateway"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/policy"
	"github.com/modelgate/modelgate/pkg/prompt"
	"github.com/modelgate/modelgate/pkg/provider"
	"github.com/modelgate/modelgate/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for modelgate
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Authenticated gateway for LLM completions",
		Long: `modelgate terminates client authentication, applies per-source rate
limits, expands prompt templates, and forwards completions to an
OpenRouter-compatible provider with retries and backoff.

Example:
  modelgate --config config.yaml --listen :8080`,
		RunE:          runServer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().String("listen", "", "Listen address, overrides the configuration")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	return rootCmd
}

// loadConfig merges the config file, environment, and CLI flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	// Missing .env files are fine; explicit config errors are not.
	_ = godotenv.Load()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Address = listen
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// runServer is the main entry point for the gateway command
func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "modelgate",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	tokens := auth.NewTokenManager(cfg.Auth.SigningKey, cfg.Auth.TokenTTL.Std())
	backend := auth.NewResolver(logger).Resolve(cfg.Auth, tokens)

	prompts := prompt.NewRegistry(logger)
	if cfg.Prompts.Dir != "" {
		count, err := prompts.LoadDir(cfg.Prompts.Dir)
		if err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		logger.Info("prompts loaded", "dir", cfg.Prompts.Dir, "templates", count)

		if cfg.Prompts.Watch {
			watcher := prompt.NewWatcher(prompts, cfg.Prompts.Dir, 0, logger)
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("prompts watcher stopped", "error", err)
				}
			}()
		}
	}

	gate, err := policy.NewGate(ctx, cfg.Policy.Entrypoint, cfg.Policy.Modules)
	if err != nil {
		return fmt.Errorf("compile access policy: %w", err)
	}

	limiter := governance.NewSourceLimiter(governance.SourceLimiterConfig{
		Requests:         cfg.RateLimit.Requests,
		Window:           cfg.RateLimit.Window.Std(),
		TrustedAddresses: cfg.RateLimit.TrustedAddresses,
	})

	client := provider.NewClient(cfg.Provider, logger)
	metrics := gateway.NewMetrics()
	service := gateway.NewService(prompts, client, gate, metrics, logger)
	server := gateway.NewServer(service, backend, tokens, limiter, metrics, cfg.Server.CORS, cfg.Server.TrustedProxies, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      otelhttp.NewHandler(server.Handler(), "modelgate"),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"addr", cfg.Server.Address,
			"auth_backend", cfg.Auth.Backend,
			"provider", cfg.Provider.BaseURL,
			"version", gateway.Version,
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
			return err
		}
	}

	logger.Info("gateway stopped")
	return nil
}
