// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/warden"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/internal/config"
	"github.com/blinklabs-io/warden/internal/secret"
	"github.com/blinklabs-io/warden/platform"
	"github.com/blinklabs-io/warden/platform/discord"
	"github.com/blinklabs-io/warden/platform/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ErrNoDiscordToken = errors.New(
	"no discord token configured: set discordToken, discordTokenFile or WARDEN_DISCORD_TOKEN",
)

// DiscordToken returns the configured bot token, reading it from the token
// file when one is set
func DiscordToken(cfg *config.Config) (string, error) {
	if cfg.DiscordToken != "" {
		return cfg.DiscordToken, nil
	}
	if cfg.DiscordTokenFile != "" {
		token, err := secret.Token(cfg.DiscordTokenFile)
		if err != nil {
			return "", fmt.Errorf("reading discord token file: %w", err)
		}
		return token, nil
	}
	return "", ErrNoDiscordToken
}

// PlatformFunc selects the chat platform for cfg. Dev mode uses an in-memory
// platform with no guilds so the API can be exercised without a bot token
func PlatformFunc(cfg *config.Config, logger *slog.Logger) (warden.PlatformFunc, error) {
	if cfg.Dev {
		logger.Warn(
			"running in dev mode with an in-memory platform",
			"component", "node",
		)
		return func(eb *event.EventBus) (platform.Platform, error) {
			return memory.New(eb), nil
		}, nil
	}
	token, err := DiscordToken(cfg)
	if err != nil {
		return nil, err
	}
	return func(eb *event.EventBus) (platform.Platform, error) {
		d, err := discord.New(discord.Config{
			EventBus: eb,
			Logger:   logger,
			Token:    token,
		})
		if err != nil {
			return nil, err
		}
		return d, nil
	}, nil
}

// Options converts the loaded config into warden options
func Options(cfg *config.Config, logger *slog.Logger) ([]warden.ConfigOptionFunc, error) {
	reconcileInterval, err := cfg.ReconcileIntervalDuration()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	platformFunc, err := PlatformFunc(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []warden.ConfigOptionFunc{
		warden.WithLogger(logger),
		warden.WithStorePlugin(cfg.StorePlugin),
		warden.WithPlatform(platformFunc),
		warden.WithReconcileInterval(reconcileInterval),
		warden.WithReconcileWorkers(cfg.ReconcileWorkers),
		warden.WithRepairRoles(cfg.RepairRoles),
		warden.WithCORSOrigins(cfg.CorsOrigins...),
		warden.WithShutdownTimeout(shutdownTimeout),
		// Enable metrics with default prometheus registry
		warden.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		warden.WithTracing(cfg.Tracing),
		warden.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			warden.WithAPIListenAddress(
				fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort),
			),
		)
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(
		fmt.Sprintf("config: %+v", redacted(cfg)),
		"component", "node",
	)
	opts, err := Options(cfg, logger)
	if err != nil {
		return err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	w, err := warden.New(warden.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "node",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "node",
				)
			}
		}()
	}
	shutdownMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Run(signalCtx)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownMetrics()
		if err := w.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		shutdownMetrics()
		if stopErr := w.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during cleanup",
				"error",
				stopErr,
			)
			err = errors.Join(err, stopErr)
		}
		if err != nil {
			logger.Error("warden error", "error", err)
			return err
		}
		logger.Info("warden stopped")
		return nil
	}
}

// redacted returns a copy of cfg that is safe to log
func redacted(cfg *config.Config) config.Config {
	ret := *cfg
	if ret.DiscordToken != "" {
		ret.DiscordToken = "REDACTED"
	}
	return ret
}
