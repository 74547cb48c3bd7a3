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


package warden

import (
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
	"github.com/blinklabs-io/warden/reconcile"
	"github.com/prometheus/client_golang/prometheus"
)

// PlatformFunc builds the chat platform once the event bus exists, so the
// platform can publish membership events on it
type PlatformFunc func(*event.EventBus) (platform.Platform, error)

type Config struct {
	promRegistry      prometheus.Registerer
	logger            *slog.Logger
	clock             clock.Clock
	platformFunc      PlatformFunc
	storePlugin       string
	apiListenAddress  string
	corsOrigins       []string
	reconcileInterval time.Duration
	reconcileWorkers  int
	shutdownTimeout   time.Duration
	repairRoles       bool
	tracing           bool
	tracingStdout     bool
}

type ConfigOptionFunc func(*Config)

// NewConfig creates a new warden config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		storePlugin:       store.DefaultPlugin,
		reconcileInterval: reconcile.DefaultInterval,
		reconcileWorkers:  reconcile.DefaultWorkers,
		repairRoles:       true,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. The default discards all output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithStorePlugin selects the store plugin by name. The default is sqlite
func WithStorePlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.storePlugin = plugin
	}
}

// WithPlatform specifies how to build the chat platform. It is required
func WithPlatform(fn PlatformFunc) ConfigOptionFunc {
	return func(c *Config) {
		c.platformFunc = fn
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithClock overrides the wall clock used for mute start times and expiry
func WithClock(clk clock.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clk
	}
}

// WithReconcileInterval sets how often expired mutes are swept
func WithReconcileInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.reconcileInterval = interval
	}
}

// WithReconcileWorkers bounds the records processed concurrently per sweep
func WithReconcileWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.reconcileWorkers = workers
	}
}

// WithRepairRoles toggles re-applying the mute role to present members whose
// active mute lost it
func WithRepairRoles(repair bool) ConfigOptionFunc {
	return func(c *Config) {
		c.repairRoles = repair
	}
}

// WithAPIListenAddress specifies the listen address for the HTTP API. An empty
// address disables it
func WithAPIListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithCORSOrigins allows browser clients from the given origins to use the API
func WithCORSOrigins(origins ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.corsOrigins = origins
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
