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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/api"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/mute"
	"github.com/blinklabs-io/warden/platform"
	"github.com/blinklabs-io/warden/reconcile"
	"github.com/blinklabs-io/warden/rejoin"
)

// Warden runs the mute lifecycle for a set of guilds: the manager behind the
// API, the reconciler that ends expired mutes and the guard that re-applies
// roles on rejoin
type Warden struct {
	store         store.Store
	platform      platform.Platform
	eventBus      *event.EventBus
	manager       *mute.Manager
	reconciler    *reconcile.Reconciler
	guard         *rejoin.Guard
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	ready         chan struct{}
	done          chan struct{}
	mu            sync.Mutex
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Warden, error) {
	if cfg.clock == nil {
		cfg.clock = clock.New()
	}
	w := &Warden{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := w.configValidate(); err != nil {
		w.eventBus.Stop()
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return w, nil
}

func (w *Warden) configValidate() error {
	if w.config.platformFunc == nil {
		return errors.New("no platform configured")
	}
	if w.config.storePlugin == "" {
		return errors.New("no store plugin configured")
	}
	if w.config.reconcileInterval <= 0 {
		return fmt.Errorf(
			"invalid reconcile interval: %s",
			w.config.reconcileInterval,
		)
	}
	if w.config.reconcileWorkers < 1 {
		return fmt.Errorf(
			"invalid reconcile worker count: %d",
			w.config.reconcileWorkers,
		)
	}
	return nil
}

// Run starts all components and blocks until ctx is done or Stop is called.
// Components started before a failure are left for Stop to shut down
func (w *Warden) Run(ctx context.Context) error {
	select {
	case <-w.done:
		return errors.New("warden already stopped")
	default:
	}
	if err := w.start(ctx); err != nil {
		return err
	}
	close(w.ready)
	select {
	case <-ctx.Done():
	case <-w.done:
	}
	return nil
}

func (w *Warden) start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	logger := w.config.logger
	// Configure tracing
	if w.config.tracing {
		if err := w.setupTracing(ctx); err != nil {
			return err
		}
	}
	// Load store
	s, err := store.New(w.config.storePlugin, logger)
	if err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start store: %w", err)
	}
	w.store = s
	// Chat platform
	p, err := w.config.platformFunc(w.eventBus)
	if err != nil {
		return fmt.Errorf("failed to create platform: %w", err)
	}
	w.platform = p
	// Lifecycle manager
	w.manager, err = mute.NewManager(mute.ManagerConfig{
		Store:        w.store,
		Platform:     w.platform,
		EventBus:     w.eventBus,
		Logger:       logger,
		PromRegistry: w.config.promRegistry,
		Clock:        w.config.clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create mute manager: %w", err)
	}
	// Rejoin guard subscribes before the platform starts delivering joins
	w.guard, err = rejoin.NewGuard(rejoin.GuardConfig{
		Store:        w.store,
		Platform:     w.platform,
		EventBus:     w.eventBus,
		Logger:       logger,
		PromRegistry: w.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to create rejoin guard: %w", err)
	}
	if err := w.guard.Start(ctx); err != nil {
		return fmt.Errorf("failed to start rejoin guard: %w", err)
	}
	if err := w.platform.Start(ctx); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	// Reconciler
	w.reconciler, err = reconcile.NewReconciler(reconcile.ReconcilerConfig{
		Store:        w.store,
		Platform:     w.platform,
		EventBus:     w.eventBus,
		Logger:       logger,
		PromRegistry: w.config.promRegistry,
		Clock:        w.config.clock,
		Interval:     w.config.reconcileInterval,
		Workers:      w.config.reconcileWorkers,
		RepairRoles:  w.config.repairRoles,
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}
	if err := w.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	// HTTP API
	if w.config.apiListenAddress != "" {
		w.api = api.NewServer(
			api.ServerConfig{
				ListenAddress:  w.config.apiListenAddress,
				AllowedOrigins: w.config.corsOrigins,
			},
			w.manager,
			logger,
		)
		if err := w.api.Start(ctx); err != nil {
			return err
		}
	}
	logger.Info(
		"warden started",
		"store", w.config.storePlugin,
		"reconcile_interval", w.config.reconcileInterval.String(),
	)
	return nil
}

// Ready is closed once Run has started every component
func (w *Warden) Ready() <-chan struct{} {
	return w.ready
}

// Manager returns the mute lifecycle manager, or nil before Run
func (w *Warden) Manager() *mute.Manager {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.manager
}

// APIAddr returns the bound API address, or nil when the API is not running
func (w *Warden) APIAddr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.api == nil {
		return nil
	}
	return w.api.Addr()
}

func (w *Warden) Stop() error {
	var err error
	w.shutdownOnce.Do(func() {
		err = w.shutdown()
	})
	return err
}

func (w *Warden) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if w.config.shutdownTimeout > 0 {
		shutdownTimeout = w.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	logger := w.config.logger
	var err error

	logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	logger.Debug("shutdown phase 1: stopping new work")
	if w.reconciler != nil {
		w.reconciler.Stop()
	}
	if w.api != nil {
		if stopErr := w.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Disconnect from the platform
	logger.Debug("shutdown phase 2: disconnecting platform")
	if w.guard != nil {
		w.guard.Stop()
	}
	if w.platform != nil {
		if stopErr := w.platform.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("platform shutdown: %w", stopErr))
		}
	}

	// Phase 3: Close the store
	logger.Debug("shutdown phase 3: closing store")
	if w.store != nil {
		if stopErr := w.store.Stop(); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("store shutdown: %w", stopErr))
		}
	}

	// Phase 4: Cleanup resources
	logger.Debug("shutdown phase 4: cleanup resources")
	for _, fn := range w.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	w.shutdownFuncs = nil
	if w.eventBus != nil {
		w.eventBus.Stop()
	}

	logger.Debug("graceful shutdown complete")
	close(w.done)
	return err
}
