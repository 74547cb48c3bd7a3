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

// Package reconcile periodically expires due mutes and keeps the platform
// mute role aligned with the stored mute records.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/mute"
	"github.com/blinklabs-io/warden/platform"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultWorkers  = 8
)

type ReconcilerConfig struct {
	Store        store.Store
	Platform     platform.Capabilities
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Clock        clock.Clock
	Interval     time.Duration
	// Workers bounds the number of records processed concurrently in a tick
	Workers int
	// RepairRoles re-applies the mute role to present members with an active
	// mute that is not yet due
	RepairRoles bool
}

// Reconciler runs the periodic sweep. Each sweep is a tick; a tick that is
// due while the previous one is still running is skipped.
type Reconciler struct {
	config  ReconcilerConfig
	metrics *reconcilerMetrics
	ticker  *clock.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex
}

// TickResult summarizes one tick. Failed counts records that hit a role or
// store failure
type TickResult struct {
	Active   int
	Expired  int
	Repaired int
	Failed   int
	Skipped  bool
}

func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errors.New("a store is required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("a platform is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	cfg.Logger = cfg.Logger.With("component", "reconcile")
	r := &Reconciler{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		r.initMetrics()
	}
	return r, nil
}

// Start begins ticking at the configured interval. Ticks run with ctx
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticker != nil {
		return errors.New("reconciler already started")
	}
	ticker := r.config.Clock.Ticker(r.config.Interval)
	stopCh := make(chan struct{})
	r.ticker = ticker
	r.stopCh = stopCh
	r.wg.Add(1)
	go func(t *clock.Ticker, stop <-chan struct{}) {
		defer r.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-t.C:
				// Check stop first so no tick starts during shutdown
				select {
				case <-stop:
					return
				default:
				}
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					if _, err := r.Tick(ctx); err != nil {
						r.config.Logger.Error("reconcile tick failed", "error", err)
					}
				}()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}(ticker, stopCh)
	r.config.Logger.Info(
		"reconciler started",
		"interval", r.config.Interval.String(),
		"workers", r.config.Workers,
	)
	return nil
}

// Stop prevents new ticks and waits for a running tick to finish
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.ticker == nil {
		r.mu.Unlock()
		return
	}
	r.ticker.Stop()
	close(r.stopCh)
	r.ticker = nil
	r.stopCh = nil
	r.mu.Unlock()
	r.wg.Wait()
	r.config.Logger.Info("reconciler stopped")
}

// Tick runs a single sweep over all active mutes. It returns a skipped
// result if another tick is in progress.
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		if r.metrics != nil {
			r.metrics.ticksSkipped.Inc()
		}
		r.config.Logger.Debug("previous tick still running, skipping")
		return TickResult{Skipped: true}, nil
	}
	defer r.running.Store(false)
	start := time.Now()
	now := r.config.Clock.Now()
	mutes, err := r.config.Store.ListMutes(ctx, models.MuteFilter{ActiveOnly: true})
	if err != nil {
		if r.metrics != nil {
			r.metrics.tickErrors.Inc()
		}
		return TickResult{}, fmt.Errorf("list active mutes: %w", err)
	}
	roles := r.muteRoles(ctx, mutes)
	res := &tickState{result: TickResult{Active: len(mutes)}}
	var g errgroup.Group
	g.SetLimit(r.config.Workers)
	for i := range mutes {
		m := &mutes[i]
		due := m.Due(now)
		if !due && !r.config.RepairRoles {
			continue
		}
		role, hasRole := roles[m.GuildID]
		g.Go(func() error {
			r.processRecord(ctx, m, due, role, hasRole, res)
			return nil
		})
	}
	// Records never return errors
	_ = g.Wait()
	if r.metrics != nil {
		r.metrics.ticks.Inc()
		r.metrics.activeMutes.Set(float64(len(mutes) - res.result.Expired))
		r.metrics.tickDuration.Observe(time.Since(start).Seconds())
	}
	if res.result.Expired > 0 || res.result.Repaired > 0 || res.result.Failed > 0 {
		r.config.Logger.Info(
			"reconcile tick finished",
			"active", res.result.Active,
			"expired", res.result.Expired,
			"repaired", res.result.Repaired,
			"failed", res.result.Failed,
		)
	}
	return res.result, nil
}

type tickState struct {
	result TickResult
	mu     sync.Mutex
}

func (s *tickState) add(fn func(*TickResult)) {
	s.mu.Lock()
	fn(&s.result)
	s.mu.Unlock()
}

// muteRoles looks up the mute role of every guild with an active mute
func (r *Reconciler) muteRoles(ctx context.Context, mutes []models.Mute) map[types.Snowflake]types.Snowflake {
	ret := make(map[types.Snowflake]types.Snowflake)
	seen := make(map[types.Snowflake]bool)
	for _, m := range mutes {
		if seen[m.GuildID] {
			continue
		}
		seen[m.GuildID] = true
		roleID, ok, err := r.config.Store.MuteRoleID(ctx, m.GuildID)
		if err != nil {
			r.config.Logger.Warn(
				"failed to look up mute role",
				"guild_id", m.GuildID,
				"error", err,
			)
			continue
		}
		if ok {
			ret[m.GuildID] = roleID
		}
	}
	return ret
}

func (r *Reconciler) processRecord(
	ctx context.Context,
	m *models.Mute,
	due bool,
	roleID types.Snowflake,
	hasRole bool,
	state *tickState,
) {
	logger := r.config.Logger.With(
		"mute_id", m.ID,
		"guild_id", m.GuildID,
		"user_id", m.UserID,
	)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic while reconciling mute", "panic", rec)
			r.recordFailed(state)
		}
	}()
	if !due {
		if hasRole && r.repair(ctx, logger, m, roleID) {
			state.add(func(res *TickResult) { res.Repaired++ })
			if r.metrics != nil {
				r.metrics.rolesRepaired.Inc()
			}
		}
		return
	}
	roleRemoved := r.removeRole(ctx, logger, m, roleID, hasRole)
	if err := r.config.Store.Deactivate(ctx, m.ID); err != nil {
		if errors.Is(err, types.ErrMuteNotFound) || errors.Is(err, types.ErrMuteNotActive) {
			// Deleted or unmuted since the listing
			logger.Debug("mute ended before expiry")
			return
		}
		logger.Error("failed to deactivate mute", "error", err)
		r.recordFailed(state)
		return
	}
	m.SetActive(false)
	state.add(func(res *TickResult) {
		res.Expired++
		if !roleRemoved {
			res.Failed++
		}
	})
	if r.metrics != nil {
		r.metrics.mutesExpired.Inc()
		if !roleRemoved {
			r.metrics.recordFailures.Inc()
		}
	}
	if r.config.EventBus != nil {
		r.config.EventBus.Publish(
			event.MuteEndedEventType,
			event.NewEvent(
				event.MuteEndedEventType,
				event.MuteEndedEvent{Reason: event.MuteEndExpired, Mute: *m},
			),
		)
	}
	logger.Info("mute expired")
	text := mute.UnmutedMessage(r.guildName(ctx, m.GuildID))
	if err := r.config.Platform.SendDirectMessage(ctx, m.UserID, text); err != nil {
		logger.Debug("failed to send direct message", "error", err)
	}
}

// removeRole removes the mute role from a present member. It returns false
// when the role may still be held
func (r *Reconciler) removeRole(
	ctx context.Context,
	logger *slog.Logger,
	m *models.Mute,
	roleID types.Snowflake,
	hasRole bool,
) bool {
	if !hasRole {
		logger.Warn("no mute role configured for guild, cannot remove role")
		return true
	}
	_, err := r.config.Platform.Member(ctx, m.GuildID, m.UserID)
	if errors.Is(err, platform.ErrMemberAbsent) {
		return true
	}
	if err != nil {
		logger.Warn("failed to look up member, removing role anyway", "error", err)
	}
	res := r.config.Platform.RemoveRole(ctx, m.GuildID, m.UserID, roleID, "mute expired")
	if res.OK() || res.NonFatal() {
		return true
	}
	logger.Warn(
		"failed to remove mute role, deactivating mute anyway",
		"result", res.String(),
	)
	return false
}

// repair re-applies the mute role to a present member who lacks it
func (r *Reconciler) repair(
	ctx context.Context,
	logger *slog.Logger,
	m *models.Mute,
	roleID types.Snowflake,
) bool {
	member, err := r.config.Platform.Member(ctx, m.GuildID, m.UserID)
	if err != nil {
		if !errors.Is(err, platform.ErrMemberAbsent) {
			logger.Warn("failed to look up member", "error", err)
		}
		return false
	}
	if member.HasRole(roleID) {
		return false
	}
	// The listing may be stale by now
	if !r.stillActive(ctx, logger, m.ID) {
		return false
	}
	res := r.config.Platform.AddRole(ctx, m.GuildID, m.UserID, roleID, m.Reason)
	if !res.OK() {
		logger.Warn("failed to repair mute role", "result", res.String())
		return false
	}
	if !r.stillActive(ctx, logger, m.ID) {
		// Ended while the role was being added
		res := r.config.Platform.RemoveRole(ctx, m.GuildID, m.UserID, roleID, "mute ended")
		if !res.OK() && !res.NonFatal() {
			logger.Warn("failed to revert repaired mute role", "result", res.String())
		}
		return false
	}
	logger.Info("repaired mute role")
	return true
}

// stillActive re-reads a mute record. Lookup failures count as inactive so
// that no role is applied without a confirmed active mute
func (r *Reconciler) stillActive(ctx context.Context, logger *slog.Logger, id uint) bool {
	m, err := r.config.Store.GetMute(ctx, id)
	if err != nil {
		if !errors.Is(err, types.ErrMuteNotFound) {
			logger.Warn("failed to re-read mute", "error", err)
		}
		return false
	}
	return m.Active
}

func (r *Reconciler) recordFailed(state *tickState) {
	state.add(func(res *TickResult) { res.Failed++ })
	if r.metrics != nil {
		r.metrics.recordFailures.Inc()
	}
}

func (r *Reconciler) guildName(ctx context.Context, guildID types.Snowflake) string {
	name, err := r.config.Platform.GuildName(ctx, guildID)
	if err != nil || name == "" {
		return guildID.String()
	}
	return name
}
