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

// Package rejoin restores the mute role when a muted member rejoins a guild.
package rejoin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type GuardConfig struct {
	Store        store.Store
	Platform     platform.Capabilities
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Guard re-applies the mute role to members with an active mute when they
// join a guild
type Guard struct {
	config     GuardConfig
	reapplied  prometheus.Counter
	ctx        context.Context
	subId      event.EventSubscriberId
	subscribed bool
	mu         sync.Mutex
}

func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Store == nil {
		return nil, errors.New("a store is required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("a platform is required")
	}
	if cfg.EventBus == nil {
		return nil, errors.New("an event bus is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "rejoin")
	g := &Guard{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		g.reapplied = promauto.With(cfg.PromRegistry).NewCounter(
			prometheus.CounterOpts{
				Name: "warden_rejoin_roles_reapplied_total",
				Help: "number of mute roles re-applied to rejoining members",
			},
		)
	}
	return g, nil
}

// Start subscribes to member join events. Joins are handled with ctx
func (g *Guard) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subscribed {
		return errors.New("rejoin guard already started")
	}
	g.ctx = ctx
	g.subId = g.config.EventBus.SubscribeFunc(
		event.MemberJoinEventType,
		g.handleJoinEvent,
	)
	g.subscribed = true
	return nil
}

func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.subscribed {
		return
	}
	g.config.EventBus.Unsubscribe(event.MemberJoinEventType, g.subId)
	g.subscribed = false
}

func (g *Guard) handleJoinEvent(evt event.Event) {
	e, ok := evt.Data.(event.MemberJoinEvent)
	if !ok {
		return
	}
	g.mu.Lock()
	ctx := g.ctx
	g.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := g.HandleJoin(ctx, e.GuildID, e.UserID); err != nil {
		g.config.Logger.Warn(
			"failed to restore mute role",
			"guild_id", e.GuildID,
			"user_id", e.UserID,
			"error", err,
		)
	}
}

// HandleJoin re-applies the mute role if the member has an active mute and
// does not hold the role. It reports whether the role was added. Repeated
// calls are harmless.
func (g *Guard) HandleJoin(ctx context.Context, guildID, userID types.Snowflake) (bool, error) {
	mute, err := g.config.Store.FindActiveMute(ctx, userID, guildID)
	if err != nil {
		return false, fmt.Errorf("find active mute: %w", err)
	}
	if mute == nil {
		return false, nil
	}
	logger := g.config.Logger.With(
		"mute_id", mute.ID,
		"guild_id", guildID,
		"user_id", userID,
	)
	roleID, ok, err := g.config.Store.MuteRoleID(ctx, guildID)
	if err != nil {
		return false, fmt.Errorf("get mute role: %w", err)
	}
	if !ok {
		logger.Warn("muted member rejoined but no mute role is configured")
		return false, nil
	}
	member, err := g.config.Platform.Member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrMemberAbsent) {
			// Left again before we got to them
			return false, nil
		}
		return false, fmt.Errorf("get member: %w", err)
	}
	if member.HasRole(roleID) {
		return false, nil
	}
	res := g.config.Platform.AddRole(ctx, guildID, userID, roleID, mute.Reason)
	if !res.OK() {
		if res.NonFatal() {
			logger.Info("could not restore mute role", "result", res.String())
			return false, nil
		}
		return false, fmt.Errorf("add mute role (%s): %w", res.Outcome, res.Err)
	}
	if g.reapplied != nil {
		g.reapplied.Inc()
	}
	logger.Info("restored mute role for rejoining member")
	return true, nil
}
