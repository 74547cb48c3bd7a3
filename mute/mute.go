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

// Package mute implements the mute lifecycle: creating, ending and
// deleting mutes while keeping the platform mute role in step with the
// stored record.
package mute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
	"github.com/prometheus/client_golang/prometheus"
)

// HistoryLimit is the number of records returned by the "latest" listings
const HistoryLimit = 15

type ManagerConfig struct {
	Store        store.Store
	Platform     platform.Capabilities
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Clock        clock.Clock
}

type Manager struct {
	config  ManagerConfig
	metrics *managerMetrics
}

// MuteRequest describes a mute to issue
type MuteRequest struct {
	Reason      string
	Duration    time.Duration
	UserID      types.Snowflake
	GuildID     types.Snowflake
	ModeratorID types.Snowflake
}

type WarnRequest struct {
	Reason      string
	UserID      types.Snowflake
	GuildID     types.Snowflake
	ModeratorID types.Snowflake
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
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
	cfg.Logger = cfg.Logger.With("component", "mute")
	m := &Manager{
		config: cfg,
	}
	if cfg.PromRegistry != nil {
		m.initMetrics()
	}
	return m, nil
}

// Mute records a new active mute and applies the guild's mute role.
//
// A user with an active mute cannot be muted again until it ends. If the
// mute is recorded but the role cannot be applied, the mute is returned
// together with a *RoleApplyError; the record is kept and the role is
// repaired later.
func (m *Manager) Mute(ctx context.Context, req MuteRequest) (*models.Mute, error) {
	if req.Duration <= 0 {
		m.rejected("invalid_duration")
		return nil, ErrInvalidDuration
	}
	roleID, err := m.muteRole(ctx, req.GuildID)
	if err != nil {
		if errors.Is(err, ErrMuteRoleNotConfigured) {
			m.rejected("no_mute_role")
		}
		return nil, err
	}
	existing, err := m.config.Store.FindActiveMute(ctx, req.UserID, req.GuildID)
	if err != nil {
		return nil, fmt.Errorf("find active mute: %w", err)
	}
	if existing != nil {
		m.rejected("already_muted")
		return nil, ErrAlreadyMuted
	}
	mute, err := m.config.Store.CreateMute(
		ctx,
		models.MuteParams{
			Start:       m.config.Clock.Now(),
			Reason:      req.Reason,
			Duration:    req.Duration,
			UserID:      req.UserID,
			GuildID:     req.GuildID,
			ModeratorID: req.ModeratorID,
		},
	)
	if err != nil {
		// Lost a race with a concurrent mute for the same user
		if errors.Is(err, types.ErrActiveMuteExists) {
			m.rejected("already_muted")
			return nil, ErrAlreadyMuted
		}
		return nil, fmt.Errorf("create mute: %w", err)
	}
	if m.metrics != nil {
		m.metrics.mutesCreated.Inc()
	}
	m.publish(
		event.MuteCreatedEventType,
		event.MuteCreatedEvent{Mute: *mute},
	)
	logger := m.muteLogger(mute)
	logger.Info(
		"user muted",
		"moderator_id", mute.ModeratorID,
		"ends_at", mute.End,
	)
	var retErr error
	res := m.config.Platform.AddRole(ctx, mute.GuildID, mute.UserID, roleID, mute.Reason)
	if !res.OK() {
		logger.Warn("failed to apply mute role", "result", res.String())
		m.roleFailed(res)
		retErr = &RoleApplyError{Op: "apply", Result: res}
	}
	m.notify(
		ctx,
		mute.UserID,
		mutedMessage(m.guildName(ctx, mute.GuildID), mute.Duration(), mute.Reason),
	)
	return mute, retErr
}

// Unmute ends the user's active mute and removes the mute role. A member
// who already left the guild is not an error. Other role failures end the
// mute anyway and are returned as a *RoleApplyError alongside the mute.
func (m *Manager) Unmute(ctx context.Context, userID, guildID types.Snowflake) (*models.Mute, error) {
	mute, err := m.config.Store.FindActiveMute(ctx, userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("find active mute: %w", err)
	}
	if mute == nil {
		return nil, ErrNotMuted
	}
	roleID, err := m.muteRole(ctx, guildID)
	if err != nil {
		return nil, err
	}
	logger := m.muteLogger(mute)
	var retErr error
	res := m.config.Platform.RemoveRole(ctx, guildID, userID, roleID, "mute lifted")
	switch {
	case res.OK(), res.Outcome == platform.RoleMemberAbsent:
	default:
		logger.Warn("failed to remove mute role", "result", res.String())
		m.roleFailed(res)
		retErr = &RoleApplyError{Op: "remove", Result: res}
	}
	if err := m.config.Store.Deactivate(ctx, mute.ID); err != nil {
		if errors.Is(err, types.ErrMuteNotActive) || errors.Is(err, types.ErrMuteNotFound) {
			// Ended by the reconciler or deleted since the lookup
			logger.Debug("mute ended concurrently")
			return nil, ErrNotMuted
		}
		return nil, fmt.Errorf("deactivate mute: %w", err)
	}
	mute.SetActive(false)
	m.ended(event.MuteEndUnmuted, mute)
	logger.Info("user unmuted")
	m.notify(ctx, userID, UnmutedMessage(m.guildName(ctx, guildID)))
	return mute, retErr
}

// DeleteMute removes a mute record by id. If the mute is still active and
// the member is present, the mute role is removed first; role failures are
// logged and never prevent the delete.
func (m *Manager) DeleteMute(ctx context.Context, id uint) (*models.Mute, error) {
	mute, err := m.config.Store.GetMute(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := m.muteLogger(mute)
	if mute.Active {
		m.removeRoleIfPresent(ctx, logger, mute)
	}
	deleted, err := m.config.Store.DeleteMute(ctx, id)
	if err != nil {
		return nil, err
	}
	if deleted.Active {
		m.ended(event.MuteEndDeleted, deleted)
	}
	logger.Info("mute deleted")
	return deleted, nil
}

func (m *Manager) removeRoleIfPresent(ctx context.Context, logger *slog.Logger, mute *models.Mute) {
	roleID, ok, err := m.config.Store.MuteRoleID(ctx, mute.GuildID)
	if err != nil {
		logger.Warn("failed to look up mute role", "error", err)
		return
	}
	if !ok {
		return
	}
	member, err := m.config.Platform.Member(ctx, mute.GuildID, mute.UserID)
	if err != nil {
		if !errors.Is(err, platform.ErrMemberAbsent) {
			logger.Warn("failed to look up member", "error", err)
		}
		return
	}
	if !member.HasRole(roleID) {
		return
	}
	res := m.config.Platform.RemoveRole(ctx, mute.GuildID, mute.UserID, roleID, "mute deleted")
	if !res.OK() && !res.NonFatal() {
		logger.Warn("failed to remove mute role", "result", res.String())
		m.roleFailed(res)
	}
}

// ListMutes returns mutes matching the filter
func (m *Manager) ListMutes(ctx context.Context, filter models.MuteFilter) ([]models.Mute, error) {
	return m.config.Store.ListMutes(ctx, filter)
}

// UserMutes returns the latest mutes of a user in a guild, newest first
func (m *Manager) UserMutes(ctx context.Context, userID, guildID types.Snowflake) ([]models.Mute, error) {
	return m.config.Store.ListMutes(
		ctx,
		models.MuteFilter{
			GuildID:    &guildID,
			UserID:     &userID,
			Limit:      HistoryLimit,
			Descending: true,
		},
	)
}

// ActiveMutes returns all active mutes in a guild ordered by start time
func (m *Manager) ActiveMutes(ctx context.Context, guildID types.Snowflake) ([]models.Mute, error) {
	return m.config.Store.ListMutes(
		ctx,
		models.MuteFilter{
			GuildID:    &guildID,
			ActiveOnly: true,
		},
	)
}

// ActiveMute returns ErrNotMuted if the user has no active mute
func (m *Manager) ActiveMute(ctx context.Context, userID, guildID types.Snowflake) (*models.Mute, error) {
	mute, err := m.config.Store.FindActiveMute(ctx, userID, guildID)
	if err != nil {
		return nil, err
	}
	if mute == nil {
		return nil, ErrNotMuted
	}
	return mute, nil
}

// Warn records a warning and notifies the user
func (m *Manager) Warn(ctx context.Context, req WarnRequest) (*models.Warn, error) {
	warn := &models.Warn{
		Timestamp:   m.config.Clock.Now(),
		Reason:      req.Reason,
		UserID:      req.UserID,
		GuildID:     req.GuildID,
		ModeratorID: req.ModeratorID,
	}
	if err := m.config.Store.CreateWarn(ctx, warn); err != nil {
		return nil, fmt.Errorf("create warn: %w", err)
	}
	if m.metrics != nil {
		m.metrics.warnsCreated.Inc()
	}
	m.config.Logger.Info(
		"user warned",
		"warn_id", warn.ID,
		"guild_id", warn.GuildID,
		"user_id", warn.UserID,
		"moderator_id", warn.ModeratorID,
	)
	m.notify(ctx, req.UserID, warnedMessage(m.guildName(ctx, req.GuildID), req.Reason))
	return warn, nil
}

// Warns returns the latest warns of a user in a guild, newest first
func (m *Manager) Warns(ctx context.Context, userID, guildID types.Snowflake) ([]models.Warn, error) {
	return m.config.Store.ListWarns(ctx, guildID, userID, HistoryLimit)
}

func (m *Manager) Guild(ctx context.Context, guildID types.Snowflake) (*models.Guild, error) {
	return m.config.Store.GetGuild(ctx, guildID)
}

// SetMuteRole sets the guild's mute role. A nil role clears it
func (m *Manager) SetMuteRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error {
	return m.config.Store.SetMuteRole(ctx, guildID, roleID)
}

// SetModRole sets the guild's moderator role. A nil role clears it
func (m *Manager) SetModRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error {
	return m.config.Store.SetModRole(ctx, guildID, roleID)
}

func (m *Manager) muteRole(ctx context.Context, guildID types.Snowflake) (types.Snowflake, error) {
	roleID, ok, err := m.config.Store.MuteRoleID(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("get mute role: %w", err)
	}
	if !ok {
		return 0, ErrMuteRoleNotConfigured
	}
	return roleID, nil
}

func (m *Manager) guildName(ctx context.Context, guildID types.Snowflake) string {
	name, err := m.config.Platform.GuildName(ctx, guildID)
	if err != nil || name == "" {
		return guildID.String()
	}
	return name
}

func (m *Manager) notify(ctx context.Context, userID types.Snowflake, text string) {
	if err := m.config.Platform.SendDirectMessage(ctx, userID, text); err != nil {
		m.config.Logger.Debug(
			"failed to send direct message",
			"user_id", userID,
			"error", err,
		)
		if m.metrics != nil {
			m.metrics.notifyFailures.Inc()
		}
	}
}

func (m *Manager) publish(eventType event.EventType, data any) {
	if m.config.EventBus == nil {
		return
	}
	m.config.EventBus.Publish(eventType, event.NewEvent(eventType, data))
}

func (m *Manager) ended(reason event.MuteEndReason, mute *models.Mute) {
	if m.metrics != nil {
		m.metrics.mutesEnded.WithLabelValues(string(reason)).Inc()
	}
	m.publish(
		event.MuteEndedEventType,
		event.MuteEndedEvent{Reason: reason, Mute: *mute},
	)
}

func (m *Manager) rejected(reason string) {
	if m.metrics != nil {
		m.metrics.mutesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Manager) roleFailed(res platform.RoleResult) {
	if m.metrics != nil {
		m.metrics.roleFailures.WithLabelValues(res.Outcome.String()).Inc()
	}
}

func (m *Manager) muteLogger(mute *models.Mute) *slog.Logger {
	return m.config.Logger.With(
		"mute_id", mute.ID,
		"guild_id", mute.GuildID,
		"user_id", mute.UserID,
	)
}
