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

// Package discord implements the platform capabilities on top of a Discord
// bot session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
	"github.com/bwmarrin/discordgo"
)

// session is the subset of *discordgo.Session used by the adapter
type session interface {
	Open() error
	Close() error
	AddHandler(handler any) func()
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

type Config struct {
	EventBus *event.EventBus
	Logger   *slog.Logger
	Token    string
}

// Discord is a platform.Platform backed by the Discord gateway and REST API
type Discord struct {
	session        session
	config         Config
	dmChannels     map[types.Snowflake]string
	removeHandlers []func()
	mu             sync.Mutex
}

var _ platform.Platform = (*Discord)(nil)

// New creates a bot session for the configured token. The gateway
// connection is opened by Start()
func New(cfg Config) (*Discord, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return newWithSession(s, cfg), nil
}

func newWithSession(s session, cfg Config) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "discord")
	return &Discord{
		session:    s,
		config:     cfg,
		dmChannels: make(map[types.Snowflake]string),
	}
}

// Start registers the membership handlers and opens the gateway connection
func (d *Discord) Start(_ context.Context) error {
	d.mu.Lock()
	d.removeHandlers = append(
		d.removeHandlers,
		d.session.AddHandler(d.handleMemberAdd),
		d.session.AddHandler(d.handleMemberRemove),
	)
	d.mu.Unlock()
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	d.config.Logger.Info("connected to discord gateway")
	return nil
}

func (d *Discord) Stop() error {
	d.mu.Lock()
	for _, remove := range d.removeHandlers {
		remove()
	}
	d.removeHandlers = nil
	d.mu.Unlock()
	return d.session.Close()
}

func (d *Discord) handleMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil {
		return
	}
	guildID, userID, ok := d.memberIDs(m.Member)
	if !ok {
		return
	}
	d.publish(
		event.MemberJoinEventType,
		event.MemberJoinEvent{GuildID: guildID, UserID: userID},
	)
}

func (d *Discord) handleMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil {
		return
	}
	guildID, userID, ok := d.memberIDs(m.Member)
	if !ok {
		return
	}
	d.publish(
		event.MemberLeaveEventType,
		event.MemberLeaveEvent{GuildID: guildID, UserID: userID},
	)
}

func (d *Discord) publish(eventType event.EventType, data any) {
	if d.config.EventBus == nil {
		return
	}
	d.config.EventBus.Publish(eventType, event.NewEvent(eventType, data))
}

func (d *Discord) memberIDs(m *discordgo.Member) (types.Snowflake, types.Snowflake, bool) {
	if m.User == nil {
		return 0, 0, false
	}
	guildID, err := types.ParseSnowflake(m.GuildID)
	if err != nil {
		d.config.Logger.Warn("ignoring member event", "error", err)
		return 0, 0, false
	}
	userID, err := types.ParseSnowflake(m.User.ID)
	if err != nil {
		d.config.Logger.Warn("ignoring member event", "error", err)
		return 0, 0, false
	}
	return guildID, userID, true
}

func (d *Discord) AddRole(
	_ context.Context,
	guildID, userID, roleID types.Snowflake,
	reason string,
) platform.RoleResult {
	err := d.session.GuildMemberRoleAdd(
		guildID.String(),
		userID.String(),
		roleID.String(),
		auditReason(reason)...,
	)
	return roleResult(err)
}

func (d *Discord) RemoveRole(
	_ context.Context,
	guildID, userID, roleID types.Snowflake,
	reason string,
) platform.RoleResult {
	err := d.session.GuildMemberRoleRemove(
		guildID.String(),
		userID.String(),
		roleID.String(),
		auditReason(reason)...,
	)
	return roleResult(err)
}

func auditReason(reason string) []discordgo.RequestOption {
	if reason == "" {
		return nil
	}
	return []discordgo.RequestOption{discordgo.WithAuditLogReason(reason)}
}

func (d *Discord) SendDirectMessage(
	ctx context.Context,
	userID types.Snowflake,
	text string,
) error {
	channelID, err := d.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := d.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send direct message: %w", err)
	}
	return nil
}

func (d *Discord) dmChannel(ctx context.Context, userID types.Snowflake) (string, error) {
	d.mu.Lock()
	channelID, ok := d.dmChannels[userID]
	d.mu.Unlock()
	if ok {
		return channelID, nil
	}
	channel, err := d.session.UserChannelCreate(userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("open direct message channel: %w", err)
	}
	d.mu.Lock()
	d.dmChannels[userID] = channel.ID
	d.mu.Unlock()
	return channel.ID, nil
}

func (d *Discord) Member(
	ctx context.Context,
	guildID, userID types.Snowflake,
) (*platform.Member, error) {
	m, err := d.session.GuildMember(guildID.String(), userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		if apiErrorCode(err) == discordgo.ErrCodeUnknownMember {
			return nil, platform.ErrMemberAbsent
		}
		return nil, fmt.Errorf("get guild member: %w", err)
	}
	ret := &platform.Member{
		GuildID: guildID,
		UserID:  userID,
	}
	for _, role := range m.Roles {
		roleID, err := types.ParseSnowflake(role)
		if err != nil {
			continue
		}
		ret.Roles = append(ret.Roles, roleID)
	}
	return ret, nil
}

func (d *Discord) GuildName(ctx context.Context, guildID types.Snowflake) (string, error) {
	g, err := d.session.Guild(guildID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get guild: %w", err)
	}
	return g.Name, nil
}

func apiErrorCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

// roleResult maps a REST error onto a role outcome
func roleResult(err error) platform.RoleResult {
	if err == nil {
		return platform.RoleOK()
	}
	switch apiErrorCode(err) {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
		return platform.RoleErr(platform.RoleMemberAbsent, err)
	case discordgo.ErrCodeUnknownRole:
		return platform.RoleErr(platform.RoleMissing, err)
	case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
		return platform.RoleErr(platform.RolePermissionDenied, err)
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusForbidden {
		return platform.RoleErr(platform.RolePermissionDenied, err)
	}
	return platform.RoleErr(platform.RoleFailed, err)
}
