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

// Package memory provides an in-process chat platform. It backs development
// mode and is used by tests to observe and inject role and message outcomes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
)

var ErrUnknownGuild = errors.New("unknown guild")

const (
	OpAddRole    = "add"
	OpRemoveRole = "remove"
)

// RoleCall records a RoleSync invocation
type RoleCall struct {
	Op      string
	Result  platform.RoleResult
	GuildID types.Snowflake
	UserID  types.Snowflake
	RoleID  types.Snowflake
}

type memberKey struct {
	guildID types.Snowflake
	userID  types.Snowflake
}

type guild struct {
	roles   map[types.Snowflake]struct{}
	members map[types.Snowflake]map[types.Snowflake]struct{}
	name    string
}

// Platform is an in-memory platform.Platform
type Platform struct {
	eventBus  *event.EventBus
	guilds    map[types.Snowflake]*guild
	outcomes  map[memberKey]platform.RoleResult
	dmErrors  map[types.Snowflake]error
	messages  map[types.Snowflake][]string
	roleCalls []RoleCall
	mu        sync.Mutex
}

var _ platform.Platform = (*Platform)(nil)

// New creates an empty platform. Membership changes are published on the
// event bus when one is given
func New(eventBus *event.EventBus) *Platform {
	return &Platform{
		eventBus: eventBus,
		guilds:   make(map[types.Snowflake]*guild),
		outcomes: make(map[memberKey]platform.RoleResult),
		dmErrors: make(map[types.Snowflake]error),
		messages: make(map[types.Snowflake][]string),
	}
}

func (p *Platform) Start(context.Context) error {
	return nil
}

func (p *Platform) Stop() error {
	return nil
}

// CreateGuild adds a guild with the given roles
func (p *Platform) CreateGuild(guildID types.Snowflake, name string, roleIDs ...types.Snowflake) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := &guild{
		name:    name,
		roles:   make(map[types.Snowflake]struct{}),
		members: make(map[types.Snowflake]map[types.Snowflake]struct{}),
	}
	for _, roleID := range roleIDs {
		g.roles[roleID] = struct{}{}
	}
	p.guilds[guildID] = g
}

// DeleteRole removes a role from a guild and from all of its members
func (p *Platform) DeleteRole(guildID, roleID types.Snowflake) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.guilds[guildID]
	if !ok {
		return
	}
	delete(g.roles, roleID)
	for _, roles := range g.members {
		delete(roles, roleID)
	}
}

// Join adds a member without any roles and publishes a join event
func (p *Platform) Join(guildID, userID types.Snowflake) error {
	p.mu.Lock()
	g, ok := p.guilds[guildID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}
	g.members[userID] = make(map[types.Snowflake]struct{})
	p.mu.Unlock()
	if p.eventBus != nil {
		p.eventBus.Publish(
			event.MemberJoinEventType,
			event.NewEvent(
				event.MemberJoinEventType,
				event.MemberJoinEvent{GuildID: guildID, UserID: userID},
			),
		)
	}
	return nil
}

// Leave removes a member and publishes a leave event
func (p *Platform) Leave(guildID, userID types.Snowflake) {
	p.mu.Lock()
	if g, ok := p.guilds[guildID]; ok {
		delete(g.members, userID)
	}
	p.mu.Unlock()
	if p.eventBus != nil {
		p.eventBus.Publish(
			event.MemberLeaveEventType,
			event.NewEvent(
				event.MemberLeaveEventType,
				event.MemberLeaveEvent{GuildID: guildID, UserID: userID},
			),
		)
	}
}

// FailRoleChanges makes every role change for the member return the given
// result until cleared with a zero RoleResult
func (p *Platform) FailRoleChanges(guildID, userID types.Snowflake, result platform.RoleResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := memberKey{guildID: guildID, userID: userID}
	if result.OK() {
		delete(p.outcomes, key)
		return
	}
	p.outcomes[key] = result
}

// FailDirectMessages makes direct messages to the user fail with err, or
// succeed again when err is nil
func (p *Platform) FailDirectMessages(userID types.Snowflake, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.dmErrors, userID)
		return
	}
	p.dmErrors[userID] = err
}

// Messages returns the direct messages delivered to a user
func (p *Platform) Messages(userID types.Snowflake) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.messages[userID])
}

// RoleCalls returns every RoleSync invocation so far
func (p *Platform) RoleCalls() []RoleCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.roleCalls)
}

// HasRole reports whether a present member holds the role
func (p *Platform) HasRole(guildID, userID, roleID types.Snowflake) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.guilds[guildID]
	if !ok {
		return false
	}
	roles, ok := g.members[userID]
	if !ok {
		return false
	}
	_, ok = roles[roleID]
	return ok
}

func (p *Platform) AddRole(
	_ context.Context,
	guildID, userID, roleID types.Snowflake,
	_ string,
) platform.RoleResult {
	return p.changeRole(OpAddRole, guildID, userID, roleID)
}

func (p *Platform) RemoveRole(
	_ context.Context,
	guildID, userID, roleID types.Snowflake,
	_ string,
) platform.RoleResult {
	return p.changeRole(OpRemoveRole, guildID, userID, roleID)
}

func (p *Platform) changeRole(op string, guildID, userID, roleID types.Snowflake) platform.RoleResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := p.applyRoleLocked(op, guildID, userID, roleID)
	p.roleCalls = append(p.roleCalls, RoleCall{
		Op:      op,
		GuildID: guildID,
		UserID:  userID,
		RoleID:  roleID,
		Result:  result,
	})
	return result
}

func (p *Platform) applyRoleLocked(op string, guildID, userID, roleID types.Snowflake) platform.RoleResult {
	if result, ok := p.outcomes[memberKey{guildID: guildID, userID: userID}]; ok {
		return result
	}
	g, ok := p.guilds[guildID]
	if !ok {
		return platform.RoleErr(platform.RoleFailed, ErrUnknownGuild)
	}
	roles, ok := g.members[userID]
	if !ok {
		return platform.RoleErr(platform.RoleMemberAbsent, platform.ErrMemberAbsent)
	}
	if _, ok := g.roles[roleID]; !ok {
		return platform.RoleErr(platform.RoleMissing, fmt.Errorf("unknown role %s", roleID))
	}
	if op == OpAddRole {
		roles[roleID] = struct{}{}
	} else {
		delete(roles, roleID)
	}
	return platform.RoleOK()
}

func (p *Platform) SendDirectMessage(_ context.Context, userID types.Snowflake, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.dmErrors[userID]; ok {
		return err
	}
	p.messages[userID] = append(p.messages[userID], text)
	return nil
}

func (p *Platform) Member(
	_ context.Context,
	guildID, userID types.Snowflake,
) (*platform.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.guilds[guildID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}
	roles, ok := g.members[userID]
	if !ok {
		return nil, platform.ErrMemberAbsent
	}
	roleIDs := slices.Sorted(maps.Keys(roles))
	return &platform.Member{
		GuildID: guildID,
		UserID:  userID,
		Roles:   roleIDs,
	}, nil
}

func (p *Platform) GuildName(_ context.Context, guildID types.Snowflake) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.guilds[guildID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGuild, guildID)
	}
	return g.name, nil
}
