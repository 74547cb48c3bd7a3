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

// Package platform defines the chat platform capabilities used by the
// moderation components: role assignment, direct messages and member lookup.
package platform

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/blinklabs-io/warden/database/types"
)

// ErrMemberAbsent is returned by Directory.Member when the user is not
// currently a member of the guild
var ErrMemberAbsent = errors.New("member not present in guild")

// RoleOutcome classifies the result of a role change
type RoleOutcome int

const (
	RoleApplied RoleOutcome = iota
	RoleMemberAbsent
	RoleMissing
	RolePermissionDenied
	RoleFailed
)

func (o RoleOutcome) String() string {
	switch o {
	case RoleApplied:
		return "ok"
	case RoleMemberAbsent:
		return "member absent"
	case RoleMissing:
		return "role absent"
	case RolePermissionDenied:
		return "permission denied"
	case RoleFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// RoleResult is returned by RoleSync operations. Err carries the underlying
// platform error for any outcome other than RoleApplied
type RoleResult struct {
	Err     error
	Outcome RoleOutcome
}

func RoleOK() RoleResult {
	return RoleResult{Outcome: RoleApplied}
}

func RoleErr(outcome RoleOutcome, err error) RoleResult {
	return RoleResult{Outcome: outcome, Err: err}
}

// OK reports whether the role change was applied
func (r RoleResult) OK() bool {
	return r.Outcome == RoleApplied
}

// NonFatal reports whether the outcome is one a caller may ignore: the
// member or the role no longer exists
func (r RoleResult) NonFatal() bool {
	return r.Outcome == RoleMemberAbsent || r.Outcome == RoleMissing
}

func (r RoleResult) String() string {
	if r.Err == nil {
		return r.Outcome.String()
	}
	return fmt.Sprintf("%s: %s", r.Outcome, r.Err)
}

// RoleSync adds and removes roles from guild members
type RoleSync interface {
	AddRole(ctx context.Context, guildID, userID, roleID types.Snowflake, reason string) RoleResult
	RemoveRole(ctx context.Context, guildID, userID, roleID types.Snowflake, reason string) RoleResult
}

// Notifier delivers direct messages to users. Callers treat every error as
// non-fatal
type Notifier interface {
	SendDirectMessage(ctx context.Context, userID types.Snowflake, text string) error
}

// Member is a user's current membership in a guild
type Member struct {
	Roles   []types.Snowflake
	GuildID types.Snowflake
	UserID  types.Snowflake
}

func (m *Member) HasRole(roleID types.Snowflake) bool {
	return slices.Contains(m.Roles, roleID)
}

// Directory resolves guild members and guild names
type Directory interface {
	// Member returns ErrMemberAbsent if the user is not in the guild
	Member(ctx context.Context, guildID, userID types.Snowflake) (*Member, error)
	GuildName(ctx context.Context, guildID types.Snowflake) (string, error)
}

// Capabilities is what moderation components need from a platform
type Capabilities interface {
	RoleSync
	Notifier
	Directory
}

// Platform is a chat platform connection with its own lifecycle
type Platform interface {
	Capabilities
	Start(context.Context) error
	Stop() error
}
