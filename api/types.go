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

package api

import (
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
)

// ErrorResponse is the body of every non-2xx response. Code is a stable
// machine-readable identifier
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// MuteRequest is the body of POST /v1/guilds/{guild}/mutes. Duration
// accepts Go duration syntax plus "d" and "w" units
type MuteRequest struct {
	Duration    string          `json:"duration"`
	Reason      string          `json:"reason,omitempty"`
	UserID      types.Snowflake `json:"user_id"`
	ModeratorID types.Snowflake `json:"moderator_id"`
}

// MuteResponse carries a mute and, when the platform role could not be
// changed, a warning describing why
type MuteResponse struct {
	Mute    *models.Mute `json:"mute"`
	Warning string       `json:"warning,omitempty"`
}

type WarnRequest struct {
	Reason      string          `json:"reason,omitempty"`
	UserID      types.Snowflake `json:"user_id"`
	ModeratorID types.Snowflake `json:"moderator_id"`
}

type RoleRequest struct {
	RoleID types.Snowflake `json:"role_id"`
}

// RoleResponse reports a guild role setting. RoleID is null when unset
type RoleResponse struct {
	RoleID  *types.Snowflake `json:"role_id"`
	GuildID types.Snowflake  `json:"guild_id"`
}

// ListMutesOptions selects mutes for a guild listing
type ListMutesOptions struct {
	UserID     *types.Snowflake
	Limit      int
	ActiveOnly bool
	Descending bool
}
