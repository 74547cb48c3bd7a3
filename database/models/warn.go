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

package models

import (
	"time"

	"github.com/blinklabs-io/warden/database/types"
)

// Warn is an append-only moderation log entry
type Warn struct {
	Timestamp   time.Time       `gorm:"column:issued_at;index;not null" json:"timestamp"`
	Reason      string          `                                 json:"reason,omitempty"`
	ID          uint            `gorm:"primarykey"                json:"id"`
	UserID      types.Snowflake `gorm:"index:idx_warn_guild_user" json:"user_id"`
	GuildID     types.Snowflake `gorm:"index:idx_warn_guild_user" json:"guild_id"`
	ModeratorID types.Snowflake `                                 json:"moderator_id"`
}

func (Warn) TableName() string {
	return "warn"
}
