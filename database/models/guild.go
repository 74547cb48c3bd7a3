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

// Guild holds the per-guild moderation configuration
type Guild struct {
	MuteRoleID *types.Snowflake `json:"mute_role_id,omitempty"`
	ModRoleID  *types.Snowflake `json:"mod_role_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	ID         types.Snowflake  `gorm:"primaryKey;autoIncrement:false" json:"id"`
}

func (Guild) TableName() string {
	return "guild"
}

type User struct {
	CreatedAt time.Time       `json:"created_at"`
	ID        types.Snowflake `gorm:"primaryKey;autoIncrement:false" json:"id"`
}

func (User) TableName() string {
	return "user"
}
