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

// Mute is a time-bounded mute of a user in a guild.
//
// ActiveLock mirrors Active as true/NULL. The unique index over
// (user_id, guild_id, active_lock) allows any number of inactive records
// but only one active record per user and guild, since NULLs never collide.
type Mute struct {
	Start       time.Time       `gorm:"column:started_at;not null"                                  json:"start"`
	End         time.Time       `gorm:"column:ends_at;index;not null"                               json:"end"`
	ActiveLock  *bool           `gorm:"uniqueIndex:idx_mute_active_user_guild,priority:3"           json:"-"`
	Reason      string          `                                                                   json:"reason,omitempty"`
	ID          uint            `gorm:"primarykey"                                                  json:"id"`
	UserID      types.Snowflake `gorm:"uniqueIndex:idx_mute_active_user_guild,priority:1;not null" json:"user_id"`
	GuildID     types.Snowflake `gorm:"uniqueIndex:idx_mute_active_user_guild,priority:2;not null" json:"guild_id"`
	ModeratorID types.Snowflake `gorm:"not null"                                                    json:"moderator_id"`
	Active      bool            `gorm:"index;not null"                                              json:"active"`
}

func (Mute) TableName() string {
	return "mute"
}

// SetActive updates the active flag along with its unique index companion
func (m *Mute) SetActive(active bool) {
	m.Active = active
	m.ActiveLock = ActiveLock(active)
}

// Duration returns the requested length of the mute
func (m *Mute) Duration() time.Duration {
	return m.End.Sub(m.Start)
}

// Due returns true if the mute window has elapsed at the given instant
func (m *Mute) Due(now time.Time) bool {
	return !now.Before(m.End)
}

// ActiveLock returns the value stored in the active_lock column for the given
// active flag
func ActiveLock(active bool) *bool {
	if !active {
		return nil
	}
	ret := true
	return &ret
}

// MuteParams describes a mute to be created
type MuteParams struct {
	Start       time.Time
	Reason      string
	Duration    time.Duration
	UserID      types.Snowflake
	GuildID     types.Snowflake
	ModeratorID types.Snowflake
}

// MuteFilter selects mutes for listing. Zero values match everything.
type MuteFilter struct {
	GuildID    *types.Snowflake
	UserID     *types.Snowflake
	Limit      int
	ActiveOnly bool
	// Descending orders by start time, newest first
	Descending bool
}

// Match returns true if the mute satisfies the filter's selection criteria
func (f MuteFilter) Match(m *Mute) bool {
	if f.GuildID != nil && m.GuildID != *f.GuildID {
		return false
	}
	if f.UserID != nil && m.UserID != *f.UserID {
		return false
	}
	if f.ActiveOnly && !m.Active {
		return false
	}
	return true
}
