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

package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"gorm.io/gorm"
)

func (s *Store) CreateWarn(ctx context.Context, warn *models.Warn) error {
	warn.Timestamp = warn.Timestamp.UTC().Truncate(time.Millisecond)
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRows(tx, warn.GuildID, warn.UserID, warn.ModeratorID); err != nil {
			return err
		}
		return tx.Create(warn).Error
	})
}

// ListWarns returns warns for a user in a guild, newest first
func (s *Store) ListWarns(
	ctx context.Context,
	guildID types.Snowflake,
	userID types.Snowflake,
	limit int,
) ([]models.Warn, error) {
	query := s.withContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Order("issued_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	ret := []models.Warn{}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) GetGuild(
	ctx context.Context,
	guildID types.Snowflake,
) (*models.Guild, error) {
	var guild models.Guild
	if result := s.withContext(ctx).First(&guild, "id = ?", guildID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrGuildNotFound
		}
		return nil, result.Error
	}
	return &guild, nil
}

// SetMuteRole sets or clears (nil) the guild's mute role
func (s *Store) SetMuteRole(
	ctx context.Context,
	guildID types.Snowflake,
	roleID *types.Snowflake,
) error {
	return s.setGuildColumn(ctx, guildID, "mute_role_id", roleID)
}

// SetModRole sets or clears (nil) the guild's moderator role
func (s *Store) SetModRole(
	ctx context.Context,
	guildID types.Snowflake,
	roleID *types.Snowflake,
) error {
	return s.setGuildColumn(ctx, guildID, "mod_role_id", roleID)
}

// MuteRoleID returns the configured mute role for a guild. The boolean is
// false when no role is configured.
func (s *Store) MuteRoleID(
	ctx context.Context,
	guildID types.Snowflake,
) (types.Snowflake, bool, error) {
	guild, err := s.GetGuild(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrGuildNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if guild.MuteRoleID == nil {
		return 0, false, nil
	}
	return *guild.MuteRoleID, true, nil
}

func (s *Store) setGuildColumn(
	ctx context.Context,
	guildID types.Snowflake,
	column string,
	roleID *types.Snowflake,
) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRows(tx, guildID); err != nil {
			return err
		}
		return tx.Model(&models.Guild{}).
			Where("id = ?", guildID).
			Update(column, roleID).Error
	})
}
