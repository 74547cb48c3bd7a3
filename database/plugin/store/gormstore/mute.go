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
	"gorm.io/gorm/clause"
)

// CreateMute stores a new active mute. The start time is truncated to
// millisecond precision so that every dialect round-trips it unchanged.
func (s *Store) CreateMute(
	ctx context.Context,
	params models.MuteParams,
) (*models.Mute, error) {
	if params.Duration <= 0 {
		return nil, types.ErrInvalidDuration
	}
	start := params.Start.UTC().Truncate(time.Millisecond)
	mute := &models.Mute{
		UserID:      params.UserID,
		GuildID:     params.GuildID,
		ModeratorID: params.ModeratorID,
		Reason:      params.Reason,
		Start:       start,
		End:         start.Add(params.Duration),
	}
	mute.SetActive(true)
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRows(tx, params.GuildID, params.UserID, params.ModeratorID); err != nil {
			return err
		}
		return tx.Create(mute).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, types.ErrActiveMuteExists
		}
		return nil, err
	}
	return mute, nil
}

func (s *Store) GetMute(ctx context.Context, id uint) (*models.Mute, error) {
	var mute models.Mute
	if result := s.withContext(ctx).First(&mute, id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, types.ErrMuteNotFound
		}
		return nil, result.Error
	}
	return &mute, nil
}

// FindActiveMute returns the active mute for a user in a guild, or nil if
// there is none
func (s *Store) FindActiveMute(
	ctx context.Context,
	userID types.Snowflake,
	guildID types.Snowflake,
) (*models.Mute, error) {
	var mute models.Mute
	result := s.withContext(ctx).
		Where("user_id = ? AND guild_id = ? AND active = ?", userID, guildID, true).
		Order("id DESC").
		First(&mute)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &mute, nil
}

func (s *Store) ListMutes(
	ctx context.Context,
	filter models.MuteFilter,
) ([]models.Mute, error) {
	query := s.withContext(ctx).Model(&models.Mute{})
	if filter.GuildID != nil {
		query = query.Where("guild_id = ?", *filter.GuildID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	query = query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "started_at"}, Desc: filter.Descending}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: filter.Descending})
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	ret := []models.Mute{}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Deactivate clears the active flag only while it is still set, so that
// concurrent callers see exactly one successful transition
func (s *Store) Deactivate(ctx context.Context, id uint) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Mute{}).
			Where("id = ? AND active = ?", id, true).
			Updates(map[string]any{
				"active":      false,
				"active_lock": models.ActiveLock(false),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		var mute models.Mute
		if result := tx.Select("id").First(&mute, id); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return types.ErrMuteNotFound
			}
			return result.Error
		}
		return types.ErrMuteNotActive
	})
}

// DeleteMute removes a mute and returns the deleted record
func (s *Store) DeleteMute(ctx context.Context, id uint) (*models.Mute, error) {
	var mute models.Mute
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.First(&mute, id); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return types.ErrMuteNotFound
			}
			return result.Error
		}
		return tx.Delete(&models.Mute{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &mute, nil
}
