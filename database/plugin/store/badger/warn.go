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

package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

func (s *StoreBadger) CreateWarn(_ context.Context, warn *models.Warn) error {
	id, err := s.nextID(s.warnSeq)
	if err != nil {
		return err
	}
	warn.ID = id
	warn.Timestamp = warn.Timestamp.UTC().Truncate(time.Millisecond)
	return s.update(func(txn *badger.Txn) error {
		if err := ensureRows(txn, warn.GuildID, warn.UserID, warn.ModeratorID); err != nil {
			return err
		}
		return setValue(txn, warnKey(warn.GuildID, warn.UserID, warn.ID), warn)
	})
}

// ListWarns returns warns for a user in a guild, newest first
func (s *StoreBadger) ListWarns(
	_ context.Context,
	guildID types.Snowflake,
	userID types.Snowflake,
	limit int,
) ([]models.Warn, error) {
	ret := []models.Warn{}
	prefix := idKey(prefixWarn, uint64(guildID), uint64(userID))
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var warn models.Warn
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &warn)
			})
			if err != nil {
				return err
			}
			ret = append(ret, warn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ret, func(a, b models.Warn) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return int(b.ID) - int(a.ID)
	})
	if limit > 0 && len(ret) > limit {
		ret = ret[:limit]
	}
	return ret, nil
}

func getGuild(txn *badger.Txn, guildID types.Snowflake) (*models.Guild, error) {
	var guild models.Guild
	if err := getValue(txn, guildKey(guildID), &guild); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrGuildNotFound
		}
		return nil, err
	}
	return &guild, nil
}

func (s *StoreBadger) GetGuild(
	_ context.Context,
	guildID types.Snowflake,
) (*models.Guild, error) {
	var ret *models.Guild
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ret, err = getGuild(txn, guildID)
		return err
	})
	return ret, err
}

func (s *StoreBadger) SetMuteRole(
	_ context.Context,
	guildID types.Snowflake,
	roleID *types.Snowflake,
) error {
	return s.updateGuild(guildID, func(g *models.Guild) {
		g.MuteRoleID = roleID
	})
}

func (s *StoreBadger) SetModRole(
	_ context.Context,
	guildID types.Snowflake,
	roleID *types.Snowflake,
) error {
	return s.updateGuild(guildID, func(g *models.Guild) {
		g.ModRoleID = roleID
	})
}

func (s *StoreBadger) MuteRoleID(
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

func (s *StoreBadger) updateGuild(guildID types.Snowflake, fn func(*models.Guild)) error {
	return s.update(func(txn *badger.Txn) error {
		if err := ensureRows(txn, guildID); err != nil {
			return err
		}
		guild, err := getGuild(txn, guildID)
		if err != nil {
			return err
		}
		fn(guild)
		guild.UpdatedAt = time.Now().UTC()
		return setValue(txn, guildKey(guildID), guild)
	})
}
