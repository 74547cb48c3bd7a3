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
	"encoding/binary"
	"errors"
	"slices"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

func (s *StoreBadger) CreateMute(
	_ context.Context,
	params models.MuteParams,
) (*models.Mute, error) {
	if params.Duration <= 0 {
		return nil, types.ErrInvalidDuration
	}
	id, err := s.nextID(s.muteSeq)
	if err != nil {
		return nil, err
	}
	start := params.Start.UTC().Truncate(time.Millisecond)
	mute := &models.Mute{
		ID:          id,
		UserID:      params.UserID,
		GuildID:     params.GuildID,
		ModeratorID: params.ModeratorID,
		Reason:      params.Reason,
		Start:       start,
		End:         start.Add(params.Duration),
	}
	mute.SetActive(true)
	err = s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(activeKey(params.GuildID, params.UserID)); err == nil {
			return types.ErrActiveMuteExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := ensureRows(txn, params.GuildID, params.UserID, params.ModeratorID); err != nil {
			return err
		}
		if err := setValue(txn, muteKey(id), mute); err != nil {
			return err
		}
		return txn.Set(
			activeKey(params.GuildID, params.UserID),
			binary.BigEndian.AppendUint64(nil, uint64(id)),
		)
	})
	if err != nil {
		return nil, err
	}
	return mute, nil
}

func getMute(txn *badger.Txn, id uint) (*models.Mute, error) {
	var mute models.Mute
	if err := getValue(txn, muteKey(id), &mute); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrMuteNotFound
		}
		return nil, err
	}
	// The lock column is not persisted here
	mute.SetActive(mute.Active)
	return &mute, nil
}

// activeMuteID returns the id referenced by the active key, or 0
func activeMuteID(txn *badger.Txn, guildID, userID types.Snowflake) (uint, error) {
	item, err := txn.Get(activeKey(guildID, userID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var id uint
	err = item.Value(func(val []byte) error {
		id = uint(binary.BigEndian.Uint64(val))
		return nil
	})
	return id, err
}

func (s *StoreBadger) GetMute(_ context.Context, id uint) (*models.Mute, error) {
	var ret *models.Mute
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ret, err = getMute(txn, id)
		return err
	})
	return ret, err
}

func (s *StoreBadger) FindActiveMute(
	_ context.Context,
	userID types.Snowflake,
	guildID types.Snowflake,
) (*models.Mute, error) {
	var ret *models.Mute
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := activeMuteID(txn, guildID, userID)
		if err != nil || id == 0 {
			return err
		}
		ret, err = getMute(txn, id)
		return err
	})
	return ret, err
}

func (s *StoreBadger) ListMutes(
	_ context.Context,
	filter models.MuteFilter,
) ([]models.Mute, error) {
	ret := []models.Mute{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixMute, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var mute models.Mute
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &mute)
			})
			if err != nil {
				return err
			}
			mute.SetActive(mute.Active)
			if filter.Match(&mute) {
				ret = append(ret, mute)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ret, func(a, b models.Mute) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return int(a.ID) - int(b.ID)
	})
	if filter.Descending {
		slices.Reverse(ret)
	}
	if filter.Limit > 0 && len(ret) > filter.Limit {
		ret = ret[:filter.Limit]
	}
	return ret, nil
}

func (s *StoreBadger) Deactivate(_ context.Context, id uint) error {
	return s.update(func(txn *badger.Txn) error {
		mute, err := getMute(txn, id)
		if err != nil {
			return err
		}
		if !mute.Active {
			return types.ErrMuteNotActive
		}
		currentID, err := activeMuteID(txn, mute.GuildID, mute.UserID)
		if err != nil {
			return err
		}
		if currentID == id {
			if err := txn.Delete(activeKey(mute.GuildID, mute.UserID)); err != nil {
				return err
			}
		}
		mute.SetActive(false)
		return setValue(txn, muteKey(id), mute)
	})
}

func (s *StoreBadger) DeleteMute(_ context.Context, id uint) (*models.Mute, error) {
	var ret *models.Mute
	err := s.update(func(txn *badger.Txn) error {
		mute, err := getMute(txn, id)
		if err != nil {
			return err
		}
		currentID, err := activeMuteID(txn, mute.GuildID, mute.UserID)
		if err != nil {
			return err
		}
		if currentID == id {
			if err := txn.Delete(activeKey(mute.GuildID, mute.UserID)); err != nil {
				return err
			}
		}
		if err := txn.Delete(muteKey(id)); err != nil {
			return err
		}
		ret = mute
		return nil
	})
	return ret, err
}

// ensureRows creates the referenced user and guild records if missing
func ensureRows(txn *badger.Txn, guildID types.Snowflake, userIDs ...types.Snowflake) error {
	now := time.Now().UTC()
	if _, err := txn.Get(guildKey(guildID)); errors.Is(err, badger.ErrKeyNotFound) {
		guild := &models.Guild{ID: guildID, CreatedAt: now, UpdatedAt: now}
		if err := setValue(txn, guildKey(guildID), guild); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	for _, userID := range userIDs {
		if userID == 0 {
			continue
		}
		if _, err := txn.Get(userKey(userID)); errors.Is(err, badger.ErrKeyNotFound) {
			if err := setValue(txn, userKey(userID), &models.User{ID: userID, CreatedAt: now}); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
