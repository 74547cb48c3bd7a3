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

package store_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/store"
	"github.com/blinklabs-io/warden/database/plugin/store/badger"
	"github.com/blinklabs-io/warden/database/plugin/store/sqlite"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T) store.Store

func testStores() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) store.Store {
			s, err := sqlite.New("", nil)
			require.NoError(t, err)
			require.NoError(t, s.Start())
			t.Cleanup(func() { _ = s.Stop() })
			return s
		},
		"badger": func(t *testing.T) store.Store {
			s, err := badger.New("", nil)
			require.NoError(t, err)
			require.NoError(t, s.Start())
			t.Cleanup(func() { _ = s.Stop() })
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	for name, factory := range testStores() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func muteParams(user, guild types.Snowflake, d time.Duration) models.MuteParams {
	return models.MuteParams{
		UserID:      user,
		GuildID:     guild,
		ModeratorID: 1,
		Reason:      "spam",
		Start:       testStart,
		Duration:    d,
	}
}

func TestCreateMuteInvalidDuration(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		for _, d := range []time.Duration{0, -5 * time.Second} {
			_, err := s.CreateMute(t.Context(), muteParams(42, 7, d))
			assert.ErrorIs(t, err, types.ErrInvalidDuration)
		}
		mutes, err := s.ListMutes(t.Context(), models.MuteFilter{})
		require.NoError(t, err)
		assert.Empty(t, mutes)
	})
}

func TestCreateAndFindActiveMute(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		created, err := s.CreateMute(t.Context(), muteParams(42, 7, 15*time.Second))
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.True(t, created.Active)

		found, err := s.FindActiveMute(t.Context(), 42, 7)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, types.Snowflake(42), found.UserID)
		assert.Equal(t, types.Snowflake(7), found.GuildID)
		assert.Equal(t, "spam", found.Reason)
		assert.Equal(t, 15*time.Second, found.Duration())
		assert.True(t, found.Start.Equal(testStart))

		other, err := s.FindActiveMute(t.Context(), 42, 8)
		require.NoError(t, err)
		assert.Nil(t, other)
	})
}

func TestSecondActiveMuteRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		first, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		require.NoError(t, err)
		_, err = s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		assert.ErrorIs(t, err, types.ErrActiveMuteExists)

		// Same user in another guild is unaffected
		_, err = s.CreateMute(t.Context(), muteParams(42, 8, time.Minute))
		require.NoError(t, err)

		// Deactivating frees the slot
		require.NoError(t, s.Deactivate(t.Context(), first.ID))
		found, err := s.FindActiveMute(t.Context(), 42, 7)
		require.NoError(t, err)
		assert.Nil(t, found)
		second, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestDeactivateOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		created, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		require.NoError(t, err)
		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.Deactivate(t.Context(), created.ID)
			}()
		}
		wg.Wait()
		close(results)
		ended := 0
		for err := range results {
			if err == nil {
				ended++
				continue
			}
			assert.ErrorIs(t, err, types.ErrMuteNotActive)
		}
		assert.Equal(t, 1, ended)

		// An ended mute stays ended and frees the slot for a new record
		assert.ErrorIs(t, s.Deactivate(t.Context(), created.ID), types.ErrMuteNotActive)
		found, err := s.GetMute(t.Context(), created.ID)
		require.NoError(t, err)
		assert.False(t, found.Active)
		assert.Nil(t, found.ActiveLock)
		next, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		require.NoError(t, err)
		active, err := s.FindActiveMute(t.Context(), 42, 7)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, next.ID, active.ID)
		found, err = s.GetMute(t.Context(), created.ID)
		require.NoError(t, err)
		assert.False(t, found.Active)
	})
}

func TestConcurrentCreateMute(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
				results <- err
			}()
		}
		wg.Wait()
		close(results)
		created := 0
		for err := range results {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, types.ErrActiveMuteExists)
		}
		assert.Equal(t, 1, created)
		mutes, err := s.ListMutes(t.Context(), models.MuteFilter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Len(t, mutes, 1)
	})
}

func TestDeactivateAndDeleteUnknown(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		assert.ErrorIs(t, s.Deactivate(t.Context(), 999), types.ErrMuteNotFound)
		_, err := s.DeleteMute(t.Context(), 999)
		assert.ErrorIs(t, err, types.ErrMuteNotFound)
		_, err = s.GetMute(t.Context(), 999)
		assert.ErrorIs(t, err, types.ErrMuteNotFound)
	})
}

func TestDeleteMute(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		created, err := s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		require.NoError(t, err)
		deleted, err := s.DeleteMute(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, deleted.ID)
		assert.Equal(t, types.Snowflake(42), deleted.UserID)

		_, err = s.DeleteMute(t.Context(), created.ID)
		assert.ErrorIs(t, err, types.ErrMuteNotFound)
		found, err := s.FindActiveMute(t.Context(), 42, 7)
		require.NoError(t, err)
		assert.Nil(t, found)
		// The active slot is released with the record
		_, err = s.CreateMute(t.Context(), muteParams(42, 7, time.Minute))
		assert.NoError(t, err)
	})
}

func TestListMutes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		var ids []uint
		for i := range 4 {
			p := muteParams(types.Snowflake(100+i), 7, time.Minute)
			p.Start = testStart.Add(time.Duration(3-i) * time.Hour)
			m, err := s.CreateMute(t.Context(), p)
			require.NoError(t, err)
			ids = append(ids, m.ID)
		}
		_, err := s.CreateMute(t.Context(), muteParams(100, 8, time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Deactivate(t.Context(), ids[0]))

		guild := types.Snowflake(7)
		mutes, err := s.ListMutes(t.Context(), models.MuteFilter{GuildID: &guild})
		require.NoError(t, err)
		require.Len(t, mutes, 4)
		// Ascending by start time
		assert.Equal(t, []uint{ids[3], ids[2], ids[1], ids[0]}, muteIDs(mutes))

		mutes, err = s.ListMutes(t.Context(), models.MuteFilter{GuildID: &guild, ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, []uint{ids[3], ids[2], ids[1]}, muteIDs(mutes))

		mutes, err = s.ListMutes(t.Context(), models.MuteFilter{GuildID: &guild, Descending: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []uint{ids[0], ids[1]}, muteIDs(mutes))

		user := types.Snowflake(100)
		mutes, err = s.ListMutes(t.Context(), models.MuteFilter{UserID: &user})
		require.NoError(t, err)
		assert.Len(t, mutes, 2)

		mutes, err = s.ListMutes(t.Context(), models.MuteFilter{ActiveOnly: true})
		require.NoError(t, err)
		assert.Len(t, mutes, 4)
	})
}

func muteIDs(mutes []models.Mute) []uint {
	ret := make([]uint, 0, len(mutes))
	for _, m := range mutes {
		ret = append(ret, m.ID)
	}
	return ret
}

func TestWarns(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		for i := range 3 {
			w := &models.Warn{
				UserID:      42,
				GuildID:     7,
				ModeratorID: 1,
				Reason:      "rude",
				Timestamp:   testStart.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.CreateWarn(t.Context(), w))
			assert.NotZero(t, w.ID)
		}
		require.NoError(t, s.CreateWarn(t.Context(), &models.Warn{UserID: 43, GuildID: 7, Timestamp: testStart}))

		warns, err := s.ListWarns(t.Context(), 7, 42, 0)
		require.NoError(t, err)
		require.Len(t, warns, 3)
		assert.True(t, warns[0].Timestamp.After(warns[1].Timestamp))

		warns, err = s.ListWarns(t.Context(), 7, 42, 2)
		require.NoError(t, err)
		assert.Len(t, warns, 2)

		warns, err = s.ListWarns(t.Context(), 8, 42, 0)
		require.NoError(t, err)
		assert.Empty(t, warns)
	})
}

func TestGuildConfig(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		_, ok, err := s.MuteRoleID(t.Context(), 7)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.GetGuild(t.Context(), 7)
		assert.True(t, errors.Is(err, types.ErrGuildNotFound))

		role := types.Snowflake(555)
		require.NoError(t, s.SetMuteRole(t.Context(), 7, &role))
		roleID, ok, err := s.MuteRoleID(t.Context(), 7)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, role, roleID)

		modRole := types.Snowflake(777)
		require.NoError(t, s.SetModRole(t.Context(), 7, &modRole))
		guild, err := s.GetGuild(t.Context(), 7)
		require.NoError(t, err)
		require.NotNil(t, guild.ModRoleID)
		assert.Equal(t, modRole, *guild.ModRoleID)
		require.NotNil(t, guild.MuteRoleID)

		require.NoError(t, s.SetMuteRole(t.Context(), 7, nil))
		_, ok, err = s.MuteRoleID(t.Context(), 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNewFromRegistry(t *testing.T) {
	require.NoError(t, setDataDir("sqlite", ""))
	s, err := store.New("sqlite", nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()
	_, err = s.CreateMute(t.Context(), muteParams(1, 2, time.Second))
	require.NoError(t, err)

	_, err = store.New("does-not-exist", nil)
	assert.Error(t, err)
}
