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

package mute_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin/store/sqlite"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/internal/test/testutil"
	"github.com/blinklabs-io/warden/mute"
	"github.com/blinklabs-io/warden/platform"
	"github.com/blinklabs-io/warden/platform/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild     types.Snowflake = 7
	testUser      types.Snowflake = 42
	testModerator types.Snowflake = 1
	testMuteRole  types.Snowflake = 555
)

type testEnv struct {
	manager  *mute.Manager
	store    *sqlite.StoreSqlite
	platform *memory.Platform
	clock    *clock.Mock
	registry *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := testutil.NewStore(t)
	p := memory.New(nil)
	p.CreateGuild(testGuild, "Test Guild", testMuteRole)
	require.NoError(t, p.Join(testGuild, testUser))
	roleID := testMuteRole
	require.NoError(t, s.SetMuteRole(t.Context(), testGuild, &roleID))
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	m, err := mute.NewManager(mute.ManagerConfig{
		Store:        s,
		Platform:     p,
		Clock:        mock,
		PromRegistry: reg,
	})
	require.NoError(t, err)
	return &testEnv{
		manager:  m,
		store:    s,
		platform: p,
		clock:    mock,
		registry: reg,
	}
}

func (e *testEnv) muteRequest(d time.Duration) mute.MuteRequest {
	return mute.MuteRequest{
		Reason:      "spam",
		Duration:    d,
		UserID:      testUser,
		GuildID:     testGuild,
		ModeratorID: testModerator,
	}
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := mute.NewManager(mute.ManagerConfig{})
	assert.Error(t, err)
}

func TestMuteRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(15*time.Second))
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.True(t, env.clock.Now().Equal(created.Start))

	active, err := env.manager.ActiveMute(ctx, testUser, testGuild)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
	assert.Equal(t, testUser, active.UserID)
	assert.Equal(t, testGuild, active.GuildID)
	assert.Equal(t, "spam", active.Reason)
	assert.Equal(t, 15*time.Second, active.End.Sub(active.Start))

	assert.True(t, env.platform.HasRole(testGuild, testUser, testMuteRole))
	msgs := env.platform.Messages(testUser)
	require.Len(t, msgs, 1)
	assert.Equal(t, "You have been muted in **Test Guild** for 15 seconds, reason: *spam*", msgs[0])
	assert.Equal(t, 1.0, testutil.CounterValue(t, env.registry, "warden_mutes_created_total", ""))
}

func TestMuteInvalidDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	for _, d := range []time.Duration{0, -5 * time.Second} {
		_, err := env.manager.Mute(ctx, env.muteRequest(d))
		assert.ErrorIs(t, err, mute.ErrInvalidDuration)
	}
	mutes, err := env.manager.ListMutes(ctx, models.MuteFilter{})
	require.NoError(t, err)
	assert.Empty(t, mutes)
	assert.Empty(t, env.platform.RoleCalls())
}

func TestMuteRejectsSecondMute(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	_, err := env.manager.Mute(ctx, env.muteRequest(time.Minute))
	require.NoError(t, err)
	_, err = env.manager.Mute(ctx, env.muteRequest(time.Hour))
	assert.ErrorIs(t, err, mute.ErrAlreadyMuted)
	mutes, err := env.manager.ListMutes(ctx, models.MuteFilter{})
	require.NoError(t, err)
	require.Len(t, mutes, 1)
	// The original mute was not extended
	assert.Equal(t, time.Minute, mutes[0].Duration())
}

// Concurrent requests for the same user are resolved by the store's unique
// active-mute index when both pass the precondition read
func TestMuteConcurrent(t *testing.T) {
	env := newTestEnv(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, rejected int
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.manager.Mute(t.Context(), env.muteRequest(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, mute.ErrAlreadyMuted):
				rejected++
			default:
				t.Errorf("unexpected error: %s", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, rejected)
}

func TestMuteWithoutMuteRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	require.NoError(t, env.manager.SetMuteRole(ctx, testGuild, nil))
	_, err := env.manager.Mute(ctx, env.muteRequest(time.Minute))
	assert.ErrorIs(t, err, mute.ErrMuteRoleNotConfigured)
	_, err = env.manager.ActiveMute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
	assert.Equal(
		t,
		1.0,
		testutil.CounterValue(t, env.registry, "warden_mutes_rejected_total", "no_mute_role"),
	)
}

func TestMuteRoleFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	env.platform.FailRoleChanges(
		testGuild,
		testUser,
		platform.RoleErr(platform.RolePermissionDenied, errors.New("missing permissions")),
	)
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, mute.ErrRoleApplyFailed)
	var roleErr *mute.RoleApplyError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, platform.RolePermissionDenied, roleErr.Result.Outcome)
	require.NotNil(t, created)
	active, err := env.manager.ActiveMute(ctx, testUser, testGuild)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
}

func TestMuteAbsentMember(t *testing.T) {
	env := newTestEnv(t)
	env.platform.Leave(testGuild, testUser)
	created, err := env.manager.Mute(t.Context(), env.muteRequest(time.Minute))
	assert.ErrorIs(t, err, mute.ErrRoleApplyFailed)
	require.NotNil(t, created)
	assert.True(t, created.Active)
}

func TestMuteNotificationFailureSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.platform.FailDirectMessages(testUser, errors.New("dms closed"))
	_, err := env.manager.Mute(t.Context(), env.muteRequest(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, env.platform.Messages(testUser))
}

func TestMutePublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(event.MuteCreatedEventType)
	m, err := mute.NewManager(mute.ManagerConfig{
		Store:    env.store,
		Platform: env.platform,
		EventBus: eb,
		Clock:    env.clock,
	})
	require.NoError(t, err)
	created, err := m.Mute(t.Context(), env.muteRequest(time.Minute))
	require.NoError(t, err)
	select {
	case evt := <-ch:
		data, ok := evt.Data.(event.MuteCreatedEvent)
		require.True(t, ok)
		assert.Equal(t, created.ID, data.Mute.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for mute event")
	}
}

func TestUnmuteNotMuted(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Unmute(t.Context(), testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
	assert.Empty(t, env.platform.RoleCalls())
}

func TestUnmute(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	ended, err := env.manager.Unmute(ctx, testUser, testGuild)
	require.NoError(t, err)
	assert.Equal(t, created.ID, ended.ID)
	assert.False(t, ended.Active)
	assert.False(t, env.platform.HasRole(testGuild, testUser, testMuteRole))
	_, err = env.manager.ActiveMute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
	msgs := env.platform.Messages(testUser)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Your mute in Test Guild has ended.", msgs[1])
	// A new mute may be issued once the previous one has ended
	_, err = env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
}

// expiringPlatform ends the mute in the store while the role is removed
type expiringPlatform struct {
	*memory.Platform
	store *sqlite.StoreSqlite
	id    uint
}

func (p *expiringPlatform) RemoveRole(
	ctx context.Context,
	guildID, userID, roleID types.Snowflake,
	reason string,
) platform.RoleResult {
	if err := p.store.Deactivate(ctx, p.id); err != nil {
		return platform.RoleErr(platform.RoleFailed, err)
	}
	return p.Platform.RemoveRole(ctx, guildID, userID, roleID, reason)
}

func TestUnmuteAfterConcurrentExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, endedCh := eb.Subscribe(event.MuteEndedEventType)
	m, err := mute.NewManager(mute.ManagerConfig{
		Store:    env.store,
		Platform: &expiringPlatform{Platform: env.platform, store: env.store, id: created.ID},
		EventBus: eb,
		Clock:    env.clock,
	})
	require.NoError(t, err)
	_, err = m.Unmute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
	// Whoever ended the mute owns the notification
	assert.Len(t, env.platform.Messages(testUser), 1)
	testutil.RequireNoReceive(t, endedCh, 50*time.Millisecond, "mute ended event")
}

func TestUnmuteAbsentMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	_, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	env.platform.Leave(testGuild, testUser)
	ended, err := env.manager.Unmute(ctx, testUser, testGuild)
	require.NoError(t, err)
	assert.False(t, ended.Active)
}

func TestUnmuteRoleFailureStillEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	_, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	env.platform.FailRoleChanges(
		testGuild,
		testUser,
		platform.RoleErr(platform.RoleFailed, errors.New("gateway timeout")),
	)
	ended, err := env.manager.Unmute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrRoleApplyFailed)
	require.NotNil(t, ended)
	_, err = env.manager.ActiveMute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
}

func TestDeleteMute(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	deleted, err := env.manager.DeleteMute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.False(t, env.platform.HasRole(testGuild, testUser, testMuteRole))
	_, err = env.manager.DeleteMute(ctx, created.ID)
	assert.ErrorIs(t, err, mute.ErrMuteNotFound)
}

func TestDeleteMuteMemberLeft(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	env.platform.Leave(testGuild, testUser)
	callsBefore := len(env.platform.RoleCalls())
	deleted, err := env.manager.DeleteMute(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.Len(t, env.platform.RoleCalls(), callsBefore)
	mutes, err := env.manager.ListMutes(ctx, models.MuteFilter{})
	require.NoError(t, err)
	assert.Empty(t, mutes)
}

func TestDeleteMuteIgnoresRoleFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	created, err := env.manager.Mute(ctx, env.muteRequest(time.Hour))
	require.NoError(t, err)
	env.platform.FailRoleChanges(
		testGuild,
		testUser,
		platform.RoleErr(platform.RolePermissionDenied, errors.New("missing permissions")),
	)
	_, err = env.manager.DeleteMute(ctx, created.ID)
	require.NoError(t, err)
	_, err = env.manager.ActiveMute(ctx, testUser, testGuild)
	assert.ErrorIs(t, err, mute.ErrNotMuted)
}

func TestUserMutesHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	for range mute.HistoryLimit + 3 {
		_, err := env.manager.Mute(ctx, env.muteRequest(time.Minute))
		require.NoError(t, err)
		_, err = env.manager.Unmute(ctx, testUser, testGuild)
		require.NoError(t, err)
		env.clock.Add(time.Minute)
	}
	mutes, err := env.manager.UserMutes(ctx, testUser, testGuild)
	require.NoError(t, err)
	require.Len(t, mutes, mute.HistoryLimit)
	assert.True(t, mutes[0].Start.After(mutes[1].Start))
	active, err := env.manager.ActiveMutes(ctx, testGuild)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	for i := range mute.HistoryLimit + 2 {
		warn, err := env.manager.Warn(ctx, mute.WarnRequest{
			Reason:      "rude",
			UserID:      testUser,
			GuildID:     testGuild,
			ModeratorID: testModerator,
		})
		require.NoError(t, err)
		assert.NotZero(t, warn.ID, "warn %d", i)
		env.clock.Add(time.Second)
	}
	warns, err := env.manager.Warns(ctx, testUser, testGuild)
	require.NoError(t, err)
	require.Len(t, warns, mute.HistoryLimit)
	assert.True(t, warns[0].Timestamp.After(warns[1].Timestamp))
	msgs := env.platform.Messages(testUser)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "You have been warned in **Test Guild**, reason: *rude*", msgs[0])
}

func TestGuildRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()
	modRole := types.Snowflake(777)
	require.NoError(t, env.manager.SetModRole(ctx, testGuild, &modRole))
	guild, err := env.manager.Guild(ctx, testGuild)
	require.NoError(t, err)
	require.NotNil(t, guild.ModRoleID)
	assert.Equal(t, modRole, *guild.ModRoleID)
	require.NotNil(t, guild.MuteRoleID)
	assert.Equal(t, testMuteRole, *guild.MuteRoleID)
	_, err = env.manager.Guild(ctx, 99)
	assert.ErrorIs(t, err, types.ErrGuildNotFound)
}

