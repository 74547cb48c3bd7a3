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


package warden

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/blinklabs-io/warden/api"
	"github.com/blinklabs-io/warden/database/plugin"
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
	testGuild    types.Snowflake = 7
	testUser     types.Snowflake = 42
	testEvader   types.Snowflake = 43
	testMod      types.Snowflake = 1
	testMuteRole types.Snowflake = 555
)

func memoryPlatform(t *testing.T, dest **memory.Platform) PlatformFunc {
	t.Helper()
	return func(eb *event.EventBus) (platform.Platform, error) {
		p := memory.New(eb)
		p.CreateGuild(testGuild, "Test Guild", testMuteRole)
		if err := p.Join(testGuild, testUser); err != nil {
			return nil, err
		}
		if err := p.Join(testGuild, testEvader); err != nil {
			return nil, err
		}
		*dest = p
		return p, nil
	}
}

func inMemoryStore(t *testing.T) {
	t.Helper()
	require.NoError(
		t,
		plugin.SetPluginOption(plugin.PluginTypeStore, "sqlite", "data-dir", ""),
	)
	t.Cleanup(func() {
		_ = plugin.SetPluginOption(
			plugin.PluginTypeStore,
			"sqlite",
			"data-dir",
			".warden",
		)
	})
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(NewConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no platform configured")

	var p *memory.Platform
	_, err = New(NewConfig(
		WithPlatform(memoryPlatform(t, &p)),
		WithReconcileInterval(0),
	))
	require.Error(t, err)

	_, err = New(NewConfig(
		WithPlatform(memoryPlatform(t, &p)),
		WithReconcileWorkers(0),
	))
	require.Error(t, err)

	_, err = New(NewConfig(
		WithPlatform(memoryPlatform(t, &p)),
		WithStorePlugin(""),
	))
	require.Error(t, err)
}

func TestRunUnknownStore(t *testing.T) {
	var p *memory.Platform
	w, err := New(NewConfig(
		WithPlatform(memoryPlatform(t, &p)),
		WithStorePlugin("nonexistent"),
	))
	require.NoError(t, err)
	err = w.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load store")
	require.NoError(t, w.Stop())
}

func TestRunPlatformError(t *testing.T) {
	inMemoryStore(t)
	w, err := New(NewConfig(
		WithPlatform(func(*event.EventBus) (platform.Platform, error) {
			return nil, errors.New("gateway unavailable")
		}),
	))
	require.NoError(t, err)
	err = w.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway unavailable")
	require.NoError(t, w.Stop())
}

func TestWardenLifecycle(t *testing.T) {
	inMemoryStore(t)
	var p *memory.Platform
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	w, err := New(NewConfig(
		WithPlatform(memoryPlatform(t, &p)),
		WithClock(mock),
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithAPIListenAddress("127.0.0.1:0"),
		WithShutdownTimeout(5*time.Second),
	))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- w.Run(ctx)
	}()
	select {
	case <-w.Ready():
	case err := <-runErr:
		t.Fatalf("run failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for warden to start")
	}
	require.NotNil(t, w.Manager())
	addr := w.APIAddr()
	require.NotNil(t, addr)

	client := api.NewClient("http://"+addr.String(), nil)
	require.NoError(t, client.Health(ctx))
	roleID := testMuteRole
	require.NoError(t, client.SetMuteRole(ctx, testGuild, &roleID))

	// A mute issued through the API applies the role
	resp, err := client.Mute(ctx, testGuild, api.MuteRequest{
		UserID:      testUser,
		ModeratorID: testMod,
		Duration:    "1m",
		Reason:      "spam",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Mute)
	assert.Empty(t, resp.Warning)
	assert.True(t, p.HasRole(testGuild, testUser, testMuteRole))
	_, err = client.Mute(ctx, testGuild, api.MuteRequest{
		UserID:   testUser,
		Duration: "5m",
	})
	require.ErrorIs(t, err, mute.ErrAlreadyMuted)

	// Leaving and rejoining while muted brings the role back
	_, err = w.Manager().Mute(ctx, mute.MuteRequest{
		UserID:      testEvader,
		GuildID:     testGuild,
		ModeratorID: testMod,
		Duration:    time.Hour,
	})
	require.NoError(t, err)
	p.Leave(testGuild, testEvader)
	require.NoError(t, p.Join(testGuild, testEvader))
	testutil.WaitForCondition(
		t,
		func() bool {
			return p.HasRole(testGuild, testEvader, testMuteRole)
		},
		5*time.Second,
		"mute role restored after rejoin",
	)

	// The reconciler ends the first mute once it is due
	require.Eventually(
		t,
		func() bool {
			mock.Add(10 * time.Second)
			return !p.HasRole(testGuild, testUser, testMuteRole)
		},
		5*time.Second,
		10*time.Millisecond,
	)
	testutil.WaitForCondition(
		t,
		func() bool {
			return slices.Contains(
				p.Messages(testUser),
				mute.UnmutedMessage("Test Guild"),
			)
		},
		5*time.Second,
		"expiry notification",
	)
	_, err = client.ActiveMute(ctx, testGuild, testUser)
	require.ErrorIs(t, err, mute.ErrNotMuted)
	// The longer mute is untouched
	assert.True(t, p.HasRole(testGuild, testEvader, testMuteRole))

	require.NoError(t, w.Stop())
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to return")
	}
	require.NoError(t, w.Stop())
	// A stopped instance cannot be restarted
	require.Error(t, w.Run(t.Context()))
}
