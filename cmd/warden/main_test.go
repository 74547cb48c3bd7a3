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


package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/warden/api"
	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/internal/test/testutil"
	"github.com/blinklabs-io/warden/mute"
	"github.com/blinklabs-io/warden/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild    types.Snowflake = 7
	testUser     types.Snowflake = 42
	testMuteRole types.Snowflake = 555
)

func newTestAPI(t *testing.T) (string, *memory.Platform) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	s := testutil.NewStore(t)
	p := memory.New(nil)
	p.CreateGuild(testGuild, "Test Guild", testMuteRole)
	require.NoError(t, p.Join(testGuild, testUser))
	m, err := mute.NewManager(mute.ManagerConfig{Store: s, Platform: p})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewServer(api.ServerConfig{}, m, nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL, p
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd, err := newRootCommand()
	require.NoError(t, err)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestAdminCommands(t *testing.T) {
	apiURL, p := newTestAPI(t)

	out, err := runCommand(t, "mute-role", "--api", apiURL, "--guild", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "guild 7 has no mute role configured")

	out, err = runCommand(t, "mute-role", "--api", apiURL, "--guild", "7", "--set", "555")
	require.NoError(t, err)
	assert.Contains(t, out, "guild 7 mute role: 555")

	out, err = runCommand(
		t,
		"mute", "--api", apiURL,
		"--guild", "7", "--user", "42",
		"--duration", "1d", "--reason", "spam",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "muted 42 for 1 day")
	assert.True(t, p.HasRole(testGuild, testUser, testMuteRole))

	_, err = runCommand(
		t,
		"mute", "--api", apiURL,
		"--guild", "7", "--user", "42", "--duration", "1h",
	)
	require.ErrorIs(t, err, mute.ErrAlreadyMuted)

	out, err = runCommand(t, "mutes", "--api", apiURL, "--guild", "7", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "#1 user 42: 1 day")
	assert.Contains(t, out, "reason: spam")

	out, err = runCommand(t, "unmute", "--api", apiURL, "--guild", "7", "--user", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "unmuted 42")
	assert.False(t, p.HasRole(testGuild, testUser, testMuteRole))

	out, err = runCommand(t, "warn", "--api", apiURL, "--guild", "7", "--user", "42", "--reason", "rude")
	require.NoError(t, err)
	assert.Contains(t, out, "warned 42")

	out, err = runCommand(t, "warns", "--api", apiURL, "--guild", "7", "--user", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "reason: rude")

	out, err = runCommand(t, "delete-mute", "--api", apiURL, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted mute #1 for 42")

	out, err = runCommand(t, "mutes", "--api", apiURL, "--guild", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "no mutes")

	out, err = runCommand(t, "mod-role", "--api", apiURL, "--guild", "7", "--set", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "guild 7 mod role: 9")
	out, err = runCommand(t, "mod-role", "--api", apiURL, "--guild", "7", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "has no mod role configured")
}

func TestAdminCommandErrors(t *testing.T) {
	apiURL, _ := newTestAPI(t)

	_, err := runCommand(t, "mute", "--api", apiURL, "--user", "42", "--duration", "1h")
	require.ErrorContains(t, err, "--guild is required")

	_, err = runCommand(t, "mute", "--api", apiURL, "--guild", "abc", "--user", "42")
	require.ErrorContains(t, err, "invalid snowflake")

	_, err = runCommand(t, "mute", "--api", apiURL, "--guild", "7", "--user", "42", "--duration", "1h")
	require.ErrorIs(t, err, mute.ErrMuteRoleNotConfigured)

	_, err = runCommand(t, "unmute", "--api", apiURL, "--guild", "7", "--user", "42")
	require.ErrorIs(t, err, mute.ErrNotMuted)

	_, err = runCommand(t, "delete-mute", "--api", apiURL, "x")
	require.ErrorContains(t, err, "invalid mute id")

	_, err = runCommand(t, "mute-role", "--api", apiURL, "--guild", "7", "--set", "1", "--clear")
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestVersionAndList(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "warden "))

	out, err = runCommand(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"sqlite", "postgres", "mysql", "badger"} {
		assert.Contains(t, out, "  "+name+": ")
	}
	assert.Contains(t, out, "--store-sqlite-data-dir")

	shouldExit, output := listPlugins("list")
	assert.True(t, shouldExit)
	assert.Contains(t, output, "Available store plugins:")
	shouldExit, _ = listPlugins("sqlite")
	assert.False(t, shouldExit)
}

func TestFormatMute(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &models.Mute{
		ID:     3,
		UserID: testUser,
		Start:  now.Add(-time.Hour),
		End:    now.Add(time.Hour),
		Reason: "spam",
		Active: true,
	}
	assert.Equal(
		t,
		"#3 user 42: 2 hours, started 1 hour ago (active, ends 1 hour from now), reason: spam",
		formatMute(m, now),
	)
	m.Active = false
	m.Reason = ""
	assert.Equal(t, "#3 user 42: 2 hours, started 1 hour ago (ended)", formatMute(m, now))

	w := &models.Warn{ID: 1, UserID: testUser, ModeratorID: 9, Timestamp: now.Add(-48 * time.Hour)}
	assert.Equal(t, "#1 user 42 by 9, 2 days ago", formatWarn(w, now))
}
