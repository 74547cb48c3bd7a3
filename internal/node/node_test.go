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


package node

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/internal/config"
	"github.com/blinklabs-io/warden/platform/discord"
	"github.com/blinklabs-io/warden/platform/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		BindAddr:          "127.0.0.1",
		ApiPort:           8080,
		StorePlugin:       "sqlite",
		ReconcileInterval: "10s",
		ReconcileWorkers:  8,
		RepairRoles:       true,
		ShutdownTimeout:   "30s",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestDiscordToken(t *testing.T) {
	cfg := testConfig()
	_, err := DiscordToken(cfg)
	require.ErrorIs(t, err, ErrNoDiscordToken)

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file\n"), 0o600))
	cfg.DiscordTokenFile = tokenFile
	token, err := DiscordToken(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)

	// An explicit token wins over the file
	cfg.DiscordToken = "direct"
	token, err = DiscordToken(cfg)
	require.NoError(t, err)
	assert.Equal(t, "direct", token)

	cfg.DiscordToken = ""
	cfg.DiscordTokenFile = filepath.Join(t.TempDir(), "missing")
	_, err = DiscordToken(cfg)
	require.Error(t, err)
}

func TestPlatformFunc(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	cfg := testConfig()
	cfg.Dev = true
	fn, err := PlatformFunc(cfg, discardLogger())
	require.NoError(t, err)
	p, err := fn(eb)
	require.NoError(t, err)
	assert.IsType(t, &memory.Platform{}, p)

	cfg.Dev = false
	_, err = PlatformFunc(cfg, discardLogger())
	require.ErrorIs(t, err, ErrNoDiscordToken)

	cfg.DiscordToken = "token"
	fn, err = PlatformFunc(cfg, discardLogger())
	require.NoError(t, err)
	p, err = fn(eb)
	require.NoError(t, err)
	assert.IsType(t, &discord.Discord{}, p)
}

func TestOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Dev = true
	opts, err := Options(cfg, discardLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg.ReconcileInterval = "never"
	_, err = Options(cfg, discardLogger())
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = testConfig()
	cfg.ShutdownTimeout = "-1s"
	_, err = Options(cfg, discardLogger())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRedacted(t *testing.T) {
	cfg := testConfig()
	cfg.DiscordToken = "secret"
	r := redacted(cfg)
	assert.Equal(t, "REDACTED", r.DiscordToken)
	assert.Equal(t, "secret", cfg.DiscordToken)
}
