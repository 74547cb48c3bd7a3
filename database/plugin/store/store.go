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

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/plugin"
	"github.com/blinklabs-io/warden/database/types"

	// Register store plugins
	_ "github.com/blinklabs-io/warden/database/plugin/store/badger"
	_ "github.com/blinklabs-io/warden/database/plugin/store/mysql"
	_ "github.com/blinklabs-io/warden/database/plugin/store/postgres"
	_ "github.com/blinklabs-io/warden/database/plugin/store/sqlite"
)

const DefaultPlugin = "sqlite"

// MuteStore is the durable record of mutes. It carries no business logic:
// the one-active-mute rule is checked by the caller, although backends also
// reject a second active record with types.ErrActiveMuteExists.
type MuteStore interface {
	// CreateMute stores a new active mute ending at Start+Duration. It fails
	// with types.ErrInvalidDuration for non-positive durations
	CreateMute(context.Context, models.MuteParams) (*models.Mute, error)
	GetMute(context.Context, uint) (*models.Mute, error)
	// FindActiveMute returns nil without error when there is no active mute
	FindActiveMute(ctx context.Context, userID, guildID types.Snowflake) (*models.Mute, error)
	ListMutes(context.Context, models.MuteFilter) ([]models.Mute, error)
	// Deactivate ends an active mute. A mute never becomes active again, so
	// ending one twice fails with types.ErrMuteNotActive
	Deactivate(context.Context, uint) error
	DeleteMute(context.Context, uint) (*models.Mute, error)
}

// WarnStore is the append-only warn log
type WarnStore interface {
	CreateWarn(context.Context, *models.Warn) error
	ListWarns(ctx context.Context, guildID, userID types.Snowflake, limit int) ([]models.Warn, error)
}

// GuildConfig holds per-guild moderation settings
type GuildConfig interface {
	GetGuild(context.Context, types.Snowflake) (*models.Guild, error)
	SetMuteRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error
	SetModRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error
	// MuteRoleID reports false when the guild has no mute role configured
	MuteRoleID(ctx context.Context, guildID types.Snowflake) (types.Snowflake, bool, error)
}

type Store interface {
	plugin.Plugin
	MuteStore
	WarnStore
	GuildConfig
}

type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// New returns the named store plugin configured from its registered options.
// The store must be started before use
func New(pluginName string, logger *slog.Logger) (Store, error) {
	p := plugin.GetPlugin(plugin.PluginTypeStore, pluginName)
	if p == nil {
		return nil, fmt.Errorf("store plugin '%s' not found", pluginName)
	}
	if errPlugin, ok := p.(*plugin.ErrorPlugin); ok {
		return nil, errPlugin.Err
	}
	s, ok := p.(Store)
	if !ok {
		return nil, fmt.Errorf("plugin '%s' is not a store", pluginName)
	}
	if logger != nil {
		if ls, ok := s.(loggerSetter); ok {
			ls.SetLogger(logger)
		}
	}
	return s, nil
}
