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

package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/blinklabs-io/warden/database/plugin/store/gormstore"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const databaseFileName = "warden.sqlite"

var memoryDbCounter atomic.Uint64

// StoreSqlite is a SQLite-based implementation of the moderation store
type StoreSqlite struct {
	*gormstore.Store
	logger  *slog.Logger
	dataDir string
}

// New creates a SQLite store. Uses an in-memory database if dataDir is empty.
func New(dataDir string, logger *slog.Logger) (*StoreSqlite, error) {
	return NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
	)
}

// NewWithOptions creates a SQLite store with options. The database is
// opened in Start()
func NewWithOptions(opts ...SqliteOptionFunc) (*StoreSqlite, error) {
	s := &StoreSqlite{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s, nil
}

// SetLogger replaces the logger used by the store. It must be called before Start()
func (s *StoreSqlite) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start implements the plugin.Plugin interface
func (s *StoreSqlite) Start() error {
	var dsn string
	if s.dataDir == "" {
		// Each in-memory store gets its own named database. cache=shared lets
		// the pool's connections see the same data
		dsn = fmt.Sprintf(
			"file:warden-%d?mode=memory&cache=shared",
			memoryDbCounter.Add(1),
		)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// WAL journal mode, wait on lock contention instead of failing
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		dsn = fmt.Sprintf(
			"file:%s?%s",
			filepath.Join(s.dataDir, databaseFileName),
			connOpts,
		)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return err
	}
	if s.dataDir == "" {
		// Shared-cache in-memory databases report table locks instead of
		// waiting, so serialize access through a single connection
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	store, err := gormstore.New(db, s.logger)
	if err != nil {
		return err
	}
	s.Store = store
	s.logger.Debug(
		"opened sqlite store",
		"component", "store",
		"data_dir", s.dataDir,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StoreSqlite) Stop() error {
	if s.Store == nil {
		return nil
	}
	return s.Close()
}
