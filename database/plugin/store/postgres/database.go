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

package postgres

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/warden/database/plugin/store/gormstore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// StorePostgres stores moderation data in Postgres
type StorePostgres struct {
	*gormstore.Store
	logger   *slog.Logger
	host     string
	user     string
	password string
	database string
	sslMode  string
	timeZone string
	dsn      string
	port     uint
}

// NewWithOptions creates a Postgres store with options. The connection is
// made in Start()
func NewWithOptions(opts ...PostgresOptionFunc) (*StorePostgres, error) {
	s := &StorePostgres{}
	for _, opt := range opts {
		opt(s)
	}
	// Set defaults after options are applied
	if s.host == "" {
		s.host = "localhost"
	}
	if s.port == 0 {
		s.port = 5432
	}
	if s.user == "" {
		s.user = "postgres"
	}
	if s.database == "" {
		s.database = "warden"
	}
	if s.sslMode == "" {
		s.sslMode = "disable"
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s, nil
}

// SetLogger replaces the logger used by the store. It must be called before Start()
func (s *StorePostgres) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// buildDSN returns the configured DSN or assembles one from the options
func (s *StorePostgres) buildDSN() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + s.host,
		"user=" + s.user,
		"password=" + s.password,
		"dbname=" + s.database,
		"port=" + strconv.FormatUint(uint64(s.port), 10),
		"sslmode=" + s.sslMode,
	}
	if s.timeZone != "" {
		parts = append(parts, "TimeZone="+s.timeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (s *StorePostgres) Start() error {
	db, err := gorm.Open(
		postgres.Open(s.buildDSN()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return err
	}
	s.logger.Info(
		"connected to postgres store",
		"component", "store",
		"host", s.host,
		"port", s.port,
		"database", s.database,
	)
	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	store, err := gormstore.New(db, s.logger)
	if err != nil {
		return err
	}
	s.Store = store
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *StorePostgres) Stop() error {
	if s.Store == nil {
		return nil
	}
	return s.Close()
}
