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

package mysql

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/blinklabs-io/warden/database/plugin/store/gormstore"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// StoreMysql stores moderation data in MySQL
type StoreMysql struct {
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

// NewWithOptions creates a MySQL store with options. The connection is made
// in Start()
func NewWithOptions(opts ...MysqlOptionFunc) (*StoreMysql, error) {
	s := &StoreMysql{}
	for _, opt := range opts {
		opt(s)
	}
	if s.host == "" {
		s.host = "localhost"
	}
	if s.port == 0 {
		s.port = 3306
	}
	if s.user == "" {
		s.user = "root"
	}
	if s.database == "" {
		s.database = "warden"
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s, nil
}

// SetLogger replaces the logger used by the store. It must be called before Start()
func (s *StoreMysql) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *StoreMysql) buildDSN() string {
	if dsn := strings.TrimSpace(s.dsn); dsn != "" {
		return dsn
	}
	cfg := mysql.Config{
		User:                 s.user,
		Passwd:               s.password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%d", s.host, s.port),
		DBName:               s.database,
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	if s.timeZone != "" {
		loc, err := time.LoadLocation(s.timeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if s.sslMode != "" {
		cfg.TLSConfig = s.sslMode
	}
	return cfg.FormatDSN()
}

// Start implements the plugin.Plugin interface
func (s *StoreMysql) Start() error {
	db, err := gorm.Open(
		gormmysql.Open(s.buildDSN()),
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
		"connected to mysql store",
		"component", "store",
		"host", s.host,
		"port", s.port,
		"database", s.database,
	)
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
func (s *StoreMysql) Stop() error {
	if s.Store == nil {
		return nil
	}
	return s.Close()
}
