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

import "log/slog"

type MysqlOptionFunc func(*StoreMysql)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.logger = logger
	}
}

// WithHost specifies the MySQL host
func WithHost(host string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.host = host
	}
}

// WithPort specifies the MySQL port
func WithPort(port uint) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.port = port
	}
}

// WithUser specifies the MySQL user
func WithUser(user string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.user = user
	}
}

// WithPassword specifies the MySQL password
func WithPassword(password string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.password = password
	}
}

// WithDatabase specifies the MySQL database name
func WithDatabase(database string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.database = database
	}
}

// WithSSLMode specifies the MySQL TLS mode
func WithSSLMode(sslMode string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.sslMode = sslMode
	}
}

// WithTimeZone specifies the MySQL time zone location
func WithTimeZone(timeZone string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.timeZone = timeZone
	}
}

// WithDSN specifies a full MySQL DSN, which takes precedence over the
// individual connection options
func WithDSN(dsn string) MysqlOptionFunc {
	return func(s *StoreMysql) {
		s.dsn = dsn
	}
}
