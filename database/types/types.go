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

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMuteNotFound is returned when a mute id does not match a stored record
var ErrMuteNotFound = errors.New("mute not found")

// ErrInvalidDuration is returned when a mute is created with a non-positive duration
var ErrInvalidDuration = errors.New("invalid mute duration")

// ErrActiveMuteExists is returned when a write would leave more than one
// active mute for the same user and guild
var ErrActiveMuteExists = errors.New("active mute already exists")

// ErrMuteNotActive is returned when ending a mute that has already ended
var ErrMuteNotActive = errors.New("mute not active")

// ErrGuildNotFound is returned when a guild has no stored configuration
var ErrGuildNotFound = errors.New("guild not found")

// Snowflake is a chat platform identifier. It is stored as an integer and
// encoded as a decimal string in JSON.
//
//nolint:recvcheck
type Snowflake uint64

// ParseSnowflake parses a decimal string into a Snowflake
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", s, err)
	}
	return Snowflake(v), nil
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	// Accept both quoted and bare numbers
	if unquoted, err := strconv.Unquote(str); err == nil {
		str = unquoted
	}
	tmp, err := ParseSnowflake(str)
	if err != nil {
		return err
	}
	*s = tmp
	return nil
}
