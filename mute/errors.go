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

package mute

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/platform"
)

var (
	ErrAlreadyMuted    = errors.New("user is already muted")
	ErrNotMuted        = errors.New("user is not muted")
	ErrMuteNotFound    = types.ErrMuteNotFound
	ErrInvalidDuration = types.ErrInvalidDuration
	// ErrMuteRoleNotConfigured is a guild configuration error, not a
	// lifecycle error
	ErrMuteRoleNotConfigured = errors.New("mute role is not configured")
	ErrRoleApplyFailed       = errors.New("mute role change failed")
)

// RoleApplyError reports that a mute was recorded or ended but the
// corresponding role change did not take effect. It matches
// ErrRoleApplyFailed.
type RoleApplyError struct {
	Op     string
	Result platform.RoleResult
}

func (e *RoleApplyError) Error() string {
	return fmt.Sprintf("%s mute role: %s", e.Op, e.Result)
}

func (e *RoleApplyError) Is(target error) bool {
	return target == ErrRoleApplyFailed
}

func (e *RoleApplyError) Unwrap() error {
	return e.Result.Err
}
