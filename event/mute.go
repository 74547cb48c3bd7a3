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

package event

import "github.com/blinklabs-io/warden/database/models"

const (
	MuteCreatedEventType EventType = "mute.created"
	MuteEndedEventType   EventType = "mute.ended"
)

// MuteEndReason describes how a mute stopped being active
type MuteEndReason string

const (
	MuteEndExpired MuteEndReason = "expired"
	MuteEndUnmuted MuteEndReason = "unmuted"
	MuteEndDeleted MuteEndReason = "deleted"
)

type MuteCreatedEvent struct {
	Mute models.Mute
}

type MuteEndedEvent struct {
	Reason MuteEndReason
	Mute   models.Mute
}
