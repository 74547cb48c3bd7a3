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
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// HumanDuration renders a duration for users, such as "15 seconds" or
// "2 days"
func HumanDuration(d time.Duration) string {
	start := time.Time{}
	return strings.TrimSpace(humanize.RelTime(start, start.Add(d), "", ""))
}

func mutedMessage(guildName string, d time.Duration, reason string) string {
	msg := fmt.Sprintf(
		"You have been muted in **%s** for %s",
		guildName,
		HumanDuration(d),
	)
	if reason != "" {
		msg += fmt.Sprintf(", reason: *%s*", reason)
	}
	return msg
}

// UnmutedMessage is the direct message sent when a mute ends
func UnmutedMessage(guildName string) string {
	return fmt.Sprintf("Your mute in %s has ended.", guildName)
}

func warnedMessage(guildName string, reason string) string {
	msg := fmt.Sprintf("You have been warned in **%s**", guildName)
	if reason != "" {
		msg += fmt.Sprintf(", reason: *%s*", reason)
	}
	return msg
}
