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

package discord

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/warden/event"
	"github.com/blinklabs-io/warden/platform"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSession struct {
	mu           sync.Mutex
	handlers     []any
	roleErr      error
	memberErr    error
	member       *discordgo.Member
	channelCalls int
	sent         map[string][]string
	opened       bool
}

func (f *fakeSession) Open() error {
	f.opened = true
	return nil
}

func (f *fakeSession) Close() error {
	f.opened = false
	return nil
}

func (f *fakeSession) AddHandler(handler any) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
	return func() {}
}

func (f *fakeSession) GuildMemberRoleAdd(_, _, _ string, _ ...discordgo.RequestOption) error {
	return f.roleErr
}

func (f *fakeSession) GuildMemberRoleRemove(_, _, _ string, _ ...discordgo.RequestOption) error {
	return f.roleErr
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelCalls++
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) GuildMember(_, _ string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	return f.member, f.memberErr
}

func (f *fakeSession) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	return &discordgo.Guild{ID: guildID, Name: "Test Guild"}, nil
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func TestRoleResult(t *testing.T) {
	testDefs := []struct {
		err     error
		outcome platform.RoleOutcome
	}{
		{nil, platform.RoleApplied},
		{restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember), platform.RoleMemberAbsent},
		{restError(http.StatusNotFound, discordgo.ErrCodeUnknownRole), platform.RoleMissing},
		{restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), platform.RolePermissionDenied},
		{restError(http.StatusForbidden, 0), platform.RolePermissionDenied},
		{restError(http.StatusInternalServerError, 0), platform.RoleFailed},
		{errors.New("connection reset"), platform.RoleFailed},
	}
	for _, testDef := range testDefs {
		res := roleResult(testDef.err)
		assert.Equal(t, testDef.outcome, res.Outcome, "error: %v", testDef.err)
		if testDef.err != nil {
			assert.ErrorIs(t, res.Err, testDef.err)
		}
	}
}

func TestAddRoleMapsErrors(t *testing.T) {
	s := &fakeSession{roleErr: restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions)}
	d := newWithSession(s, Config{})
	res := d.AddRole(t.Context(), 1, 2, 3, "muted")
	assert.Equal(t, platform.RolePermissionDenied, res.Outcome)
	s.roleErr = nil
	assert.True(t, d.RemoveRole(t.Context(), 1, 2, 3, "").OK())
}

func TestMember(t *testing.T) {
	s := &fakeSession{
		member: &discordgo.Member{
			GuildID: "1",
			User:    &discordgo.User{ID: "2"},
			Roles:   []string{"3", "not-a-snowflake"},
		},
	}
	d := newWithSession(s, Config{})
	m, err := d.Member(t.Context(), 1, 2)
	require.NoError(t, err)
	assert.True(t, m.HasRole(3))
	assert.Len(t, m.Roles, 1)

	s.memberErr = restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
	_, err = d.Member(t.Context(), 1, 2)
	assert.ErrorIs(t, err, platform.ErrMemberAbsent)

	name, err := d.GuildName(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Test Guild", name)
}

func TestDirectMessageChannelCached(t *testing.T) {
	s := &fakeSession{}
	d := newWithSession(s, Config{})
	require.NoError(t, d.SendDirectMessage(t.Context(), 42, "one"))
	require.NoError(t, d.SendDirectMessage(t.Context(), 42, "two"))
	assert.Equal(t, 1, s.channelCalls)
	assert.Equal(t, []string{"one", "two"}, s.sent["dm-42"])
}

func TestMemberEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, joinCh := eb.Subscribe(event.MemberJoinEventType)
	_, leaveCh := eb.Subscribe(event.MemberLeaveEventType)
	s := &fakeSession{}
	d := newWithSession(s, Config{EventBus: eb})
	require.NoError(t, d.Start(t.Context()))
	require.Len(t, s.handlers, 2)
	assert.True(t, s.opened)

	member := &discordgo.Member{GuildID: "7", User: &discordgo.User{ID: "42"}}
	s.handlers[0].(func(*discordgo.Session, *discordgo.GuildMemberAdd))(
		nil, &discordgo.GuildMemberAdd{Member: member},
	)
	select {
	case evt := <-joinCh:
		assert.Equal(t, event.MemberJoinEvent{GuildID: 7, UserID: 42}, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for join event")
	}
	s.handlers[1].(func(*discordgo.Session, *discordgo.GuildMemberRemove))(
		nil, &discordgo.GuildMemberRemove{Member: member},
	)
	select {
	case evt := <-leaveCh:
		assert.Equal(t, event.MemberLeaveEvent{GuildID: 7, UserID: 42}, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for leave event")
	}
	// Malformed ids are dropped
	s.handlers[0].(func(*discordgo.Session, *discordgo.GuildMemberAdd))(
		nil,
		&discordgo.GuildMemberAdd{
			Member: &discordgo.Member{GuildID: "x", User: &discordgo.User{ID: "42"}},
		},
	)
	select {
	case <-joinCh:
		t.Fatal("unexpected join event")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, d.Stop())
	assert.False(t, s.opened)
}
