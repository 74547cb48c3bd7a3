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

package event_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/warden/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEventBusSingleSubscriber(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(event.MemberJoinEventType)
	eb.Publish(
		event.MemberJoinEventType,
		event.NewEvent(event.MemberJoinEventType, event.MemberJoinEvent{GuildID: 7, UserID: 42}),
	)
	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		data, ok := evt.Data.(event.MemberJoinEvent)
		require.True(t, ok, "unexpected event data type %T", evt.Data)
		assert.Equal(t, event.MemberJoinEvent{GuildID: 7, UserID: 42}, data)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(event.MuteCreatedEventType)
	_, sub2Ch := eb.Subscribe(event.MuteCreatedEventType)
	_, otherCh := eb.Subscribe(event.MuteEndedEventType)
	eb.Publish(event.MuteCreatedEventType, event.NewEvent(event.MuteCreatedEventType, 1))
	for _, ch := range []<-chan event.Event{sub1Ch, sub2Ch} {
		select {
		case evt := <-ch:
			assert.Equal(t, event.MuteCreatedEventType, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
	select {
	case <-otherCh:
		t.Fatal("received event for another type")
	default:
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(event.MemberLeaveEventType)
	eb.Unsubscribe(event.MemberLeaveEventType, subId)
	_, ok := <-subCh
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// Publishing with no subscribers is a no-op
	eb.Publish(event.MemberLeaveEventType, event.NewEvent(event.MemberLeaveEventType, nil))
}

func TestEventBusSubscribeFunc(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	var count atomic.Int32
	eb.SubscribeFunc(event.MemberJoinEventType, func(event.Event) {
		count.Add(1)
	})
	for range 3 {
		eb.Publish(event.MemberJoinEventType, event.NewEvent(event.MemberJoinEventType, nil))
	}
	require.Eventually(
		t,
		func() bool { return count.Load() == 3 },
		time.Second,
		5*time.Millisecond,
	)
	eb.Stop()
}

func TestEventBusHandlerPanic(t *testing.T) {
	defer goleak.VerifyNone(t)
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	var count atomic.Int32
	eb.SubscribeFunc(event.MemberJoinEventType, func(evt event.Event) {
		count.Add(1)
		if evt.Data == "boom" {
			panic("boom")
		}
	})
	eb.Publish(event.MemberJoinEventType, event.NewEvent(event.MemberJoinEventType, "boom"))
	eb.Publish(event.MemberJoinEventType, event.NewEvent(event.MemberJoinEventType, "ok"))
	require.Eventually(
		t,
		func() bool { return count.Load() == 2 },
		time.Second,
		5*time.Millisecond,
	)
	eb.Stop()
	assert.Equal(t, float64(2), counterValue(t, reg, "warden_event_published_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "warden_event_handler_panics_total"))
}

func TestEventBusPublishAsync(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(event.MuteEndedEventType)
	require.True(t, eb.PublishAsync(event.MuteEndedEventType, event.NewEvent(event.MuteEndedEventType, 5)))
	select {
	case evt := <-subCh:
		assert.Equal(t, 5, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
	eb.Stop()
	assert.False(t, eb.PublishAsync(event.MuteEndedEventType, event.NewEvent(event.MuteEndedEventType, 6)))
	// Stop is idempotent
	eb.Stop()
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
