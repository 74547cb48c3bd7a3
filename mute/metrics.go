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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type managerMetrics struct {
	mutesCreated   prometheus.Counter
	mutesRejected  *prometheus.CounterVec
	mutesEnded     *prometheus.CounterVec
	roleFailures   *prometheus.CounterVec
	notifyFailures prometheus.Counter
	warnsCreated   prometheus.Counter
}

func (m *Manager) initMetrics() {
	promautoFactory := promauto.With(m.config.PromRegistry)
	m.metrics = &managerMetrics{}
	m.metrics.mutesCreated = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_mutes_created_total",
		Help: "number of mutes created",
	})
	m.metrics.mutesRejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_mutes_rejected_total",
			Help: "number of mute requests rejected, by reason",
		},
		[]string{"reason"},
	)
	m.metrics.mutesEnded = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_mutes_ended_total",
			Help: "number of mutes ended by an explicit operation, by reason",
		},
		[]string{"reason"},
	)
	m.metrics.roleFailures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_mute_role_failures_total",
			Help: "number of failed mute role changes, by outcome",
		},
		[]string{"outcome"},
	)
	m.metrics.notifyFailures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_mute_notify_failures_total",
		Help: "number of direct messages that could not be delivered",
	})
	m.metrics.warnsCreated = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_warns_created_total",
		Help: "number of warns issued",
	})
}
