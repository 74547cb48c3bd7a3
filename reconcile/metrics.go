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

package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcilerMetrics struct {
	ticks          prometheus.Counter
	ticksSkipped   prometheus.Counter
	tickErrors     prometheus.Counter
	tickDuration   prometheus.Histogram
	activeMutes    prometheus.Gauge
	mutesExpired   prometheus.Counter
	rolesRepaired  prometheus.Counter
	recordFailures prometheus.Counter
}

func (r *Reconciler) initMetrics() {
	promautoFactory := promauto.With(r.config.PromRegistry)
	r.metrics = &reconcilerMetrics{}
	r.metrics.ticks = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_reconcile_ticks_total",
		Help: "number of completed reconcile ticks",
	})
	r.metrics.ticksSkipped = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_reconcile_ticks_skipped_total",
		Help: "number of ticks skipped because the previous tick was still running",
	})
	r.metrics.tickErrors = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_reconcile_tick_errors_total",
		Help: "number of ticks aborted by a store error",
	})
	r.metrics.tickDuration = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_reconcile_tick_duration_seconds",
			Help:    "duration of reconcile ticks",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.metrics.activeMutes = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "warden_active_mutes",
		Help: "number of active mutes after the last tick",
	})
	r.metrics.mutesExpired = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_mutes_expired_total",
		Help: "number of mutes deactivated after their end time",
	})
	r.metrics.rolesRepaired = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_mute_roles_repaired_total",
		Help: "number of mute roles re-applied to muted members",
	})
	r.metrics.recordFailures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "warden_reconcile_record_failures_total",
		Help: "number of records with a failed role change or store update",
	})
}
