// Copyright 2026 The Kubernetes Authors.
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

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the gateway's own Prometheus registry. The gateway's
// controller-runtime manager runs with its metrics server disabled, so the
// gateway does not register into controller-runtime's shared
// metrics.Registry and instead exposes this registry on its own /metrics
// endpoint.
var Registry = prometheus.NewRegistry()

var (
	sessionCreateLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arl_gateway_session_create_duration_seconds",
		Help:    "Time from a session-create request to the underlying Sandbox becoming Ready.",
		Buckets: prometheus.DefBuckets,
	}, []string{"pool", "status"})

	stepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arl_gateway_step_duration_seconds",
		Help:    "Duration of a single execute step against the sidecar, including snapshotting.",
		Buckets: prometheus.DefBuckets,
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arl_gateway_active_sessions",
		Help: "Number of sessions currently held in the gateway's session table.",
	})

	idleReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arl_gateway_idle_reaped_total",
		Help: "Sessions terminated by the idle watcher.",
	})
)

func init() {
	Registry.MustRegister(sessionCreateLatency, stepDuration, activeSessions, idleReapedTotal)
}

// RecordSessionCreateLatency records the wall-clock cost of standing up a
// new session, labelled by pool and outcome.
func RecordSessionCreateLatency(start time.Time, pool, status string) {
	sessionCreateLatency.WithLabelValues(pool, status).Observe(time.Since(start).Seconds())
}

// RecordStepDuration records one execute step's duration in milliseconds.
func RecordStepDuration(durationMS int64) {
	stepDuration.Observe(float64(durationMS) / 1000.0)
}

// SetActiveSessions reports the current session table size.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// IncIdleReaped counts one session terminated by the idle watcher.
func IncIdleReaped() {
	idleReapedTotal.Inc()
}
