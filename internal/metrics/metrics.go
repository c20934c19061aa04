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

// Package metrics holds the controller-manager's Prometheus collectors. The
// gateway binary defines its own collectors (internal/gateway/metrics.go)
// against its own registry, since its controller-runtime manager runs with
// the metrics server disabled, but follows the same prometheus/client_golang
// idiom.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// SandboxAdoptionLatency measures the time from Sandbox creation to the
	// adopted pod reaching Ready.
	SandboxAdoptionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arl_sandbox_adoption_latency_ms",
			Help:    "End-to-end latency from Sandbox creation to adopted pod Ready state in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 240000},
		},
		[]string{"pool", "status"},
	)

	// WarmPoolReadyReplicas mirrors WarmPool.Status.ReadyReplicas as a gauge
	// so operators can alert without polling the Kubernetes API directly.
	WarmPoolReadyReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arl_warmpool_ready_replicas",
			Help: "Observed idle (ready) replica count per WarmPool.",
		},
		[]string{"pool", "namespace"},
	)

	// WarmPoolAllocatedReplicas mirrors WarmPool.Status.AllocatedReplicas.
	WarmPoolAllocatedReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arl_warmpool_allocated_replicas",
			Help: "Observed allocated replica count per WarmPool.",
		},
		[]string{"pool", "namespace"},
	)

	// WarmPoolPendingPulls mirrors WarmPool.Status.PendingPulls.
	WarmPoolPendingPulls = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arl_warmpool_pending_pulls",
			Help: "Pods currently stuck pulling their pool's image.",
		},
		[]string{"pool", "namespace"},
	)
)

func init() {
	metrics.Registry.MustRegister(SandboxAdoptionLatency, WarmPoolReadyReplicas, WarmPoolAllocatedReplicas, WarmPoolPendingPulls)
}

// RecordSandboxAdoptionLatency records the duration since the provided start time.
func RecordSandboxAdoptionLatency(startTime time.Time, pool, status string) {
	duration := float64(time.Since(startTime).Milliseconds())
	SandboxAdoptionLatency.WithLabelValues(pool, status).Observe(duration)
}

// RecordPoolGauges updates the gauge collectors from a reconcile pass.
func RecordPoolGauges(pool, namespace string, ready, allocated, pendingPulls int32) {
	WarmPoolReadyReplicas.WithLabelValues(pool, namespace).Set(float64(ready))
	WarmPoolAllocatedReplicas.WithLabelValues(pool, namespace).Set(float64(allocated))
	WarmPoolPendingPulls.WithLabelValues(pool, namespace).Set(float64(pendingPulls))
}
