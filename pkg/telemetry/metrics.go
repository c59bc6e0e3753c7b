// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires Prometheus metrics and OpenTelemetry tracing for
// the runtime: one counter/histogram family per LLM call, tool invocation,
// step, and queue/gate occupancy gauge, plus span names for steps, LLM
// calls and tool calls. No other package in this module calls the
// Observe*/Set* recorders or StartSpan; /metrics serves the registry with
// every collector registered.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kernel"

// Metrics holds every Prometheus collector the runtime records against.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmRetries      *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	stepDuration *prometheus.HistogramVec

	queueDepth      *prometheus.GaugeVec
	gateInFlight    prometheus.Gauge
	gateQueueLength prometheus.Gauge
}

// NewMetrics builds and registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total",
		Help: "Total LLM calls attempted, by model and outcome.",
	}, []string{"model", "outcome"})

	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
		Help:    "LLM call latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})

	m.llmRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "retries_total",
		Help: "Total LLM call retry attempts.",
	}, []string{"model"})

	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
		Help: "Total tokens consumed, by direction.",
	}, []string{"model", "direction"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "tool", Name: "calls_total",
		Help: "Total tool invocations, by tool and outcome.",
	}, []string{"tool", "outcome"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "tool", Name: "call_duration_seconds",
		Help:    "Tool invocation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	m.stepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "processor", Name: "step_duration_seconds",
		Help:    "MessageProcessor.Step wall-clock duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"outcome"})

	m.queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "bus", Name: "queue_depth",
		Help: "Pending message count per agent queue.",
	}, []string{"agent_id"})

	m.gateInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "concurrency", Name: "gate_in_flight",
		Help: "LLM calls currently holding a concurrency gate slot.",
	})

	m.gateQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "concurrency", Name: "gate_queue_length",
		Help: "Requests waiting for a concurrency gate slot.",
	})

	m.registry.MustRegister(
		m.llmCalls, m.llmCallDuration, m.llmRetries, m.llmTokens,
		m.toolCalls, m.toolCallDuration,
		m.stepDuration,
		m.queueDepth, m.gateInFlight, m.gateQueueLength,
	)
	return m
}

// ObserveLLMCall records one completed LLM call.
func (m *Metrics) ObserveLLMCall(model string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(model, outcome).Inc()
	m.llmCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveLLMRetry records one retry attempt for model.
func (m *Metrics) ObserveLLMRetry(model string) {
	if m == nil {
		return
	}
	m.llmRetries.WithLabelValues(model).Inc()
}

// ObserveLLMTokens adds prompt/completion token counts for model.
func (m *Metrics) ObserveLLMTokens(model string, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// ObserveToolCall records one tool dispatch.
func (m *Metrics) ObserveToolCall(tool string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveStep records one MessageProcessor.Step call.
func (m *Metrics) ObserveStep(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetQueueDepth reports agentID's current pending-message count.
func (m *Metrics) SetQueueDepth(agentID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(agentID).Set(float64(depth))
}

// SetGateOccupancy reports the concurrency gate's current in-flight and
// queued counts.
func (m *Metrics) SetGateOccupancy(inFlight, queued int) {
	if m == nil {
		return
	}
	m.gateInFlight.Set(float64(inFlight))
	m.gateQueueLength.Set(float64(queued))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
