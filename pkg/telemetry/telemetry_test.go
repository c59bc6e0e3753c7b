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

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesObservations(t *testing.T) {
	m := NewMetrics()
	m.ObserveLLMCall("gpt-test", 120*time.Millisecond, true)
	m.ObserveLLMRetry("gpt-test")
	m.ObserveToolCall("read_file", 5*time.Millisecond, true)
	m.SetQueueDepth("agent-1", 3)
	m.SetGateOccupancy(2, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "kernel_llm_calls_total")
	assert.Contains(t, body, "kernel_llm_retries_total")
	assert.Contains(t, body, "kernel_tool_calls_total")
	assert.Contains(t, body, "kernel_bus_queue_depth")
	assert.Contains(t, body, "kernel_concurrency_gate_in_flight")
}

func TestNilMetricsMethodsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLLMCall("x", time.Second, false)
		m.ObserveToolCall("x", time.Second, false)
		m.ObserveStep(time.Second, "ok")
		m.SetQueueDepth("a", 1)
		m.SetGateOccupancy(0, 0)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInitTracerProviderDisabledIsNoop(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "noop-span")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestManagerMetricsHandlerWorksWithoutTracing(t *testing.T) {
	mgr, err := NewManager(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mgr.MetricsHandler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kernel_"))

	assert.NoError(t, mgr.Shutdown(context.Background()))
}
