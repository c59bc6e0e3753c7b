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
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Manager owns the runtime's metrics registry and tracer provider, and is
// always safe to call on a nil receiver (telemetry off).
type Manager struct {
	metrics  *Metrics
	provider trace.TracerProvider
}

// NewManager builds a Manager. Metrics are always collected (the registry
// is cheap and local); tracing is only exported when cfg.Enabled.
func NewManager(ctx context.Context, cfg TracerConfig) (*Manager, error) {
	provider, err := InitTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: init tracer: %w", err)
	}
	return &Manager{metrics: NewMetrics(), provider: provider}, nil
}

// Metrics returns the metrics collector, or nil if m is nil.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsHandler returns the /metrics HTTP handler.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil {
		return (*Metrics)(nil).Handler()
	}
	return m.metrics.Handler()
}

// StartSpan starts a span under the runtime's tracer, a no-op if tracing
// is disabled (the provider is still a valid noop.TracerProvider then).
func (m *Manager) StartSpan(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, attrs...)
}

// Shutdown flushes and stops the tracer provider, if it supports it.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	type shutdowner interface {
		Shutdown(context.Context) error
	}
	if sd, ok := m.provider.(shutdowner); ok {
		return sd.Shutdown(ctx)
	}
	return nil
}
