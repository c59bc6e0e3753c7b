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

// Package shutdown implements the runtime's one-shot graceful-shutdown
// sequence: stop accepting new work, drain in-flight steps up to a
// timeout, flush persisted stores, and force-abort whatever is left.
package shutdown

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
)

const defaultShutdownTimeout = 10 * time.Second

// Flusher persists any buffered state immediately.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Aborter cancels an agent's in-flight LLM call.
type Aborter interface {
	AbortLLMCall(agentID string) (ok bool, aborted bool)
}

// Result is returned by Shutdown.
type Result struct {
	OK                  bool
	AlreadyShuttingDown bool
	ShutdownDuration    time.Duration
	PendingMessages     int
	ActiveAgents        int
}

// Manager runs the graceful-shutdown sequence exactly once.
type Manager struct {
	Org     *orgstore.OrgStore
	Bus     *bus.Bus
	Status  *status.Tracker
	Conv    Flusher
	Caller  Aborter
	Timeout time.Duration
	Log     *slog.Logger

	stopRequested atomic.Bool
	once          sync.Once
	result        Result
}

// New creates a Manager with the given drain timeout (default 10s).
func New(org *orgstore.OrgStore, b *bus.Bus, tracker *status.Tracker, conv Flusher, caller Aborter, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &Manager{Org: org, Bus: b, Status: tracker, Conv: conv, Caller: caller, Timeout: timeout, Log: slog.Default()}
}

// StopRequested reports whether shutdown has begun; the Scheduler and
// message-enqueue paths consult this to reject new work.
func (m *Manager) StopRequested() bool {
	return m.stopRequested.Load()
}

// Shutdown runs the graceful sequence exactly once. Re-entrant calls
// return {ok:false, alreadyShuttingDown:true} immediately.
func (m *Manager) Shutdown(ctx context.Context) Result {
	if !m.stopRequested.CompareAndSwap(false, true) {
		return Result{OK: false, AlreadyShuttingDown: true}
	}

	start := time.Now()
	m.drain(ctx)

	if m.Org != nil {
		if err := m.Org.Flush(ctx); err != nil {
			m.Log.Error("shutdown: flush orgstore failed", "error", err)
		}
	}
	if m.Conv != nil {
		if err := m.Conv.Flush(ctx); err != nil {
			m.Log.Error("shutdown: flush convstore failed", "error", err)
		}
	}

	pending := 0
	active := 0
	if m.Bus != nil && m.Org != nil {
		for _, a := range m.Org.ListAgents() {
			if a.Status != orgstore.StatusActive {
				continue
			}
			active++
			pending += m.Bus.GetQueueDepth(a.ID)
		}
	}

	m.once.Do(func() {
		m.result = Result{
			OK:               true,
			ShutdownDuration: time.Since(start),
			PendingMessages:  pending,
			ActiveAgents:     active,
		}
	})
	return m.result
}

// drain waits up to Timeout for every non-idle agent to return to idle,
// then force-aborts whatever is still in flight.
func (m *Manager) drain(ctx context.Context) {
	deadline := time.Now().Add(m.Timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		if m.allIdle() {
			return
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if m.Caller == nil || m.Org == nil {
		return
	}
	for _, a := range m.Org.ListAgents() {
		if a.Status != orgstore.StatusActive {
			continue
		}
		if m.Status.Get(a.ID) == status.WaitingLLM {
			m.Caller.AbortLLMCall(a.ID)
		}
	}
}

func (m *Manager) allIdle() bool {
	if m.Org == nil || m.Status == nil {
		return true
	}
	for _, a := range m.Org.ListAgents() {
		if a.Status != orgstore.StatusActive {
			continue
		}
		s := m.Status.Get(a.ID)
		if s != status.Idle && s != status.Stopped {
			return false
		}
	}
	return true
}
