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

// Package status tracks each agent's per-step compute status and
// broadcasts every transition on the event bus.
package status

import (
	"sync"
	"time"

	"github.com/arbor-run/kernel/pkg/events"
)

// Status is an agent's current compute state, distinct from its
// orgstore lifecycle status (active/terminated).
type Status string

const (
	Idle        Status = "idle"
	WaitingLLM  Status = "waiting_llm"
	Processing  Status = "processing"
	Stopping    Status = "stopping"
	Stopped     Status = "stopped"
	Terminating Status = "terminating"
)

// Tracker holds every registered agent's current compute status.
type Tracker struct {
	bus *events.Bus

	mu         sync.Mutex
	statuses   map[string]Status
	lastChange map[string]time.Time
}

// New creates a Tracker emitting computeStatusChange events on bus.
func New(bus *events.Bus) *Tracker {
	return &Tracker{
		bus:        bus,
		statuses:   make(map[string]Status),
		lastChange: make(map[string]time.Time),
	}
}

// Register seeds agentID as idle if not already tracked.
func (t *Tracker) Register(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.statuses[agentID]; !ok {
		t.statuses[agentID] = Idle
		t.lastChange[agentID] = time.Now()
	}
}

// Forget removes agentID from tracking, used on termination.
func (t *Tracker) Forget(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, agentID)
	delete(t.lastChange, agentID)
}

// Get returns agentID's current status, defaulting to Idle if untracked.
func (t *Tracker) Get(agentID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.statuses[agentID]
	if !ok {
		return Idle
	}
	return s
}

// Set transitions agentID to to, emitting a computeStatusChange event
// when the status actually changes.
func (t *Tracker) Set(agentID string, to Status) {
	t.mu.Lock()
	from, ok := t.statuses[agentID]
	t.statuses[agentID] = to
	t.lastChange[agentID] = time.Now()
	t.mu.Unlock()

	if ok && from == to {
		return
	}
	if t.bus != nil {
		t.bus.ComputeStatusChange(events.ComputeStatusChangePayload{
			AgentID: agentID,
			From:    string(from),
			To:      string(to),
		})
	}
}

// LastChange reports when agentID's status last transitioned, used for
// idle-warning detection.
func (t *Tracker) LastChange(agentID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastChange[agentID]
	return ts, ok
}

// Snapshot returns a copy of every tracked agent's status.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Status, len(t.statuses))
	for k, v := range t.statuses {
		out[k] = v
	}
	return out
}
