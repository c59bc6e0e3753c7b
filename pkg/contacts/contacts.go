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

// Package contacts maintains each agent's known-peer graph and renders it
// into the "address book" block injected into that agent's system
// prompt. It needs no persistence beyond what OrgStore's parent links and
// active conversations already reconstruct on restore.
package contacts

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Contact is one peer reference known to an agent.
type Contact struct {
	PeerID string
	Label  string
	Note   string
}

// Registry tracks the peer graph for every agent in the process.
type Registry struct {
	mu    sync.Mutex
	byAgent map[string]map[string]Contact
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byAgent: make(map[string]map[string]Contact)}
}

func (r *Registry) ensure(agentID string) map[string]Contact {
	m, ok := r.byAgent[agentID]
	if !ok {
		m = make(map[string]Contact)
		r.byAgent[agentID] = m
	}
	return m
}

// Add records (or overwrites) a contact entry for agentID. Used for auto
// entries (parent, children, first-time senders) and explicit
// TaskBrief.collaborators.
func (r *Registry) Add(agentID string, c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(agentID)[c.PeerID] = c
}

// NotePeer records peerID as known to agentID with label if not already
// present, without overwriting an existing richer entry. Used for
// first-time-sender auto-entries where no note is available.
func (r *Registry) NotePeer(agentID, peerID, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.ensure(agentID)
	if _, exists := m[peerID]; exists {
		return
	}
	m[peerID] = Contact{PeerID: peerID, Label: label}
}

// RecordSpawn wires up the standard parent/child auto-entries: the child
// learns its parent, and the parent learns the child.
func (r *Registry) RecordSpawn(parentID, childID, childLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(childID)[parentID] = Contact{PeerID: parentID, Label: "parent"}
	r.ensure(parentID)[childID] = Contact{PeerID: childID, Label: childLabel}
}

// RecordCollaborators registers explicit collaborator entries named in a
// spawned agent's TaskBrief.
func (r *Registry) RecordCollaborators(agentID string, collaborators []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.ensure(agentID)
	for _, c := range collaborators {
		if _, exists := m[c]; !exists {
			m[c] = Contact{PeerID: c, Label: "collaborator"}
		}
	}
}

// Forget removes agentID's own address book and any entries pointing at
// it from other agents, used on termination.
func (r *Registry) Forget(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAgent, agentID)
	for _, contacts := range r.byAgent {
		delete(contacts, agentID)
	}
}

// List returns agentID's known contacts, sorted by peer id for
// deterministic rendering.
func (r *Registry) List(agentID string) []Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byAgent[agentID]
	out := make([]Contact, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// Render produces the address-book block injected into agentID's system
// prompt.
func (r *Registry) Render(agentID string) string {
	contacts := r.List(agentID)
	if len(contacts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known contacts:\n")
	for _, c := range contacts {
		if c.Note != "" {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.PeerID, c.Label, c.Note)
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", c.PeerID, c.Label)
		}
	}
	return b.String()
}
