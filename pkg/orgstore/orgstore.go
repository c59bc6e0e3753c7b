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

// Package orgstore owns the runtime's persistent roles, agent metadata,
// parent links, and termination log. It is the only component allowed to
// mutate org.json; Scheduler and AgentLifecycle read through its API but
// never touch the backing store directly.
package orgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbor-run/kernel/pkg/store"
)

// Well-known pre-created agent ids. Neither is ever terminated, and every
// non-root active agent must have an active parent or the distinguished
// parent "root".
const (
	RootAgentID = "root"
	UserAgentID = "user"
)

const orgKey = "org"

var (
	ErrRoleNotFound  = errors.New("role_not_found")
	ErrAgentNotFound = errors.New("agent_not_found")
	ErrInvalidParent = errors.New("invalid_parent_agent")
)

// Status is an agent's lifecycle status, distinct from its per-step
// compute status.
type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

// Role is an immutable-ish record created by a tool call and never
// deleted.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RolePrompt   string    `json:"rolePrompt"`
	LlmServiceID string    `json:"llmServiceId,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Agent is the persisted metadata record for one agent.
type Agent struct {
	ID            string    `json:"id"`
	RoleID        string    `json:"roleId"`
	ParentAgentID string    `json:"parentAgentId,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	CustomName    string    `json:"customName,omitempty"`
	TaskID        string    `json:"taskId,omitempty"`
}

// Termination is an append-only record of a terminate_agent call.
type Termination struct {
	AgentID      string    `json:"agentId"`
	TerminatedBy string    `json:"terminatedBy"`
	Reason       string    `json:"reason"`
	At           time.Time `json:"at"`
}

// document is the on-disk shape of org.json.
type document struct {
	Roles        []Role        `json:"roles"`
	Agents       []Agent       `json:"agents"`
	Terminations []Termination `json:"terminations"`
}

// OrgStore persists roles, agents, and terminations with whole-file
// atomic rewrite on every mutation.
type OrgStore struct {
	backing store.Store

	mu  sync.Mutex
	doc document
}

// Open loads (or initializes) org.json from backing, pre-creating the
// root and user singleton agents if absent.
func Open(ctx context.Context, backing store.Store) (*OrgStore, error) {
	s := &OrgStore{backing: backing}

	data, ok, err := backing.Load(ctx, orgKey)
	if err != nil {
		return nil, fmt.Errorf("orgstore: load: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("orgstore: decode org.json: %w", err)
		}
	}

	s.ensureSingleton(RootAgentID)
	s.ensureSingleton(UserAgentID)
	if !ok {
		if err := s.flushLocked(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *OrgStore) ensureSingleton(id string) {
	for _, a := range s.doc.Agents {
		if a.ID == id {
			return
		}
	}
	now := time.Now()
	s.doc.Agents = append(s.doc.Agents, Agent{
		ID:           id,
		Status:       StatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
	})
}

func (s *OrgStore) flushLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("orgstore: encode org.json: %w", err)
	}
	if err := s.backing.Save(ctx, orgKey, data); err != nil {
		return fmt.Errorf("orgstore: save org.json: %w", err)
	}
	return nil
}

// CreateRole creates and persists a new Role, assigning it a fresh id.
func (s *OrgStore) CreateRole(ctx context.Context, name, rolePrompt, llmServiceID, createdBy string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Role{
		ID:           uuid.NewString(),
		Name:         name,
		RolePrompt:   rolePrompt,
		LlmServiceID: llmServiceID,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
	}
	s.doc.Roles = append(s.doc.Roles, r)
	if err := s.flushLocked(ctx); err != nil {
		return Role{}, err
	}
	return r, nil
}

// GetRole returns the role with the given id.
func (s *OrgStore) GetRole(id string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Roles {
		if r.ID == id {
			return r, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

// FindRoleByName returns the first role with the given name.
func (s *OrgStore) FindRoleByName(name string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.doc.Roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

// ListRoles returns every role, in creation order.
func (s *OrgStore) ListRoles() []Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, len(s.doc.Roles))
	copy(out, s.doc.Roles)
	return out
}

// CreateAgent creates a new active Agent, rejecting the call if
// parentAgentID is neither "root" nor a currently active agent.
func (s *OrgStore) CreateAgent(ctx context.Context, roleID, parentAgentID, taskID string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentAgentID != RootAgentID {
		parent, ok := s.findLocked(parentAgentID)
		if !ok || parent.Status != StatusActive {
			return Agent{}, ErrInvalidParent
		}
	}

	now := time.Now()
	a := Agent{
		ID:            uuid.NewString(),
		RoleID:        roleID,
		ParentAgentID: parentAgentID,
		TaskID:        taskID,
		Status:        StatusActive,
		CreatedAt:     now,
		LastActiveAt:  now,
	}
	s.doc.Agents = append(s.doc.Agents, a)
	if err := s.flushLocked(ctx); err != nil {
		return Agent{}, err
	}
	return a, nil
}

func (s *OrgStore) findLocked(id string) (Agent, bool) {
	for _, a := range s.doc.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// GetAgent returns agent metadata by id.
func (s *OrgStore) GetAgent(id string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.findLocked(id)
	if !ok {
		return Agent{}, ErrAgentNotFound
	}
	return a, nil
}

// ListAgents returns every agent, in creation order.
func (s *OrgStore) ListAgents() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, len(s.doc.Agents))
	copy(out, s.doc.Agents)
	return out
}

// Children returns the direct children of parentID.
func (s *OrgStore) Children(parentID string) []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Agent
	for _, a := range s.doc.Agents {
		if a.ParentAgentID == parentID {
			out = append(out, a)
		}
	}
	return out
}

// TouchLastActive bumps an agent's lastActiveAt to now.
func (s *OrgStore) TouchLastActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Agents {
		if s.doc.Agents[i].ID == id {
			s.doc.Agents[i].LastActiveAt = time.Now()
			return s.flushLocked(ctx)
		}
	}
	return ErrAgentNotFound
}

// SetCustomName records a generated display name for an agent.
func (s *OrgStore) SetCustomName(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Agents {
		if s.doc.Agents[i].ID == id {
			s.doc.Agents[i].CustomName = name
			return s.flushLocked(ctx)
		}
	}
	return ErrAgentNotFound
}

// AllNames returns every assigned custom name, used to keep
// name-generation collision-free.
func (s *OrgStore) AllNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.doc.Agents {
		if a.CustomName != "" {
			out = append(out, a.CustomName)
		}
	}
	return out
}

// MarkTerminated flips an agent's status to terminated. It does not
// itself append a termination record; callers append one via
// RecordTermination in the same mutation when appropriate.
func (s *OrgStore) MarkTerminated(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Agents {
		if s.doc.Agents[i].ID == id {
			s.doc.Agents[i].Status = StatusTerminated
			return s.flushLocked(ctx)
		}
	}
	return ErrAgentNotFound
}

// RecordTermination appends a termination record. Agent ids are never
// reused, so history accumulates monotonically.
func (s *OrgStore) RecordTermination(ctx context.Context, agentID, by, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Terminations = append(s.doc.Terminations, Termination{
		AgentID:      agentID,
		TerminatedBy: by,
		Reason:       reason,
		At:           time.Now(),
	})
	return s.flushLocked(ctx)
}

// ListTerminations returns every termination record, in append order.
func (s *OrgStore) ListTerminations() []Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Termination, len(s.doc.Terminations))
	copy(out, s.doc.Terminations)
	return out
}

// Flush forces an immediate whole-file rewrite, used by ShutdownManager.
func (s *OrgStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}
