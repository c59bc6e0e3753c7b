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

// Package lifecycle implements agent spawn (with validation), terminate
// (cascade, drain, record), and restore-from-OrgStore on startup.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/orgstore"
)

var (
	ErrInvalidTaskBrief = errors.New("invalid_task_brief")
	ErrMissingParameter = errors.New("missing_parameter")
	ErrNotChildAgent    = errors.New("not_child_agent")
)

// TaskBrief is attached at spawn time; all five listed fields are
// required, the rest optional.
type TaskBrief struct {
	Objective          string   `json:"objective"`
	Constraints        []string `json:"constraints"`
	Inputs             string   `json:"inputs"`
	Outputs            string   `json:"outputs"`
	CompletionCriteria string   `json:"completion_criteria"`
	Collaborators      []string `json:"collaborators,omitempty"`
	References         []string `json:"references,omitempty"`
	Priority           string   `json:"priority,omitempty"`
}

// Validate reports ErrInvalidTaskBrief if any of the five required
// fields is empty (Constraints may be an empty, but present, slice).
func (b TaskBrief) Validate() error {
	if b.Objective == "" || b.Inputs == "" || b.Outputs == "" || b.CompletionCriteria == "" {
		return ErrInvalidTaskBrief
	}
	if b.Constraints == nil {
		return ErrInvalidTaskBrief
	}
	return nil
}

// SpawnRequest is the input to Spawn.
type SpawnRequest struct {
	RoleID         string
	ParentAgentID  string
	TaskBrief      TaskBrief
	InitialMessage string
}

// SpawnResult is the output of a successful Spawn.
type SpawnResult struct {
	AgentID string
	TaskID  string
}

// TerminateRequest is the input to Terminate.
type TerminateRequest struct {
	AgentID       string
	CallerAgentID string
	Reason        string
}

// TerminateResult is the output of a successful Terminate.
type TerminateResult struct {
	Terminated []string
}

// Workspace assigns and tears down a per-agent filesystem area; spawn
// only assigns one for parent-is-root agents per the spec.
type Workspace interface {
	Assign(ctx context.Context, agentID string) error
	Release(ctx context.Context, agentID string) error
}

// NameGenerator produces a unique human-readable display name, run
// best-effort in the background after a successful spawn.
type NameGenerator interface {
	Generate(ctx context.Context, existingNames []string) (string, error)
}

const maxDrainMessages = 100

// Manager implements spawn/terminate/restore over OrgStore, the Bus, and
// ConversationStore.
type Manager struct {
	Org       *orgstore.OrgStore
	Bus       *bus.Bus
	Conv      *convstore.ConversationStore
	Contacts  *contacts.Registry
	Workspace Workspace // optional
	Names     NameGenerator // optional
	Log       *slog.Logger

	mu        sync.Mutex
	taskByID  map[string]string    // agentId -> taskId, for spawn's inheritance rule
	briefByID map[string]TaskBrief // agentId -> the brief it was spawned with
}

// New creates a Manager. Org, Bus, and Conv are required; Workspace and
// Names may be nil to disable those optional behaviors.
func New(org *orgstore.OrgStore, b *bus.Bus, conv *convstore.ConversationStore, contactsReg *contacts.Registry) *Manager {
	return &Manager{
		Org:      org,
		Bus:      b,
		Conv:     conv,
		Contacts: contactsReg,
		Log:       slog.Default(),
		taskByID:  make(map[string]string),
		briefByID: make(map[string]TaskBrief),
	}
}

// GetTaskBrief returns the TaskBrief agentID was spawned with, if any.
func (m *Manager) GetTaskBrief(agentID string) (TaskBrief, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefByID[agentID]
	return b, ok
}

// Spawn validates req and creates a new active agent whose parent is
// req.ParentAgentID.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (SpawnResult, error) {
	if req.ParentAgentID == "" || req.ParentAgentID == "null" || req.ParentAgentID == "undefined" {
		return SpawnResult{}, fmt.Errorf("%w: parentAgentId", ErrMissingParameter)
	}
	role, err := m.Org.GetRole(req.RoleID)
	if err != nil {
		return SpawnResult{}, err
	}
	if err := req.TaskBrief.Validate(); err != nil {
		return SpawnResult{}, err
	}
	if req.InitialMessage == "" {
		return SpawnResult{}, fmt.Errorf("%w: initialMessage", ErrMissingParameter)
	}

	taskID := m.resolveTaskID(req.ParentAgentID)

	agent, err := m.Org.CreateAgent(ctx, req.RoleID, req.ParentAgentID, taskID)
	if err != nil {
		return SpawnResult{}, err
	}

	m.mu.Lock()
	m.taskByID[agent.ID] = taskID
	m.briefByID[agent.ID] = req.TaskBrief
	m.mu.Unlock()

	m.Bus.Register(agent.ID)
	if err := m.Conv.Ensure(ctx, agent.ID, role.RolePrompt); err != nil {
		return SpawnResult{}, err
	}
	if _, err := m.Bus.Send(bus.Message{From: req.ParentAgentID, To: agent.ID, TaskID: taskID, Payload: req.InitialMessage}); err != nil {
		return SpawnResult{}, err
	}

	if m.Contacts != nil {
		m.Contacts.RecordSpawn(req.ParentAgentID, agent.ID, "child")
		m.Contacts.RecordCollaborators(agent.ID, req.TaskBrief.Collaborators)
	}

	if m.Workspace != nil && req.ParentAgentID == orgstore.RootAgentID {
		if err := m.Workspace.Assign(ctx, agent.ID); err != nil {
			m.Log.Warn("workspace assignment failed", "agentId", agent.ID, "error", err)
		}
	}

	if m.Names != nil {
		go m.generateName(agent.ID)
	}

	return SpawnResult{AgentID: agent.ID, TaskID: taskID}, nil
}

// resolveTaskID inherits the parent's taskId, or mints a fresh one when
// the parent is root (a new top-level spawn defines a new task).
func (m *Manager) resolveTaskID(parentID string) string {
	if parentID == orgstore.RootAgentID {
		return uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tid, ok := m.taskByID[parentID]; ok {
		return tid
	}
	if parent, err := m.Org.GetAgent(parentID); err == nil && parent.TaskID != "" {
		return parent.TaskID
	}
	return uuid.NewString()
}

func (m *Manager) generateName(agentID string) {
	ctx := context.Background()
	name, err := m.Names.Generate(ctx, m.Org.AllNames())
	if err != nil {
		m.Log.Debug("name generation failed, leaving agent unnamed", "agentId", agentID, "error", err)
		return
	}
	if err := m.Org.SetCustomName(ctx, agentID, name); err != nil {
		m.Log.Debug("failed to persist generated name", "agentId", agentID, "error", err)
	}
}

// Terminate processes req.AgentID and every descendant, leaf-first.
// Fails with ErrNotChildAgent unless req.AgentID is a direct child of
// req.CallerAgentID.
func (m *Manager) Terminate(ctx context.Context, req TerminateRequest) (TerminateResult, error) {
	target, err := m.Org.GetAgent(req.AgentID)
	if err != nil {
		return TerminateResult{}, err
	}
	if target.ParentAgentID != req.CallerAgentID {
		return TerminateResult{}, ErrNotChildAgent
	}

	order := m.leafFirstOrder(req.AgentID)
	for _, id := range order {
		if err := m.terminateOne(ctx, id, req.CallerAgentID, req.Reason); err != nil {
			return TerminateResult{}, err
		}
	}
	return TerminateResult{Terminated: order}, nil
}

// leafFirstOrder returns rootID and every descendant, deepest first, by
// post-order DFS over the parent-link relation.
func (m *Manager) leafFirstOrder(rootID string) []string {
	var order []string
	var visit func(id string)
	visit = func(id string) {
		for _, child := range m.Org.Children(id) {
			if child.Status == orgstore.StatusActive {
				visit(child.ID)
			}
		}
		order = append(order, id)
	}
	visit(rootID)
	return order
}

func (m *Manager) terminateOne(ctx context.Context, agentID, by, reason string) error {
	m.Bus.Drain(agentID)
	m.Bus.Unregister(agentID)

	if err := m.Conv.Delete(ctx, agentID); err != nil {
		return err
	}
	if m.Contacts != nil {
		m.Contacts.Forget(agentID)
	}
	if m.Workspace != nil {
		_ = m.Workspace.Release(ctx, agentID)
	}

	m.mu.Lock()
	delete(m.taskByID, agentID)
	delete(m.briefByID, agentID)
	m.mu.Unlock()

	if err := m.Org.MarkTerminated(ctx, agentID); err != nil {
		return err
	}
	return m.Org.RecordTermination(ctx, agentID, by, reason)
}

// Restore recreates in-memory registration for every persisted
// non-terminated agent. Agents referencing a deleted role are skipped
// with a warning.
func (m *Manager) Restore(ctx context.Context) error {
	for _, a := range m.Org.ListAgents() {
		if a.Status != orgstore.StatusActive {
			continue
		}
		if a.ID == orgstore.RootAgentID || a.ID == orgstore.UserAgentID {
			m.Bus.Register(a.ID)
			continue
		}
		role, err := m.Org.GetRole(a.RoleID)
		if err != nil {
			m.Log.Warn("skipping restore of agent with missing role", "agentId", a.ID, "roleId", a.RoleID)
			continue
		}
		m.Bus.Register(a.ID)
		if err := m.Conv.Ensure(ctx, a.ID, role.RolePrompt); err != nil {
			return err
		}
		m.mu.Lock()
		m.taskByID[a.ID] = a.TaskID
		m.mu.Unlock()
		if m.Workspace != nil && a.ParentAgentID == orgstore.RootAgentID {
			if err := m.Workspace.Assign(ctx, a.ID); err != nil {
				m.Log.Warn("workspace restore failed", "agentId", a.ID, "error", err)
			}
		}
	}
	return nil
}
