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

package toolexec

import (
	"context"
	"errors"

	"github.com/arbor-run/kernel/pkg/lifecycle"
)

// LifecycleManager is the narrow surface spawn_agent_with_task and
// terminate_agent need from *lifecycle.Manager. Defined locally so
// toolexec depends on lifecycle's types without lifecycle importing
// toolexec back.
type LifecycleManager interface {
	Spawn(ctx context.Context, req lifecycle.SpawnRequest) (lifecycle.SpawnResult, error)
	Terminate(ctx context.Context, req lifecycle.TerminateRequest) (lifecycle.TerminateResult, error)
}

// SpawnAgentWithTaskTool implements spawn_agent_with_task.
type SpawnAgentWithTaskTool struct{ Lifecycle LifecycleManager }

type spawnAgentTaskBriefArgs struct {
	Objective          string   `json:"objective" jsonschema:"required,description=What the new agent must accomplish"`
	Constraints        []string `json:"constraints" jsonschema:"required,description=Boundaries the new agent must respect"`
	Inputs             string   `json:"inputs" jsonschema:"required,description=What the new agent is given to work with"`
	Outputs            string   `json:"outputs" jsonschema:"required,description=What the new agent must produce"`
	CompletionCriteria string   `json:"completionCriteria" jsonschema:"required,description=How the caller will know the task is done"`
	Collaborators      []string `json:"collaborators,omitempty" jsonschema:"description=Agent ids the new agent may expect to work with"`
	References         []string `json:"references,omitempty" jsonschema:"description=Artifact refs or other pointers relevant to the task"`
	Priority           string   `json:"priority,omitempty" jsonschema:"description=Relative priority hint"`
}

type spawnAgentWithTaskArgs struct {
	RoleID         string                  `json:"roleId" jsonschema:"required,description=Role to assign the new agent"`
	TaskBrief      spawnAgentTaskBriefArgs `json:"taskBrief" jsonschema:"required,description=Structured task assignment for the new agent"`
	InitialMessage string                  `json:"initialMessage" jsonschema:"required,description=First message delivered to the new agent"`
}

func (t *SpawnAgentWithTaskTool) Name() string { return "spawn_agent_with_task" }
func (t *SpawnAgentWithTaskTool) Description() string {
	return "Spawn a child agent under the calling agent with a structured task brief."
}
func (t *SpawnAgentWithTaskTool) ArgsExample() any { return spawnAgentWithTaskArgs{} }

func (t *SpawnAgentWithTaskTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a spawnAgentWithTaskArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.RoleID == "" {
		return errResult("missing_parameter", "roleId is required", nil), nil
	}
	if a.InitialMessage == "" {
		return errResult("missing_parameter", "initialMessage is required", nil), nil
	}

	req := lifecycle.SpawnRequest{
		RoleID:        a.RoleID,
		ParentAgentID: call.CallerAgentID,
		TaskBrief: lifecycle.TaskBrief{
			Objective:          a.TaskBrief.Objective,
			Constraints:        a.TaskBrief.Constraints,
			Inputs:             a.TaskBrief.Inputs,
			Outputs:            a.TaskBrief.Outputs,
			CompletionCriteria: a.TaskBrief.CompletionCriteria,
			Collaborators:      a.TaskBrief.Collaborators,
			References:         a.TaskBrief.References,
			Priority:           a.TaskBrief.Priority,
		},
		InitialMessage: a.InitialMessage,
	}

	res, err := t.Lifecycle.Spawn(ctx, req)
	if errors.Is(err, lifecycle.ErrInvalidTaskBrief) || errors.Is(err, lifecycle.ErrMissingParameter) {
		return errResult("invalid_task_brief", err.Error(), nil), nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"agentId": res.AgentID, "taskId": res.TaskID}, nil
}

// TerminateAgentTool implements terminate_agent.
type TerminateAgentTool struct{ Lifecycle LifecycleManager }

type terminateAgentArgs struct {
	AgentID string `json:"agentId" jsonschema:"required,description=Direct child agent to terminate"`
	Reason  string `json:"reason,omitempty" jsonschema:"description=Why the agent is being terminated"`
}

func (t *TerminateAgentTool) Name() string { return "terminate_agent" }
func (t *TerminateAgentTool) Description() string {
	return "Terminate a direct child agent and all of its descendants."
}
func (t *TerminateAgentTool) ArgsExample() any { return terminateAgentArgs{} }

func (t *TerminateAgentTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a terminateAgentArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.AgentID == "" {
		return errResult("missing_parameter", "agentId is required", nil), nil
	}

	res, err := t.Lifecycle.Terminate(ctx, lifecycle.TerminateRequest{
		AgentID:       a.AgentID,
		CallerAgentID: call.CallerAgentID,
		Reason:        a.Reason,
	})
	if errors.Is(err, lifecycle.ErrNotChildAgent) {
		return errResult("not_child_agent", a.AgentID, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"terminated": res.Terminated}, nil
}
