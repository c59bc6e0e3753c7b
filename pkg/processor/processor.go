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

// Package processor implements the per-agent message step: build the
// system prompt from role, base template, tool rules, contacts and task
// brief; call the LLM through the concurrency gate; dispatch any
// requested tool calls; loop until the reply carries no further tool
// calls or maxToolRounds is reached.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/concurrency"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/events"
	"github.com/arbor-run/kernel/pkg/lifecycle"
	"github.com/arbor-run/kernel/pkg/llmcaller"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
	"github.com/arbor-run/kernel/pkg/toolexec"
)

const defaultMaxToolRounds = 10

// basePromptTemplate is appended after an agent's role prompt for every
// non-root agent, establishing the shared contract every role operates
// under regardless of its specific prompt.
const basePromptTemplate = "You are one agent in a tree of cooperating agents. " +
	"Use the tools available to you to accomplish your task brief; " +
	"send_message to collaborate, spawn_agent_with_task to delegate, " +
	"terminate_agent when a delegated subtree's work is done."

// TaskBriefProvider exposes the brief an agent was spawned with.
type TaskBriefProvider interface {
	GetTaskBrief(agentID string) (lifecycle.TaskBrief, bool)
}

// Processor runs one step at a time for a given agent.
type Processor struct {
	Org        *orgstore.OrgStore
	Conv       *convstore.ConversationStore
	Contacts   *contacts.Registry
	Tools      *toolexec.Executor
	Caller     *llmcaller.Caller
	Gate       *concurrency.Gate
	Status     *status.Tracker
	Bus        *events.Bus
	TaskBriefs TaskBriefProvider

	MaxToolRounds int
	Log           *slog.Logger
}

// New creates a Processor wiring every collaborator needed for a step.
func New(org *orgstore.OrgStore, conv *convstore.ConversationStore, contactsReg *contacts.Registry, tools *toolexec.Executor, caller *llmcaller.Caller, gate *concurrency.Gate, tracker *status.Tracker, eventBus *events.Bus, briefs TaskBriefProvider) *Processor {
	return &Processor{
		Org:           org,
		Conv:          conv,
		Contacts:      contactsReg,
		Tools:         tools,
		Caller:        caller,
		Gate:          gate,
		Status:        tracker,
		Bus:           eventBus,
		TaskBriefs:    briefs,
		MaxToolRounds: defaultMaxToolRounds,
		Log:           slog.Default(),
	}
}

// renderPayload flattens a message payload to text for appending into
// the conversation, inlining any attachment reference as-is.
func renderPayload(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(encoded)
}

// Step processes one inbound message for agentID: appends it, checks the
// token budget, builds the system prompt, and runs LLM/tool rounds until
// the reply has no further tool calls or MaxToolRounds is reached.
func (p *Processor) Step(ctx context.Context, agentID string, msg bus.Message) error {
	p.Status.Set(agentID, status.Processing)
	defer p.Status.Set(agentID, status.Idle)

	if err := p.Conv.Append(ctx, agentID, convstore.Entry{Role: convstore.RoleUser, Content: renderPayload(msg.Payload)}); err != nil {
		return fmt.Errorf("processor: append inbound message: %w", err)
	}

	if band, _ := p.Conv.Band(agentID); band == convstore.BandHardLimit {
		note := convstore.Entry{
			Role:    convstore.RoleAssistant,
			Content: "Context window is at its hard limit. Call compress_context before continuing.",
		}
		if err := p.Conv.Append(ctx, agentID, note); err != nil {
			return fmt.Errorf("processor: append overflow note: %w", err)
		}
		p.emitError(agentID, "context_overflow", "token budget exceeded before call")
		return nil
	}

	maxRounds := p.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	for round := 0; round < maxRounds; round++ {
		systemPrompt := p.buildSystemPrompt(agentID)
		req := p.buildChatRequest(agentID, systemPrompt, msg.TaskID)

		p.Status.Set(agentID, status.WaitingLLM)
		raw, err := p.Gate.ExecuteRequest(ctx, agentID, func(ctx context.Context) (any, error) {
			return p.Caller.Chat(ctx, req)
		})
		p.Status.Set(agentID, status.Processing)

		if err != nil {
			if errors.Is(err, llmcaller.ErrAborted) || errors.Is(err, concurrency.ErrCancelled) {
				p.emitError(agentID, "aborted", err.Error())
				return nil
			}
			p.emitError(agentID, "llm_failed_after_retries", err.Error())
			return nil
		}
		resp := raw.(llmcaller.ChatResponse)

		assistantEntry := convstore.Entry{Role: convstore.RoleAssistant, Content: resp.Content}
		for _, tc := range resp.ToolCalls {
			assistantEntry.ToolCalls = append(assistantEntry.ToolCalls, convstore.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		if err := p.Conv.Append(ctx, agentID, assistantEntry); err != nil {
			return fmt.Errorf("processor: append assistant entry: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return nil
		}

		callCtx := toolexec.CallContext{CallerAgentID: agentID, CurrentTaskID: msg.TaskID, CurrentMessage: msg}
		for _, tc := range resp.ToolCalls {
			result := p.Tools.Dispatch(ctx, callCtx, tc.Name, tc.Args)
			encoded, _ := json.Marshal(result)
			if err := p.Conv.Append(ctx, agentID, convstore.Entry{
				Role:       convstore.RoleTool,
				Content:    string(encoded),
				ToolCallID: tc.ID,
				Name:       tc.Name,
			}); err != nil {
				return fmt.Errorf("processor: append tool result: %w", err)
			}
		}
	}

	return p.Conv.Append(ctx, agentID, convstore.Entry{
		Role:    convstore.RoleSystem,
		Content: "Maximum tool-call rounds reached for this step; stopping.",
	})
}

// buildSystemPrompt composes the dynamic per-call system prompt: the
// persisted role prompt (history[0]) plus base template, tool rules,
// contacts, and task brief. root gets only its role prompt.
func (p *Processor) buildSystemPrompt(agentID string) string {
	history := p.Conv.Get(agentID)
	rolePrompt := ""
	if len(history) > 0 {
		rolePrompt = history[0].Content
	}
	if agentID == orgstore.RootAgentID {
		return rolePrompt
	}

	prompt := rolePrompt + "\n\n" + basePromptTemplate

	if descs := p.Tools.Descriptions(); len(descs) > 0 {
		prompt += "\n\nAvailable tools:\n"
		for name, desc := range descs {
			prompt += fmt.Sprintf("- %s: %s\n", name, desc)
		}
	}

	if p.Contacts != nil {
		if rendered := p.Contacts.Render(agentID); rendered != "" {
			prompt += "\n\nKnown contacts:\n" + rendered
		}
	}

	if p.TaskBriefs != nil {
		if brief, ok := p.TaskBriefs.GetTaskBrief(agentID); ok {
			prompt += "\n\nTask brief:\n" + renderTaskBrief(brief)
		}
	}

	return prompt
}

func renderTaskBrief(b lifecycle.TaskBrief) string {
	out := fmt.Sprintf("Objective: %s\nInputs: %s\nOutputs: %s\nCompletion criteria: %s",
		b.Objective, b.Inputs, b.Outputs, b.CompletionCriteria)
	if len(b.Constraints) > 0 {
		out += "\nConstraints:"
		for _, c := range b.Constraints {
			out += "\n- " + c
		}
	}
	if b.Priority != "" {
		out += "\nPriority: " + b.Priority
	}
	return out
}

// buildChatRequest translates the persisted history plus the freshly
// built system prompt into an llmcaller.ChatRequest.
func (p *Processor) buildChatRequest(agentID, systemPrompt, taskID string) llmcaller.ChatRequest {
	history := p.Conv.Get(agentID)

	messages := make([]llmcaller.ChatMessage, 0, len(history))
	messages = append(messages, llmcaller.ChatMessage{Role: string(convstore.RoleSystem), Content: systemPrompt})
	for _, e := range history[1:] {
		m := llmcaller.ChatMessage{
			Role:       string(e.Role),
			Content:    e.Content,
			ToolCallID: e.ToolCallID,
			Name:       e.Name,
		}
		for _, tc := range e.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, llmcaller.ToolCallRequest{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		messages = append(messages, m)
	}

	var tools []llmcaller.ToolSpec
	schemas := p.Tools.Schemas()
	for name, desc := range p.Tools.Descriptions() {
		tools = append(tools, llmcaller.ToolSpec{Name: name, Description: desc, Parameters: schemaToMap(schemas[name])})
	}

	return llmcaller.ChatRequest{Messages: messages, Tools: tools, AgentID: agentID}
}

func schemaToMap(s any) map[string]any {
	if s == nil {
		return nil
	}
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil
	}
	return m
}

func (p *Processor) emitError(agentID, kind, message string) {
	if p.Bus == nil {
		return
	}
	p.Bus.Error(events.ErrorPayload{AgentID: agentID, Kind: kind, Message: message})
}

// AbortLLMCall cancels agentID's in-flight LLM call, if any. Idempotent:
// returns aborted=false when the agent is not currently waiting_llm.
func (p *Processor) AbortLLMCall(agentID string) (ok bool, aborted bool) {
	if p.Status.Get(agentID) != status.WaitingLLM {
		return true, false
	}
	if err := p.Gate.Cancel(agentID); err != nil {
		return true, false
	}
	p.Status.Set(agentID, status.Idle)
	return true, true
}
