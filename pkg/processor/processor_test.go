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

package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/concurrency"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/events"
	"github.com/arbor-run/kernel/pkg/llmcaller"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
	"github.com/arbor-run/kernel/pkg/store"
	"github.com/arbor-run/kernel/pkg/toolexec"
)

type scriptedBackend struct {
	model     string
	responses []llmcaller.ChatResponse
	call      int
}

func (b *scriptedBackend) Model() string { return b.model }
func (b *scriptedBackend) Chat(ctx context.Context, req llmcaller.ChatRequest) (llmcaller.ChatResponse, error) {
	r := b.responses[b.call]
	b.call++
	return r, nil
}

func newHarness(t *testing.T, backend llmcaller.Backend, maxTokens int) *Processor {
	t.Helper()
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	org, err := orgstore.Open(ctx, fs)
	require.NoError(t, err)

	b := bus.New()
	b.Register("agent1")

	conv := convstore.New(fs, maxTokens)
	require.NoError(t, conv.Ensure(ctx, "agent1", "you are a test agent"))

	reg := contacts.New()
	eventBus := events.New()
	tools := toolexec.New(eventBus)
	caller := llmcaller.New(backend, eventBus)
	gate := concurrency.New(3)
	tracker := status.New(eventBus)
	tracker.Register("agent1")

	return New(org, conv, reg, tools, caller, gate, tracker, eventBus, nil)
}

func TestStepNoToolCallsEndsImmediately(t *testing.T) {
	backend := &scriptedBackend{
		model: "test-model",
		responses: []llmcaller.ChatResponse{
			{Content: "hello back"},
		},
	}
	p := newHarness(t, backend, 100_000)

	err := p.Step(context.Background(), "agent1", bus.Message{From: "user", To: "agent1", Payload: "hi"})
	require.NoError(t, err)

	h := p.Conv.Get("agent1")
	require.Len(t, h, 3) // system, user, assistant
	assert.Equal(t, convstore.RoleAssistant, h[2].Role)
	assert.Equal(t, "hello back", h[2].Content)
	assert.Equal(t, status.Idle, p.Status.Get("agent1"))
}

func TestStepExecutesToolCallThenStops(t *testing.T) {
	backend := &scriptedBackend{
		model: "test-model",
		responses: []llmcaller.ChatResponse{
			{ToolCalls: []llmcaller.ToolCallRequest{{ID: "call1", Name: "get_context_status", Args: map[string]any{}}}},
			{Content: "done"},
		},
	}
	p := newHarness(t, backend, 100_000)
	p.Tools.Register(&toolexec.GetContextStatusTool{Conv: p.Conv})

	err := p.Step(context.Background(), "agent1", bus.Message{From: "user", To: "agent1", Payload: "check status"})
	require.NoError(t, err)

	h := p.Conv.Get("agent1")
	var sawTool, sawFinalAssistant bool
	for _, e := range h {
		if e.Role == convstore.RoleTool {
			sawTool = true
		}
		if e.Role == convstore.RoleAssistant && e.Content == "done" {
			sawFinalAssistant = true
		}
	}
	assert.True(t, sawTool)
	assert.True(t, sawFinalAssistant)
}

func TestStepStopsAtHardLimitWithoutCallingLLM(t *testing.T) {
	backend := &scriptedBackend{model: "test-model"} // no responses queued; Chat must never be called
	p := newHarness(t, backend, 1)                   // tiny budget, immediately over hard-limit

	err := p.Step(context.Background(), "agent1", bus.Message{From: "user", To: "agent1", Payload: "hi there, this message alone exceeds the budget"})
	require.NoError(t, err)

	h := p.Conv.Get("agent1")
	last := h[len(h)-1]
	assert.Equal(t, convstore.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "compress_context")
}

func TestStepHonorsMaxToolRounds(t *testing.T) {
	responses := make([]llmcaller.ChatResponse, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, llmcaller.ChatResponse{
			ToolCalls: []llmcaller.ToolCallRequest{{ID: "call", Name: "get_context_status", Args: map[string]any{}}},
		})
	}
	backend := &scriptedBackend{model: "test-model", responses: responses}
	p := newHarness(t, backend, 100_000)
	p.Tools.Register(&toolexec.GetContextStatusTool{Conv: p.Conv})
	p.MaxToolRounds = 3

	err := p.Step(context.Background(), "agent1", bus.Message{From: "user", To: "agent1", Payload: "loop forever"})
	require.NoError(t, err)

	h := p.Conv.Get("agent1")
	last := h[len(h)-1]
	assert.Equal(t, convstore.RoleSystem, last.Role)
	assert.Contains(t, last.Content, "Maximum tool-call rounds")
}

func TestAbortLLMCallIdempotentWhenNotWaiting(t *testing.T) {
	backend := &scriptedBackend{model: "test-model", responses: []llmcaller.ChatResponse{{Content: "ok"}}}
	p := newHarness(t, backend, 100_000)

	ok, aborted := p.AbortLLMCall("agent1")
	assert.True(t, ok)
	assert.False(t, aborted)
}
