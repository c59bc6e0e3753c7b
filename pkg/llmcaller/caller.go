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

// Package llmcaller wraps remote chat-completion backends with per-agent
// audit logging, bounded retry with exponential backoff, and cancellation
// wired through to the underlying HTTP transport.
package llmcaller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arbor-run/kernel/pkg/events"
)

// ToolSpec describes one tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// ChatMessage is one entry in a chat request, shaped like the
// convstore.Entry it usually originates from.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCallRequest
	ToolCallID string
	Name       string
}

// ToolCallRequest is a single tool invocation the assistant requested.
type ToolCallRequest struct {
	ID   string
	Name string
	Args map[string]any
}

// ChatRequest is the input to a single LlmCaller.Chat call.
type ChatRequest struct {
	Messages    []ChatMessage
	Tools       []ToolSpec
	Temperature float64
	AgentID     string
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     Usage
}

// Backend is the thin seam between LlmCaller and a concrete provider wire
// protocol (OpenAI, Anthropic, Gemini, Ollama, ...). Implementations own
// their own HTTP transport and translate ChatRequest/ChatResponse to and
// from the provider's native shapes.
type Backend interface {
	// Model returns the model identifier this backend targets, used only
	// for audit logging.
	Model() string
	// Chat performs one non-streaming completion call. Implementations
	// must respect ctx cancellation promptly — LlmCaller relies on this
	// to bridge ConcurrencyGate.Cancel through to the wire.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

var (
	// ErrAborted is returned when the call's context is cancelled while
	// waiting_llm, distinct from a final retry exhaustion.
	ErrAborted = errors.New("aborted")

	// ErrLLMFailedAfterRetries is returned when every retry attempt has
	// been exhausted.
	ErrLLMFailedAfterRetries = errors.New("llm_failed_after_retries")
)

// Caller wraps a Backend with retry, backoff, and audit logging.
type Caller struct {
	backend    Backend
	maxRetries int
	bus        *events.Bus
	log        *slog.Logger

	// sleep is overridable in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Caller.
type Option func(*Caller)

// WithMaxRetries overrides the default of 3.
func WithMaxRetries(n int) Option {
	return func(c *Caller) { c.maxRetries = n }
}

// WithLogger sets the structured logger used for audit entries.
func WithLogger(l *slog.Logger) Option {
	return func(c *Caller) { c.log = l }
}

// New wraps backend with retry/backoff and event emission via bus.
func New(backend Backend, bus *events.Bus, opts ...Option) *Caller {
	c := &Caller{
		backend:    backend,
		maxRetries: 3,
		bus:        bus,
		log:        slog.Default(),
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isRetryable reports whether err should trigger a retry rather than an
// immediate failure. Context cancellation is never retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re retryable
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}

type retryable interface {
	Retryable() bool
}

// Chat audits, then attempts the call, retrying on network/5xx/parse
// errors with a 2^(attempt-1) second backoff, up to maxRetries attempts.
// Cancellation propagates immediately without retry or backoff.
func (c *Caller) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var lastMsg ChatMessage
	if len(req.Messages) > 0 {
		lastMsg = req.Messages[len(req.Messages)-1]
	}
	toolNames := make([]string, 0, len(req.Tools))
	for _, t := range req.Tools {
		toolNames = append(toolNames, t.Name)
	}
	c.log.Info("llm call",
		"agentId", req.AgentID,
		"model", c.backend.Model(),
		"tools", toolNames,
		"lastRole", lastMsg.Role,
		"lastContent", lastMsg.Content,
	)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ChatResponse{}, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}

		resp, err := c.backend.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ChatResponse{}, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		if !isRetryable(err) {
			return ChatResponse{}, err
		}
		if attempt == c.maxRetries {
			break
		}

		delay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
		if c.bus != nil {
			c.bus.LlmRetry(events.LlmRetryPayload{
				AgentID: req.AgentID,
				Attempt: attempt,
				Delay:   delay.String(),
			})
		}
		if err := c.sleep(ctx, delay); err != nil {
			return ChatResponse{}, fmt.Errorf("%w: %v", ErrAborted, err)
		}
	}

	return ChatResponse{}, fmt.Errorf("%w: %v", ErrLLMFailedAfterRetries, lastErr)
}

// Model returns the underlying backend's model identifier.
func (c *Caller) Model() string { return c.backend.Model() }
