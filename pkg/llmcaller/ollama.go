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

package llmcaller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const ollamaDefaultHost = "http://localhost:11434"

// OllamaBackend calls a local (or self-hosted) Ollama server's native
// /api/chat endpoint, non-streaming.
type OllamaBackend struct {
	BaseURL string
	model   string
	client  *http.Client
}

// NewOllamaBackend creates a Backend targeting model on an Ollama server
// at baseURL (defaults to http://localhost:11434).
func NewOllamaBackend(baseURL, model string, timeout time.Duration) *OllamaBackend {
	if baseURL == "" {
		baseURL = ollamaDefaultHost
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaBackend{BaseURL: baseURL, model: model, client: &http.Client{Timeout: timeout}}
}

func (b *OllamaBackend) Model() string { return b.model }

type ollamaMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

func (b *OllamaBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	payload := ollamaChatRequest{Model: b.model, Stream: false}
	if req.Temperature > 0 {
		payload.Options = map[string]any{"temperature": req.Temperature}
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		payload.Tools = append(payload.Tools, ot)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, networkError{err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, networkError{fmt.Errorf("llmcaller: read ollama response: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return ChatResponse{}, serverError{fmt.Errorf("llmcaller: ollama status %d: %s", resp.StatusCode, raw)}
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatResponse{}, parseError{fmt.Errorf("llmcaller: decode ollama response: %w", err)}
	}
	if parsed.Error != "" {
		return ChatResponse{}, fmt.Errorf("llmcaller: ollama error: %s", parsed.Error)
	}

	out := ChatResponse{
		Content: parsed.Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}
	for _, tc := range parsed.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCallRequest{Name: tc.Function.Name, Args: tc.Function.Arguments})
	}
	return out, nil
}
