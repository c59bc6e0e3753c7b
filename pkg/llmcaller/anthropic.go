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

const (
	anthropicDefaultHost = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"
)

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	BaseURL   string
	APIKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewAnthropicBackend creates a Backend targeting model via the Messages
// API at baseURL (defaults to the public Anthropic host when empty).
func NewAnthropicBackend(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *AnthropicBackend {
	if baseURL == "" {
		baseURL = anthropicDefaultHost
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicBackend{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
	}
}

func (b *AnthropicBackend) Model() string { return b.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Anthropic keeps the system prompt out of the messages array and wants
// tool results addressed by role "user" with a tool_result content block;
// we fold tool-role entries into user turns here.
func (b *AnthropicBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	payload := anthropicRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if payload.System != "" {
				payload.System += "\n\n"
			}
			payload.System += m.Content
		case "tool":
			payload.Messages = append(payload.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type: "tool_result",
					ID:   m.ToolCallID,
					Text: m.Content,
				}},
			})
		default:
			payload.Messages = append(payload.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
		}
	}
	for _, t := range req.Tools {
		payload.Tools = append(payload.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: encode anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", b.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, networkError{err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, networkError{fmt.Errorf("llmcaller: read anthropic response: %w", err)}
	}
	if resp.StatusCode >= 500 {
		return ChatResponse{}, serverError{fmt.Errorf("llmcaller: anthropic status %d: %s", resp.StatusCode, raw)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatResponse{}, parseError{fmt.Errorf("llmcaller: decode anthropic response: %w", err)}
	}
	if parsed.Error != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: anthropic error: %s", parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return ChatResponse{}, fmt.Errorf("llmcaller: anthropic status %d: %s", resp.StatusCode, raw)
	}

	out := ChatResponse{
		Usage: Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{ID: block.ID, Name: block.Name, Args: block.Input})
		}
	}
	return out, nil
}
