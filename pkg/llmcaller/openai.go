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

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAIBackend calls the OpenAI-style chat completions endpoint. Ollama
// and any OpenAI-compatible gateway can reuse it by overriding BaseURL.
type OpenAIBackend struct {
	BaseURL string
	APIKey  string
	model   string
	client  *http.Client
}

// NewOpenAIBackend creates a Backend targeting model at baseURL (defaults
// to the public OpenAI host when empty) authenticated with apiKey.
func NewOpenAIBackend(baseURL, apiKey, model string, timeout time.Duration) *OpenAIBackend {
	if baseURL == "" {
		baseURL = openAIDefaultHost
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIBackend{
		BaseURL: baseURL,
		APIKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *OpenAIBackend) Model() string { return b.model }

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIToolCallFunc `json:"function"`
}

type openAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *OpenAIBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	payload := openAIChatRequest{
		Model:       b.model,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		om := openAIMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			om.ToolCalls = append(om.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIToolCallFunc{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		payload.Messages = append(payload.Messages, om)
	}
	for _, t := range req.Tools {
		payload.Tools = append(payload.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: encode openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ChatResponse{}, networkError{err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, networkError{fmt.Errorf("llmcaller: read openai response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return ChatResponse{}, serverError{fmt.Errorf("llmcaller: openai status %d: %s", resp.StatusCode, raw)}
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatResponse{}, parseError{fmt.Errorf("llmcaller: decode openai response: %w", err)}
	}
	if parsed.Error != nil {
		return ChatResponse{}, fmt.Errorf("llmcaller: openai error: %s", parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return ChatResponse{}, fmt.Errorf("llmcaller: openai status %d: %s", resp.StatusCode, raw)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, parseError{fmt.Errorf("llmcaller: openai response had no choices")}
	}

	msg := parsed.Choices[0].Message
	out := ChatResponse{
		Content: msg.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

// networkError, serverError and parseError mark the three retryable
// failure classes LlmCaller's retry policy recognizes; anything else
// (4xx client errors, malformed tool args) is treated as final.
type networkError struct{ err error }

func (e networkError) Error() string  { return e.err.Error() }
func (e networkError) Unwrap() error  { return e.err }
func (e networkError) Retryable() bool { return true }

type serverError struct{ err error }

func (e serverError) Error() string  { return e.err.Error() }
func (e serverError) Unwrap() error  { return e.err }
func (e serverError) Retryable() bool { return true }

type parseError struct{ err error }

func (e parseError) Error() string  { return e.err.Error() }
func (e parseError) Unwrap() error  { return e.err }
func (e parseError) Retryable() bool { return true }
