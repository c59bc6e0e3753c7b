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
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiBackend calls Google's Gemini API through the official
// google.golang.org/genai client, unlike the other backends here which
// speak their provider's wire protocol directly over net/http — Gemini's
// function-calling envelope is involved enough that hand-rolling it buys
// nothing over the maintained client.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Backend targeting model via the Gemini
// Developer API, authenticated with apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llmcaller: create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Model() string { return b.model }

func toGeminiRole(role string) genai.Role {
	if role == "assistant" {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func (b *GeminiBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case "tool":
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.Name,
					Response: map[string]any{"result": m.Content},
				},
			}}, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, toGeminiRole(m.Role)))
		}
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		SystemInstruction: systemInstruction,
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGeminiSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		return ChatResponse{}, networkError{fmt.Errorf("llmcaller: gemini generate: %w", err)}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ChatResponse{}, parseError{fmt.Errorf("llmcaller: gemini response had no candidates")}
	}

	out := ChatResponse{}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return out, nil
}

// toGeminiSchema adapts a plain JSON-Schema-shaped map (as produced by
// invopop/jsonschema elsewhere in the runtime) into genai's typed Schema.
// Only the subset tool parameter shapes actually use is handled.
func toGeminiSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}
	s := &genai.Schema{Type: genai.TypeObject}
	props, _ := params["properties"].(map[string]any)
	if len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			propMap, _ := raw.(map[string]any)
			s.Properties[name] = &genai.Schema{
				Type:        geminiScalarType(propMap["type"]),
				Description: fmt.Sprint(propMap["description"]),
			}
		}
	}
	if required, ok := params["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	return s
}

func geminiScalarType(t any) genai.Type {
	switch fmt.Sprint(t) {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
