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

package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arbor-run/kernel/pkg/toolexec"
)

// Tool adapts one MCP-discovered tool to toolexec.Tool. It holds its own
// JSON schema rather than an ArgsExample struct, since MCP tool schemas
// are only known at connect time — toolexec's Schemas() falls back to
// this raw schema for tools that return one from RawSchema().
type Tool struct {
	bridge      *Bridge
	name        string
	remoteName  string
	description string
	schema      map[string]any
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }

// ArgsExample returns nil: MCP tools carry their own JSON Schema rather
// than one reflected from a Go struct.
func (t *Tool) ArgsExample() any { return nil }

// RawSchema returns the tool's MCP input schema, already converted to a
// plain map for direct inclusion in a tool catalog.
func (t *Tool) RawSchema() map[string]any { return t.schema }

// Execute calls the remote tool and flattens its MCP response into the
// same shape toolexec's built-ins return: either a map of data, or an
// ErrorResult-shaped map should the remote report an error.
func (t *Tool) Execute(ctx context.Context, _ toolexec.CallContext, args map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.remoteName
	req.Params.Arguments = args

	resp, err := t.bridge.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: call %q: %w", t.name, err)
	}

	if resp.IsError {
		return map[string]any{"error": "tool_execution_failed", "message": textContent(resp)}, nil
	}
	return map[string]any{"result": textContent(resp)}, nil
}

func textContent(resp *mcp.CallToolResult) string {
	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) == 1 {
		return texts[0]
	}
	joined, _ := json.Marshal(texts)
	return string(joined)
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
