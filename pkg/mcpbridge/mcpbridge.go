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

// Package mcpbridge mounts tools from external Model Context Protocol
// servers into the kernel's own toolexec.Tool contract, so an
// MCP-discovered tool is indistinguishable from a built-in one to the
// agent calling it.
package mcpbridge

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const protocolVersion = "2024-11-05"

// Config describes one external MCP server to mount at startup.
type Config struct {
	Name    string            // service id, used to namespace tool names
	Command string            // stdio transport: subprocess to launch
	Args    []string
	Env     map[string]string
	Filter  []string // if non-empty, only these tool names are mounted
}

// Bridge owns one live stdio connection to an MCP server and the tools
// it discovered.
type Bridge struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

// Connect launches the MCP server over stdio, performs the MCP
// handshake, and lists its tools.
func Connect(ctx context.Context, cfg Config) (*Bridge, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcpbridge: command is required for service %q", cfg.Name)
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: create client for %q: %w", cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcpbridge: start %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "kernel", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = protocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcpbridge: initialize %q: %w", cfg.Name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("mcpbridge: list tools for %q: %w", cfg.Name, err)
	}

	var filter map[string]bool
	if len(cfg.Filter) > 0 {
		filter = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filter[name] = true
		}
	}

	var tools []mcp.Tool
	for _, tl := range listResp.Tools {
		if filter != nil && !filter[tl.Name] {
			continue
		}
		tools = append(tools, tl)
	}

	return &Bridge{name: cfg.Name, client: mcpClient, tools: tools}, nil
}

// Tools returns one toolexec.Tool-compatible wrapper per discovered MCP
// tool, named "<service>.<tool>" so distinct services never collide.
func (b *Bridge) Tools() []*Tool {
	out := make([]*Tool, 0, len(b.tools))
	for _, tl := range b.tools {
		out = append(out, &Tool{bridge: b, name: fmt.Sprintf("%s.%s", b.name, tl.Name), remoteName: tl.Name, description: tl.Description, schema: schemaToMap(tl.InputSchema)})
	}
	return out
}

// Close shuts down the underlying subprocess.
func (b *Bridge) Close() error {
	return b.client.Close()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
