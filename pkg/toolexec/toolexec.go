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

// Package toolexec dispatches the built-in tool set an agent's LLM reply
// can invoke: role/agent management, messaging, artifacts, context
// compression, the JS sandbox, and workspace file access. No tool call
// may panic past this package's boundary — every failure mode becomes a
// {error, message, ...} result value.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/arbor-run/kernel/pkg/events"
)

// CallContext carries the caller identity and the message that triggered
// the current step, as required by every built-in tool's access checks.
type CallContext struct {
	CallerAgentID  string
	CurrentTaskID  string
	CurrentMessage any
}

// ErrorResult is the shape returned for every failure instead of an error
// value — ToolExecutor never returns a Go error from Dispatch.
type ErrorResult struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Extra   map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside Error/Message so callers see one
// object, matching the `{error, message, ...}` contract.
func (e ErrorResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{"error": e.Error}
	if e.Message != "" {
		out["message"] = e.Message
	}
	for k, v := range e.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

func errResult(kind, message string, extra map[string]any) ErrorResult {
	return ErrorResult{Error: kind, Message: message, Extra: extra}
}

// Tool is one built-in or externally-registered capability an agent's
// LLM reply can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// ArgsExample is reflected into a JSON Schema surfaced to the LLM as
	// the tool's parameter contract; return nil for no-argument tools.
	ArgsExample() any
	Execute(ctx context.Context, call CallContext, args map[string]any) (any, error)
}

// Executor holds the registered tool set and dispatches calls.
type Executor struct {
	tools map[string]Tool
	bus   *events.Bus
}

// New creates an Executor emitting toolCall/error events on bus.
func New(bus *events.Bus) *Executor {
	return &Executor{tools: make(map[string]Tool), bus: bus}
}

// Register adds t to the tool set, overwriting any existing tool with
// the same name.
func (e *Executor) Register(t Tool) {
	e.tools[t.Name()] = t
}

// rawSchemaProvider is implemented by tools whose argument schema is not
// reflected from a Go struct (e.g. an MCP-discovered tool, whose schema
// is only known at connect time).
type rawSchemaProvider interface {
	RawSchema() map[string]any
}

// Schemas returns the JSON Schema for every registered tool's arguments,
// keyed by tool name, for inclusion in the LLM request's tool catalog.
func (e *Executor) Schemas() map[string]*jsonschema.Schema {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	out := make(map[string]*jsonschema.Schema, len(e.tools))
	for name, t := range e.tools {
		if provider, ok := t.(rawSchemaProvider); ok {
			out[name] = schemaFromRaw(provider.RawSchema())
			continue
		}
		example := t.ArgsExample()
		if example == nil {
			out[name] = &jsonschema.Schema{Type: "object"}
			continue
		}
		out[name] = reflector.Reflect(example)
	}
	return out
}

// schemaFromRaw decodes a plain JSON Schema map (as carried by an
// MCP-discovered tool) into invopop's Schema type, falling back to a
// bare object schema if the map is absent or malformed.
func schemaFromRaw(raw map[string]any) *jsonschema.Schema {
	schema := &jsonschema.Schema{Type: "object"}
	if raw == nil {
		return schema
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return schema
	}
	if err := json.Unmarshal(data, schema); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return schema
}

// Descriptions returns name->description for every registered tool.
func (e *Executor) Descriptions() map[string]string {
	out := make(map[string]string, len(e.tools))
	for name, t := range e.tools {
		out[name] = t.Description()
	}
	return out
}

// Dispatch looks up toolName and executes it, trapping any panic and
// converting every failure mode into a JSON-serializable result value —
// this method itself never returns a Go error.
func (e *Executor) Dispatch(ctx context.Context, call CallContext, toolName string, args map[string]any) (result any) {
	t, ok := e.tools[toolName]
	if !ok {
		result = errResult("unknown_tool", fmt.Sprintf("no such tool: %s", toolName), nil)
		e.emit(call, toolName, args, result, nil)
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			result = errResult("tool_execution_failed", err.Error(), map[string]any{"toolName": toolName})
			e.emit(call, toolName, args, result, err)
		}
	}()

	val, err := t.Execute(ctx, call, args)
	if err != nil {
		result = errResult("tool_execution_failed", err.Error(), map[string]any{"toolName": toolName})
		e.emit(call, toolName, args, result, err)
		return result
	}
	result = val
	e.emit(call, toolName, args, result, nil)
	return result
}

func (e *Executor) emit(call CallContext, toolName string, args map[string]any, result any, err error) {
	if e.bus == nil {
		return
	}
	e.bus.ToolCall(events.ToolCallPayload{
		AgentID:  call.CallerAgentID,
		ToolName: toolName,
		Args:     args,
		Result:   result,
		Err:      err,
	})
}

// decodeArgs is the shared helper every built-in tool uses to turn the
// raw args map into its typed parameter struct, reporting missing or
// malformed fields as invalid_args rather than panicking.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("invalid_args: %w", err)
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid_args: %w", err)
	}
	return nil
}
