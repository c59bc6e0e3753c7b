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

package toolexec

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	maxSandboxCodeBytes   = 50 * 1024
	maxSandboxResultBytes = 200 * 1024
)

// forbiddenTokens blocks any code that could reach outside the sandbox:
// module loading, process/filesystem/network access, dynamic import, and
// nested runtime escapes.
var forbiddenTokens = []string{
	"require(", "process.", "fs.", "os.", "net.", "http.", "https.",
	"import(", "child_process", "worker_threads", "vm.", "Deno.", "Bun.",
}

// Sandbox is the external isolated JS executor run_javascript delegates
// to; the runtime only enforces the static forbidden-token and size
// checks before handing code off.
type Sandbox interface {
	Run(ctx context.Context, code string, input any) (any, error)
}

// RunJavascriptTool implements run_javascript.
type RunJavascriptTool struct{ Sandbox Sandbox }

type runJavascriptArgs struct {
	Code  string `json:"code" jsonschema:"required,description=JavaScript source to execute"`
	Input any    `json:"input,omitempty" jsonschema:"description=JSON-serializable input value passed to the script"`
}

func (t *RunJavascriptTool) Name() string { return "run_javascript" }
func (t *RunJavascriptTool) Description() string {
	return "Execute JavaScript in an isolated sandbox with no filesystem, process, or network access."
}
func (t *RunJavascriptTool) ArgsExample() any { return runJavascriptArgs{} }

func (t *RunJavascriptTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (any, error) {
	var a runJavascriptArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Code == "" {
		return errResult("missing_parameter", "code is required", nil), nil
	}
	if len(a.Code) > maxSandboxCodeBytes {
		return errResult("blocked_code", "code exceeds 50 kB limit", nil), nil
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(a.Code, tok) {
			return errResult("blocked_code", "code contains forbidden token: "+tok, nil), nil
		}
	}
	if _, err := json.Marshal(a.Input); err != nil {
		return errResult("invalid_args", "input must be JSON-serializable", nil), nil
	}

	out, err := t.Sandbox.Run(ctx, a.Code, a.Input)
	if err != nil {
		return errResult("tool_execution_failed", err.Error(), map[string]any{"toolName": t.Name()}), nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return errResult("invalid_args", "result must be JSON-serializable", nil), nil
	}
	if len(encoded) > maxSandboxResultBytes {
		return errResult("blocked_code", "result exceeds 200 kB limit", nil), nil
	}
	return out, nil
}
