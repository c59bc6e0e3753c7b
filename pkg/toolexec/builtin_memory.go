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

	"github.com/arbor-run/kernel/pkg/memory"
)

// StoreMemoryTool implements store_memory: remember content under the
// calling agent's own memory collection, isolated per agent (P6).
type StoreMemoryTool struct{ Memory *memory.Memory }

type storeMemoryArgs struct {
	Content  string         `json:"content" jsonschema:"required,description=Content to remember"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"description=Optional tags to attach to the memory"`
}

func (t *StoreMemoryTool) Name() string        { return "store_memory" }
func (t *StoreMemoryTool) Description() string {
	return "Remember a piece of content for later recall by the calling agent."
}
func (t *StoreMemoryTool) ArgsExample() any { return storeMemoryArgs{} }

func (t *StoreMemoryTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a storeMemoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	id, err := t.Memory.Remember(ctx, call.CallerAgentID, a.Content, a.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id}, nil
}

// RecallMemoryTool implements recall_memory: search the calling agent's
// own memory collection, never another agent's (P6).
type RecallMemoryTool struct{ Memory *memory.Memory }

type recallMemoryArgs struct {
	Query string `json:"query" jsonschema:"required,description=Text to search remembered content for"`
	TopK  int    `json:"topK,omitempty" jsonschema:"description=Maximum number of results (default 5)"`
}

func (t *RecallMemoryTool) Name() string        { return "recall_memory" }
func (t *RecallMemoryTool) Description() string {
	return "Search the calling agent's own remembered content for relevant entries."
}
func (t *RecallMemoryTool) ArgsExample() any { return recallMemoryArgs{} }

func (t *RecallMemoryTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a recallMemoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	results, err := t.Memory.Recall(ctx, call.CallerAgentID, a.Query, a.TopK)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

// ForgetMemoryTool implements forget_memory: remove one previously
// remembered entry from the calling agent's own collection.
type ForgetMemoryTool struct{ Memory *memory.Memory }

type forgetMemoryArgs struct {
	ID string `json:"id" jsonschema:"required,description=Memory id returned by store_memory"`
}

func (t *ForgetMemoryTool) Name() string        { return "forget_memory" }
func (t *ForgetMemoryTool) Description() string {
	return "Remove a previously remembered entry by id."
}
func (t *ForgetMemoryTool) ArgsExample() any { return forgetMemoryArgs{} }

func (t *ForgetMemoryTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a forgetMemoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if err := t.Memory.Forget(ctx, call.CallerAgentID, a.ID); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}
