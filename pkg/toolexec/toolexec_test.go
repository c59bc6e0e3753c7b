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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name    string
	execute func(ctx context.Context, call CallContext, args map[string]any) (any, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) ArgsExample() any    { return nil }
func (s *stubTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	return s.execute(ctx, call, args)
}

type rawSchemaTool struct {
	stubTool
	schema map[string]any
}

func (r *rawSchemaTool) RawSchema() map[string]any { return r.schema }

func TestDispatchUnknownToolReturnsErrorResult(t *testing.T) {
	e := New(nil)
	result := e.Dispatch(context.Background(), CallContext{}, "does_not_exist", nil)
	errOut, ok := result.(ErrorResult)
	require.True(t, ok)
	assert.Equal(t, "unknown_tool", errOut.Error)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	e := New(nil)
	e.Register(&stubTool{name: "boom", execute: func(ctx context.Context, call CallContext, args map[string]any) (any, error) {
		panic("kaboom")
	}})

	result := e.Dispatch(context.Background(), CallContext{}, "boom", nil)
	errOut, ok := result.(ErrorResult)
	require.True(t, ok)
	assert.Equal(t, "tool_execution_failed", errOut.Error)
}

func TestDispatchConvertsReturnedErrorToErrorResult(t *testing.T) {
	e := New(nil)
	e.Register(&stubTool{name: "fails", execute: func(ctx context.Context, call CallContext, args map[string]any) (any, error) {
		return nil, assertError{}
	}})

	result := e.Dispatch(context.Background(), CallContext{}, "fails", nil)
	errOut, ok := result.(ErrorResult)
	require.True(t, ok)
	assert.Equal(t, "tool_execution_failed", errOut.Error)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestDispatchReturnsToolValueOnSuccess(t *testing.T) {
	e := New(nil)
	e.Register(&stubTool{name: "ok", execute: func(ctx context.Context, call CallContext, args map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	}})

	result := e.Dispatch(context.Background(), CallContext{}, "ok", nil)
	assert.Equal(t, map[string]any{"ok": true}, result)
}

func TestSchemasFallsBackToObjectForNoArgsTool(t *testing.T) {
	e := New(nil)
	e.Register(&stubTool{name: "noop"})

	schemas := e.Schemas()
	require.Contains(t, schemas, "noop")
	assert.Equal(t, "object", schemas["noop"].Type)
}

func TestSchemasUsesRawSchemaWhenProvided(t *testing.T) {
	e := New(nil)
	e.Register(&rawSchemaTool{
		stubTool: stubTool{name: "mcp.search"},
		schema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
		},
	})

	schemas := e.Schemas()
	require.Contains(t, schemas, "mcp.search")
	assert.Equal(t, "object", schemas["mcp.search"].Type)
	assert.Contains(t, schemas["mcp.search"].Required, "query")
}

func TestDescriptionsListsEveryTool(t *testing.T) {
	e := New(nil)
	e.Register(&stubTool{name: "a"})
	e.Register(&stubTool{name: "b"})

	descriptions := e.Descriptions()
	assert.Len(t, descriptions, 2)
	assert.Equal(t, "stub", descriptions["a"])
}
