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
	"errors"

	"github.com/arbor-run/kernel/pkg/orgstore"
)

// FindRoleByNameTool implements find_role_by_name.
type FindRoleByNameTool struct {
	Org *orgstore.OrgStore
}

type findRoleByNameArgs struct {
	Name string `json:"name" jsonschema:"required,description=Role name to look up"`
}

func (t *FindRoleByNameTool) Name() string        { return "find_role_by_name" }
func (t *FindRoleByNameTool) Description() string { return "Find an existing role by its name." }
func (t *FindRoleByNameTool) ArgsExample() any     { return findRoleByNameArgs{} }

func (t *FindRoleByNameTool) Execute(_ context.Context, _ CallContext, args map[string]any) (any, error) {
	var a findRoleByNameArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Name == "" {
		return errResult("missing_parameter", "name is required", nil), nil
	}

	role, err := t.Org.FindRoleByName(a.Name)
	if errors.Is(err, orgstore.ErrRoleNotFound) {
		return errResult("role_not_found", a.Name, nil), nil
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// CreateRoleTool implements create_role.
type CreateRoleTool struct {
	Org *orgstore.OrgStore
}

type createRoleArgs struct {
	Name         string `json:"name" jsonschema:"required,description=Unique role name"`
	RolePrompt   string `json:"rolePrompt" jsonschema:"required,description=Free-form system prompt text for this role"`
	LlmServiceID string `json:"llmServiceId,omitempty" jsonschema:"description=Optional binding to a specific LLM backend"`
}

func (t *CreateRoleTool) Name() string        { return "create_role" }
func (t *CreateRoleTool) Description() string { return "Create a new role available for spawning agents." }
func (t *CreateRoleTool) ArgsExample() any     { return createRoleArgs{} }

func (t *CreateRoleTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a createRoleArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Name == "" || a.RolePrompt == "" {
		return errResult("missing_parameter", "name and rolePrompt are required", nil), nil
	}

	role, err := t.Org.CreateRole(ctx, a.Name, a.RolePrompt, a.LlmServiceID, call.CallerAgentID)
	if err != nil {
		return nil, err
	}
	return role, nil
}
