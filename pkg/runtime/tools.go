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

package runtime

import (
	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/lifecycle"
	"github.com/arbor-run/kernel/pkg/memory"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/sandbox"
	"github.com/arbor-run/kernel/pkg/toolexec"
	"github.com/arbor-run/kernel/pkg/webfetch"
	"github.com/arbor-run/kernel/pkg/workspace"
)

// toolexecDeps collects every component a built-in tool needs, so
// registerBuiltinTools can wire the full set in one place instead of
// repeating constructor calls across Runtime.New.
type toolexecDeps struct {
	Org       *orgstore.OrgStore
	Bus       *bus.Bus
	Conv      *convstore.ConversationStore
	Contacts  *contacts.Registry
	Lifecycle *lifecycle.Manager
	Memory    *memory.Memory
	Workspace *workspace.Workspace
	Sandbox   *sandbox.VM
	Fetcher   *webfetch.Fetcher
}

// registerBuiltinTools registers every built-in tool the kernel ships
// with. MCP-discovered tools register separately, after connection.
func registerBuiltinTools(e *toolexec.Executor, d toolexecDeps) {
	e.Register(&toolexec.SpawnAgentWithTaskTool{Lifecycle: d.Lifecycle})
	e.Register(&toolexec.TerminateAgentTool{Lifecycle: d.Lifecycle})

	e.Register(&toolexec.FindRoleByNameTool{Org: d.Org})
	e.Register(&toolexec.CreateRoleTool{Org: d.Org})

	e.Register(&toolexec.SendMessageTool{Bus: d.Bus, Org: d.Org, Contacts: d.Contacts})
	e.Register(&toolexec.CompressContextTool{Conv: d.Conv})
	e.Register(&toolexec.GetContextStatusTool{Conv: d.Conv})

	e.Register(&toolexec.StoreMemoryTool{Memory: d.Memory})
	e.Register(&toolexec.RecallMemoryTool{Memory: d.Memory})
	e.Register(&toolexec.ForgetMemoryTool{Memory: d.Memory})

	e.Register(&toolexec.PutArtifactTool{Workspace: d.Workspace})
	e.Register(&toolexec.GetArtifactTool{Workspace: d.Workspace})
	e.Register(&toolexec.ReadFileTool{Workspace: d.Workspace})
	e.Register(&toolexec.WriteFileTool{Workspace: d.Workspace})
	e.Register(&toolexec.ListFilesTool{Workspace: d.Workspace})
	e.Register(&toolexec.ExtractDocumentTextTool{Workspace: d.Workspace})

	e.Register(&toolexec.RunJavascriptTool{Sandbox: d.Sandbox})
	e.Register(&toolexec.FetchURLTool{Fetcher: d.Fetcher})
}
