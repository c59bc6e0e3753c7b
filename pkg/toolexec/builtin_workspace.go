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
	"path"
	"strings"
)

// Workspace is the external collaborator artifacts and file tools
// delegate to — out of scope per the spec, carried here only as the
// narrow interface these tools need.
type Workspace interface {
	PutArtifact(ctx context.Context, agentID string, content []byte) (ref string, err error)
	GetArtifact(ctx context.Context, ref string) ([]byte, error)
	ReadFile(ctx context.Context, agentID, relativePath string) ([]byte, error)
	WriteFile(ctx context.Context, agentID, relativePath string, content []byte) error
	ListFiles(ctx context.Context, agentID, relativePath string) ([]string, error)
}

// pathTraversalSafe rejects `..`, absolute paths, and drive prefixes
// (P11), matching the spec's literal forbidden-shape list.
func pathTraversalSafe(p string) bool {
	if p == "" {
		return false
	}
	if strings.Contains(p, "..") {
		return false
	}
	if path.IsAbs(p) || strings.HasPrefix(p, "/") {
		return false
	}
	if len(p) >= 2 && p[1] == ':' { // drive prefix, e.g. "C:"
		return false
	}
	return true
}

// PutArtifactTool implements put_artifact.
type PutArtifactTool struct{ Workspace Workspace }

type putArtifactArgs struct {
	Content string `json:"content" jsonschema:"required,description=Content to store"`
}

func (t *PutArtifactTool) Name() string        { return "put_artifact" }
func (t *PutArtifactTool) Description() string { return "Store content as an opaque artifact and return its reference." }
func (t *PutArtifactTool) ArgsExample() any     { return putArtifactArgs{} }

func (t *PutArtifactTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a putArtifactArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	ref, err := t.Workspace.PutArtifact(ctx, call.CallerAgentID, []byte(a.Content))
	if err != nil {
		return nil, err
	}
	return map[string]any{"ref": ref}, nil
}

// GetArtifactTool implements get_artifact.
type GetArtifactTool struct{ Workspace Workspace }

type getArtifactArgs struct {
	Ref string `json:"ref" jsonschema:"required,description=Artifact reference returned by put_artifact"`
}

func (t *GetArtifactTool) Name() string        { return "get_artifact" }
func (t *GetArtifactTool) Description() string { return "Fetch a previously stored artifact by reference." }
func (t *GetArtifactTool) ArgsExample() any     { return getArtifactArgs{} }

func (t *GetArtifactTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (any, error) {
	var a getArtifactArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	content, err := t.Workspace.GetArtifact(ctx, a.Ref)
	if err != nil {
		return errResult("artifact_not_found", a.Ref, nil), nil
	}
	return map[string]any{"content": string(content)}, nil
}

// ReadFileTool implements read_file.
type ReadFileTool struct{ Workspace Workspace }

type fileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path relative to the agent's workspace"`
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the calling agent's workspace." }
func (t *ReadFileTool) ArgsExample() any     { return fileArgs{} }

func (t *ReadFileTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if !pathTraversalSafe(a.Path) {
		return errResult("path_traversal_blocked", a.Path, nil), nil
	}
	content, err := t.Workspace.ReadFile(ctx, call.CallerAgentID, a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": string(content)}, nil
}

// WriteFileTool implements write_file.
type WriteFileTool struct{ Workspace Workspace }

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path relative to the agent's workspace"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write a file in the calling agent's workspace." }
func (t *WriteFileTool) ArgsExample() any     { return writeFileArgs{} }

func (t *WriteFileTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a writeFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if !pathTraversalSafe(a.Path) {
		return errResult("path_traversal_blocked", a.Path, nil), nil
	}
	if err := t.Workspace.WriteFile(ctx, call.CallerAgentID, a.Path, []byte(a.Content)); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// ListFilesTool implements list_files.
type ListFilesTool struct{ Workspace Workspace }

func (t *ListFilesTool) Name() string        { return "list_files" }
func (t *ListFilesTool) Description() string { return "List files under a path in the calling agent's workspace." }
func (t *ListFilesTool) ArgsExample() any     { return fileArgs{} }

func (t *ListFilesTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a fileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Path != "" && !pathTraversalSafe(a.Path) {
		return errResult("path_traversal_blocked", a.Path, nil), nil
	}
	files, err := t.Workspace.ListFiles(ctx, call.CallerAgentID, a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": files}, nil
}
