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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arbor-run/kernel/pkg/docextract"
	"github.com/arbor-run/kernel/pkg/webfetch"
)

// FetchURLTool implements fetch_url: a hardened HTTP fetch followed by
// readability extraction and Markdown conversion.
type FetchURLTool struct {
	Fetcher *webfetch.Fetcher
}

type fetchURLArgs struct {
	URL string `json:"url" jsonschema:"required,description=The http(s) URL to fetch"`
}

func (t *FetchURLTool) Name() string { return "fetch_url" }
func (t *FetchURLTool) Description() string {
	return "Fetch a web page and return its main content as Markdown."
}
func (t *FetchURLTool) ArgsExample() any { return fetchURLArgs{} }

func (t *FetchURLTool) Execute(ctx context.Context, _ CallContext, args map[string]any) (any, error) {
	var a fetchURLArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.URL == "" {
		return errResult("missing_parameter", "url is required", nil), nil
	}

	result, err := t.Fetcher.Fetch(ctx, a.URL)
	if err != nil {
		return errResult("fetch_failed", err.Error(), nil), nil
	}
	return map[string]any{
		"url":      result.URL,
		"title":    result.Title,
		"markdown": result.Markdown,
	}, nil
}

// ExtractDocumentTextTool implements extract_document_text: plain-text
// extraction from a PDF, DOCX, or XLSX document, referenced either as an
// "artifact:<id>" ref (from put_artifact) or a workspace-relative path
// (from write_file). docextract's parsers all operate on a filesystem
// path, so the referenced bytes are staged to a scratch file naming the
// same extension for the duration of the call.
type ExtractDocumentTextTool struct {
	Workspace Workspace
}

type extractDocumentTextArgs struct {
	Ref string `json:"ref" jsonschema:"required,description=artifact:<id> ref from put_artifact, or a workspace-relative path; must end in .pdf, .docx, or .xlsx"`
}

func (t *ExtractDocumentTextTool) Name() string { return "extract_document_text" }
func (t *ExtractDocumentTextTool) Description() string {
	return "Extract plain text from a PDF, DOCX, or XLSX artifact or workspace file."
}
func (t *ExtractDocumentTextTool) ArgsExample() any { return extractDocumentTextArgs{} }

func (t *ExtractDocumentTextTool) Execute(ctx context.Context, call CallContext, args map[string]any) (any, error) {
	var a extractDocumentTextArgs
	if err := decodeArgs(args, &a); err != nil {
		return errResult("invalid_args", err.Error(), nil), nil
	}
	if a.Ref == "" {
		return errResult("missing_parameter", "ref is required", nil), nil
	}

	var content []byte
	var err error
	if strings.HasPrefix(a.Ref, "artifact:") {
		content, err = t.Workspace.GetArtifact(ctx, a.Ref)
		if err != nil {
			return errResult("artifact_not_found", a.Ref, nil), nil
		}
	} else {
		if !pathTraversalSafe(a.Ref) {
			return errResult("path_traversal_blocked", a.Ref, nil), nil
		}
		content, err = t.Workspace.ReadFile(ctx, call.CallerAgentID, a.Ref)
		if err != nil {
			return errResult("not_found", err.Error(), nil), nil
		}
	}

	scratch, err := os.CreateTemp("", "extract-*"+filepath.Ext(a.Ref))
	if err != nil {
		return nil, fmt.Errorf("extract_document_text: stage scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	defer os.Remove(scratchPath)

	if _, err := scratch.Write(content); err != nil {
		scratch.Close()
		return nil, fmt.Errorf("extract_document_text: write scratch file: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return nil, fmt.Errorf("extract_document_text: close scratch file: %w", err)
	}

	result, err := docextract.Extract(scratchPath)
	if err != nil {
		return errResult("extract_failed", fmt.Sprintf("%s: %v", filepath.Base(a.Ref), err), nil), nil
	}
	return map[string]any{
		"text":  result.Text,
		"pages": result.Pages,
	}, nil
}
