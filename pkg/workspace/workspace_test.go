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

package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.WriteFile(ctx, "agent-1", "notes/a.txt", []byte("hello")))
	content, err := w.ReadFile(ctx, "agent-1", "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestListFiles(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.WriteFile(ctx, "agent-1", "a.txt", []byte("1")))
	require.NoError(t, w.WriteFile(ctx, "agent-1", "sub/b.txt", []byte("2")))

	files, err := w.ListFiles(ctx, "agent-1", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, files)
}

func TestListFilesEmptyDirectoryReturnsNoError(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	files, err := w.ListFiles(context.Background(), "agent-new", "")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWorkspacesAreIsolatedPerAgent(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.WriteFile(ctx, "agent-a", "secret.txt", []byte("a-only")))

	_, err = w.ReadFile(ctx, "agent-b", "secret.txt")
	assert.Error(t, err)
}

func TestPutGetArtifactRoundTrip(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := w.PutArtifact(ctx, "agent-1", []byte("artifact body"))
	require.NoError(t, err)
	assert.Contains(t, ref, "artifact:")

	content, err := w.GetArtifact(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "artifact body", string(content))
}

func TestGetArtifactMalformedRef(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = w.GetArtifact(context.Background(), "not-an-artifact-ref")
	assert.Error(t, err)
}

func TestAssignThenReleaseRemovesAgentDirectory(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, w.Assign(ctx, "agent-1"))
	require.NoError(t, w.WriteFile(ctx, "agent-1", "a.txt", []byte("1")))

	require.NoError(t, w.Release(ctx, "agent-1"))
	_, err = w.ReadFile(ctx, "agent-1", "a.txt")
	assert.Error(t, err)
}

func TestResolveRejectsEscapingPath(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = w.resolve("agent-1", "../../etc/passwd")
	assert.Error(t, err)
}
