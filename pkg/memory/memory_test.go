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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/config"
)

func TestNewDefaultsToKeywordBackend(t *testing.T) {
	m, err := New(context.Background(), config.MemoryConfig{}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "keyword", m.Backend())
}

func TestRememberAndRecallKeywordOverlap(t *testing.T) {
	m, err := New(context.Background(), config.MemoryConfig{Backend: "keyword"}, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Remember(ctx, "agent-1", "the deployment pipeline failed on staging", nil)
	require.NoError(t, err)
	_, err = m.Remember(ctx, "agent-1", "the invoice total was miscalculated", nil)
	require.NoError(t, err)

	results, err := m.Recall(ctx, "agent-1", "deployment pipeline staging", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "deployment pipeline")
}

func TestRecallIsolatedPerAgent(t *testing.T) {
	m, err := New(context.Background(), config.MemoryConfig{Backend: "keyword"}, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Remember(ctx, "agent-a", "the rocket launch window opens friday", nil)
	require.NoError(t, err)

	results, err := m.Recall(ctx, "agent-b", "rocket launch window friday", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestForgetRemovesEntry(t *testing.T) {
	m, err := New(context.Background(), config.MemoryConfig{Backend: "keyword"}, t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	id, err := m.Remember(ctx, "agent-1", "quarterly report numbers revised", nil)
	require.NoError(t, err)

	require.NoError(t, m.Forget(ctx, "agent-1", id))

	results, err := m.Recall(ctx, "agent-1", "quarterly report numbers revised", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewUnknownBackendErrors(t *testing.T) {
	_, err := New(context.Background(), config.MemoryConfig{Backend: "bogus"}, t.TempDir())
	assert.Error(t, err)
}

func TestNewEmbeddingBackendRequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), config.MemoryConfig{Backend: "chromem"}, t.TempDir())
	assert.Error(t, err)
}
