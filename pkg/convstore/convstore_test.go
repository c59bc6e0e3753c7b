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

package convstore

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/store"
)

func newTestConvStore(t *testing.T) *ConversationStore {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(fs, 1000)
}

func TestEnsureSeedsSystemEntry(t *testing.T) {
	c := newTestConvStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "agent-1", "you are helpful"))

	h := c.Get("agent-1")
	require.Len(t, h, 1)
	assert.Equal(t, RoleSystem, h[0].Role)
	assert.Equal(t, "you are helpful", h[0].Content)
}

func TestCompressionShape(t *testing.T) {
	c := newTestConvStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "agent-1", "system prompt"))

	for i := 0; i < 21; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, c.Append(ctx, "agent-1", Entry{Role: role, Content: fmt.Sprintf("entry-%d", i)}))
	}

	before := c.Get("agent-1")
	require.Len(t, before, 22)

	result, err := c.Compress(ctx, "agent-1", "S", 5)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.Compressed)
	assert.Equal(t, 22, result.OriginalCount)
	assert.Equal(t, 7, result.NewCount)

	after := c.Get("agent-1")
	require.Len(t, after, 7)
	assert.Equal(t, RoleSystem, after[0].Role)
	assert.Equal(t, "system prompt", after[0].Content)
	assert.True(t, strings.Contains(after[1].Content, "S"))
	assert.True(t, strings.Contains(after[1].Content, "[Historical Summary]"))
	for i := 0; i < 5; i++ {
		assert.Equal(t, before[17+i].Content, after[2+i].Content)
	}
}

func TestCompressionNoopWhenShort(t *testing.T) {
	c := newTestConvStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "agent-1", "system prompt"))
	require.NoError(t, c.Append(ctx, "agent-1", Entry{Role: RoleUser, Content: "hi"}))

	result, err := c.Compress(ctx, "agent-1", "S", 5)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.Compressed)
	assert.Equal(t, 2, result.OriginalCount)
	assert.Equal(t, 2, result.NewCount)
}

func TestBandThresholds(t *testing.T) {
	c := newTestConvStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "agent-1", strings.Repeat("x", 10)))

	band, _ := c.Band("agent-1")
	assert.Equal(t, BandNone, band)

	require.NoError(t, c.Append(ctx, "agent-1", Entry{Role: RoleUser, Content: strings.Repeat("word ", 1000)}))
	band, tokens := c.Band("agent-1")
	assert.Equal(t, BandHardLimit, band)
	assert.Greater(t, tokens, 950)
}

func TestDeleteRemovesHistory(t *testing.T) {
	c := newTestConvStore(t)
	ctx := context.Background()
	require.NoError(t, c.Ensure(ctx, "agent-1", "p"))
	require.NoError(t, c.Delete(ctx, "agent-1"))
	assert.Empty(t, c.Get("agent-1"))
}
