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

package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
	"github.com/arbor-run/kernel/pkg/store"
)

type noopFlusher struct{ calls int }

func (f *noopFlusher) Flush(ctx context.Context) error { f.calls++; return nil }

type fakeAborter struct{ aborted []string }

func (a *fakeAborter) AbortLLMCall(agentID string) (bool, bool) {
	a.aborted = append(a.aborted, agentID)
	return true, true
}

func newManager(t *testing.T, timeout time.Duration) (*Manager, *status.Tracker, *fakeAborter) {
	t.Helper()
	ctx := context.Background()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	org, err := orgstore.Open(ctx, fs)
	require.NoError(t, err)

	b := bus.New()
	b.Register(orgstore.RootAgentID)
	b.Register(orgstore.UserAgentID)

	tracker := status.New(nil)
	tracker.Register(orgstore.RootAgentID)
	tracker.Register(orgstore.UserAgentID)

	aborter := &fakeAborter{}
	m := New(org, b, tracker, &noopFlusher{}, aborter, timeout)
	return m, tracker, aborter
}

func TestShutdownIdempotent(t *testing.T) {
	m, _, _ := newManager(t, 50*time.Millisecond)

	first := m.Shutdown(context.Background())
	assert.True(t, first.OK)
	assert.False(t, first.AlreadyShuttingDown)

	second := m.Shutdown(context.Background())
	assert.False(t, second.OK)
	assert.True(t, second.AlreadyShuttingDown)
}

func TestShutdownReturnsImmediatelyWhenAllIdle(t *testing.T) {
	m, _, aborter := newManager(t, 2*time.Second)

	start := time.Now()
	res := m.Shutdown(context.Background())
	elapsed := time.Since(start)

	assert.True(t, res.OK)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Empty(t, aborter.aborted)
}

func TestShutdownForceAbortsAfterTimeout(t *testing.T) {
	m, tracker, aborter := newManager(t, 30*time.Millisecond)
	tracker.Set(orgstore.UserAgentID, status.WaitingLLM)

	res := m.Shutdown(context.Background())
	assert.True(t, res.OK)
	assert.Contains(t, aborter.aborted, orgstore.UserAgentID)
}

func TestStopRequestedSetBeforeDrainCompletes(t *testing.T) {
	m, _, _ := newManager(t, 10*time.Millisecond)
	assert.False(t, m.StopRequested())
	m.Shutdown(context.Background())
	assert.True(t, m.StopRequested())
}
