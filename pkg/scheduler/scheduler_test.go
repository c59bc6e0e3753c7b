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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
	"github.com/arbor-run/kernel/pkg/store"
)

type countingStepper struct {
	mu    sync.Mutex
	steps []string
}

func (c *countingStepper) Step(ctx context.Context, agentID string, msg bus.Message) error {
	c.mu.Lock()
	c.steps = append(c.steps, agentID)
	c.mu.Unlock()
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *bus.Bus, *status.Tracker, *countingStepper) {
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

	stepper := &countingStepper{}
	s := New(org, b, tracker, stepper, nil, 2)
	return s, b, tracker, stepper
}

func TestRunOnceSkipsNonIdleAndEmptyQueues(t *testing.T) {
	s, b, tracker, stepper := newTestScheduler(t)

	tracker.Set(orgstore.UserAgentID, status.Processing)
	_, err := b.Send(bus.Message{From: orgstore.RootAgentID, To: orgstore.UserAgentID, Payload: "x"})
	require.NoError(t, err)

	s.RunOnce(context.Background())

	stepper.mu.Lock()
	defer stepper.mu.Unlock()
	assert.Empty(t, stepper.steps)
}

func TestRunOnceDispatchesRunnableAgent(t *testing.T) {
	s, b, _, stepper := newTestScheduler(t)

	_, err := b.Send(bus.Message{From: orgstore.RootAgentID, To: orgstore.UserAgentID, Payload: "x"})
	require.NoError(t, err)

	s.RunOnce(context.Background())

	stepper.mu.Lock()
	defer stepper.mu.Unlock()
	assert.Equal(t, []string{orgstore.UserAgentID}, stepper.steps)
}

func TestRunOnceDrainsMultipleQueuedMessages(t *testing.T) {
	s, b, _, stepper := newTestScheduler(t)

	for i := 0; i < 3; i++ {
		_, err := b.Send(bus.Message{From: orgstore.RootAgentID, To: orgstore.UserAgentID, Payload: i})
		require.NoError(t, err)
	}

	s.RunOnce(context.Background())

	stepper.mu.Lock()
	defer stepper.mu.Unlock()
	assert.Len(t, stepper.steps, 3)
}

func TestRunServerStopsOnSignal(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)

	var done int32
	go func() {
		s.RunServer(context.Background())
		atomic.StoreInt32(&done, 1)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&done))
}
