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

package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalCapRespected(t *testing.T) {
	g := New(2)
	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		agentID := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_, _ = g.ExecuteRequest(context.Background(), agentID, func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxObserved)
					if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return "ok", nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxObserved, int32(2))
}

func TestDuplicateAgentRejected(t *testing.T) {
	g := New(2)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = g.ExecuteRequest(context.Background(), "agent-1", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()

	<-started
	_, err := g.ExecuteRequest(context.Background(), "agent-1", func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrAlreadyActive)
	close(release)
}

func TestCancelQueuedRequest(t *testing.T) {
	g := New(1)
	block := make(chan struct{})

	go func() {
		_, _ = g.ExecuteRequest(context.Background(), "agent-1", func(ctx context.Context) (any, error) {
			<-block
			return nil, nil
		})
	}()

	time.Sleep(10 * time.Millisecond) // let agent-1 acquire the sole slot

	done := make(chan error, 1)
	go func() {
		_, err := g.ExecuteRequest(context.Background(), "agent-2", func(ctx context.Context) (any, error) {
			return "should not run", nil
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, g.Cancel("agent-2"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancel did not unblock queued request")
	}
	close(block)
}
