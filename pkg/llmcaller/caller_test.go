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

package llmcaller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/events"
)

type fakeBackend struct {
	model   string
	calls   int
	failN   int
	failErr error
}

func (f *fakeBackend) Model() string { return f.model }

func (f *fakeBackend) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	f.calls++
	if f.calls <= f.failN {
		return ChatResponse{}, f.failErr
	}
	return ChatResponse{Content: "ok"}, nil
}

func TestRetryThenSuccess(t *testing.T) {
	backend := &fakeBackend{model: "test-model", failN: 2, failErr: networkError{errors.New("boom")}}
	bus := events.New()

	var delays []time.Duration
	var mu sleepRecorder
	caller := New(backend, bus, WithMaxRetries(3))
	caller.sleep = mu.record(&delays)

	resp, err := caller.Chat(context.Background(), ChatRequest{AgentID: "a1", Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, backend.calls)
	require.Len(t, delays, 2)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
}

func TestRetryExhaustionSurfacesLastError(t *testing.T) {
	backend := &fakeBackend{model: "test-model", failN: 99, failErr: serverError{errors.New("still down")}}
	bus := events.New()
	caller := New(backend, bus, WithMaxRetries(3))
	caller.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := caller.Chat(context.Background(), ChatRequest{AgentID: "a1"})
	require.ErrorIs(t, err, ErrLLMFailedAfterRetries)
	assert.Equal(t, 3, backend.calls)
}

func TestCancellationSkipsRetry(t *testing.T) {
	backend := &fakeBackend{model: "test-model", failN: 99, failErr: networkError{errors.New("boom")}}
	bus := events.New()
	caller := New(backend, bus, WithMaxRetries(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := caller.Chat(ctx, ChatRequest{AgentID: "a1"})
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 0, backend.calls)
}

// sleepRecorder is a tiny helper to capture the delays Chat requests
// without actually waiting.
type sleepRecorder struct{}

func (sleepRecorder) record(out *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*out = append(*out, d)
		return nil
	}
}
