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

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arbor-run/kernel/pkg/events"
)

func TestRegisterDefaultsToIdle(t *testing.T) {
	tr := New(nil)
	tr.Register("a1")
	assert.Equal(t, Idle, tr.Get("a1"))
}

func TestSetEmitsOnlyOnChange(t *testing.T) {
	b := events.New()
	var changes []events.ComputeStatusChangePayload
	b.Subscribe(func(e events.Event) {
		if p, ok := e.Payload.(events.ComputeStatusChangePayload); ok {
			changes = append(changes, p)
		}
	})

	tr := New(b)
	tr.Register("a1")
	tr.Set("a1", WaitingLLM)
	tr.Set("a1", WaitingLLM) // no-op, same status
	tr.Set("a1", Processing)

	require := assert.New(t)
	require.Len(changes, 2)
	require.Equal("idle", changes[0].From)
	require.Equal("waiting_llm", changes[0].To)
	require.Equal("waiting_llm", changes[1].From)
	require.Equal("processing", changes[1].To)
}

func TestForgetRemovesTracking(t *testing.T) {
	tr := New(nil)
	tr.Register("a1")
	tr.Set("a1", Processing)
	tr.Forget("a1")
	assert.Equal(t, Idle, tr.Get("a1"))
}
