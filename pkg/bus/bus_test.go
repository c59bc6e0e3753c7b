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

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendUnknownRecipient(t *testing.T) {
	b := New()
	_, err := b.Send(Message{From: "a", To: "ghost", Payload: "hi"})
	require.ErrorIs(t, err, ErrUnknownRecipient)
	assert.Equal(t, 0, b.GetPendingCount())
}

func TestFIFODelivery(t *testing.T) {
	b := New()
	b.Register("r")

	id1, err := b.Send(Message{From: "a", To: "r", Payload: "first"})
	require.NoError(t, err)
	id2, err := b.Send(Message{From: "a", To: "r", Payload: "second"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	m1, ok := b.ReceiveNext("r")
	require.True(t, ok)
	assert.Equal(t, "first", m1.Payload)

	m2, ok := b.ReceiveNext("r")
	require.True(t, ok)
	assert.Equal(t, "second", m2.Payload)

	_, ok = b.ReceiveNext("r")
	assert.False(t, ok)
}

func TestQueueDepthAndDrain(t *testing.T) {
	b := New()
	b.Register("r")
	_, _ = b.Send(Message{From: "a", To: "r", Payload: 1})
	_, _ = b.Send(Message{From: "a", To: "r", Payload: 2})

	assert.Equal(t, 2, b.GetQueueDepth("r"))
	assert.Equal(t, 2, b.GetPendingCount())

	b.Drain("r")
	assert.Equal(t, 0, b.GetQueueDepth("r"))
	_, ok := b.ReceiveNext("r")
	assert.False(t, ok)
}

func TestUnregisterRejectsFutureSends(t *testing.T) {
	b := New()
	b.Register("r")
	b.Unregister("r")

	_, err := b.Send(Message{From: "a", To: "r", Payload: "x"})
	require.ErrorIs(t, err, ErrUnknownRecipient)
}

func TestAtMostOnceDelivery(t *testing.T) {
	b := New()
	b.Register("r")
	_, _ = b.Send(Message{From: "a", To: "r", Payload: "only"})

	first, ok := b.ReceiveNext("r")
	require.True(t, ok)
	assert.Equal(t, "only", first.Payload)

	_, ok = b.ReceiveNext("r")
	assert.False(t, ok)
}
