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

// Package bus implements the per-recipient FIFO message queues agents use
// to talk to each other. The Bus has no persisted form: queued messages
// live only in process memory and are lost on crash, to be re-produced by
// whoever sent them.
package bus

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownRecipient is returned by Send when the recipient has not been
// registered with the Bus (via Register).
var ErrUnknownRecipient = errors.New("unknown_recipient")

// Message is the unit of agent-to-agent communication. Payload is an
// opaque structured value (text, tool_result, task_assignment, artifact
// reference, ...); the Bus never inspects it.
type Message struct {
	ID      string
	From    string
	To      string
	TaskID  string // empty if none
	Payload any
}

// Bus routes messages into strict per-recipient FIFO queues. Queues are
// unbounded at this layer; backpressure is the concurrency gate's job, not
// the Bus's.
type Bus struct {
	mu     sync.Mutex
	queues map[string][]Message
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{queues: make(map[string][]Message)}
}

// Register makes agentID a valid recipient with an empty queue. Spawning
// and restoring agents call this before any message can target them.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[agentID]; !ok {
		b.queues[agentID] = nil
	}
}

// Unregister removes agentID's queue entirely, so future Send calls to it
// fail with ErrUnknownRecipient. Used on agent termination.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, agentID)
}

// Send enqueues msg for msg.To, assigning it an ID if absent. Sending is
// non-blocking. Returns ErrUnknownRecipient without enqueuing anything if
// msg.To has not been registered.
func (b *Bus) Send(msg Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.queues[msg.To]; !ok {
		return "", ErrUnknownRecipient
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	b.queues[msg.To] = append(b.queues[msg.To], msg)
	return msg.ID, nil
}

// ReceiveNext pops and returns the oldest queued message for agentID, or
// ok=false if the queue is empty or agentID is unknown. Once returned, the
// message is removed — delivery is at-most-once.
func (b *Bus) ReceiveNext(agentID string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[agentID]
	if len(q) == 0 {
		return Message{}, false
	}
	msg := q[0]
	b.queues[agentID] = q[1:]
	return msg, true
}

// GetQueueDepth returns the number of messages currently queued for
// agentID. Unknown recipients report depth 0.
func (b *Bus) GetQueueDepth(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[agentID])
}

// Drain discards all queued messages for agentID without delivering them,
// used when an agent is terminated or shutdown rejects pending work.
func (b *Bus) Drain(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[agentID]; ok {
		b.queues[agentID] = nil
	}
}

// GetPendingCount returns the total number of queued messages across every
// recipient, used by Scheduler idle-detection and ShutdownManager's drain
// window.
func (b *Bus) GetPendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, q := range b.queues {
		total += len(q)
	}
	return total
}
