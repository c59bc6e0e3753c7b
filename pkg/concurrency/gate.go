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

// Package concurrency enforces the two invariants every LLM call in the
// runtime must respect: a global cap on in-flight calls, and at most one
// in-flight call per agent.
package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrAlreadyActive is returned when an agent already has an in-flight
	// call. The Scheduler is expected to never trigger this in practice —
	// it only schedules idle agents — so this is a defense against bugs.
	ErrAlreadyActive = errors.New("already_active")

	// ErrCancelled is returned to a caller whose request was removed from
	// the queue before it started.
	ErrCancelled = errors.New("cancelled")
)

// RequestFn is the unit of work the gate admits: a single LLM call, given
// a context that is cancelled if the caller aborts.
type RequestFn func(ctx context.Context) (any, error)

// Stats is a point-in-time snapshot of gate activity.
type Stats struct {
	Active             int
	Queued             int
	TotalSubmitted     int64
	Completed          int64
	RejectedDuplicate  int64
	Cancelled          int64
}

type waiter struct {
	agentID string
	run     RequestFn
	resultC chan result
	cancel  context.CancelFunc
	ctx     context.Context
}

type result struct {
	val any
	err error
}

// Gate admits LLM requests under a global concurrency cap while enforcing
// per-agent single-flight.
type Gate struct {
	sem *semaphore.Weighted
	max int64

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	queue    []*waiter
	queuedBy map[string]*waiter

	stats Stats
}

// New creates a Gate admitting up to maxConcurrentRequests simultaneous
// calls.
func New(maxConcurrentRequests int) *Gate {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = 3
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(maxConcurrentRequests)),
		max:      int64(maxConcurrentRequests),
		active:   make(map[string]context.CancelFunc),
		queuedBy: make(map[string]*waiter),
	}
}

// ExecuteRequest runs fn for agentID, immediately if a slot is free,
// otherwise queueing it FIFO until one releases. It fails fast with
// ErrAlreadyActive if agentID already has an in-flight call.
func (g *Gate) ExecuteRequest(ctx context.Context, agentID string, fn RequestFn) (any, error) {
	g.mu.Lock()
	if _, busy := g.active[agentID]; busy {
		g.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	if _, queued := g.queuedBy[agentID]; queued {
		g.mu.Unlock()
		return nil, ErrAlreadyActive
	}

	reqCtx, cancel := context.WithCancel(ctx)
	g.stats.TotalSubmitted++

	if g.sem.TryAcquire(1) {
		g.active[agentID] = cancel
		g.mu.Unlock()
		return g.run(reqCtx, agentID, fn, cancel)
	}

	w := &waiter{
		agentID: agentID,
		run:     fn,
		resultC: make(chan result, 1),
		cancel:  cancel,
		ctx:     reqCtx,
	}
	g.queue = append(g.queue, w)
	g.queuedBy[agentID] = w
	g.stats.Queued = len(g.queue)
	g.mu.Unlock()

	select {
	case r := <-w.resultC:
		return r.val, r.err
	case <-reqCtx.Done():
		if !g.removeFromQueue(w) {
			// Already taken off the queue: either dispatched or dropped
			// as cancelled, and in both cases a result is sent on resultC.
			r := <-w.resultC
			return r.val, r.err
		}
		return nil, ErrCancelled
	}
}

func (g *Gate) removeFromQueue(w *waiter) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, q := range g.queue {
		if q == w {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			delete(g.queuedBy, w.agentID)
			g.stats.Queued = len(g.queue)
			g.stats.Cancelled++
			return true
		}
	}
	return false
}

func (g *Gate) run(ctx context.Context, agentID string, fn RequestFn, cancel context.CancelFunc) (any, error) {
	val, err := fn(ctx)

	g.mu.Lock()
	delete(g.active, agentID)
	g.stats.Completed++
	g.sem.Release(1)
	next := g.popNextLocked()
	g.mu.Unlock()

	if errors.Is(ctx.Err(), context.Canceled) && err == nil {
		err = ErrCancelled
	}

	cancel()

	if next != nil {
		g.dispatch(next)
	}
	return val, err
}

// popNextLocked tries to acquire a slot for the next queued waiter. Must
// be called with g.mu held; the semaphore acquire itself does not block
// because the caller just released one unit.
func (g *Gate) popNextLocked() *waiter {
	for len(g.queue) > 0 {
		w := g.queue[0]
		g.queue = g.queue[1:]
		delete(g.queuedBy, w.agentID)
		g.stats.Queued = len(g.queue)

		if w.ctx.Err() != nil {
			g.stats.Cancelled++
			w.resultC <- result{err: ErrCancelled}
			continue
		}
		if !g.sem.TryAcquire(1) {
			// Put it back; a future release will retry.
			g.queue = append([]*waiter{w}, g.queue...)
			g.queuedBy[w.agentID] = w
			g.stats.Queued = len(g.queue)
			return nil
		}
		g.active[w.agentID] = w.cancel
		return w
	}
	return nil
}

func (g *Gate) dispatch(w *waiter) {
	go func() {
		val, err := g.run(w.ctx, w.agentID, w.run, w.cancel)
		w.resultC <- result{val: val, err: err}
	}()
}

// Cancel signals agentID's in-flight or queued request. A queued request
// is removed and rejected with ErrCancelled; an in-flight request's
// context is cancelled, which is bridged to the underlying HTTP client's
// abort.
func (g *Gate) Cancel(agentID string) error {
	g.mu.Lock()
	if w, queued := g.queuedBy[agentID]; queued {
		g.mu.Unlock()
		w.cancel()
		return nil
	}
	cancel, active := g.active[agentID]
	g.mu.Unlock()
	if !active {
		return fmt.Errorf("concurrency: agent %q has no active or queued request", agentID)
	}
	cancel()
	return nil
}

// Snapshot returns current Gate statistics.
func (g *Gate) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Active = len(g.active)
	s.Queued = len(g.queue)
	return s
}
