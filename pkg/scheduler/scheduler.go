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

// Package scheduler repeatedly picks the next runnable agent — registered,
// not terminated, non-empty queue, idle compute-status — and dispatches
// one step per agent into a bounded worker pool.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/events"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/status"
)

const defaultIdleWarningInterval = 5 * time.Minute

// Stepper runs one message-processing step for an agent. Implemented by
// *processor.Processor; defined narrowly here to avoid an import cycle.
type Stepper interface {
	Step(ctx context.Context, agentID string, msg bus.Message) error
}

// Scheduler dispatches runnable agents' steps into a bounded worker pool.
type Scheduler struct {
	Org      *orgstore.OrgStore
	Bus      *bus.Bus
	Status   *status.Tracker
	Step     Stepper
	EventBus *events.Bus // event bus for idle-warning emission
	Workers  int

	IdleWarningInterval time.Duration
	Log                 *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	warned      map[string]bool
	stopRunning bool
}

// New creates a Scheduler with a worker pool of the given size.
func New(org *orgstore.OrgStore, b *bus.Bus, tracker *status.Tracker, step Stepper, eventBus *events.Bus, workers int) *Scheduler {
	if workers <= 0 {
		workers = 3
	}
	s := &Scheduler{
		Org:                 org,
		Bus:                 b,
		Status:              tracker,
		Step:                step,
		EventBus:            eventBus,
		Workers:             workers,
		IdleWarningInterval: defaultIdleWarningInterval,
		Log:                 slog.Default(),
		warned:              make(map[string]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Signal wakes a blocked RunServer loop; call after Bus.Send or a status
// transition so server mode does not have to poll.
func (s *Scheduler) Signal() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Stop ends a running RunServer loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopRunning = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// runnableAgents returns every agent id currently eligible for a step.
func (s *Scheduler) runnableAgents() []string {
	var out []string
	for _, a := range s.Org.ListAgents() {
		if a.Status != orgstore.StatusActive {
			continue
		}
		if s.Bus.GetQueueDepth(a.ID) == 0 {
			continue
		}
		if s.Status.Get(a.ID) != status.Idle {
			continue
		}
		out = append(out, a.ID)
	}
	return out
}

// RunOnce dispatches one step for every currently runnable agent,
// blocking until all dispatched steps complete, then returns. Used in
// finite/batch mode.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for {
		runnable := s.runnableAgents()
		if len(runnable) == 0 {
			return
		}
		s.checkIdleWarnings()
		s.dispatchBatch(ctx, runnable)
	}
}

func (s *Scheduler) dispatchBatch(ctx context.Context, agentIDs []string) {
	sem := make(chan struct{}, s.Workers)
	var wg sync.WaitGroup
	for _, id := range agentIDs {
		msg, ok := s.Bus.ReceiveNext(id)
		if !ok {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(agentID string, m bus.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.Step.Step(ctx, agentID, m); err != nil {
				s.Log.Error("step failed", "agentId", agentID, "error", err)
			}
		}(id, msg)
	}
	wg.Wait()
}

// RunServer runs until ctx is cancelled or Stop is called, blocking on a
// condition variable signalled by Signal when no agent is runnable.
func (s *Scheduler) RunServer(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	for {
		s.mu.Lock()
		for !s.stopRunning && len(s.runnableAgentsLocked()) == 0 {
			s.cond.Wait()
		}
		stop := s.stopRunning
		s.mu.Unlock()
		if stop {
			return
		}

		runnable := s.runnableAgents()
		s.checkIdleWarnings()
		s.dispatchBatch(ctx, runnable)
	}
}

// runnableAgentsLocked is runnableAgents called while already holding s.mu
// (the orgstore/bus/status calls are independently locked, so this is
// safe purely to avoid releasing s.mu around the Cond.Wait check).
func (s *Scheduler) runnableAgentsLocked() []string {
	return s.runnableAgents()
}

func (s *Scheduler) checkIdleWarnings() {
	interval := s.IdleWarningInterval
	if interval <= 0 {
		interval = defaultIdleWarningInterval
	}
	for _, a := range s.Org.ListAgents() {
		if a.Status != orgstore.StatusActive {
			continue
		}
		last, ok := s.Status.LastChange(a.ID)
		if !ok {
			continue
		}
		if time.Since(last) < interval {
			s.mu.Lock()
			delete(s.warned, a.ID)
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		already := s.warned[a.ID]
		if !already {
			s.warned[a.ID] = true
		}
		s.mu.Unlock()
		if !already && s.EventBus != nil {
			s.EventBus.Error(events.ErrorPayload{AgentID: a.ID, Kind: "idle_warning", Message: "no inbound activity or status change for the configured idle window"})
		}
	}
}
