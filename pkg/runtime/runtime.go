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

// Package runtime wires every package in this module into one running
// kernel: the persistence backend, the in-memory buses and trackers, the
// built-in tool set, the LLM caller, and the lifecycle/processor/scheduler
// trio that actually steps agents. cmd/kerneld constructs exactly one
// Runtime and drives its Serve/Close pair.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbor-run/kernel/pkg/bus"
	"github.com/arbor-run/kernel/pkg/concurrency"
	"github.com/arbor-run/kernel/pkg/config"
	"github.com/arbor-run/kernel/pkg/contacts"
	"github.com/arbor-run/kernel/pkg/convstore"
	"github.com/arbor-run/kernel/pkg/events"
	"github.com/arbor-run/kernel/pkg/lifecycle"
	"github.com/arbor-run/kernel/pkg/llmcaller"
	"github.com/arbor-run/kernel/pkg/mcpbridge"
	"github.com/arbor-run/kernel/pkg/memory"
	"github.com/arbor-run/kernel/pkg/orgstore"
	"github.com/arbor-run/kernel/pkg/processor"
	"github.com/arbor-run/kernel/pkg/sandbox"
	"github.com/arbor-run/kernel/pkg/scheduler"
	"github.com/arbor-run/kernel/pkg/shutdown"
	"github.com/arbor-run/kernel/pkg/status"
	"github.com/arbor-run/kernel/pkg/store"
	"github.com/arbor-run/kernel/pkg/telemetry"
	"github.com/arbor-run/kernel/pkg/toolexec"
	"github.com/arbor-run/kernel/pkg/webfetch"
	"github.com/arbor-run/kernel/pkg/workspace"
)

// Runtime aggregates every wired component. Fields are exported so
// cmd/kerneld and tests can reach into them (e.g. to seed a role before
// the first spawn), but nothing outside this package constructs one
// piecemeal — always go through New.
type Runtime struct {
	Config *config.Config
	Log    *slog.Logger

	Store store.Store
	Org   *orgstore.OrgStore
	Conv  *convstore.ConversationStore

	Bus      *bus.Bus
	Events   *events.Bus
	Status   *status.Tracker
	Contacts *contacts.Registry
	Gate     *concurrency.Gate

	Memory    *memory.Memory
	Workspace *workspace.Workspace
	Sandbox   *sandbox.VM
	Fetcher   *webfetch.Fetcher
	MCP       []*mcpbridge.Bridge

	Caller *llmcaller.Caller
	Tools  *toolexec.Executor

	Lifecycle *lifecycle.Manager
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler
	Shutdown  *shutdown.Manager

	Telemetry *telemetry.Manager
}

// New constructs and wires every component from cfg, restores persisted
// org state, and reconnects any configured MCP services. It does not
// start the scheduler loop — call Scheduler.RunServer for that.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	if log == nil {
		log = slog.Default()
	}

	storeCfg := cfg.Store
	if (storeCfg.Backend == "" || storeCfg.Backend == "file") && storeCfg.DSN == "" {
		storeCfg.DSN = cfg.RuntimeDir
	}
	backing, err := openStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("runtime: open store: %w", err)
	}

	org, err := orgstore.Open(ctx, backing)
	if err != nil {
		return nil, fmt.Errorf("runtime: open orgstore: %w", err)
	}
	conv := convstore.New(backing, cfg.LLM.MaxTokens)

	b := bus.New()
	evBus := events.New()
	tracker := status.New(evBus)
	contactsReg := contacts.New()
	gate := concurrency.New(cfg.LLM.MaxConcurrentRequests)

	mem, err := memory.New(ctx, cfg.Memory, cfg.RuntimeDir)
	if err != nil {
		return nil, fmt.Errorf("runtime: open memory: %w", err)
	}
	ws, err := workspace.New(cfg.WorkspacesDir)
	if err != nil {
		return nil, fmt.Errorf("runtime: open workspace: %w", err)
	}
	vm := sandbox.New()
	fetcher := webfetch.New(cfg.WebFetch.Allowlist)

	backend, err := llmcaller.NewBackend(ctx, cfg.LLM.LLMServiceConfig, cfg.LLM.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("runtime: build default llm backend: %w", err)
	}
	caller := llmcaller.New(backend, evBus, llmcaller.WithMaxRetries(cfg.LLM.MaxRetries), llmcaller.WithLogger(log))

	lifecycleMgr := lifecycle.New(org, b, conv, contactsReg)
	lifecycleMgr.Workspace = ws
	lifecycleMgr.Log = log

	tools := toolexec.New(evBus)
	registerBuiltinTools(tools, toolexecDeps{
		Org:       org,
		Bus:       b,
		Conv:      conv,
		Contacts:  contactsReg,
		Lifecycle: lifecycleMgr,
		Memory:    mem,
		Workspace: ws,
		Sandbox:   vm,
		Fetcher:   fetcher,
	})

	bridges, err := connectMCPServices(ctx, cfg.MCPServices, tools, log)
	if err != nil {
		return nil, err
	}

	proc := processor.New(org, conv, contactsReg, tools, caller, gate, tracker, evBus, lifecycleMgr)
	proc.MaxToolRounds = cfg.MaxToolRounds

	sched := scheduler.New(org, b, tracker, proc, evBus, 0)

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutMs) * time.Millisecond
	shutdownMgr := shutdown.New(org, b, tracker, conv, proc, shutdownTimeout)
	shutdownMgr.Log = log

	telemetryMgr, err := telemetry.NewManager(ctx, telemetry.TracerConfig{
		Enabled:      cfg.Telemetry.OTLPEndpoint != "",
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SamplingRate: 1.0,
		ServiceName:  "kernel",
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: init telemetry: %w", err)
	}

	rt := &Runtime{
		Config:    cfg,
		Log:       log,
		Store:     backing,
		Org:       org,
		Conv:      conv,
		Bus:       b,
		Events:    evBus,
		Status:    tracker,
		Contacts:  contactsReg,
		Gate:      gate,
		Memory:    mem,
		Workspace: ws,
		Sandbox:   vm,
		Fetcher:   fetcher,
		MCP:       bridges,
		Caller:    caller,
		Tools:     tools,
		Lifecycle: lifecycleMgr,
		Processor: proc,
		Scheduler: sched,
		Shutdown:  shutdownMgr,
		Telemetry: telemetryMgr,
	}

	if err := lifecycleMgr.Restore(ctx); err != nil {
		return nil, fmt.Errorf("runtime: restore lifecycle state: %w", err)
	}

	return rt, nil
}

// openStore selects the persistence backend named by cfg.Backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "file":
		dir := cfg.DSN
		if dir == "" {
			dir = "./runtime/store"
		}
		return store.NewFileStore(dir)
	case "sql":
		return store.NewSQLStore(ctx, cfg.DSN)
	case "etcd":
		return store.NewEtcdStore(store.EtcdConfig{Endpoints: []string{cfg.DSN}})
	default:
		return nil, fmt.Errorf("runtime: unknown store backend %q", cfg.Backend)
	}
}

// connectMCPServices dials every configured MCP service over stdio and
// registers each discovered tool under its "<service>.<tool>" name. A
// service that fails to connect is logged and skipped rather than
// failing startup, matching the teacher's best-effort toolset posture.
func connectMCPServices(ctx context.Context, services []config.MCPServiceConfig, tools *toolexec.Executor, log *slog.Logger) ([]*mcpbridge.Bridge, error) {
	bridges := make([]*mcpbridge.Bridge, 0, len(services))
	for _, svc := range services {
		bridge, err := mcpbridge.Connect(ctx, mcpbridge.Config{
			Name:    svc.Name,
			Command: svc.Command,
			Args:    svc.Args,
			Env:     svc.Env,
			Filter:  svc.Filter,
		})
		if err != nil {
			log.Error("runtime: mcp service connect failed, skipping", "service", svc.Name, "error", err)
			continue
		}
		for _, t := range bridge.Tools() {
			tools.Register(t)
		}
		bridges = append(bridges, bridge)
	}
	return bridges, nil
}

// Serve runs the scheduler loop until ctx is cancelled.
func (rt *Runtime) Serve(ctx context.Context) error {
	return rt.Scheduler.RunServer(ctx)
}

// Close runs the graceful-shutdown sequence and closes every MCP bridge.
func (rt *Runtime) Close(ctx context.Context) shutdown.Result {
	result := rt.Shutdown.Shutdown(ctx)
	for _, b := range rt.MCP {
		if err := b.Close(); err != nil {
			rt.Log.Error("runtime: close mcp bridge failed", "error", err)
		}
	}
	if err := rt.Telemetry.Shutdown(ctx); err != nil {
		rt.Log.Error("runtime: shutdown telemetry failed", "error", err)
	}
	return result
}
