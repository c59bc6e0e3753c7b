// Package kernel is a multi-agent runtime: a tree of LLM-backed agents
// that spawn children, exchange messages over per-agent queues, persist
// their conversation and organizational state, and call out to a
// built-in tool set (messaging, artifacts, workspace files, long-term
// memory, a JS sandbox, web fetch, document extraction, and any
// MCP-bridged external tools). It has no HTTP-facing agent protocol;
// every agent interaction runs through the message bus, and cmd/kerneld
// exposes only a health/metrics surface.
//
// # Quick Start
//
// Run the daemon against a config file:
//
//	kerneld serve --config kernel.yaml
//
// # Using as a Go Library
//
// The wiring root is pkg/runtime:
//
//	import "github.com/arbor-run/kernel/pkg/runtime"
//
//	rt, err := runtime.New(ctx, cfg, logger)
//	...
//	err = rt.Serve(ctx)     // blocks until ctx is cancelled
//	result := rt.Close(ctx) // graceful shutdown
//
// # Architecture
//
// Root and user are pre-created singleton agents. Any agent can spawn a
// child agent bound to a role and a task brief, send it a message, and
// later terminate it (cascading to its descendants). The scheduler steps
// every agent with a non-empty queue through the processor, which renders
// the agent's system prompt, calls its LLM, and dispatches any tool calls
// the reply requests.
//
// # License
//
// AGPL-3.0 - see LICENSE.md for details.
package kernel
