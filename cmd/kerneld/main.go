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

// Command kerneld runs the kernel runtime as a long-lived process.
//
// Usage:
//
//	kerneld serve --config kernel.yaml
//	kerneld version
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"

	"github.com/arbor-run/kernel"
	"github.com/arbor-run/kernel/pkg/config"
	"github.com/arbor-run/kernel/pkg/logger"
	"github.com/arbor-run/kernel/pkg/runtime"
)

// CLI is the top-level kerneld command set.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Run the kernel runtime."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"kernel.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the build version and exits.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(kernel.GetVersion().String())
	return nil
}

// ServeCmd loads configuration, wires a Runtime, and runs the scheduler
// loop plus a minimal health/metrics HTTP server until signalled.
type ServeCmd struct {
	Addr string `help:"Address for the health/metrics HTTP server." default:":8080"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return fmt.Errorf("kerneld: %w", err)
	}
	log := logger.Init(level, os.Stderr, "simple")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: cli.Config})
	if err != nil {
		return fmt.Errorf("kerneld: load config: %w", err)
	}

	rt, err := runtime.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("kerneld: build runtime: %w", err)
	}

	httpSrv := &http.Server{Addr: c.Addr, Handler: healthRouter(rt)}
	go func() {
		log.Info("health/metrics server listening", "addr", c.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health/metrics server failed", "error", err)
		}
	}()

	serveErr := rt.Serve(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	result := rt.Close(shutdownCtx)
	log.Info("shutdown complete", "ok", result.OK, "pendingMessages", result.PendingMessages, "activeAgents", result.ActiveAgents)

	return serveErr
}

// healthRouter exposes /healthz (liveness) and /metrics (Prometheus) —
// the only HTTP surface kerneld serves; agent traffic flows entirely
// through the message bus, never HTTP.
func healthRouter(rt *runtime.Runtime) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if rt.Shutdown.StopRequested() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", rt.Telemetry.MetricsHandler())
	return r
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("kerneld"),
		kong.Description("kernel runtime daemon"),
		kong.UsageOnError(),
	)
	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
