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

// Package logger configures the runtime's shared slog.Logger: third-party
// library logs are filtered out below debug level, and output is a
// colorized simple/verbose text format when writing to a terminal.
package logger

import (
	"context"
	"os"
	"runtime"
	"strings"

	"log/slog"
)

var defaultLogger *slog.Logger

const kernelPackagePrefix = "github.com/arbor-run/kernel"

// ParseLevel converts a string log level to slog.Level, defaulting to
// Warn for anything unrecognized.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler hides third-party library logs unless the configured
// level is debug, so a noisy dependency never drowns out the runtime's
// own agent/step/tool logging at info level.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isKernelPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isKernelPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), kernelPackagePrefix) || strings.Contains(file, "/kernel/")
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Init builds and installs the default slog.Logger at level, writing to
// output. Format "simple" on terminal output prints colored
// level+message+attrs; any other format, or output that is not a
// terminal, uses slog's standard text layout.
func Init(level slog.Level, output *os.File, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String("level", "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if format == "simple" && isTerminal(output) {
		handler = &coloredSimpleHandler{writer: output, inner: handler}
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
	return defaultLogger
}

// GetLogger returns the process-wide logger, initializing a sane default
// (info level, simple format to stderr) if Init was never called.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		return Init(slog.LevelInfo, os.Stderr, "simple")
	}
	return defaultLogger
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

// coloredSimpleHandler renders LEVEL message key=value... with an
// ANSI color keyed to severity, for a human watching a terminal.
type coloredSimpleHandler struct {
	writer interface{ Write([]byte) (int, error) }
	inner  slog.Handler
}

func (h *coloredSimpleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *coloredSimpleHandler) Handle(ctx context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(levelColor(record.Level))
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString("\033[0m ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.writer.Write([]byte(b.String()))
	return err
}

func (h *coloredSimpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &coloredSimpleHandler{writer: h.writer, inner: h.inner.WithAttrs(attrs)}
}

func (h *coloredSimpleHandler) WithGroup(name string) slog.Handler {
	return &coloredSimpleHandler{writer: h.writer, inner: h.inner.WithGroup(name)}
}
