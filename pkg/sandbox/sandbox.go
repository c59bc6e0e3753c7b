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

// Package sandbox runs the run_javascript tool's code in an isolated
// goja VM: no host module loader, no filesystem/network bindings, and a
// hard interrupt once the step deadline passes.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

const defaultTimeout = 5 * time.Second

// VM runs untrusted JavaScript with no access to the host environment —
// goja never wires in Node-style globals (require, process, fs, ...) by
// default, so the VM is isolated unless code explicitly reaches for
// identifiers toolexec's forbidden-token check already blocks.
type VM struct {
	Timeout time.Duration
}

// New creates a VM with the default 5s per-call timeout.
func New() *VM {
	return &VM{Timeout: defaultTimeout}
}

// Run evaluates code as the body of a function invoked with input bound
// to the identifier `input`, returning its result value.
func (s *VM) Run(ctx context.Context, code string, input any) (any, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	vm := goja.New()
	if err := vm.Set("input", input); err != nil {
		return nil, fmt.Errorf("sandbox: bind input: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		<-runCtx.Done()
		vm.Interrupt("sandbox: execution timed out or cancelled")
	}()

	wrapped := "(function(){\n" + code + "\n})()"
	value, err := vm.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("sandbox: execution failed: %w", err)
	}
	return value.Export(), nil
}
