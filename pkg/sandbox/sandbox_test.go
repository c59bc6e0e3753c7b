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

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsComputedValue(t *testing.T) {
	vm := New()
	result, err := vm.Run(context.Background(), "return input.x + 1;", map[string]any{"x": int64(41)})
	require.NoError(t, err)
	assert.EqualValues(t, 42, result)
}

func TestRunSyntaxErrorIsReported(t *testing.T) {
	vm := New()
	_, err := vm.Run(context.Background(), "this is not valid js {{{", nil)
	assert.Error(t, err)
}

func TestRunTimesOutOnInfiniteLoop(t *testing.T) {
	vm := &VM{Timeout: 100 * time.Millisecond}
	_, err := vm.Run(context.Background(), "while (true) {}", nil)
	assert.Error(t, err)
}

func TestRunRespectsCancelledContext(t *testing.T) {
	vm := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := vm.Run(ctx, "while (true) {}", nil)
	assert.Error(t, err)
}
