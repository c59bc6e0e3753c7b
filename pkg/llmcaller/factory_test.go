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

package llmcaller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-run/kernel/pkg/config"
)

func TestNewBackendSelectsProvider(t *testing.T) {
	cases := []struct {
		provider string
		wantType Backend
	}{
		{"", &OpenAIBackend{}},
		{"openai", &OpenAIBackend{}},
		{"anthropic", &AnthropicBackend{}},
		{"ollama", &OllamaBackend{}},
	}
	for _, tc := range cases {
		backend, err := NewBackend(context.Background(), config.LLMServiceConfig{
			Provider: tc.provider, Model: "m", APIKey: "k",
		}, 4096)
		require.NoError(t, err)
		assert.IsType(t, tc.wantType, backend)
		assert.Equal(t, "m", backend.Model())
	}
}

func TestNewBackendUnknownProviderErrors(t *testing.T) {
	_, err := NewBackend(context.Background(), config.LLMServiceConfig{Provider: "bogus", ID: "svc-1"}, 4096)
	assert.Error(t, err)
}
