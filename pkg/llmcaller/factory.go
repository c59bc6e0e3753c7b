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
	"fmt"
	"time"

	"github.com/arbor-run/kernel/pkg/config"
)

// defaultHTTPTimeout bounds the net/http-backed providers; Gemini's
// client manages its own transport so it is unaffected.
const defaultHTTPTimeout = 120 * time.Second

// NewBackend builds the concrete Backend named by svc.Provider
// ("openai", "anthropic", "gemini", "ollama"; empty defaults to "openai").
func NewBackend(ctx context.Context, svc config.LLMServiceConfig, maxTokens int) (Backend, error) {
	switch svc.Provider {
	case "", "openai":
		return NewOpenAIBackend(svc.BaseURL, svc.APIKey, svc.Model, defaultHTTPTimeout), nil
	case "anthropic":
		return NewAnthropicBackend(svc.BaseURL, svc.APIKey, svc.Model, maxTokens, defaultHTTPTimeout), nil
	case "gemini":
		return NewGeminiBackend(ctx, svc.APIKey, svc.Model)
	case "ollama":
		return NewOllamaBackend(svc.BaseURL, svc.Model, defaultHTTPTimeout), nil
	default:
		return nil, fmt.Errorf("llmcaller: unknown provider %q for service %q", svc.Provider, svc.ID)
	}
}
