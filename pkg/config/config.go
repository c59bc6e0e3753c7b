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

// Package config defines the runtime's configuration document and loads it
// with koanf from a local file or a cluster-backed source (consul, etcd,
// zookeeper), layering defaults, file, cluster provider and environment
// from lowest to highest precedence.
package config

// LLMServiceConfig describes one addressable LLM endpoint, either the
// default inline under "llm" or an entry of "services[]" (llmservices.json).
type LLMServiceConfig struct {
	ID             string   `koanf:"id" yaml:"id"`
	Provider       string   `koanf:"provider" yaml:"provider"` // openai | anthropic | gemini | ollama
	BaseURL        string   `koanf:"baseURL" yaml:"baseURL"`
	Model          string   `koanf:"model" yaml:"model"`
	APIKey         string   `koanf:"apiKey" yaml:"apiKey"`
	CapabilityTags []string `koanf:"capabilityTags" yaml:"capabilityTags"`
	MaxRetries     int      `koanf:"maxRetries" yaml:"maxRetries"`
}

// LLMConfig is the default LLM endpoint plus the runtime-wide LLM knobs.
type LLMConfig struct {
	LLMServiceConfig        `koanf:",squash" yaml:",inline"`
	MaxConcurrentRequests int `koanf:"maxConcurrentRequests" yaml:"maxConcurrentRequests"`
	MaxTokens             int `koanf:"maxTokens" yaml:"maxTokens"`
}

// StoreConfig selects and configures the persistence backend (spec.md §3).
type StoreConfig struct {
	Backend string `koanf:"backend" yaml:"backend"` // file | sql | etcd
	DSN     string `koanf:"dsn" yaml:"dsn"`
}

// MemoryConfig selects and configures the long-term-recall backend.
type MemoryConfig struct {
	Backend         string `koanf:"backend" yaml:"backend"` // chromem | qdrant | pinecone | keyword
	EmbeddingModel  string `koanf:"embeddingModel" yaml:"embeddingModel"`
	Endpoint        string `koanf:"endpoint" yaml:"endpoint"`
	APIKey          string `koanf:"apiKey" yaml:"apiKey"`
	CollectionName  string `koanf:"collectionName" yaml:"collectionName"`
}

// TelemetryConfig configures the Prometheus/OpenTelemetry pipeline.
type TelemetryConfig struct {
	OTLPEndpoint string `koanf:"otlpEndpoint" yaml:"otlpEndpoint"`
	MetricsAddr  string `koanf:"metricsAddr" yaml:"metricsAddr"`
}

// MCPServiceConfig describes one external MCP server to mount as a
// toolexec tool source, via the stdio transport only.
type MCPServiceConfig struct {
	Name    string            `koanf:"name" yaml:"name"`
	Command string            `koanf:"command" yaml:"command"`
	Args    []string          `koanf:"args" yaml:"args"`
	Env     map[string]string `koanf:"env" yaml:"env"`
	Filter  []string          `koanf:"filter" yaml:"filter"`
}

// WebFetchConfig restricts what fetch_url is allowed to reach.
type WebFetchConfig struct {
	Allowlist []string `koanf:"allowlist" yaml:"allowlist"`
}

// Config is the full runtime configuration document, unmarshaled from
// whatever source Loader was pointed at.
type Config struct {
	PromptsDir    string `koanf:"promptsDir" yaml:"promptsDir"`
	RuntimeDir    string `koanf:"runtimeDir" yaml:"runtimeDir"`
	WorkspacesDir string `koanf:"workspacesDir" yaml:"workspacesDir"`

	MaxSteps      int `koanf:"maxSteps" yaml:"maxSteps"`
	MaxToolRounds int `koanf:"maxToolRounds" yaml:"maxToolRounds"`

	LLM      LLMConfig          `koanf:"llm" yaml:"llm"`
	Services []LLMServiceConfig `koanf:"services" yaml:"services"`

	ShutdownTimeoutMs int `koanf:"shutdownTimeoutMs" yaml:"shutdownTimeoutMs"`
	IdleWarningMs     int `koanf:"idleWarningMs" yaml:"idleWarningMs"`

	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Memory    MemoryConfig    `koanf:"memory" yaml:"memory"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
	WebFetch  WebFetchConfig  `koanf:"webFetch" yaml:"webFetch"`

	MCPServices []MCPServiceConfig `koanf:"mcpServices" yaml:"mcpServices"`

	LogLevel string `koanf:"logLevel" yaml:"logLevel"`
}

// applyDefaults fills in every zero-valued field the runtime cannot safely
// operate without, mirroring the teacher's defaults.go pattern of a single
// post-unmarshal pass rather than scattering default literals across
// call sites.
func applyDefaults(c *Config) {
	if c.PromptsDir == "" {
		c.PromptsDir = "./prompts"
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = "./runtime"
	}
	if c.WorkspacesDir == "" {
		c.WorkspacesDir = "./workspaces"
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = 10
	}
	if c.LLM.MaxConcurrentRequests <= 0 {
		c.LLM.MaxConcurrentRequests = 3
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 128_000
	}
	if c.ShutdownTimeoutMs <= 0 {
		c.ShutdownTimeoutMs = 10_000
	}
	if c.IdleWarningMs <= 0 {
		c.IdleWarningMs = 300_000
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "keyword"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ServiceByID looks up an alternative LLM endpoint from Services by id.
func (c *Config) ServiceByID(id string) (LLMServiceConfig, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return LLMServiceConfig{}, false
}

// ServicesWithTag returns every service (default endpoint included, with
// whatever id it was configured with) carrying the given capability tag.
func (c *Config) ServicesWithTag(tag string) []LLMServiceConfig {
	var out []LLMServiceConfig
	candidates := append([]LLMServiceConfig{c.LLM.LLMServiceConfig}, c.Services...)
	for _, s := range candidates {
		for _, t := range s.CapabilityTags {
			if t == tag {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
