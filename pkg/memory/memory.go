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

package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/arbor-run/kernel/pkg/config"
)

// Memory is the runtime's long-term recall surface: one VectorStore
// collection per agent, keyed by agent ID, with an optional Embedder for
// similarity backends (nil when Store is a *KeywordStore).
type Memory struct {
	store    VectorStore
	embedder Embedder
}

// New builds a Memory from cfg, selecting the backend named by
// cfg.Backend ("chromem" (default persistence root "./runtime/memory"),
// "qdrant", "pinecone", or "keyword", which needs no embedder at all).
func New(ctx context.Context, cfg config.MemoryConfig, runtimeDir string) (*Memory, error) {
	switch cfg.Backend {
	case "", "keyword":
		return &Memory{store: NewKeywordStore()}, nil

	case "chromem":
		store, err := NewChromemStore(ChromemConfig{PersistPath: runtimeDir + "/memory", Compress: true})
		if err != nil {
			return nil, err
		}
		embedder, err := embedderFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Memory{store: store, embedder: embedder}, nil

	case "qdrant":
		store, err := NewQdrantStore(QdrantConfig{Host: cfg.Endpoint})
		if err != nil {
			return nil, err
		}
		embedder, err := embedderFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Memory{store: store, embedder: embedder}, nil

	case "pinecone":
		store, err := NewPineconeStore(PineconeConfig{APIKey: cfg.APIKey, Host: cfg.Endpoint, IndexName: cfg.CollectionName})
		if err != nil {
			return nil, err
		}
		embedder, err := embedderFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Memory{store: store, embedder: embedder}, nil

	default:
		return nil, fmt.Errorf("memory: unknown backend %q", cfg.Backend)
	}
}

func embedderFor(ctx context.Context, cfg config.MemoryConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("memory: backend %q requires memory.apiKey for embeddings", cfg.Backend)
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-004"
	}
	return NewGeminiEmbedder(ctx, cfg.APIKey, model, 0)
}

// Remember embeds (unless the backend is keyword-only) and stores content
// under agentID's collection, tagged with metadata, returning the
// generated entry id.
func (m *Memory) Remember(ctx context.Context, agentID, content string, metadata map[string]any) (string, error) {
	id := uuid.NewString()

	var vector []float32
	if m.embedder != nil {
		v, err := m.embedder.Embed(ctx, content)
		if err != nil {
			return "", fmt.Errorf("memory: embed: %w", err)
		}
		vector = v
	}

	if err := m.store.Upsert(ctx, agentID, id, vector, content, metadata); err != nil {
		return "", err
	}
	return id, nil
}

// Recall returns the topK entries from agentID's collection most relevant
// to query: similarity search for embedding-backed stores, Jaccard token
// overlap for the keyword store.
func (m *Memory) Recall(ctx context.Context, agentID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	if kw, ok := m.store.(*KeywordStore); ok {
		return kw.SearchText(agentID, query, topK), nil
	}

	if m.embedder == nil {
		return nil, fmt.Errorf("memory: backend %q has no embedder configured", m.store.Name())
	}
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	return m.store.Search(ctx, agentID, vector, topK)
}

// Forget removes one remembered entry by id.
func (m *Memory) Forget(ctx context.Context, agentID, id string) error {
	return m.store.Delete(ctx, agentID, id)
}

// Backend reports the underlying VectorStore's name, for logging/metrics.
func (m *Memory) Backend() string { return m.store.Name() }

// Close releases the underlying store (and embedder, if any).
func (m *Memory) Close() error {
	if m.embedder != nil {
		if err := m.embedder.Close(); err != nil {
			return err
		}
	}
	return m.store.Close()
}
