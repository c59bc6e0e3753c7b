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
	"os"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// PersistPath, if set, persists the database to <PersistPath>/vectors.gob
	// (vectors.gob.gz when Compress is set) on every mutation. Empty means
	// in-memory only.
	PersistPath string
	Compress    bool
}

// ChromemStore is a zero-external-dependency VectorStore: an
// embedded, single-process database with optional gzip-compressed file
// persistence.
type ChromemStore struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore opens (or creates) the database at cfg.PersistPath, or an
// in-memory one if cfg.PersistPath is empty.
func NewChromemStore(cfg ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("memory: create persist dir: %w", err)
		}
		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}
		if _, err := os.Stat(dbPath); err == nil {
			loaded, loadErr := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if loadErr != nil {
				return nil, fmt.Errorf("memory: load persisted db: %w", loadErr)
			}
			db = loaded
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// identityEmbed is passed to chromem collections since every vector this
// store receives is already computed by an Embedder; chromem only calls
// its embedding func for text-based Query, which this store never uses.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("memory: chromem collection invoked with text query; vectors must be pre-computed")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("memory: get/create collection %q: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

func (s *ChromemStore) Name() string { return "chromem" }

func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, vector []float32, content string, metadata map[string]any) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}

	doc := chromem.Document{ID: id, Content: content, Metadata: strMeta, Embedding: vector}
	if err := c.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("memory: upsert: %w", err)
	}
	return s.persist()
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	results, err := c.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{ID: r.ID, Score: r.Similarity, Content: r.Content, Metadata: metadata})
	}
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, collection, id string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("memory: delete: %w", err)
	}
	return s.persist()
}

func (s *ChromemStore) Close() error { return s.persist() }

func (s *ChromemStore) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := s.persistPath + "/vectors.gob"
	if s.compress {
		dbPath += ".gz"
	}
	if err := s.db.Export(dbPath, s.compress, ""); err != nil {
		return fmt.Errorf("memory: persist db: %w", err)
	}
	return nil
}

var _ VectorStore = (*ChromemStore)(nil)
