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
	"sort"
	"strings"
	"sync"
)

// KeywordStore is the zero-dependency default: it ignores the supplied
// vector entirely and scores by token overlap against the stored content,
// for deployments that opt out of embeddings (memory.backend=keyword).
type KeywordStore struct {
	mu      sync.Mutex
	entries map[string]map[string]keywordEntry // collection -> id -> entry
}

type keywordEntry struct {
	content  string
	tokens   map[string]struct{}
	metadata map[string]any
}

// NewKeywordStore creates an empty, process-local keyword index.
func NewKeywordStore() *KeywordStore {
	return &KeywordStore{entries: make(map[string]map[string]keywordEntry)}
}

func (s *KeywordStore) Name() string { return "keyword" }

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

// Upsert ignores vector; only content is indexed.
func (s *KeywordStore) Upsert(ctx context.Context, collection, id string, vector []float32, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[collection] == nil {
		s.entries[collection] = make(map[string]keywordEntry)
	}
	s.entries[collection][id] = keywordEntry{content: content, tokens: tokenize(content), metadata: metadata}
	return nil
}

// Search always returns no results: a keyword store holds no vectors to
// compare against. Memory.Recall calls SearchText for this backend
// instead (see memory.go).
func (s *KeywordStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return nil, nil
}

// SearchText scores stored content against query by Jaccard token
// overlap and returns the topK highest-scoring entries.
func (s *KeywordStore) SearchText(collection, query string, topK int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var results []Result
	for id, e := range s.entries[collection] {
		score := jaccard(queryTokens, e.tokens)
		if score <= 0 {
			continue
		}
		results = append(results, Result{ID: id, Score: score, Content: e.content, Metadata: e.metadata})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func jaccard(a, b map[string]struct{}) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float32(intersection) / float32(union)
}

func (s *KeywordStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[collection], id)
	return nil
}

func (s *KeywordStore) Close() error { return nil }

var _ VectorStore = (*KeywordStore)(nil)
