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

// Package memory implements the runtime's long-term recall: text is
// stored in a pluggable VectorStore. The default is a zero-dependency
// keyword store that needs no embeddings; chromem-go (embedded) and
// Qdrant/Pinecone (for a shared deployment) embed text first.
package memory

import "context"

// Result is one match returned by a VectorStore search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// VectorStore persists pre-computed embeddings alongside their source text
// and metadata, partitioned into named collections (one per agent, here).
type VectorStore interface {
	// Upsert adds or replaces one vector under id in collection.
	Upsert(ctx context.Context, collection, id string, vector []float32, content string, metadata map[string]any) error

	// Search returns the topK nearest neighbors of vector in collection.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// Delete removes id from collection.
	Delete(ctx context.Context, collection, id string) error

	// Name identifies the backend, surfaced in error messages and tests.
	Name() string

	// Close releases any resources (connections, file handles) held.
	Close() error
}
