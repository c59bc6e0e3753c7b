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

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// PineconeConfig configures the managed Pinecone backend.
type PineconeConfig struct {
	APIKey    string
	Host      string
	IndexName string
}

// PineconeStore is a VectorStore backed by a Pinecone index. Unlike the
// other backends, the collection argument names an index, which must
// already exist (Pinecone indexes are created out of band).
type PineconeStore struct {
	client    *pinecone.Client
	indexName string
}

// NewPineconeStore creates a client against cfg.IndexName (or "kernel-memory"
// by default).
func NewPineconeStore(cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("memory: pinecone api key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("memory: create pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "kernel-memory"
	}
	return &PineconeStore{client: client, indexName: indexName}, nil
}

func (s *PineconeStore) Name() string { return "pinecone" }

func (s *PineconeStore) index(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	name := collection
	if name == "" {
		name = s.indexName
	}
	idx, err := s.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("memory: describe index %s: %w", name, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: idx.Host})
	if err != nil {
		return nil, fmt.Errorf("memory: connect to index %s: %w", name, err)
	}
	return conn, nil
}

func (s *PineconeStore) Upsert(ctx context.Context, collection, id string, vector []float32, content string, metadata map[string]any) error {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	full := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		full[k] = v
	}
	full["content"] = content

	meta, err := structpb.NewStruct(full)
	if err != nil {
		return fmt.Errorf("memory: convert metadata: %w", err)
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: vector, Metadata: meta}})
	if err != nil {
		return fmt.Errorf("memory: upsert vector: %w", err)
	}
	return nil
}

func (s *PineconeStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
		IncludeValues:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: query pinecone: %w", err)
	}

	out := make([]Result, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		metadata := make(map[string]any)
		content := ""
		if m.Vector.Metadata != nil {
			for k, v := range m.Vector.Metadata.AsMap() {
				if k == "content" {
					if str, ok := v.(string); ok {
						content = str
						continue
					}
				}
				metadata[k] = v
			}
		}
		out = append(out, Result{ID: m.Vector.Id, Score: m.Score, Content: content, Metadata: metadata})
	}
	return out, nil
}

func (s *PineconeStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.index(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("memory: delete vector %s: %w", id, err)
	}
	return nil
}

func (s *PineconeStore) Close() error { return nil }

var _ VectorStore = (*PineconeStore)(nil)
