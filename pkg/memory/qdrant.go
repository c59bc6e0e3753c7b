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
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant backend for shared, multi-process
// deployments.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStore is a VectorStore backed by a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantStore connects to a Qdrant server at cfg.Host:cfg.Port.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host, Port: cfg.Port, APIKey: cfg.APIKey, UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantStore{client: client, ensured: make(map[string]bool)}, nil
}

func (s *QdrantStore) Name() string { return "qdrant" }

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("memory: check collection %q: %w", collection, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("memory: create collection %q: %w", collection, err)
		}
	}
	s.ensured[collection] = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, vector []float32, content string, metadata map[string]any) error {
	if err := s.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	contentVal, err := qdrant.NewValue(content)
	if err != nil {
		return fmt.Errorf("memory: convert content: %w", err)
	}
	payload["content"] = contentVal
	for k, v := range metadata {
		val, err := qdrant.NewValue(fmt.Sprint(v))
		if err != nil {
			return fmt.Errorf("memory: convert metadata %q: %w", k, err)
		}
		payload[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: []*qdrant.PointStruct{point}})
	if err != nil {
		return fmt.Errorf("memory: upsert point: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	pointsClient := s.client.GetPointsClient()
	resp, err := pointsClient.Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	return convertQdrantResults(resp.Result), nil
}

func convertQdrantResults(points []*qdrant.ScoredPoint) []Result {
	out := make([]Result, 0, len(points))
	for _, p := range points {
		var id string
		if p.Id != nil {
			switch v := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}

		metadata := make(map[string]any, len(p.Payload))
		content := ""
		for k, v := range p.Payload {
			switch kv := v.Kind.(type) {
			case *qdrant.Value_StringValue:
				if k == "content" {
					content = kv.StringValue
				} else {
					metadata[k] = kv.StringValue
				}
			default:
				metadata[k] = v.String()
			}
		}

		out = append(out, Result{ID: id, Score: p.Score, Content: content, Metadata: metadata})
	}
	return out
}

func (s *QdrantStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("memory: delete point %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

var _ VectorStore = (*QdrantStore)(nil)
