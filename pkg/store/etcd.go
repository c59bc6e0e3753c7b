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

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore persists keys under a namespace prefix in an etcd v3 cluster,
// for multi-process deployments sharing one OrgStore/ConversationStore
// backing store instead of each process owning its own local file tree.
type EtcdStore struct {
	client    *clientv3.Client
	namespace string
	timeout   time.Duration
}

// EtcdConfig configures an EtcdStore.
type EtcdConfig struct {
	Endpoints   []string
	Namespace   string
	DialTimeout time.Duration
	OpTimeout   time.Duration
	Username    string
	Password    string
}

// NewEtcdStore dials the given etcd endpoints and returns a Store scoped to
// cfg.Namespace.
func NewEtcdStore(cfg EtcdConfig) (*EtcdStore, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("store: dial etcd: %w", err)
	}

	ns := strings.TrimSuffix(cfg.Namespace, "/")
	return &EtcdStore{client: cli, namespace: ns, timeout: opTimeout}, nil
}

func (s *EtcdStore) fullKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + "/" + key
}

func (s *EtcdStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.fullKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("store: etcd get %q: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (s *EtcdStore) Save(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Put(ctx, s.fullKey(key), string(data)); err != nil {
		return fmt.Errorf("store: etcd put %q: %w", key, err)
	}
	return nil
}

func (s *EtcdStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Delete(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("store: etcd delete %q: %w", key, err)
	}
	return nil
}

func (s *EtcdStore) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.fullKey(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("store: etcd list %q: %w", prefix, err)
	}

	nsPrefix := ""
	if s.namespace != "" {
		nsPrefix = s.namespace + "/"
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), nsPrefix))
	}
	return keys, nil
}

func (s *EtcdStore) Close() error { return s.client.Close() }

var _ Store = (*EtcdStore)(nil)
