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

package config

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// zookeeperProvider is a koanf ByteReader backed by a single zookeeper
// znode. koanf has no first-party zookeeper provider, so this wraps
// go-zookeeper/zk directly the way the teacher does.
type zookeeperProvider struct {
	conn      *zk.Conn
	path      string
	endpoints []string
}

func newZookeeperProvider(endpoints []string, path string) (*zookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("config: zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("config: zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config: connect to zookeeper: %w", err)
	}

	return &zookeeperProvider{conn: conn, path: path, endpoints: endpoints}, nil
}

// ReadBytes satisfies koanf's ByteReader interface.
func (p *zookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("config: read zookeeper path %s: %w", p.path, err)
	}
	return data, nil
}

// Read is required by koanf.Provider but zookeeperProvider only offers raw
// bytes; ReadBytes plus the YAML parser is the supported path.
func (p *zookeeperProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("config: zookeeperProvider only supports ReadBytes")
}

// Watch blocks, re-invoking callback whenever the znode's data changes.
// It returns when the node is deleted or the watch is otherwise lost.
func (p *zookeeperProvider) Watch(callback func(event interface{}, err error)) error {
	for {
		data, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			callback(nil, fmt.Errorf("config: watch zookeeper path %s: %w", p.path, err))
			continue
		}

		event := <-eventCh

		switch event.Type {
		case zk.EventNodeDataChanged:
			callback(data, nil)
		case zk.EventNodeDeleted:
			callback(nil, fmt.Errorf("config: zookeeper node %s deleted", p.path))
			return nil
		case zk.EventNotWatching:
			callback(nil, fmt.Errorf("config: zookeeper watch lost for %s", p.path))
			return nil
		}
	}
}

func (p *zookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
