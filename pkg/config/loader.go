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
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceType selects which provider Loader reads from.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// ParseSourceType parses a config-source string, accepting "zk" as a
// zookeeper alias.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	case "zookeeper", "zk":
		return SourceZookeeper, nil
	default:
		return "", fmt.Errorf("config: invalid source type %q", s)
	}
}

// LoaderOptions configures where Loader reads the configuration document
// from and whether it should hot-reload on change.
type LoaderOptions struct {
	Type SourceType

	// Path is a filesystem path for SourceFile, a KV key for SourceConsul
	// and SourceEtcd, or a znode path for SourceZookeeper.
	Path string

	// Endpoints addresses the cluster backend; ignored for SourceFile.
	Endpoints []string

	// Watch enables hot-reload via the provider's native watch support.
	Watch bool

	// OnChange is invoked with the freshly reloaded Config on every
	// successful watch-triggered reload.
	OnChange func(*Config) error

	Log *slog.Logger
}

// Loader loads, and optionally hot-reloads, the runtime's Config from one
// of file/consul/etcd/zookeeper, expanding environment variable references
// and applying defaults on every (re)load.
type Loader struct {
	koanf    *koanf.Koanf
	options  LoaderOptions
	yaml     *yaml.YAML
	json     *json.JSON
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewLoader validates opts and returns a ready-to-Load Loader. It also
// loads .env.local/.env into the process environment, lowest precedence,
// ahead of any koanf layer.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = SourceFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.Endpoints = []string{"localhost:2181"}
		}
	}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	return &Loader{
		koanf:    koanf.New("."),
		options:  opts,
		yaml:     yaml.Parser(),
		json:     json.Parser(),
		stopChan: make(chan struct{}),
	}, nil
}

func (l *Loader) parserFor() koanf.Parser {
	if strings.HasSuffix(l.options.Path, ".json") {
		return l.json
	}
	return l.yaml
}

func (l *Loader) buildProvider() (koanf.Provider, error) {
	switch l.options.Type {
	case SourceFile:
		return file.Provider(l.options.Path), nil

	case SourceConsul:
		cfg := api.DefaultConfig()
		cfg.Address = l.options.Endpoints[0]
		return consul.Provider(consul.Config{Cfg: cfg, Key: l.options.Path}), nil

	case SourceEtcd:
		return etcd.Provider(etcd.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	case SourceZookeeper:
		return newZookeeperProvider(l.options.Endpoints, l.options.Path)

	default:
		return nil, fmt.Errorf("config: unsupported source type %q", l.options.Type)
	}
}

// Load reads the configured source, overlays environment variables (via
// koanf's env provider, "_" -> "." key delimiter), expands ${VAR} style
// references inside string values, applies defaults, and returns the
// result. If Watch is set, a background goroutine re-runs this pipeline
// on every provider-reported change and invokes OnChange.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.buildProvider()
	if err != nil {
		return nil, err
	}

	var parser koanf.Parser
	if l.options.Type == SourceFile || l.options.Type == SourceZookeeper {
		parser = l.parserFor()
	}

	if err := l.koanf.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("config: load from %s: %w", l.options.Type, err)
	}

	if err := l.koanf.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: overlay environment: %w", err)
	}

	if err := l.expandEnvVarsInKoanf(); err != nil {
		return nil, err
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.koanf.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func (l *Loader) expandEnvVarsInKoanf() error {
	expanded := expandEnvVarsInData(l.koanf.Raw())
	expandedMap, ok := expanded.(map[string]interface{})
	if !ok {
		return fmt.Errorf("config: env expansion produced non-map root")
	}

	next := koanf.New(".")
	if err := next.Load(confmap.Provider(expandedMap, "."), nil); err != nil {
		return fmt.Errorf("config: reload expanded tree: %w", err)
	}
	l.koanf = next
	return nil
}

// watcher is implemented by providers that support koanf's callback-style
// hot-reload (file.Provider and zookeeperProvider both do).
type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

func (l *Loader) watch(provider koanf.Provider) {
	w, ok := provider.(watcher)
	if !ok {
		l.options.Log.Warn("config: provider does not support watching", "type", l.options.Type)
		return
	}

	l.options.Log.Info("config: watcher started", "type", l.options.Type)

	err := w.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopChan:
			return
		default:
		}

		if err != nil {
			l.options.Log.Warn("config: watch error", "error", err)
			return
		}

		var parser koanf.Parser
		if l.options.Type == SourceFile || l.options.Type == SourceZookeeper {
			parser = l.parserFor()
		}
		if err := l.koanf.Load(provider, parser); err != nil {
			l.options.Log.Warn("config: reload failed", "error", err)
			return
		}
		if err := l.expandEnvVarsInKoanf(); err != nil {
			l.options.Log.Warn("config: reload expansion failed", "error", err)
			return
		}

		cfg, err := l.unmarshal()
		if err != nil {
			l.options.Log.Warn("config: reload unmarshal failed", "error", err)
			return
		}

		if l.options.OnChange != nil {
			if err := l.options.OnChange(cfg); err != nil {
				l.options.Log.Warn("config: OnChange callback failed", "error", err)
			}
		}
	})
	if err != nil {
		l.options.Log.Warn("config: watch stopped", "error", err)
	}
}

// Stop ends any in-flight watch loop. Safe to call multiple times.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

// Load is a convenience wrapper for one-shot, non-watching loads.
func Load(opts LoaderOptions) (*Config, error) {
	loader, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
