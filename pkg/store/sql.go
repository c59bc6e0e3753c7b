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
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists key/value pairs in a single `kv_store` table. The
// driver is selected by the DSN scheme: "sqlite://path", "postgres://...",
// or "mysql://..." — whichever of the three SQL drivers the configured
// runtime links in.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens dsn and ensures the kv_store table exists.
func NewSQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	driver, connStr, err := splitDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	ddl := "CREATE TABLE IF NOT EXISTS kv_store (k TEXT PRIMARY KEY, v BLOB NOT NULL)"
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create kv_store: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func splitDSN(dsn string) (driver, connStr string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	default:
		return "", "", fmt.Errorf("store: unrecognized DSN scheme in %q", dsn)
	}
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, "SELECT v FROM kv_store WHERE k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: load %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLStore) Save(ctx context.Context, key string, data []byte) error {
	upsert := "INSERT INTO kv_store (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v"
	if s.driver == "postgres" {
		upsert = "INSERT INTO kv_store (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = excluded.v"
	}
	if _, err := s.db.ExecContext(ctx, upsert, key, data); err != nil {
		return fmt.Errorf("store: save %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	q := "DELETE FROM kv_store WHERE k = ?"
	if s.driver == "postgres" {
		q = "DELETE FROM kv_store WHERE k = $1"
	}
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, prefix string) ([]string, error) {
	q := "SELECT k FROM kv_store WHERE k LIKE ?"
	like := prefix + "%"
	if s.driver == "postgres" {
		q = "SELECT k FROM kv_store WHERE k LIKE $1"
	}
	rows, err := s.db.QueryContext(ctx, q, like)
	if err != nil {
		return nil, fmt.Errorf("store: list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("store: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLStore) Close() error { return s.db.Close() }

var _ Store = (*SQLStore)(nil)
