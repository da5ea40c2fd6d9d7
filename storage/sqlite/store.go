// Copyright 2025 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite is a storage.Database kept in a SQLite file.
//
// Every table is keyed by (idx, id) with the skeleton stored as a protobuf
// blob. Partition indices are stored shifted right by one bit so they fit a
// signed SQLite integer while keeping their order; indices of cells at
// index.FineLevel and coarser never have their lowest bit set.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

// maxParams bounds the number of host parameters of one statement.
const maxParams = 500

// Store is the SQLite storage.Database.
type Store struct {
	db *sql.DB

	nodes      *table[model.NodeSkeleton]
	ways       *table[model.WaySkeleton]
	relations  *table[model.RelationSkeleton]
	atticNodes *table[model.Attic[model.NodeSkeleton]]
	atticWays  *table[model.Attic[model.WaySkeleton]]
}

var _ storage.Database = (*Store)(nil)

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:         db,
		nodes:      &table[model.NodeSkeleton]{db: db, name: storage.Nodes.String(), codec: codec.NodeCodec{}},
		ways:       &table[model.WaySkeleton]{db: db, name: storage.Ways.String(), codec: codec.WayCodec{}},
		relations:  &table[model.RelationSkeleton]{db: db, name: storage.Relations.String(), codec: codec.RelationCodec{}},
		atticNodes: &table[model.Attic[model.NodeSkeleton]]{db: db, name: storage.AtticNodes.String(), attic: true,
			codec: codec.AtticCodec[model.NodeSkeleton]{Inner: codec.NodeCodec{}}},
		atticWays: &table[model.Attic[model.WaySkeleton]]{db: db, name: storage.AtticWays.String(), attic: true,
			codec: codec.AtticCodec[model.WaySkeleton]{Inner: codec.WayCodec{}}},
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
  id    INTEGER PRIMARY KEY,
  idx   INTEGER NOT NULL,
  body  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS nodes_idx ON nodes(idx, id);

CREATE TABLE IF NOT EXISTS ways (
  id    INTEGER PRIMARY KEY,
  idx   INTEGER NOT NULL,
  body  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS ways_idx ON ways(idx, id);

CREATE TABLE IF NOT EXISTS relations (
  id    INTEGER PRIMARY KEY,
  idx   INTEGER NOT NULL,
  body  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS relations_idx ON relations(idx, id);

CREATE TABLE IF NOT EXISTS attic_nodes (
  id       INTEGER NOT NULL,
  expires  INTEGER NOT NULL,
  idx      INTEGER NOT NULL,
  body     BLOB NOT NULL,
  PRIMARY KEY (id, expires)
);
CREATE INDEX IF NOT EXISTS attic_nodes_idx ON attic_nodes(idx, id, expires);

CREATE TABLE IF NOT EXISTS attic_ways (
  id       INTEGER NOT NULL,
  expires  INTEGER NOT NULL,
  idx      INTEGER NOT NULL,
  body     BLOB NOT NULL,
  PRIMARY KEY (id, expires)
);
CREATE INDEX IF NOT EXISTS attic_ways_idx ON attic_ways(idx, id, expires);

CREATE TABLE IF NOT EXISTS roles (
  id    INTEGER PRIMARY KEY,
  name  TEXT NOT NULL UNIQUE
);
`

func (s *Store) Nodes() storage.Table[model.NodeSkeleton] { return s.nodes }

func (s *Store) Ways() storage.Table[model.WaySkeleton] { return s.ways }

func (s *Store) Relations() storage.Table[model.RelationSkeleton] { return s.relations }

func (s *Store) AtticNodes() storage.Table[model.Attic[model.NodeSkeleton]] { return s.atticNodes }

func (s *Store) AtticWays() storage.Table[model.Attic[model.WaySkeleton]] { return s.atticWays }

func (s *Store) tableName(t storage.TableID) (string, error) {
	for _, known := range storage.Tables {
		if t == known {
			return t.String(), nil
		}
	}

	return "", fmt.Errorf("%w: %v", storage.ErrUnknownTable, t)
}

func (s *Store) Locate(ctx context.Context, t storage.TableID, ids []model.ID) ([]index.Index, error) {
	name, err := s.tableName(t)
	if err != nil {
		return nil, err
	}

	seen := make(map[index.Index]struct{})

	for start := 0; start < len(ids); start += maxParams {
		chunk := ids[start:min(start+maxParams, len(ids))]
		args := make([]any, len(chunk))

		for i, id := range chunk {
			args[i] = int64(id)
		}

		q := fmt.Sprintf("SELECT DISTINCT idx FROM %s WHERE id IN (%s)", name, placeholders(len(chunk)))

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("locate in %s: %w", name, err)
		}

		for rows.Next() {
			var idx int64
			if err := rows.Scan(&idx); err != nil {
				rows.Close()
				return nil, fmt.Errorf("locate in %s: %w", name, err)
			}

			seen[fromColumn(idx)] = struct{}{}
		}

		rows.Close()

		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("locate in %s: %w", name, err)
		}
	}

	indices := make([]index.Index, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}

	return storage.Buckets(indices).Indices(), nil
}

func (s *Store) RoleID(ctx context.Context, role string) (model.RoleID, error) {
	var id int64

	err := s.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = ?", role).Scan(&id)
	if err == sql.ErrNoRows {
		return model.NoRole, nil
	} else if err != nil {
		return model.NoRole, fmt.Errorf("resolve role %q: %w", role, err)
	}

	return model.RoleID(id), nil
}

func (s *Store) Role(ctx context.Context, id model.RoleID) (string, error) {
	var name string

	if err := s.db.QueryRowContext(ctx, "SELECT name FROM roles WHERE id = ?", int64(id)).Scan(&name); err != nil {
		return "", fmt.Errorf("resolve role id %d: %w", id, err)
	}

	return name, nil
}

func (s *Store) Count(ctx context.Context, t storage.TableID) (int64, error) {
	name, err := s.tableName(t)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}

	return n, nil
}

func (s *Store) InternRoles(ctx context.Context, roles []string) (map[string]model.RoleID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	out := make(map[string]model.RoleID, len(roles))

	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO roles(name) VALUES (?)", role); err != nil {
			return nil, fmt.Errorf("intern role %q: %w", role, err)
		}

		var id int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = ?", role).Scan(&id); err != nil {
			return nil, fmt.Errorf("intern role %q: %w", role, err)
		}

		out[role] = model.RoleID(id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return out, nil
}

func (s *Store) Write(ctx context.Context, b *storage.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.nodes.write(ctx, tx, b.Nodes); err != nil {
		return err
	}

	if err := s.ways.write(ctx, tx, b.Ways); err != nil {
		return err
	}

	if err := s.relations.write(ctx, tx, b.Relations); err != nil {
		return err
	}

	if err := s.atticNodes.write(ctx, tx, b.AtticNodes); err != nil {
		return err
	}

	if err := s.atticWays.write(ctx, tx, b.AtticWays); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toColumn(idx index.Index) int64 {
	return int64(idx >> 1)
}

func fromColumn(v int64) index.Index {
	return index.Index(uint64(v) << 1)
}
