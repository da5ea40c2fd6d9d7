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

// Package memory is a storage.Database holding every partition as a
// compressed block in memory.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

// DefaultCompression is the compression of stored blocks.
const DefaultCompression = codec.ZSTD

type options struct {
	compression codec.Compression
}

// Option configures a Store.
type Option func(*options)

// WithCompression sets the compression of stored blocks.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// Store is an in-memory storage.Database. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nodes      *table[model.NodeSkeleton]
	ways       *table[model.WaySkeleton]
	relations  *table[model.RelationSkeleton]
	atticNodes *table[model.Attic[model.NodeSkeleton]]
	atticWays  *table[model.Attic[model.WaySkeleton]]

	roles     map[string]model.RoleID
	roleNames []string
}

var _ storage.Database = (*Store)(nil)

// New returns an empty store.
func New(opts ...Option) *Store {
	o := options{compression: DefaultCompression}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{roles: make(map[string]model.RoleID)}

	s.nodes = newTable[model.NodeSkeleton](&s.mu, codec.NodeCodec{}, o.compression)
	s.ways = newTable[model.WaySkeleton](&s.mu, codec.WayCodec{}, o.compression)
	s.relations = newTable[model.RelationSkeleton](&s.mu, codec.RelationCodec{}, o.compression)
	s.atticNodes = newTable[model.Attic[model.NodeSkeleton]](&s.mu,
		codec.AtticCodec[model.NodeSkeleton]{Inner: codec.NodeCodec{}}, o.compression)
	s.atticWays = newTable[model.Attic[model.WaySkeleton]](&s.mu,
		codec.AtticCodec[model.WaySkeleton]{Inner: codec.WayCodec{}}, o.compression)

	return s
}

func (s *Store) Nodes() storage.Table[model.NodeSkeleton] { return s.nodes }

func (s *Store) Ways() storage.Table[model.WaySkeleton] { return s.ways }

func (s *Store) Relations() storage.Table[model.RelationSkeleton] { return s.relations }

func (s *Store) AtticNodes() storage.Table[model.Attic[model.NodeSkeleton]] { return s.atticNodes }

func (s *Store) AtticWays() storage.Table[model.Attic[model.WaySkeleton]] { return s.atticWays }

func (s *Store) Locate(_ context.Context, t storage.TableID, ids []model.ID) ([]index.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var located map[model.ID][]index.Index

	switch t {
	case storage.Nodes:
		located = s.nodes.located
	case storage.Ways:
		located = s.ways.located
	case storage.Relations:
		located = s.relations.located
	case storage.AtticNodes:
		located = s.atticNodes.located
	case storage.AtticWays:
		located = s.atticWays.located
	default:
		return nil, fmt.Errorf("%w: %v", storage.ErrUnknownTable, t)
	}

	var indices []index.Index
	for _, id := range ids {
		indices = append(indices, located[id]...)
	}

	slices.Sort(indices)

	return slices.Compact(indices), nil
}

func (s *Store) RoleID(_ context.Context, role string) (model.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.roles[role]; ok {
		return id, nil
	}

	return model.NoRole, nil
}

func (s *Store) Role(_ context.Context, id model.RoleID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(id) >= len(s.roleNames) {
		return "", fmt.Errorf("unknown role id %d", id)
	}

	return s.roleNames[id], nil
}

func (s *Store) Count(_ context.Context, t storage.TableID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch t {
	case storage.Nodes:
		return s.nodes.rows, nil
	case storage.Ways:
		return s.ways.rows, nil
	case storage.Relations:
		return s.relations.rows, nil
	case storage.AtticNodes:
		return s.atticNodes.rows, nil
	case storage.AtticWays:
		return s.atticWays.rows, nil
	default:
		return 0, fmt.Errorf("%w: %v", storage.ErrUnknownTable, t)
	}
}

func (s *Store) InternRoles(_ context.Context, roles []string) (map[string]model.RoleID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.RoleID, len(roles))

	for _, role := range roles {
		id, ok := s.roles[role]
		if !ok {
			id = model.RoleID(len(s.roleNames))
			s.roles[role] = id
			s.roleNames = append(s.roleNames, role)
		}

		out[role] = id
	}

	return out, nil
}

func (s *Store) Write(_ context.Context, b *storage.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nodes.write(b.Nodes); err != nil {
		return err
	}

	if err := s.ways.write(b.Ways); err != nil {
		return err
	}

	if err := s.relations.write(b.Relations); err != nil {
		return err
	}

	if err := s.atticNodes.write(b.AtticNodes); err != nil {
		return err
	}

	return s.atticWays.write(b.AtticWays)
}

func (s *Store) Close() error {
	return nil
}
