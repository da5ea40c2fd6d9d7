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

// Package loader converts decoded entities into skeletons and writes them,
// with their partition indices and superseded versions, to a database.
package loader

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/destel/rill"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

// DefaultBatchSize is the default number of rows written together.
const DefaultBatchSize = 10_000

type options struct {
	batchSize int
	logger    *slog.Logger
}

// Option configures Load.
type Option func(*options)

// WithBatchSize sets the number of rows written together.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithLogger sets the logger, slog.Default() when nil.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Stats summarizes a load.
type Stats struct {
	Nodes       int64
	Ways        int64
	Relations   int64
	AtticNodes  int64
	AtticWays   int64
	BoundingBox *model.BoundingBox
}

// row adds one converted entity to a batch.
type row func(b *storage.Batch)

// Load writes the entities to db. Entities must arrive the way PBF files
// order them: nodes, then ways, then relations, each by ascending id, with
// the versions of one entity in ascending order. Every version but the last
// becomes a superseded version expiring when its successor was created; a
// last version that is not visible deletes the entity.
func Load(ctx context.Context, db storage.Writer, entities iter.Seq2[model.Entity, error], opts ...Option) (*Stats, error) {
	o := options{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newConverter(ctx, db)

	rows := make(chan rill.Try[row])

	go func() {
		defer close(rows)

		send := func(r row, err error) bool {
			select {
			case <-ctx.Done():
				return false
			case rows <- rill.Try[row]{Value: r, Error: err}:
				return err == nil
			}
		}

		var versions []model.Entity

		flush := func() bool {
			converted, err := c.convert(versions)
			versions = versions[:0]

			if err != nil {
				return send(nil, err)
			}

			for _, r := range converted {
				if !send(r, nil) {
					return false
				}
			}

			return true
		}

		for e, err := range entities {
			if err != nil {
				send(nil, err)
				return
			}

			if len(versions) > 0 && !sameEntity(versions[0], e) {
				if !flush() {
					return
				}
			}

			versions = append(versions, e)
		}

		if len(versions) > 0 {
			flush()
		}
	}()

	batches := rill.Batch(rows, max(o.batchSize, 1), -1)

	err := rill.ForEach(batches, 1, func(rs []row) error {
		b := &storage.Batch{}
		for _, r := range rs {
			r(b)
		}

		if err := db.Write(ctx, b); err != nil {
			return fmt.Errorf("writing batch: %w", err)
		}

		o.logger.Debug("batch written", "rows", b.Len())

		return nil
	})
	if err != nil {
		o.logger.Error("load failed", "error", err)
		return nil, err
	}

	return &c.stats, nil
}

func sameEntity(a, b model.Entity) bool {
	return a.GetType() == b.GetType() && a.GetID() == b.GetID()
}

// converter turns the versions of one entity into rows. It remembers where
// current nodes and ways were put so that their parents can be indexed.
type converter struct {
	ctx   context.Context
	db    storage.Writer
	roles map[string]model.RoleID

	nodes map[model.ID]index.Index
	ways  map[model.ID]index.Index
	rels  map[model.ID]index.Index

	stats Stats
}

func newConverter(ctx context.Context, db storage.Writer) *converter {
	return &converter{
		ctx:   ctx,
		db:    db,
		roles: make(map[string]model.RoleID),
		nodes: make(map[model.ID]index.Index),
		ways:  make(map[model.ID]index.Index),
		rels:  make(map[model.ID]index.Index),
		stats: Stats{BoundingBox: model.InitialBoundingBox()},
	}
}

// convert handles the ascending versions of one entity.
func (c *converter) convert(versions []model.Entity) ([]row, error) {
	var rows []row

	last := len(versions) - 1

	for i, v := range versions[:last] {
		if !visible(v) {
			continue
		}

		r, err := c.attic(v, timestamp(versions[i+1]))
		if err != nil {
			return nil, err
		}

		if r != nil {
			rows = append(rows, r)
		}
	}

	if current := versions[last]; visible(current) {
		r, err := c.current(current)
		if err != nil {
			return nil, err
		}

		rows = append(rows, r)
	}

	return rows, nil
}

func (c *converter) current(e model.Entity) (row, error) {
	switch v := e.(type) {
	case model.Node:
		idx := index.NodeIndex(v.Lat, v.Lon)
		c.nodes[v.ID] = idx
		c.stats.Nodes++
		c.stats.BoundingBox.Extend(v.Lat, v.Lon)

		entry := storage.Entry[model.NodeSkeleton]{Index: idx, Item: v.Skeleton()}

		return func(b *storage.Batch) { b.Nodes = append(b.Nodes, entry) }, nil
	case model.Way:
		idx := c.wayIndex(v.NodeIDs)
		c.ways[v.ID] = idx
		c.stats.Ways++

		entry := storage.Entry[model.WaySkeleton]{Index: idx, Item: v.Skeleton()}

		return func(b *storage.Batch) { b.Ways = append(b.Ways, entry) }, nil
	case model.Relation:
		skel, err := c.relationSkeleton(v)
		if err != nil {
			return nil, err
		}

		idx := c.relationIndex(v.Members)
		c.rels[v.ID] = idx
		c.stats.Relations++

		entry := storage.Entry[model.RelationSkeleton]{Index: idx, Item: skel}

		return func(b *storage.Batch) { b.Relations = append(b.Relations, entry) }, nil
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
}

// attic converts a superseded version. Superseded relations are not kept.
func (c *converter) attic(e model.Entity, expires model.Timestamp) (row, error) {
	switch v := e.(type) {
	case model.Node:
		idx := index.NodeIndex(v.Lat, v.Lon)
		c.nodes[v.ID] = idx
		c.stats.AtticNodes++

		entry := storage.Entry[model.Attic[model.NodeSkeleton]]{
			Index: idx,
			Item:  model.Attic[model.NodeSkeleton]{Value: v.Skeleton(), Expires: expires},
		}

		return func(b *storage.Batch) { b.AtticNodes = append(b.AtticNodes, entry) }, nil
	case model.Way:
		c.stats.AtticWays++

		entry := storage.Entry[model.Attic[model.WaySkeleton]]{
			Index: c.wayIndex(v.NodeIDs),
			Item:  model.Attic[model.WaySkeleton]{Value: v.Skeleton(), Expires: expires},
		}

		return func(b *storage.Batch) { b.AtticWays = append(b.AtticWays, entry) }, nil
	case model.Relation:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
}

func (c *converter) wayIndex(refs []model.ID) index.Index {
	return common(c.nodes, refs)
}

func (c *converter) relationIndex(members []model.Member) index.Index {
	var located []index.Index

	for _, m := range members {
		var (
			idx index.Index
			ok  bool
		)

		switch m.Type {
		case model.NODE:
			idx, ok = c.nodes[m.ID]
		case model.WAY:
			idx, ok = c.ways[m.ID]
		case model.RELATION:
			idx, ok = c.rels[m.ID]
		}

		if ok {
			located = append(located, idx)
		}
	}

	return index.Common(located...)
}

func (c *converter) relationSkeleton(r model.Relation) (model.RelationSkeleton, error) {
	var missing []string

	for _, m := range r.Members {
		if _, ok := c.roles[m.Role]; !ok {
			missing = append(missing, m.Role)
		}
	}

	if len(missing) > 0 {
		interned, err := c.db.InternRoles(c.ctx, missing)
		if err != nil {
			return model.RelationSkeleton{}, fmt.Errorf("interning roles of relation %d: %w", r.ID, err)
		}

		for role, id := range interned {
			c.roles[role] = id
		}
	}

	return r.Skeleton(c.roles), nil
}

// common returns the common index of the located references.
func common(located map[model.ID]index.Index, refs []model.ID) index.Index {
	indices := make([]index.Index, 0, len(refs))

	for _, ref := range refs {
		if idx, ok := located[ref]; ok {
			indices = append(indices, idx)
		}
	}

	return index.Common(indices...)
}

func visible(e model.Entity) bool {
	info := e.GetInfo()

	return info == nil || info.Visible
}

func timestamp(e model.Entity) model.Timestamp {
	info := e.GetInfo()
	if info == nil || info.Timestamp.IsZero() {
		return model.Now
	}

	return model.TimestampOf(info.Timestamp)
}
