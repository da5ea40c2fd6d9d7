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

package osmrecurse

import (
	"context"
	"fmt"
	"slices"
	"time"

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/recurse"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

// Query is one recurse traversal from a set of entities.
type Query struct {
	// Type is the name of the traversal, e.g. "way-node" or "down".
	Type string
	// Role restricts a single membership step to members with that role.
	// An empty role selects members without one.
	Role *string
	// At runs the traversal against the history as of that moment. The
	// zero time means the current data.
	At time.Time

	Nodes     []model.ID
	Ways      []model.ID
	Relations []model.ID
}

func (q Query) attributes() map[string]string {
	attrs := map[string]string{"type": q.Type}

	if q.Role != nil {
		if *q.Role == "" {
			attrs["role-restricted"] = "yes"
		} else {
			attrs["role"] = *q.Role
		}
	}

	return attrs
}

func (q Query) timestamp() model.Timestamp {
	if q.At.IsZero() {
		return model.Now
	}

	return model.TimestampOf(q.At)
}

// Recurse seeds a set with the current versions of the queried entities
// and returns the entities the traversal reaches from it. Entities missing
// from the store are not part of the seed.
func (db *DB) Recurse(ctx context.Context, q Query) (*set.Set, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stmt, err := recurse.NewStatement(1, q.attributes())
	if err != nil {
		return nil, err
	}

	rt := engine.NewRuntime(db.store,
		engine.WithBudget(db.cfg.ResourceBudget()),
		engine.WithTimestamp(q.timestamp()),
		engine.WithMetrics(db.metrics),
		engine.WithLogger(db.logger))

	source, err := seed(ctx, rt, q)
	if err != nil {
		return nil, err
	}

	rt.Output(engine.DefaultSet, source)

	if err := engine.Run(ctx, rt, stmt); err != nil {
		return nil, err
	}

	rt.Logger().Debug("traversal finished", "type", q.Type,
		"rows", rt.Checker.Rows(), "bytes", rt.Checker.Bytes(), "elapsed", rt.Checker.Elapsed())

	result, _ := rt.Input(engine.DefaultSet)

	return result, nil
}

// seeding names the lookup of the source entities in budget reports.
type seeding struct{}

func (seeding) Name() string { return "seed" }

func (seeding) Line() int { return 0 }

// seed reads the versions of the queried entities valid at the moment of
// the runtime. Relations have no stored history and are always current.
func seed(ctx context.Context, rt *engine.Runtime, q Query) (*set.Set, error) {
	w := recurse.NewWalker(rt, seeding{})
	s := set.New()

	var err error

	if s.Nodes, err = lookup(ctx, w, rt, storage.Nodes, rt.Store.Nodes(), q.Nodes); err != nil {
		return nil, err
	}

	if s.Ways, err = lookup(ctx, w, rt, storage.Ways, rt.Store.Ways(), q.Ways); err != nil {
		return nil, err
	}

	if s.Relations, err = lookup(ctx, w, rt, storage.Relations, rt.Store.Relations(), q.Relations); err != nil {
		return nil, err
	}

	if rt.Timestamp == model.Now {
		return s, nil
	}

	atticNodes, err := lookup(ctx, w, rt, storage.AtticNodes, rt.Store.AtticNodes(), q.Nodes)
	if err != nil {
		return nil, err
	}

	atticWays, err := lookup(ctx, w, rt, storage.AtticWays, rt.Store.AtticWays(), q.Ways)
	if err != nil {
		return nil, err
	}

	s.Nodes, s.AtticNodes = recurse.ValidAt(s.Nodes, atticNodes, rt.Timestamp)
	s.Ways, s.AtticWays = recurse.ValidAt(s.Ways, atticWays, rt.Timestamp)

	return s, nil
}

func lookup[T model.Item](
	ctx context.Context,
	w *recurse.Walker,
	rt *engine.Runtime,
	table storage.TableID,
	items storage.Table[T],
	ids []model.ID,
) (set.Collection[T], error) {
	if len(ids) == 0 {
		return set.Collection[T]{}, nil
	}

	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	indices, err := rt.Store.Locate(ctx, table, ids)
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", table, err)
	}

	return recurse.CollectDiscrete(ctx, w, items, indices, nil, predicate.IDs(ids))
}
