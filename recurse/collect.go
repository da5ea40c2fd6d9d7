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

package recurse

import (
	"context"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

// CollectDiscrete visits the listed partitions of table, narrowed to ranges
// when those are given, and keeps the items satisfying pred.
func CollectDiscrete[T model.Item](
	ctx context.Context,
	w *Walker,
	table storage.Table[T],
	indices []index.Index,
	ranges []index.Range,
	pred predicate.Predicate,
) (set.Collection[T], error) {
	if len(indices) == 0 {
		return set.Collection[T]{}, nil
	}

	return collect(ctx, w, table, storage.Buckets(indices).Within(ranges), pred)
}

// CollectFlat visits the whole table, narrowed to ranges when those are
// given, and keeps the items satisfying pred.
func CollectFlat[T model.Item](
	ctx context.Context,
	w *Walker,
	table storage.Table[T],
	ranges []index.Range,
	pred predicate.Predicate,
) (set.Collection[T], error) {
	return collect(ctx, w, table, storage.Everything().Within(ranges), pred)
}

func collect[T model.Item](
	ctx context.Context,
	w *Walker,
	table storage.Table[T],
	sel storage.Selection,
	pred predicate.Predicate,
) (set.Collection[T], error) {
	if pred == nil {
		pred = predicate.True{}
	}

	out := set.Collection[T]{}
	current, started := index.World, false

	err := table.Scan(ctx, sel, func(idx index.Index, item T) error {
		if !started || idx != current {
			if err := w.check(); err != nil {
				return err
			}

			current, started = idx, true
		}

		w.rt.Checker.Charge(1, weight(item))

		if predicate.Eval(pred, item) {
			out.Add(idx, item)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := w.check(); err != nil {
		return nil, err
	}

	out.Sort()

	return out, nil
}

// FilterItems returns the items of c satisfying pred. Emptied partitions are
// dropped.
func FilterItems[T model.Item](c set.Collection[T], pred predicate.Predicate) set.Collection[T] {
	if pred == nil {
		return c.Clone()
	}

	out := make(set.Collection[T], len(c))
	for idx, items := range c {
		var kept []T

		for _, item := range items {
			if predicate.Eval(pred, item) {
				kept = append(kept, item)
			}
		}

		if len(kept) > 0 {
			out[idx] = kept
		}
	}

	return out
}

// withinRanges drops the partitions of c outside ranges. Nil ranges keep
// everything.
func withinRanges[T model.Item](c set.Collection[T], ranges []index.Range) set.Collection[T] {
	if ranges == nil {
		return c
	}

	sel := storage.Everything().Within(ranges)

	out := make(set.Collection[T], len(c))
	for idx, items := range c {
		if sel.Contains(idx) {
			out[idx] = items
		}
	}

	return out
}

// weight estimates the memory taken by an item, charged to the query.
func weight(item model.Item) int64 {
	if u, ok := item.(interface{ Unwrap() model.Item }); ok {
		return 8 + weight(u.Unwrap())
	}

	switch e := item.(type) {
	case model.NodeSkeleton:
		return 24
	case model.WaySkeleton:
		return 32 + 8*int64(len(e.NodeIDs))
	case model.RelationSkeleton:
		return 32 + 16*int64(len(e.Members))
	default:
		return 8
	}
}
