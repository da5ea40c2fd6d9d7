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

// Package set holds the keyed collections that flow between query
// statements.
package set

import (
	"slices"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
)

// Collection maps a partition index to the items stored under it. The items
// of every bucket are sorted by id and timestamp once a collection has been
// built by this package.
type Collection[T model.Item] map[index.Index][]T

// Add appends item to the bucket idx without restoring the bucket order;
// call Sort once all items are in.
func (c Collection[T]) Add(idx index.Index, item T) {
	c[idx] = append(c[idx], item)
}

// Sort orders every bucket and drops duplicate (id, timestamp) entries.
func (c Collection[T]) Sort() {
	for idx, items := range c {
		slices.SortStableFunc(items, compare[T])
		c[idx] = slices.CompactFunc(items, same[T])
	}
}

// Indices returns the bucket keys in ascending order.
func (c Collection[T]) Indices() []index.Index {
	indices := make([]index.Index, 0, len(c))
	for idx := range c {
		indices = append(indices, idx)
	}

	slices.Sort(indices)

	return indices
}

// Count returns the number of items over all buckets.
func (c Collection[T]) Count() int {
	n := 0
	for _, items := range c {
		n += len(items)
	}

	return n
}

// IDs returns the ascending ids of all items, without duplicates.
func (c Collection[T]) IDs() []model.ID {
	ids := make([]model.ID, 0, c.Count())
	for _, items := range c {
		for _, item := range items {
			ids = append(ids, item.GetID())
		}
	}

	slices.Sort(ids)

	return slices.Compact(ids)
}

// Clone returns a copy that shares no bucket slices with c.
func (c Collection[T]) Clone() Collection[T] {
	out := make(Collection[T], len(c))
	for idx, items := range c {
		out[idx] = slices.Clone(items)
	}

	return out
}

// Each visits every item in index order, then id order.
func (c Collection[T]) Each(visit func(idx index.Index, item T)) {
	for _, idx := range c.Indices() {
		for _, item := range c[idx] {
			visit(idx, item)
		}
	}
}

// Union returns a new collection holding the items of a and b. Items equal
// by (id, timestamp) within one bucket are kept once.
func Union[T model.Item](a, b Collection[T]) Collection[T] {
	out := make(Collection[T], max(len(a), len(b)))

	for idx, items := range a {
		out[idx] = slices.Clone(items)
	}

	for idx, items := range b {
		existing, ok := out[idx]
		if !ok {
			out[idx] = slices.Clone(items)
			continue
		}

		out[idx] = merge(existing, items)
	}

	return out
}

// merge merges two sorted buckets.
func merge[T model.Item](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := compare(a[i], b[j]); {
		case c < 0:
			out = append(out, a[i])
			i++
		case c > 0:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}

	out = append(out, a[i:]...)

	return append(out, b[j:]...)
}

func compare[T model.Item](a, b T) int {
	switch {
	case model.Less(a, b):
		return -1
	case model.Less(b, a):
		return 1
	default:
		return 0
	}
}

func same[T model.Item](a, b T) bool {
	return compare(a, b) == 0
}

// Set is the value of a named set: entities of every kind, current and
// superseded.
type Set struct {
	Nodes      Collection[model.NodeSkeleton]
	Ways       Collection[model.WaySkeleton]
	Relations  Collection[model.RelationSkeleton]
	AtticNodes Collection[model.Attic[model.NodeSkeleton]]
	AtticWays  Collection[model.Attic[model.WaySkeleton]]
}

// New returns an empty set.
func New() *Set {
	return &Set{
		Nodes:      Collection[model.NodeSkeleton]{},
		Ways:       Collection[model.WaySkeleton]{},
		Relations:  Collection[model.RelationSkeleton]{},
		AtticNodes: Collection[model.Attic[model.NodeSkeleton]]{},
		AtticWays:  Collection[model.Attic[model.WaySkeleton]]{},
	}
}

// Count returns the number of entities in the set.
func (s *Set) Count() int {
	return s.Nodes.Count() + s.Ways.Count() + s.Relations.Count() + s.AtticNodes.Count() + s.AtticWays.Count()
}

// IsEmpty reports whether the set holds no entity.
func (s *Set) IsEmpty() bool {
	return s.Count() == 0
}

// Clear removes every entity in place.
func (s *Set) Clear() {
	*s = *New()
}

// Session holds the named sets of one query execution.
type Session struct {
	sets map[string]*Set
}

// NewSession returns a session without any set.
func NewSession() *Session {
	return &Session{sets: make(map[string]*Set)}
}

// Get returns the named set.
func (s *Session) Get(name string) (*Set, bool) {
	st, ok := s.sets[name]

	return st, ok
}

// Put replaces the named set wholesale.
func (s *Session) Put(name string, st *Set) {
	s.sets[name] = st
}
