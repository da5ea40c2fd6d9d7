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

// Package storage defines the contracts between the traversal engine and the
// stores holding the skeletons.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
)

var ErrUnknownTable = errors.New("unknown table")

// TableID names one of the stored tables.
type TableID int

const (
	Nodes TableID = iota
	Ways
	Relations
	AtticNodes
	AtticWays
)

// Tables lists every table in a stable order.
var Tables = []TableID{Nodes, Ways, Relations, AtticNodes, AtticWays}

func (t TableID) String() string {
	switch t {
	case Nodes:
		return "nodes"
	case Ways:
		return "ways"
	case Relations:
		return "relations"
	case AtticNodes:
		return "attic_nodes"
	case AtticWays:
		return "attic_ways"
	default:
		return fmt.Sprintf("TableID(%d)", int(t))
	}
}

// Selection picks the partitions a scan visits.
type Selection struct {
	all     bool
	buckets []index.Index
	ranges  []index.Range
	within  []index.Range
}

// Everything selects the whole table.
func Everything() Selection {
	return Selection{all: true}
}

// Buckets selects the listed partitions. An empty list selects nothing.
func Buckets(indices []index.Index) Selection {
	b := slices.Clone(indices)
	slices.Sort(b)

	return Selection{buckets: slices.Compact(b)}
}

// Ranges selects the partitions whose index falls in one of the ranges. An
// empty list selects nothing.
func Ranges(ranges []index.Range) Selection {
	return Selection{ranges: slices.Clone(ranges)}
}

// IsEverything reports whether the selection is the whole table.
func (s Selection) IsEverything() bool {
	return s.all
}

// Indices returns the ascending partitions of a Buckets selection.
func (s Selection) Indices() []index.Index {
	return s.buckets
}

// RangeList returns the ranges of a Ranges selection.
func (s Selection) RangeList() []index.Range {
	return s.ranges
}

// Contains reports whether the partition idx is selected.
func (s Selection) Contains(idx index.Index) bool {
	if s.within != nil && !overlapsRanges(s.within, idx) {
		return false
	}

	if s.all {
		return true
	}

	if _, found := slices.BinarySearch(s.buckets, idx); found {
		return true
	}

	return inRanges(s.ranges, idx)
}

// Within narrows s to the partitions whose cell overlaps one of the ranges.
// World always overlaps. Nil ranges leave s untouched.
func (s Selection) Within(ranges []index.Range) Selection {
	if ranges == nil {
		return s
	}

	s.within = slices.Clone(ranges)

	return s
}

func inRanges(ranges []index.Range, idx index.Index) bool {
	for _, r := range ranges {
		if r.Contains(idx) {
			return true
		}
	}

	return false
}

func overlapsRanges(ranges []index.Range, idx index.Index) bool {
	for _, r := range ranges {
		if r.Overlaps(idx) {
			return true
		}
	}

	return false
}

// Visitor receives the items of a scan, partition by partition in ascending
// index order, and by id within a partition. Returning an error stops the
// scan and the scan returns that error.
type Visitor[T model.Item] func(idx index.Index, item T) error

// Table is a partitioned table of items.
type Table[T model.Item] interface {
	Scan(ctx context.Context, sel Selection, visit Visitor[T]) error
}

// Store is the read side of a skeleton database.
type Store interface {
	Nodes() Table[model.NodeSkeleton]
	Ways() Table[model.WaySkeleton]
	Relations() Table[model.RelationSkeleton]
	AtticNodes() Table[model.Attic[model.NodeSkeleton]]
	AtticWays() Table[model.Attic[model.WaySkeleton]]

	// Locate returns the ascending partitions of the table holding any of
	// the ids. Unknown ids are skipped.
	Locate(ctx context.Context, table TableID, ids []model.ID) ([]index.Index, error)

	// RoleID resolves a role, model.NoRole when it was never stored.
	RoleID(ctx context.Context, role string) (model.RoleID, error)

	// Role resolves an interned role back to its text.
	Role(ctx context.Context, id model.RoleID) (string, error)

	// Count returns the number of rows in a table.
	Count(ctx context.Context, table TableID) (int64, error)

	Close() error
}

// Entry is an item together with its partition.
type Entry[T model.Item] struct {
	Index index.Index
	Item  T
}

// Batch is a set of rows written together. Writing a current row replaces
// any row with the same id; attic rows accumulate.
type Batch struct {
	Nodes      []Entry[model.NodeSkeleton]
	Ways       []Entry[model.WaySkeleton]
	Relations  []Entry[model.RelationSkeleton]
	AtticNodes []Entry[model.Attic[model.NodeSkeleton]]
	AtticWays  []Entry[model.Attic[model.WaySkeleton]]
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Nodes) + len(b.Ways) + len(b.Relations) + len(b.AtticNodes) + len(b.AtticWays)
}

// Writer is the write side of a skeleton database.
type Writer interface {
	// InternRoles returns the ids of the roles, assigning new ids to roles
	// seen for the first time.
	InternRoles(ctx context.Context, roles []string) (map[string]model.RoleID, error)

	Write(ctx context.Context, b *Batch) error
}

// Database is a store that can be written to.
type Database interface {
	Store
	Writer
}
