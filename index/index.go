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

// Package index maps entities onto the spatial partition keys under which
// they are stored.
//
// A node is keyed by the S2 cell at FineLevel that contains it. A way or a
// relation is keyed by the smallest cell containing every located member.
// Members spread over more than one cube face, or no located member at all,
// key the entity to World. Every index of a parent is therefore an ancestor
// of (or equal to) the index of each of its located children, or World.
package index

import (
	"slices"

	"github.com/golang/geo/s2"

	"m4o.io/osmrecurse/model"
)

// FineLevel is the S2 level of node indices, cells of roughly 150m.
const FineLevel = 16

// Index is a partition key. It is the numeric value of an S2 cell id, so
// the cells of one cube face order along the Hilbert curve.
type Index uint64

// World is the partition of entities that no cell contains.
const World Index = 0

// NodeIndex returns the fine index of a node position.
func NodeIndex(lat, lon model.Degrees) Index {
	return Index(s2.CellIDFromLatLng(latLng(lat, lon)).Parent(FineLevel))
}

func latLng(lat, lon model.Degrees) s2.LatLng {
	return s2.LatLng{Lat: lat.Angle(), Lng: lon.Angle()}
}

// Common returns the index of an entity whose located members have the
// given indices.
func Common(indices ...Index) Index {
	if len(indices) == 0 {
		return World
	}

	c := s2.CellID(indices[0])
	if indices[0] == World {
		return World
	}

	for _, i := range indices[1:] {
		if i == World {
			return World
		}

		level, ok := c.CommonAncestorLevel(s2.CellID(i))
		if !ok {
			return World
		}

		if level < c.Level() {
			c = c.Parent(level)
		}
	}

	return Index(c)
}

// Level returns the S2 level of the index, -1 for World.
func (i Index) Level() int {
	if i == World {
		return -1
	}

	return s2.CellID(i).Level()
}

// Contains reports whether o lies within i. World contains everything.
func (i Index) Contains(o Index) bool {
	switch {
	case i == World:
		return true
	case o == World:
		return false
	default:
		return s2.CellID(i).Contains(s2.CellID(o))
	}
}

func (i Index) String() string {
	if i == World {
		return "world"
	}

	return s2.CellID(i).ToToken()
}

// CalcParents returns, in ascending order, every index that may hold an
// entity having one of the children as a member. The result always
// includes World.
func CalcParents(children []Index) []Index {
	seen := make(map[Index]struct{}, len(children)*(FineLevel+1)+1)
	seen[World] = struct{}{}

	for _, child := range children {
		if child == World {
			continue
		}

		c := s2.CellID(child)
		for l := c.Level(); l >= 0; l-- {
			seen[Index(c.Parent(l))] = struct{}{}
		}
	}

	parents := make([]Index, 0, len(seen))
	for i := range seen {
		parents = append(parents, i)
	}

	slices.Sort(parents)

	return parents
}

// Range is an inclusive span of indices.
type Range struct {
	Lo Index
	Hi Index
}

// Contains reports whether i lies in the range.
func (r Range) Contains(i Index) bool {
	return r.Lo <= i && i <= r.Hi
}

// Overlaps reports whether any leaf of the cell i lies in the range. A way or
// relation keyed to a coarse cell may reach into the range even though the
// cell id itself does not. World overlaps every range.
func (r Range) Overlaps(i Index) bool {
	if i == World {
		return true
	}

	c := s2.CellID(i)

	return Index(c.RangeMin()) <= r.Hi && r.Lo <= Index(c.RangeMax())
}

// Covering returns index ranges covering the bounding box. A node lies in
// the box only if its index lies in one of the ranges.
func Covering(bbox *model.BoundingBox, maxCells int) []Range {
	rect := s2.RectFromLatLng(latLng(bbox.Bottom, bbox.Left))
	rect = rect.AddPoint(latLng(bbox.Top, bbox.Right))

	rc := &s2.RegionCoverer{MaxLevel: FineLevel, MaxCells: maxCells}

	cells := rc.Covering(rect)
	ranges := make([]Range, 0, len(cells))

	for _, c := range cells {
		ranges = append(ranges, Range{Lo: Index(c.RangeMin()), Hi: Index(c.RangeMax())})
	}

	slices.SortFunc(ranges, func(a, b Range) int {
		switch {
		case a.Lo < b.Lo:
			return -1
		case a.Lo > b.Lo:
			return 1
		default:
			return 0
		}
	})

	return ranges
}
