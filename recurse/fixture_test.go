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

package recurse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
	"m4o.io/osmrecurse/storage/memory"
)

// member is a relation member with its role spelled out.
type member struct {
	ref  model.ID
	kind model.EntityType
	role string
}

func n(ref model.ID, role string) member { return member{ref, model.NODE, role} }
func w(ref model.ID, role string) member { return member{ref, model.WAY, role} }
func r(ref model.ID, role string) member { return member{ref, model.RELATION, role} }

// fixture builds a store entity by entity and seeds sets from it.
type fixture struct {
	t  *testing.T
	db *memory.Store

	nodes     map[model.ID]storage.Entry[model.NodeSkeleton]
	ways      map[model.ID]storage.Entry[model.WaySkeleton]
	relations map[model.ID]storage.Entry[model.RelationSkeleton]
	atticWays map[model.ID]storage.Entry[model.Attic[model.WaySkeleton]]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	return &fixture{
		t:         t,
		db:        memory.New(),
		nodes:     make(map[model.ID]storage.Entry[model.NodeSkeleton]),
		ways:      make(map[model.ID]storage.Entry[model.WaySkeleton]),
		relations: make(map[model.ID]storage.Entry[model.RelationSkeleton]),
		atticWays: make(map[model.ID]storage.Entry[model.Attic[model.WaySkeleton]]),
	}
}

func (f *fixture) write(b *storage.Batch) {
	f.t.Helper()
	require.NoError(f.t, f.db.Write(context.Background(), b))
}

func (f *fixture) node(id model.ID, lat, lon model.Degrees) *fixture {
	e := storage.Entry[model.NodeSkeleton]{
		Index: index.NodeIndex(lat, lon),
		Item:  model.NodeSkeleton{ID: id, Lat: lat, Lon: lon},
	}
	f.nodes[id] = e
	f.write(&storage.Batch{Nodes: []storage.Entry[model.NodeSkeleton]{e}})

	return f
}

func (f *fixture) atticNode(id model.ID, lat, lon model.Degrees, expires model.Timestamp) *fixture {
	f.write(&storage.Batch{AtticNodes: []storage.Entry[model.Attic[model.NodeSkeleton]]{{
		Index: index.NodeIndex(lat, lon),
		Item:  model.Attic[model.NodeSkeleton]{Value: model.NodeSkeleton{ID: id, Lat: lat, Lon: lon}, Expires: expires},
	}}})

	return f
}

func (f *fixture) wayIndex(refs []model.ID) index.Index {
	indices := make([]index.Index, 0, len(refs))
	for _, ref := range refs {
		if e, ok := f.nodes[ref]; ok {
			indices = append(indices, e.Index)
		}
	}

	return index.Common(indices...)
}

func (f *fixture) way(id model.ID, refs ...model.ID) *fixture {
	e := storage.Entry[model.WaySkeleton]{Index: f.wayIndex(refs), Item: model.WaySkeleton{ID: id, NodeIDs: refs}}
	f.ways[id] = e
	f.write(&storage.Batch{Ways: []storage.Entry[model.WaySkeleton]{e}})

	return f
}

func (f *fixture) atticWay(id model.ID, expires model.Timestamp, refs ...model.ID) *fixture {
	e := storage.Entry[model.Attic[model.WaySkeleton]]{
		Index: f.wayIndex(refs),
		Item:  model.Attic[model.WaySkeleton]{Value: model.WaySkeleton{ID: id, NodeIDs: refs}, Expires: expires},
	}
	f.atticWays[id] = e
	f.write(&storage.Batch{AtticWays: []storage.Entry[model.Attic[model.WaySkeleton]]{e}})

	return f
}

func (f *fixture) relation(id model.ID, members ...member) *fixture {
	f.t.Helper()

	roles := make([]string, 0, len(members))
	for _, m := range members {
		roles = append(roles, m.role)
	}

	ids, err := f.db.InternRoles(context.Background(), roles)
	require.NoError(f.t, err)

	var indices []index.Index

	rel := model.RelationSkeleton{ID: id}
	for _, m := range members {
		rel.Members = append(rel.Members, model.RelationMember{Ref: m.ref, Type: m.kind, Role: ids[m.role]})

		switch m.kind {
		case model.NODE:
			if e, ok := f.nodes[m.ref]; ok {
				indices = append(indices, e.Index)
			}
		case model.WAY:
			if e, ok := f.ways[m.ref]; ok {
				indices = append(indices, e.Index)
			}
		case model.RELATION:
			if e, ok := f.relations[m.ref]; ok {
				indices = append(indices, e.Index)
			}
		}
	}

	e := storage.Entry[model.RelationSkeleton]{Index: index.Common(indices...), Item: rel}
	f.relations[id] = e
	f.write(&storage.Batch{Relations: []storage.Entry[model.RelationSkeleton]{e}})

	return f
}

// ids lists entities of a set for seeding.
type ids struct {
	nodes, ways, relations, atticWays []model.ID
}

func (f *fixture) set(s ids) *set.Set {
	out := set.New()

	for _, id := range s.nodes {
		e := f.nodes[id]
		out.Nodes.Add(e.Index, e.Item)
	}

	for _, id := range s.ways {
		e := f.ways[id]
		out.Ways.Add(e.Index, e.Item)
	}

	for _, id := range s.relations {
		e := f.relations[id]
		out.Relations.Add(e.Index, e.Item)
	}

	for _, id := range s.atticWays {
		e := f.atticWays[id]
		out.AtticWays.Add(e.Index, e.Item)
	}

	out.Nodes.Sort()
	out.Ways.Sort()
	out.Relations.Sort()
	out.AtticWays.Sort()

	return out
}

func (f *fixture) runtime(opts ...engine.RuntimeOption) *engine.Runtime {
	return engine.NewRuntime(f.db, opts...)
}

// result flattens a set to its ids per kind.
type result struct {
	Nodes, Ways, Relations, AtticNodes []model.ID
}

func idsOf(s *set.Set) result {
	return result{
		Nodes:      s.Nodes.IDs(),
		Ways:       s.Ways.IDs(),
		Relations:  s.Relations.IDs(),
		AtticNodes: s.AtticNodes.IDs(),
	}
}

func list(ids ...model.ID) []model.ID {
	if ids == nil {
		return []model.ID{}
	}

	return ids
}

// location names the statement charged by walkers in tests.
type location struct{}

func (location) Name() string { return "recurse" }

func (location) Line() int { return 1 }

// Positions of the scenario: P1 in central Paris, the ways around it, and a
// node far away in London.
const (
	P1 model.ID = 1
	P2 model.ID = 2
	P3 model.ID = 3
	P4 model.ID = 4
	PL model.ID = 9

	W1 model.ID = 11
	W2 model.ID = 12

	R  model.ID = 21
	R2 model.ID = 22
	R3 model.ID = 23
)

// scenario is the relation R with members W1 as "outer" and P1 as
// "admin_centre", W1 referencing P2 and P3. R2 holds R and W2, R3 holds R2;
// W2 references P3 and P4. PL belongs to nothing.
func scenario(t *testing.T) *fixture {
	return newFixture(t).
		node(P1, 48.8566, 2.3522).
		node(P2, 48.8600, 2.3400).
		node(P3, 48.8700, 2.3300).
		node(P4, 48.8800, 2.3200).
		node(PL, 51.5074, -0.1278).
		way(W1, P2, P3).
		way(W2, P3, P4).
		relation(R, w(W1, "outer"), n(P1, "admin_centre")).
		relation(R2, r(R, "subarea"), w(W2, "inner")).
		relation(R3, r(R2, "subarea"))
}
