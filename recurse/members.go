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
	"fmt"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

type (
	nodes     = set.Collection[model.NodeSkeleton]
	ways      = set.Collection[model.WaySkeleton]
	relations = set.Collection[model.RelationSkeleton]
	oldNodes  = set.Collection[model.Attic[model.NodeSkeleton]]
)

func (w *Walker) locate(ctx context.Context, table storage.TableID, ids []model.ID) ([]index.Index, error) {
	indices, err := w.rt.Store.Locate(ctx, table, ids)
	if err != nil {
		return nil, fmt.Errorf("locating %d %s: %w", len(ids), table, err)
	}

	return indices, nil
}

// relationNodes retrieves the node members of rels.
func (w *Walker) relationNodes(
	ctx context.Context, rels relations, role *model.RoleID, ranges []index.Range, filter predicate.Predicate,
) (nodes, error) {
	ids := MemberIDs(rels, model.NODE, role)
	if len(ids) == 0 {
		return nodes{}, nil
	}

	indices, err := w.locate(ctx, storage.Nodes, ids)
	if err != nil {
		return nil, err
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Nodes(), indices, ranges, predicate.Conjoin(predicate.IDs(ids), filter))
}

// relationWays retrieves the way members of rels.
func (w *Walker) relationWays(
	ctx context.Context, rels relations, role *model.RoleID, ranges []index.Range, filter predicate.Predicate,
) (ways, error) {
	ids := MemberIDs(rels, model.WAY, role)
	if len(ids) == 0 {
		return ways{}, nil
	}

	indices, err := w.locate(ctx, storage.Ways, ids)
	if err != nil {
		return nil, err
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Ways(), indices, ranges, predicate.Conjoin(predicate.IDs(ids), filter))
}

// relationMembers retrieves the relation members of rels from the
// partitions the store locates them in.
func (w *Walker) relationMembers(
	ctx context.Context, rels relations, role *model.RoleID, ranges []index.Range, filter predicate.Predicate,
) (relations, error) {
	ids := MemberIDs(rels, model.RELATION, role)
	if len(ids) == 0 {
		return relations{}, nil
	}

	indices, err := w.locate(ctx, storage.Relations, ids)
	if err != nil {
		return nil, err
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Relations(), indices, ranges, predicate.Conjoin(predicate.IDs(ids), filter))
}

// wayNodes retrieves the nodes referenced by ws.
func (w *Walker) wayNodes(ctx context.Context, ws ways, ranges []index.Range, filter predicate.Predicate) (nodes, error) {
	ids := WayNodeIDs(ws, nil)
	if len(ids) == 0 {
		return nodes{}, nil
	}

	indices, err := w.locate(ctx, storage.Nodes, ids)
	if err != nil {
		return nil, err
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Nodes(), indices, ranges, predicate.Conjoin(predicate.IDs(ids), filter))
}

// wayNodesAt retrieves the versions valid at ts of the nodes referenced by
// ws and old.
func (w *Walker) wayNodesAt(
	ctx context.Context, ws ways, old set.Collection[model.Attic[model.WaySkeleton]], ts model.Timestamp,
	ranges []index.Range, filter predicate.Predicate,
) (nodes, oldNodes, error) {
	ids := WayNodeIDs(ws, old)
	if len(ids) == 0 {
		return nodes{}, oldNodes{}, nil
	}

	pred := predicate.Conjoin(predicate.IDs(ids), filter)

	indices, err := w.locate(ctx, storage.Nodes, ids)
	if err != nil {
		return nil, nil, err
	}

	current, err := CollectDiscrete(ctx, w, w.rt.Store.Nodes(), indices, ranges, pred)
	if err != nil {
		return nil, nil, err
	}

	indices, err = w.locate(ctx, storage.AtticNodes, ids)
	if err != nil {
		return nil, nil, err
	}

	attic, err := CollectDiscrete(ctx, w, w.rt.Store.AtticNodes(), indices, ranges, pred)
	if err != nil {
		return nil, nil, err
	}

	valid, superseded := ValidAt(current, attic, ts)

	return valid, superseded, nil
}

// ValidAt keeps the versions valid at ts. A current item is valid unless a
// superseded version of it expired after ts. Of the superseded versions the
// valid one is the one expiring first after ts.
func ValidAt[T model.Item](
	current set.Collection[T], attic set.Collection[model.Attic[T]], ts model.Timestamp,
) (set.Collection[T], set.Collection[model.Attic[T]]) {
	type version struct {
		idx  index.Index
		item model.Attic[T]
	}

	valid := make(map[model.ID]version)
	attic.Each(func(idx index.Index, a model.Attic[T]) {
		if a.Expires <= ts {
			return
		}

		if v, ok := valid[a.GetID()]; !ok || a.Expires < v.item.Expires {
			valid[a.GetID()] = version{idx: idx, item: a}
		}
	})

	outOld := set.Collection[model.Attic[T]]{}
	for _, v := range valid {
		outOld.Add(v.idx, v.item)
	}

	outOld.Sort()

	outCurrent := set.Collection[T]{}
	current.Each(func(idx index.Index, item T) {
		if _, superseded := valid[item.GetID()]; !superseded {
			outCurrent.Add(idx, item)
		}
	})

	return outCurrent, outOld
}

// nodeWays retrieves the ways referencing any of ns.
func (w *Walker) nodeWays(ctx context.Context, ns nodes, ranges []index.Range, filter predicate.Predicate) (ways, error) {
	ids := ChildrenIDs(ns)
	if len(ids) == 0 {
		return ways{}, nil
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Ways(), ParentIndices(ns), ranges,
		predicate.Conjoin(predicate.HasMember{Type: model.NODE, IDs: ids}, filter))
}

// parentRelations retrieves the relations having any of the children as a
// member of type t.
func parentRelations[T model.Item](
	ctx context.Context, w *Walker, children set.Collection[T], t model.EntityType, role *model.RoleID,
	ranges []index.Range, filter predicate.Predicate,
) (relations, error) {
	ids := ChildrenIDs(children)
	if len(ids) == 0 {
		return relations{}, nil
	}

	return CollectDiscrete(ctx, w, w.rt.Store.Relations(), ParentIndices(children), ranges,
		predicate.Conjoin(memberOf(t, ids, role), filter))
}

// relationParents retrieves the relations having any of rels as a member.
// Relations carry no locality towards their parents, so the table is scanned
// whole.
func (w *Walker) relationParents(
	ctx context.Context, rels relations, role *model.RoleID, ranges []index.Range, filter predicate.Predicate,
) (relations, error) {
	ids := ChildrenIDs(rels)
	if len(ids) == 0 {
		return relations{}, nil
	}

	return CollectFlat(ctx, w, w.rt.Store.Relations(), ranges,
		predicate.Conjoin(memberOf(model.RELATION, ids, role), filter))
}

// upward retrieves the ways referencing the source nodes and the relations
// referencing the source nodes, the source ways or those ways. The ranges
// and the filter narrow the relations only.
func (w *Walker) upward(
	ctx context.Context, src *set.Set, ranges []index.Range, filter predicate.Predicate,
) (ways, relations, error) {
	nodeWays, err := w.nodeWays(ctx, src.Nodes, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	wayRels, err := parentRelations(ctx, w, set.Union(src.Ways, nodeWays), model.WAY, nil, ranges, filter)
	if err != nil {
		return nil, nil, err
	}

	nodeRels, err := parentRelations(ctx, w, src.Nodes, model.NODE, nil, ranges, filter)
	if err != nil {
		return nil, nil, err
	}

	return nodeWays, set.Union(wayRels, nodeRels), nil
}
