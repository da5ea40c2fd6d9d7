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

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/set"
)

// Constraint lets a statement restrict another query. The query first asks
// for candidates through GetNodes or GetWaysOrRelations, then narrows what
// it found with Filter and FilterTransitive.
type Constraint struct {
	stmt *Statement
}

// DeliversData reports whether the constraint can produce candidates.
func (c *Constraint) DeliversData() bool {
	return true
}

// GetNodes adds to into the node candidates of the modes yielding nodes,
// restricted to the partitions in ranges when those are given.
func (c *Constraint) GetNodes(
	ctx context.Context, rt *engine.Runtime, into *set.Set,
	ranges []index.Range, filter *Filter, ts model.Timestamp,
) error {
	src, ok := rt.Input(c.stmt.input)
	if !ok {
		return nil
	}

	w := NewWalker(rt, c.stmt)
	f := filter.predicate()

	if ts != model.Now {
		if c.stmt.mode != WayNode {
			return &LimitationError{Mode: c.stmt.mode, Timestamp: ts, Err: ErrHistoricUnsupported}
		}

		current, old, err := w.wayNodesAt(ctx, src.Ways, src.AtticWays, ts, ranges, f)
		if err != nil {
			return err
		}

		into.Nodes, into.AtticNodes = current, old

		return nil
	}

	role, ok, err := w.resolveRole(ctx, c.stmt.role)
	if err != nil || !ok {
		return err
	}

	var found nodes

	switch c.stmt.mode {
	case RelationNode:
		found, err = w.relationNodes(ctx, src.Relations, role, ranges, f)
	case WayNode:
		if role == nil {
			found, err = w.wayNodes(ctx, src.Ways, ranges, f)
		}
	case Down:
		found, err = c.downNodes(ctx, w, src.Relations, ranges, f)
	case DownRel:
		var closure relations

		closure, err = w.RelationClosure(ctx, src.Relations)
		if err == nil {
			found, err = c.downNodes(ctx, w, closure, ranges, f)
		}
	default:
		return nil
	}

	if err != nil {
		return err
	}

	into.Nodes = found

	return nil
}

// downNodes retrieves the node members of rels and the nodes of their way
// members.
func (c *Constraint) downNodes(
	ctx context.Context, w *Walker, rels relations, ranges []index.Range, f predicate.Predicate,
) (nodes, error) {
	relNodes, err := w.relationNodes(ctx, rels, nil, ranges, f)
	if err != nil {
		return nil, err
	}

	relWays, err := w.relationWays(ctx, rels, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	wayNodes, err := w.wayNodes(ctx, relWays, ranges, f)
	if err != nil {
		return nil, err
	}

	return set.Union(wayNodes, relNodes), nil
}

func (c *Constraint) produces(kind model.EntityType) bool {
	switch c.stmt.mode {
	case RelationWay, NodeWay, Down:
		return kind == model.WAY
	case RelationRelation, RelationBackwards, WayRelation, NodeRelation:
		return kind == model.RELATION
	case DownRel, Up, UpRel:
		return kind == model.WAY || kind == model.RELATION
	default:
		return false
	}
}

// GetWaysOrRelations adds to into the candidates of kind, model.WAY or
// model.RELATION, restricted to the partitions in ranges when those are
// given. It returns false when the mode yields no entity of that kind.
func (c *Constraint) GetWaysOrRelations(
	ctx context.Context, rt *engine.Runtime, into *set.Set,
	ranges []index.Range, kind model.EntityType, filter *Filter, ts model.Timestamp,
) (bool, error) {
	if !c.produces(kind) {
		return false, nil
	}

	src, ok := rt.Input(c.stmt.input)
	if !ok {
		return true, nil
	}

	if ts != model.Now {
		return false, &LimitationError{Mode: c.stmt.mode, Timestamp: ts, Err: ErrHistoricUnsupported}
	}

	w := NewWalker(rt, c.stmt)
	f := filter.predicate()

	role, ok, err := w.resolveRole(ctx, c.stmt.role)
	if err != nil || !ok {
		return true, err
	}

	if kind == model.WAY {
		found, err := c.ways(ctx, w, src, role, ranges, f)
		if err != nil {
			return true, err
		}

		into.Ways = found

		return true, nil
	}

	found, err := c.relations(ctx, w, src, role, ranges, f)
	if err != nil {
		return true, err
	}

	into.Relations = found

	return true, nil
}

func (c *Constraint) ways(
	ctx context.Context, w *Walker, src *set.Set, role *model.RoleID, ranges []index.Range, f predicate.Predicate,
) (ways, error) {
	switch c.stmt.mode {
	case RelationWay:
		return w.relationWays(ctx, src.Relations, role, ranges, f)
	case Down:
		return w.relationWays(ctx, src.Relations, nil, ranges, f)
	case DownRel:
		closure, err := w.RelationClosure(ctx, src.Relations)
		if err != nil {
			return nil, err
		}

		return w.relationWays(ctx, closure, nil, ranges, f)
	default:
		return w.nodeWays(ctx, src.Nodes, ranges, f)
	}
}

func (c *Constraint) relations(
	ctx context.Context, w *Walker, src *set.Set, role *model.RoleID, ranges []index.Range, f predicate.Predicate,
) (relations, error) {
	switch c.stmt.mode {
	case RelationRelation:
		return w.relationMembers(ctx, src.Relations, role, ranges, f)
	case RelationBackwards:
		return w.relationParents(ctx, src.Relations, role, ranges, f)
	case WayRelation:
		return parentRelations(ctx, w, src.Ways, model.WAY, role, ranges, f)
	case NodeRelation:
		return parentRelations(ctx, w, src.Nodes, model.NODE, role, ranges, f)
	case DownRel:
		closure, err := w.RelationClosure(ctx, src.Relations)
		if err != nil {
			return nil, err
		}

		return withinRanges(FilterItems(closure, f), ranges), nil
	case Up:
		_, rels, err := w.upward(ctx, src, ranges, f)

		return rels, err
	default:
		closure, err := c.upClosure(ctx, w, src)
		if err != nil {
			return nil, err
		}

		return withinRanges(FilterItems(closure, f), ranges), nil
	}
}

// upClosure returns every relation reachable upwards from the source.
func (c *Constraint) upClosure(ctx context.Context, w *Walker, src *set.Set) (relations, error) {
	_, rels, err := w.upward(ctx, src, nil, nil)
	if err != nil {
		return nil, err
	}

	return w.RelationClosureUp(ctx, set.Union(src.Relations, rels))
}

// Filter narrows into to the entities related to the source set by a single
// membership step. It clears into when the source set does not exist and
// leaves it alone for down and down-rel, which FilterTransitive handles.
func (c *Constraint) Filter(ctx context.Context, rt *engine.Runtime, into *set.Set, ts model.Timestamp) error {
	src, ok := rt.Input(c.stmt.input)
	if !ok {
		into.Clear()
		return nil
	}

	mode := c.stmt.mode
	if mode == Down || mode == DownRel {
		return nil
	}

	w := NewWalker(rt, c.stmt)

	role, ok, err := w.resolveRole(ctx, c.stmt.role)
	if err != nil {
		return err
	}

	if !ok {
		into.Clear()
		return nil
	}

	var nodeIDs []model.ID

	switch mode {
	case WayNode:
		if ts == model.Now {
			nodeIDs = WayNodeIDs(src.Ways, nil)
		} else {
			nodeIDs = WayNodeIDs(src.Ways, src.AtticWays)
		}

		if err := w.check(); err != nil {
			return err
		}
	case RelationNode:
		nodeIDs = MemberIDs(src.Relations, model.NODE, role)
	}

	into.Nodes = FilterItems(into.Nodes, predicate.IDs(nodeIDs))
	into.AtticNodes = FilterItems(into.AtticNodes, predicate.IDs(nodeIDs))

	var wayPred predicate.Predicate = predicate.IDs(nil)

	switch mode {
	case RelationWay:
		wayPred = predicate.IDs(MemberIDs(src.Relations, model.WAY, role))
	case NodeWay, Up, UpRel:
		wayPred = predicate.HasMember{Type: model.NODE, IDs: ChildrenIDs(src.Nodes)}
	}

	into.Ways = FilterItems(into.Ways, wayPred)
	into.AtticWays = FilterItems(into.AtticWays, wayPred)

	if mode == Up || mode == UpRel {
		return nil
	}

	var relPred predicate.Predicate = predicate.IDs(nil)

	switch mode {
	case RelationRelation:
		relPred = predicate.IDs(MemberIDs(src.Relations, model.RELATION, role))
	case NodeRelation:
		relPred = memberOf(model.NODE, ChildrenIDs(src.Nodes), role)
	case WayRelation:
		relPred = memberOf(model.WAY, ChildrenIDs(src.Ways), role)
	case RelationBackwards:
		relPred = memberOf(model.RELATION, ChildrenIDs(src.Relations), role)
	}

	into.Relations = FilterItems(into.Relations, relPred)

	return nil
}

// FilterTransitive narrows into for the modes spanning more than one
// membership step. Down and down-rel keep the ways and nodes reachable from
// the source relations, up and up-rel keep the relations reachable from
// the source. Other modes are left alone.
func (c *Constraint) FilterTransitive(ctx context.Context, rt *engine.Runtime, into *set.Set, _ model.Timestamp) error {
	src, ok := rt.Input(c.stmt.input)
	if !ok {
		return nil
	}

	w := NewWalker(rt, c.stmt)

	switch c.stmt.mode {
	case Down:
		if err := c.pruneDown(ctx, w, src.Relations, into); err != nil {
			return err
		}

		into.Relations = relations{}
	case DownRel:
		closure, err := w.RelationClosure(ctx, src.Relations)
		if err != nil {
			return err
		}

		if err := c.pruneDown(ctx, w, closure, into); err != nil {
			return err
		}

		into.Relations = FilterItems(into.Relations, predicate.IDs(ChildrenIDs(closure)))
	case Up:
		if into.Relations.Count() == 0 {
			return nil
		}

		nodeWays, err := w.nodeWays(ctx, src.Nodes, nil, nil)
		if err != nil {
			return err
		}

		into.Relations = FilterItems(into.Relations, predicate.Or{
			P: predicate.HasMember{Type: model.NODE, IDs: ChildrenIDs(src.Nodes)},
			Q: predicate.HasMember{Type: model.WAY, IDs: ChildrenIDs(set.Union(src.Ways, nodeWays))},
		})
	case UpRel:
		if into.Relations.Count() == 0 {
			return nil
		}

		closure, err := c.upClosure(ctx, w, src)
		if err != nil {
			return err
		}

		into.Relations = FilterItems(into.Relations, predicate.IDs(ChildrenIDs(closure)))
	}

	return nil
}

// pruneDown keeps the way members of rels and the nodes that are members of
// rels or of those ways.
func (c *Constraint) pruneDown(ctx context.Context, w *Walker, rels relations, into *set.Set) error {
	relWays, err := w.relationWays(ctx, rels, nil, nil, nil)
	if err != nil {
		return err
	}

	nodeIDs := sortedIDs(append(WayNodeIDs(relWays, nil), MemberIDs(rels, model.NODE, nil)...))

	if err := w.check(); err != nil {
		return err
	}

	into.Nodes = FilterItems(into.Nodes, predicate.IDs(nodeIDs))
	into.Ways = FilterItems(into.Ways, predicate.IDs(MemberIDs(rels, model.WAY, nil)))

	return nil
}
