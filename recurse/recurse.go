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

// Package recurse derives sets along the membership graph of nodes, ways and
// relations: the members of relations and ways, the parents of nodes and
// ways, and the transitive closures of relations in both directions.
package recurse

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/resource"
	"m4o.io/osmrecurse/set"
)

var (
	ErrHistoricUnsupported = errors.New("historical timestamp not supported")
	ErrRoleUnsupported     = errors.New("role restriction not supported")
)

// LimitationError reports a mode that cannot run as of a timestamp.
type LimitationError struct {
	Mode      Mode
	Timestamp model.Timestamp
	Err       error
}

func (e *LimitationError) Error() string {
	return fmt.Sprintf("recurse %s as of %s: %v", e.Mode, e.Timestamp, e.Err)
}

func (e *LimitationError) Unwrap() error {
	return e.Err
}

// Filter restricts the output to the listed ids, or with Invert excludes
// them. An empty id list leaves the output unrestricted.
type Filter struct {
	IDs    []model.ID
	Invert bool
}

func (f *Filter) predicate() predicate.Predicate {
	if f == nil || len(f.IDs) == 0 {
		return nil
	}

	ids := predicate.IDs(sortedIDs(slices.Clone(f.IDs)))
	if f.Invert {
		return predicate.Not{P: ids}
	}

	return ids
}

// Options tune a traversal.
type Options struct {
	// Role restricts the traversal to members with that role.
	Role *string

	// Filter restricts the entities of the result by id.
	Filter *Filter

	// Timestamp runs the traversal as of that moment. Zero uses the
	// timestamp of the runtime.
	Timestamp model.Timestamp
}

// Walker runs traversals for one statement of a query.
type Walker struct {
	rt  *engine.Runtime
	loc resource.Location
}

// NewWalker returns a walker reading through rt and charging loc.
func NewWalker(rt *engine.Runtime, loc resource.Location) *Walker {
	return &Walker{rt: rt, loc: loc}
}

func (w *Walker) check() error {
	return w.rt.Checker.Check(w.loc)
}

// resolveRole interns role. It returns false when the role was never stored,
// in which case nothing can match.
func (w *Walker) resolveRole(ctx context.Context, role *string) (*model.RoleID, bool, error) {
	if role == nil {
		return nil, true, nil
	}

	id, err := w.rt.Store.RoleID(ctx, *role)
	if err != nil {
		return nil, false, fmt.Errorf("resolving role %q: %w", *role, err)
	}

	if id == model.NoRole {
		return nil, false, nil
	}

	return &id, true, nil
}

// Recurse derives a set from source. A nil source, or a role no member
// carries, yields an empty set.
func (w *Walker) Recurse(ctx context.Context, mode Mode, source *set.Set, opts Options) (*set.Set, error) {
	into := set.New()
	if source == nil {
		return into, nil
	}

	ts := opts.Timestamp
	if ts == 0 {
		ts = w.rt.Timestamp
	}

	if ts != model.Now && mode != WayNode {
		return nil, &LimitationError{Mode: mode, Timestamp: ts, Err: ErrHistoricUnsupported}
	}

	if opts.Role != nil && !mode.SupportsRole() {
		return nil, fmt.Errorf("recurse %s: %w", mode, ErrRoleUnsupported)
	}

	role, ok, err := w.resolveRole(ctx, opts.Role)
	if err != nil || !ok {
		return into, err
	}

	filter := opts.Filter.predicate()

	switch mode {
	case RelationRelation:
		into.Relations, err = w.relationMembers(ctx, source.Relations, role, nil, filter)
	case RelationBackwards:
		into.Relations, err = w.relationParents(ctx, source.Relations, role, nil, filter)
	case RelationWay:
		into.Ways, err = w.relationWays(ctx, source.Relations, role, nil, filter)
	case RelationNode:
		into.Nodes, err = w.relationNodes(ctx, source.Relations, role, nil, filter)
	case WayNode:
		if ts == model.Now {
			into.Nodes, err = w.wayNodes(ctx, source.Ways, nil, filter)
		} else {
			into.Nodes, into.AtticNodes, err = w.wayNodesAt(ctx, source.Ways, source.AtticWays, ts, nil, filter)
		}
	case WayRelation:
		into.Relations, err = parentRelations(ctx, w, source.Ways, model.WAY, role, nil, filter)
	case NodeRelation:
		into.Relations, err = parentRelations(ctx, w, source.Nodes, model.NODE, role, nil, filter)
	case NodeWay:
		into.Ways, err = w.nodeWays(ctx, source.Nodes, nil, filter)
	case Down:
		err = w.down(ctx, source.Relations, source.Ways, into, filter)
	case DownRel:
		var closure relations

		closure, err = w.RelationClosure(ctx, source.Relations)
		if err == nil {
			into.Relations = FilterItems(closure, filter)
			err = w.down(ctx, closure, source.Ways, into, filter)
		}
	case Up:
		var nodeWays ways

		nodeWays, into.Relations, err = w.upward(ctx, source, nil, filter)
		into.Ways = FilterItems(nodeWays, filter)
	case UpRel:
		var (
			nodeWays ways
			rels     relations
		)

		nodeWays, rels, err = w.upward(ctx, source, nil, nil)
		if err == nil {
			rels, err = w.RelationClosureUp(ctx, set.Union(source.Relations, rels))
		}

		into.Ways = FilterItems(nodeWays, filter)
		into.Relations = FilterItems(rels, filter)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	if err != nil {
		return nil, err
	}

	return into, nil
}

// down fills into with the way and node members of rels and the nodes of
// those ways and of the source ways.
func (w *Walker) down(ctx context.Context, rels relations, sourceWays ways, into *set.Set, filter predicate.Predicate) error {
	relNodes, err := w.relationNodes(ctx, rels, nil, nil, filter)
	if err != nil {
		return err
	}

	relWays, err := w.relationWays(ctx, rels, nil, nil, nil)
	if err != nil {
		return err
	}

	wayNodes, err := w.wayNodes(ctx, set.Union(sourceWays, relWays), nil, filter)
	if err != nil {
		return err
	}

	into.Ways = FilterItems(relWays, filter)
	into.Nodes = set.Union(wayNodes, relNodes)

	return nil
}
