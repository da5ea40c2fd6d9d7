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

	"m4o.io/osmrecurse/set"
)

// RelationClosure returns source together with every relation reachable
// from it by following relation members downwards.
func (w *Walker) RelationClosure(ctx context.Context, source relations) (relations, error) {
	return w.fixpoint(ctx, source, func(current relations) (relations, error) {
		return w.relationMembers(ctx, current, nil, nil, nil)
	})
}

// RelationClosureUp returns source together with every relation from which
// a relation of source is reachable by following relation members.
func (w *Walker) RelationClosureUp(ctx context.Context, source relations) (relations, error) {
	return w.fixpoint(ctx, source, func(current relations) (relations, error) {
		return w.relationParents(ctx, current, nil, nil, nil)
	})
}

// fixpoint grows source by step until a pass adds nothing. The accumulated
// set never shrinks and the id space is finite, so the loop ends; a cycle
// stops contributing once it is wholly included.
func (w *Walker) fixpoint(ctx context.Context, source relations, step func(relations) (relations, error)) (relations, error) {
	current := source.Clone()
	count := current.Count()

	for {
		if err := w.check(); err != nil {
			return nil, err
		}

		found, err := step(current)
		if err != nil {
			return nil, err
		}

		next := set.Union(found, current)

		n := next.Count()
		if n == count {
			return next, nil
		}

		count, current = n, next
	}
}
