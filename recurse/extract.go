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
	"slices"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/predicate"
	"m4o.io/osmrecurse/set"
)

// ChildrenIDs returns the ascending ids of the items of c.
func ChildrenIDs[T model.Item](c set.Collection[T]) []model.ID {
	return c.IDs()
}

// ParentIndices returns every partition that may hold an entity having an
// item of c as a member.
func ParentIndices[T model.Item](c set.Collection[T]) []index.Index {
	return index.CalcParents(c.Indices())
}

// WayNodeIDs returns the ascending ids of the nodes referenced by the ways
// and the superseded ways.
func WayNodeIDs(ways set.Collection[model.WaySkeleton], attic set.Collection[model.Attic[model.WaySkeleton]]) []model.ID {
	var ids []model.ID

	for _, items := range ways {
		for _, w := range items {
			ids = append(ids, w.NodeIDs...)
		}
	}

	for _, items := range attic {
		for _, w := range items {
			ids = append(ids, w.Value.NodeIDs...)
		}
	}

	return sortedIDs(ids)
}

// MemberIDs returns the ascending ids of the relation members of type t. A
// non-nil role only admits members carrying it.
func MemberIDs(rels set.Collection[model.RelationSkeleton], t model.EntityType, role *model.RoleID) []model.ID {
	var ids []model.ID

	for _, items := range rels {
		for _, r := range items {
			for _, m := range r.Members {
				if m.Type == t && (role == nil || m.Role == *role) {
					ids = append(ids, m.Ref)
				}
			}
		}
	}

	return sortedIDs(ids)
}

func sortedIDs(ids []model.ID) []model.ID {
	slices.Sort(ids)

	return slices.Compact(ids)
}

// memberOf matches ways and relations having one of ids as a member of type
// t, with the role when one is given.
func memberOf(t model.EntityType, ids []model.ID, role *model.RoleID) predicate.Predicate {
	if role == nil {
		return predicate.HasMember{Type: t, IDs: ids}
	}

	return predicate.HasMemberWithRole{Type: t, IDs: ids, Role: *role}
}
