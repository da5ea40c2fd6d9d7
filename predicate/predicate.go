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

// Package predicate is the small algebra used to select items during
// retrieval and in-memory narrowing.
package predicate

import (
	"fmt"
	"slices"
	"strings"

	"m4o.io/osmrecurse/model"
)

// Predicate is one of True, IDs, Not, And, Or, HasMember and
// HasMemberWithRole.
type Predicate interface {
	isPredicate() // prevents extensions

	fmt.Stringer
}

// True matches every item.
type True struct{}

// IDs matches items whose id is in the ascending id list.
type IDs []model.ID

// Not inverts P.
type Not struct {
	P Predicate
}

// And matches when both P and Q match. Q is not evaluated when P fails.
type And struct {
	P, Q Predicate
}

// Or matches when P or Q matches. Q is not evaluated when P matches.
type Or struct {
	P, Q Predicate
}

// HasMember matches ways and relations with at least one member of Type
// whose id is in the ascending id list. The members of a way are its nodes.
type HasMember struct {
	Type model.EntityType
	IDs  []model.ID
}

// HasMemberWithRole is HasMember restricted to members carrying Role.
type HasMemberWithRole struct {
	Type model.EntityType
	IDs  []model.ID
	Role model.RoleID
}

func (True) isPredicate()              {}
func (IDs) isPredicate()               {}
func (Not) isPredicate()               {}
func (And) isPredicate()               {}
func (Or) isPredicate()                {}
func (HasMember) isPredicate()         {}
func (HasMemberWithRole) isPredicate() {}

// Conjoin returns And{p, q}, dropping True operands.
func Conjoin(p, q Predicate) Predicate {
	switch {
	case p == nil || p == Predicate(True{}):
		return q
	case q == nil || q == Predicate(True{}):
		return p
	default:
		return And{P: p, Q: q}
	}
}

// Eval reports whether item satisfies p. Superseded versions are judged by
// their skeleton.
func Eval(p Predicate, item model.Item) bool {
	if u, ok := item.(interface{ Unwrap() model.Item }); ok {
		item = u.Unwrap()
	}

	switch p := p.(type) {
	case True:
		return true
	case IDs:
		_, found := slices.BinarySearch(p, item.GetID())
		return found
	case Not:
		return !Eval(p.P, item)
	case And:
		return Eval(p.P, item) && Eval(p.Q, item)
	case Or:
		return Eval(p.P, item) || Eval(p.Q, item)
	case HasMember:
		return hasMember(item, p.Type, p.IDs, nil)
	case HasMemberWithRole:
		return hasMember(item, p.Type, p.IDs, &p.Role)
	default:
		panic(fmt.Sprintf("unknown predicate %T", p))
	}
}

func hasMember(item model.Item, t model.EntityType, ids []model.ID, role *model.RoleID) bool {
	switch e := item.(type) {
	case model.WaySkeleton:
		if t != model.NODE || role != nil {
			return false
		}

		for _, ref := range e.NodeIDs {
			if _, found := slices.BinarySearch(ids, ref); found {
				return true
			}
		}
	case model.RelationSkeleton:
		for _, m := range e.Members {
			if m.Type != t || (role != nil && m.Role != *role) {
				continue
			}

			if _, found := slices.BinarySearch(ids, m.Ref); found {
				return true
			}
		}
	}

	return false
}

func (True) String() string { return "true" }

func (p IDs) String() string { return fmt.Sprintf("id in %s", formatIDs(p)) }

func (p Not) String() string { return fmt.Sprintf("not (%s)", p.P) }

func (p And) String() string { return fmt.Sprintf("(%s) and (%s)", p.P, p.Q) }

func (p Or) String() string { return fmt.Sprintf("(%s) or (%s)", p.P, p.Q) }

func (p HasMember) String() string {
	return fmt.Sprintf("has %s member in %s", p.Type, formatIDs(p.IDs))
}

func (p HasMemberWithRole) String() string {
	return fmt.Sprintf("has %s member in %s with role %d", p.Type, formatIDs(p.IDs), p.Role)
}

func formatIDs(ids []model.ID) string {
	const shown = 8

	parts := make([]string, 0, min(len(ids), shown)+1)
	for i, id := range ids {
		if i == shown {
			parts = append(parts, fmt.Sprintf("... %d more", len(ids)-shown))
			break
		}

		parts = append(parts, fmt.Sprint(int64(id)))
	}

	return "[" + strings.Join(parts, " ") + "]"
}
