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

package model

import (
	"math"
	"time"
)

// RoleID is the interned form of a relation member role.
type RoleID uint32

// NoRole is returned by role lookups that found nothing.
const NoRole RoleID = math.MaxUint32

// Timestamp is a point in time in whole seconds since the Unix epoch.
type Timestamp uint64

// Now denotes the current epoch.
const Now Timestamp = math.MaxUint64

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	if t.Unix() < 0 {
		return 0
	}

	return Timestamp(t.Unix())
}

// Time converts the timestamp back to a UTC time. Now has no meaningful
// time and converts to the zero time.
func (t Timestamp) Time() time.Time {
	if t == Now {
		return time.Time{}
	}

	return time.Unix(int64(t), 0).UTC()
}

func (t Timestamp) String() string {
	if t == Now {
		return "now"
	}

	return t.Time().Format(time.RFC3339)
}

// Item is anything held in a keyed collection. Items order by id first and
// timestamp second.
type Item interface {
	GetID() ID
	GetTimestamp() Timestamp
}

// Less orders items by id, then by timestamp.
func Less[T Item](a, b T) bool {
	if a.GetID() != b.GetID() {
		return a.GetID() < b.GetID()
	}

	return a.GetTimestamp() < b.GetTimestamp()
}

// NodeSkeleton is a node without tags or metadata.
type NodeSkeleton struct {
	ID  ID
	Lat Degrees
	Lon Degrees
}

func (n NodeSkeleton) GetID() ID { return n.ID }

func (n NodeSkeleton) GetTimestamp() Timestamp { return Now }

// WaySkeleton is a way reduced to its ordered node references.
type WaySkeleton struct {
	ID      ID
	NodeIDs []ID
}

func (w WaySkeleton) GetID() ID { return w.ID }

func (w WaySkeleton) GetTimestamp() Timestamp { return Now }

// RelationMember references a member entity with an interned role.
type RelationMember struct {
	Ref  ID
	Type EntityType
	Role RoleID
}

// RelationSkeleton is a relation reduced to its ordered member references.
type RelationSkeleton struct {
	ID      ID
	Members []RelationMember
}

func (r RelationSkeleton) GetID() ID { return r.ID }

func (r RelationSkeleton) GetTimestamp() Timestamp { return Now }

// Attic is a superseded version of an entity. Expires is the moment the next
// version replaced it; the version was valid strictly before that moment.
type Attic[T Item] struct {
	Value   T
	Expires Timestamp
}

func (a Attic[T]) GetID() ID { return a.Value.GetID() }

func (a Attic[T]) GetTimestamp() Timestamp { return a.Expires }

// Unwrap returns the skeleton of the superseded version.
func (a Attic[T]) Unwrap() Item { return a.Value }
