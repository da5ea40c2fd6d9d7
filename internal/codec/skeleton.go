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

package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/model"
)

// Codec encodes items of one kind to protobuf messages and back.
type Codec[T model.Item] interface {
	Append(b []byte, item T) []byte
	Decode(b []byte) (T, error)
}

// Node fields
const (
	nodeID  protowire.Number = 1
	nodeLat protowire.Number = 2
	nodeLon protowire.Number = 3
)

// Way fields
const (
	wayID   protowire.Number = 1
	wayRefs protowire.Number = 2
)

// Relation fields
const (
	relID      protowire.Number = 1
	relMemIDs  protowire.Number = 2
	relTypes   protowire.Number = 3
	relRoleIDs protowire.Number = 4
)

// Attic fields
const (
	atticValue   protowire.Number = 1
	atticExpires protowire.Number = 2
)

// NodeCodec stores coordinates in ten millionths of degrees.
type NodeCodec struct{}

func (NodeCodec) Append(b []byte, n model.NodeSkeleton) []byte {
	b = protowire.AppendTag(b, nodeID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(n.ID)))
	b = protowire.AppendTag(b, nodeLat, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(n.Lat.E7())))
	b = protowire.AppendTag(b, nodeLon, protowire.VarintType)

	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(n.Lon.E7())))
}

func (NodeCodec) Decode(b []byte) (n model.NodeSkeleton, err error) {
	err = ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}

		x, m := protowire.ConsumeVarint(v)
		z := protowire.DecodeZigZag(x)

		switch num {
		case nodeID:
			n.ID = model.ID(z)
		case nodeLat:
			n.Lat = model.FromE7(int32(z))
		case nodeLon:
			n.Lon = model.FromE7(int32(z))
		}

		return m, nil
	})
	if err != nil {
		return model.NodeSkeleton{}, fmt.Errorf("unable to decode node: %w", err)
	}

	return n, nil
}

// WayCodec stores node references delta coded.
type WayCodec struct{}

func (WayCodec) Append(b []byte, w model.WaySkeleton) []byte {
	b = protowire.AppendTag(b, wayID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(w.ID)))

	return AppendPacked(b, wayRefs, calcDeltas(w.NodeIDs), zigzag)
}

func (WayCodec) Decode(b []byte) (w model.WaySkeleton, err error) {
	var refs []model.ID

	err = ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case wayID:
			x, m := protowire.ConsumeVarint(v)
			w.ID = model.ID(protowire.DecodeZigZag(x))

			return m, nil
		case wayRefs:
			return ConsumeVarints(num, typ, v, func(x uint64) {
				refs = append(refs, model.ID(protowire.DecodeZigZag(x)))
			}), nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return model.WaySkeleton{}, fmt.Errorf("unable to decode way: %w", err)
	}

	w.NodeIDs = sumDeltas(refs)

	return w, nil
}

// RelationCodec stores member ids delta coded, member types and roles as
// parallel lists.
type RelationCodec struct{}

func (RelationCodec) Append(b []byte, r model.RelationSkeleton) []byte {
	ids := make([]model.ID, len(r.Members))
	types := make([]model.EntityType, len(r.Members))
	roles := make([]model.RoleID, len(r.Members))

	for i, m := range r.Members {
		ids[i] = m.Ref
		types[i] = m.Type
		roles[i] = m.Role
	}

	b = protowire.AppendTag(b, relID, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(r.ID)))
	b = AppendPacked(b, relMemIDs, calcDeltas(ids), zigzag)
	b = AppendPacked(b, relTypes, types, func(t model.EntityType) uint64 { return uint64(t) })

	return AppendPacked(b, relRoleIDs, roles, func(r model.RoleID) uint64 { return uint64(r) })
}

func (RelationCodec) Decode(b []byte) (r model.RelationSkeleton, err error) {
	var (
		ids   []model.ID
		types []model.EntityType
		roles []model.RoleID
	)

	err = ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case relID:
			x, m := protowire.ConsumeVarint(v)
			r.ID = model.ID(protowire.DecodeZigZag(x))

			return m, nil
		case relMemIDs:
			return ConsumeVarints(num, typ, v, func(x uint64) {
				ids = append(ids, model.ID(protowire.DecodeZigZag(x)))
			}), nil
		case relTypes:
			return ConsumeVarints(num, typ, v, func(x uint64) {
				types = append(types, model.EntityType(x))
			}), nil
		case relRoleIDs:
			return ConsumeVarints(num, typ, v, func(x uint64) {
				roles = append(roles, model.RoleID(x))
			}), nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return model.RelationSkeleton{}, fmt.Errorf("unable to decode relation: %w", err)
	}

	if len(types) != len(ids) || len(roles) != len(ids) {
		return model.RelationSkeleton{}, fmt.Errorf("relation %d: %d members but %d types and %d roles",
			r.ID, len(ids), len(types), len(roles))
	}

	ids = sumDeltas(ids)

	if len(ids) > 0 {
		r.Members = make([]model.RelationMember, len(ids))
		for i := range ids {
			r.Members[i] = model.RelationMember{Ref: ids[i], Type: types[i], Role: roles[i]}
		}
	}

	return r, nil
}

// AtticCodec wraps the codec of the superseded skeleton.
type AtticCodec[T model.Item] struct {
	Inner Codec[T]
}

func (c AtticCodec[T]) Append(b []byte, a model.Attic[T]) []byte {
	b = protowire.AppendTag(b, atticValue, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Inner.Append(nil, a.Value))
	b = protowire.AppendTag(b, atticExpires, protowire.VarintType)

	return protowire.AppendVarint(b, uint64(a.Expires))
}

func (c AtticCodec[T]) Decode(b []byte) (a model.Attic[T], err error) {
	err = ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == atticValue && typ == protowire.BytesType:
			x, m := protowire.ConsumeBytes(v)
			if m < 0 {
				return m, nil
			}

			value, err := c.Inner.Decode(x)
			if err != nil {
				return 0, err
			}

			a.Value = value

			return m, nil
		case num == atticExpires && typ == protowire.VarintType:
			x, m := protowire.ConsumeVarint(v)
			a.Expires = model.Timestamp(x)

			return m, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return model.Attic[T]{}, fmt.Errorf("unable to decode attic entry: %w", err)
	}

	return a, nil
}

func zigzag(id model.ID) uint64 {
	return protowire.EncodeZigZag(int64(id))
}

// block fields
const blockItem protowire.Number = 1

// EncodeBlock encodes items as one message.
func EncodeBlock[T model.Item](c Codec[T], items []T) []byte {
	var b []byte
	for _, item := range items {
		b = protowire.AppendTag(b, blockItem, protowire.BytesType)
		b = protowire.AppendBytes(b, c.Append(nil, item))
	}

	return b
}

// DecodeBlock reverses EncodeBlock.
func DecodeBlock[T model.Item](c Codec[T], b []byte) ([]T, error) {
	var items []T

	err := ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != blockItem || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}

		x, m := protowire.ConsumeBytes(v)
		if m < 0 {
			return m, nil
		}

		item, err := c.Decode(x)
		if err != nil {
			return 0, err
		}

		items = append(items, item)

		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to decode block: %w", err)
	}

	return items, nil
}
