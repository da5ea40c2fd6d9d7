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
	"google.golang.org/protobuf/encoding/protowire"
	"golang.org/x/exp/constraints"
)

// ForEachField walks the fields of a protobuf message. visit is handed the
// bytes following the tag and returns how many of them the value used.
func ForEachField(b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}

		b = b[n:]

		m, err := visit(num, typ, b)
		if err != nil {
			return err
		}

		if m < 0 {
			return protowire.ParseError(m)
		}

		b = b[m:]
	}

	return nil
}

// ConsumeVarints reads one occurrence of a repeated varint field, packed or
// not, handing every value to visit.
func ConsumeVarints(num protowire.Number, typ protowire.Type, v []byte, visit func(uint64)) int {
	switch typ {
	case protowire.VarintType:
		x, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return n
		}

		visit(x)

		return n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(v)
		if n < 0 {
			return n
		}

		for len(packed) > 0 {
			x, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m
			}

			visit(x)
			packed = packed[m:]
		}

		return n
	default:
		return protowire.ConsumeFieldValue(num, typ, v)
	}
}

// AppendPacked appends values as a packed repeated varint field, encoding
// each with enc.
func AppendPacked[T any](b []byte, num protowire.Number, values []T, enc func(T) uint64) []byte {
	if len(values) == 0 {
		return b
	}

	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, enc(v))
	}

	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, packed)
}

// calcDeltas returns the differences between consecutive values.
func calcDeltas[T constraints.Integer](values []T) []T {
	prev := T(0)
	deltas := make([]T, len(values))

	for i, v := range values {
		deltas[i] = v - prev
		prev = v
	}

	return deltas
}

// sumDeltas reverses calcDeltas.
func sumDeltas[T constraints.Integer](deltas []T) []T {
	if len(deltas) == 0 {
		return nil
	}

	var acc T

	values := make([]T, len(deltas))
	for i, d := range deltas {
		acc += d
		values[i] = acc
	}

	return values
}
