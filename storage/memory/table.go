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

package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

// table keeps one packed block per partition. Blocks are replaced, never
// modified, so a scan may keep reading a block after releasing the lock.
type table[T model.Item] struct {
	mu          *sync.RWMutex
	codec       codec.Codec[T]
	compression codec.Compression

	partitions map[index.Index][]byte
	located    map[model.ID][]index.Index
	rows       int64
}

func newTable[T model.Item](mu *sync.RWMutex, c codec.Codec[T], compression codec.Compression) *table[T] {
	return &table[T]{
		mu:          mu,
		codec:       c,
		compression: compression,
		partitions:  make(map[index.Index][]byte),
		located:     make(map[model.ID][]index.Index),
	}
}

func (t *table[T]) Scan(ctx context.Context, sel storage.Selection, visit storage.Visitor[T]) error {
	t.mu.RLock()

	var indices []index.Index

	if sel.IsEverything() || len(sel.RangeList()) > 0 {
		for idx := range t.partitions {
			if sel.Contains(idx) {
				indices = append(indices, idx)
			}
		}

		slices.Sort(indices)
	} else {
		for _, idx := range sel.Indices() {
			if _, ok := t.partitions[idx]; ok && sel.Contains(idx) {
				indices = append(indices, idx)
			}
		}
	}

	blocks := make([][]byte, len(indices))
	for i, idx := range indices {
		blocks[i] = t.partitions[idx]
	}

	t.mu.RUnlock()

	for i, idx := range indices {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, err := t.unpack(blocks[i])
		if err != nil {
			return fmt.Errorf("partition %v: %w", idx, err)
		}

		for _, item := range items {
			if err := visit(idx, item); err != nil {
				return err
			}
		}
	}

	return nil
}

// rowKey identifies a row. Current items all carry model.Now, so a current
// table holds one row per id and an attic table one per id and expiry.
type rowKey struct {
	id model.ID
	ts model.Timestamp
}

func keyOf[T model.Item](item T) rowKey {
	return rowKey{item.GetID(), item.GetTimestamp()}
}

// write must be called with the lock held. A written row replaces the row
// with the same key wherever it is stored, and the last of duplicates within
// entries wins.
func (t *table[T]) write(entries []storage.Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}

	added := make(set.Collection[T])
	seen := make(map[rowKey]struct{}, len(entries))

	for _, e := range slices.Backward(entries) {
		if _, ok := seen[keyOf(e.Item)]; ok {
			continue
		}

		seen[keyOf(e.Item)] = struct{}{}
		added.Add(e.Index, e.Item)
	}

	added.Sort()

	if err := t.evict(added); err != nil {
		return err
	}

	for idx, items := range added {
		existing, err := t.unpack(t.partitions[idx])
		if err != nil {
			return fmt.Errorf("partition %v: %w", idx, err)
		}

		merged := set.Union(set.Collection[T]{idx: items}, set.Collection[T]{idx: existing})[idx]

		if err := t.pack(idx, merged); err != nil {
			return err
		}

		t.rows += int64(len(merged) - len(existing))

		for _, item := range items {
			if !slices.Contains(t.located[item.GetID()], idx) {
				t.located[item.GetID()] = append(t.located[item.GetID()], idx)
			}
		}
	}

	return nil
}

// evict removes the rows that the added items replace.
func (t *table[T]) evict(added set.Collection[T]) error {
	replaced := make(map[rowKey]struct{})
	candidates := make(map[index.Index]struct{})

	for _, items := range added {
		for _, item := range items {
			replaced[keyOf(item)] = struct{}{}

			for _, idx := range t.located[item.GetID()] {
				candidates[idx] = struct{}{}
			}
		}
	}

	for idx := range candidates {
		existing, err := t.unpack(t.partitions[idx])
		if err != nil {
			return fmt.Errorf("partition %v: %w", idx, err)
		}

		before := len(existing)
		gone := make(map[model.ID]struct{})

		kept := slices.DeleteFunc(existing, func(item T) bool {
			_, ok := replaced[keyOf(item)]
			if ok {
				gone[item.GetID()] = struct{}{}
			}

			return ok
		})

		if len(kept) == before {
			continue
		}

		t.rows -= int64(before - len(kept))

		if err := t.pack(idx, kept); err != nil {
			return err
		}

		for _, item := range kept {
			delete(gone, item.GetID())
		}

		for id := range gone {
			t.unlocate(id, idx)
		}
	}

	return nil
}

// unlocate forgets that id has rows in partition idx.
func (t *table[T]) unlocate(id model.ID, idx index.Index) {
	located := slices.DeleteFunc(t.located[id], func(i index.Index) bool { return i == idx })
	if len(located) == 0 {
		delete(t.located, id)
		return
	}

	t.located[id] = located
}

func (t *table[T]) pack(idx index.Index, items []T) error {
	if len(items) == 0 {
		delete(t.partitions, idx)
		return nil
	}

	packed, err := codec.Pack(codec.EncodeBlock(t.codec, items), t.compression)
	if err != nil {
		return fmt.Errorf("partition %v: %w", idx, err)
	}

	t.partitions[idx] = packed

	return nil
}

func (t *table[T]) unpack(block []byte) ([]T, error) {
	if block == nil {
		return nil, nil
	}

	raw, err := codec.Unpack(block)
	if err != nil {
		return nil, err
	}

	return codec.DecodeBlock(t.codec, raw)
}
