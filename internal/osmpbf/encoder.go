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

package osmpbf

import (
	"fmt"
	"io"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
)

// Encoder writes OpenStreetMap PBF data to an output stream. Entities are
// buffered and written a block at a time.
type Encoder struct {
	w       io.Writer
	cfg     encoderOptions
	pending []model.Entity
}

// NewEncoder writes the file header to w and returns an encoder for the data
// blocks that follow it.
func NewEncoder(w io.Writer, hdr model.Header, opts ...EncoderOption) (*Encoder, error) {
	cfg := defaultEncoderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(hdr.RequiredFeatures) == 0 {
		hdr.RequiredFeatures = []string{model.FeatureSchema}
		if cfg.denseNodes {
			hdr.RequiredFeatures = append(hdr.RequiredFeatures, model.FeatureDenseNodes)
		}
	}

	if err := writeBlob(w, osmHeaderType, appendHeader(nil, hdr), cfg.compression); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return &Encoder{w: w, cfg: cfg}, nil
}

// Encode queues entities, writing every block that fills up.
func (e *Encoder) Encode(entities ...model.Entity) error {
	e.pending = append(e.pending, entities...)

	for len(e.pending) >= e.cfg.blockSize {
		if err := e.flush(e.cfg.blockSize); err != nil {
			return err
		}
	}

	return nil
}

// Close writes the entities still queued.
func (e *Encoder) Close() error {
	if len(e.pending) == 0 {
		return nil
	}

	return e.flush(len(e.pending))
}

func (e *Encoder) flush(n int) error {
	block := e.pending[:n]
	e.pending = slices.Clone(e.pending[n:])

	if err := writeBlob(e.w, osmDataType, e.appendBlock(nil, block), e.cfg.compression); err != nil {
		return fmt.Errorf("error writing block: %w", err)
	}

	return nil
}

// appendBlock encodes entities as one primitive block. Runs of entities of
// one kind share a primitive group.
func (e *Encoder) appendBlock(b []byte, entities []model.Entity) []byte {
	t := newStringTable(entities)

	var st []byte
	for _, s := range t.strings {
		st = appendString(st, stString, s)
	}

	b = protowire.AppendTag(b, pbStringTable, protowire.BytesType)
	b = protowire.AppendBytes(b, st)

	for start := 0; start < len(entities); {
		kind := entities[start].GetType()

		end := start + 1
		for end < len(entities) && entities[end].GetType() == kind {
			end++
		}

		b = protowire.AppendTag(b, pbGroup, protowire.BytesType)
		b = protowire.AppendBytes(b, e.appendGroup(nil, t, entities[start:end]))

		start = end
	}

	b = appendVarint(b, pbGranularity, defaultGranularity)

	return appendVarint(b, pbDateGranularity, defaultDateGranularity)
}

func (e *Encoder) appendGroup(b []byte, t *stringTable, entities []model.Entity) []byte {
	if entities[0].GetType() == model.NODE && e.cfg.denseNodes {
		nodes := make([]model.Node, len(entities))
		for i, entity := range entities {
			nodes[i] = entity.(model.Node)
		}

		b = protowire.AppendTag(b, pgDense, protowire.BytesType)

		return protowire.AppendBytes(b, appendDenseNodes(nil, t, nodes))
	}

	for _, entity := range entities {
		var (
			num  protowire.Number
			body []byte
		)

		switch v := entity.(type) {
		case model.Node:
			num, body = pgNodes, appendNode(nil, t, v)
		case model.Way:
			num, body = pgWays, appendWay(nil, t, v)
		case model.Relation:
			num, body = pgRelations, appendRelation(nil, t, v)
		}

		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}

	return b
}

func appendNode(b []byte, t *stringTable, n model.Node) []byte {
	b = appendSint64(b, elID, int64(n.ID))
	b = appendTags(b, t, n.Tags)
	b = appendInfo(b, t, n.Info)
	b = appendSint64(b, nodeLat, toCoordinate(n.Lat))

	return appendSint64(b, nodeLon, toCoordinate(n.Lon))
}

func appendDenseNodes(b []byte, t *stringTable, nodes []model.Node) []byte {
	ids := make([]int64, len(nodes))
	lats := make([]int64, len(nodes))
	lons := make([]int64, len(nodes))

	var keyVals []int32

	withInfo := false

	for i, n := range nodes {
		ids[i] = int64(n.ID)
		lats[i] = toCoordinate(n.Lat)
		lons[i] = toCoordinate(n.Lon)

		for _, k := range sortedKeys(n.Tags) {
			keyVals = append(keyVals, t.indexOf(k), t.indexOf(n.Tags[k]))
		}

		keyVals = append(keyVals, 0)

		withInfo = withInfo || n.Info != nil
	}

	b = codec.AppendPacked(b, denseID, deltas(ids), protowire.EncodeZigZag)

	if withInfo {
		b = protowire.AppendTag(b, denseInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, appendDenseInfo(nil, t, nodes))
	}

	b = codec.AppendPacked(b, denseLat, deltas(lats), protowire.EncodeZigZag)
	b = codec.AppendPacked(b, denseLon, deltas(lons), protowire.EncodeZigZag)

	if len(keyVals) > len(nodes) {
		b = codec.AppendPacked(b, denseKeysVals, keyVals, func(v int32) uint64 { return uint64(v) })
	}

	return b
}

func appendDenseInfo(b []byte, t *stringTable, nodes []model.Node) []byte {
	n := len(nodes)
	versions := make([]int32, n)
	timestamps := make([]int64, n)
	changesets := make([]int64, n)
	uids := make([]int64, n)
	userSids := make([]int64, n)
	visible := make([]bool, n)

	for i, node := range nodes {
		info := node.Info
		if info == nil {
			info = &model.Info{Visible: true}
		}

		versions[i] = info.Version
		timestamps[i] = fromTimestamp(info)
		changesets[i] = info.Changeset
		uids[i] = int64(info.UID)
		userSids[i] = int64(t.indexOf(info.User))
		visible[i] = info.Visible
	}

	b = codec.AppendPacked(b, infoVersion, versions, func(v int32) uint64 { return uint64(v) })
	b = codec.AppendPacked(b, infoTimestamp, deltas(timestamps), protowire.EncodeZigZag)
	b = codec.AppendPacked(b, infoChangeset, deltas(changesets), protowire.EncodeZigZag)
	b = codec.AppendPacked(b, infoUID, deltas(uids), protowire.EncodeZigZag)
	b = codec.AppendPacked(b, infoUserSid, deltas(userSids), protowire.EncodeZigZag)

	return codec.AppendPacked(b, infoVisible, visible, protowire.EncodeBool)
}

func appendWay(b []byte, t *stringTable, w model.Way) []byte {
	refs := make([]int64, len(w.NodeIDs))
	for i, id := range w.NodeIDs {
		refs[i] = int64(id)
	}

	b = appendVarint(b, elID, uint64(w.ID))
	b = appendTags(b, t, w.Tags)
	b = appendInfo(b, t, w.Info)

	return codec.AppendPacked(b, wayRefs, deltas(refs), protowire.EncodeZigZag)
}

func appendRelation(b []byte, t *stringTable, r model.Relation) []byte {
	roles := make([]int32, len(r.Members))
	memids := make([]int64, len(r.Members))
	types := make([]int32, len(r.Members))

	for i, m := range r.Members {
		roles[i] = t.indexOf(m.Role)
		memids[i] = int64(m.ID)
		types[i] = int32(m.Type)
	}

	b = appendVarint(b, elID, uint64(r.ID))
	b = appendTags(b, t, r.Tags)
	b = appendInfo(b, t, r.Info)
	b = codec.AppendPacked(b, relRoles, roles, func(v int32) uint64 { return uint64(v) })
	b = codec.AppendPacked(b, relIDs, deltas(memids), protowire.EncodeZigZag)

	return codec.AppendPacked(b, relTypes, types, func(v int32) uint64 { return uint64(v) })
}

func appendTags(b []byte, t *stringTable, tags map[string]string) []byte {
	keys := sortedKeys(tags)
	vals := make([]string, len(keys))

	for i, k := range keys {
		vals[i] = tags[k]
	}

	index := func(s string) uint64 { return uint64(t.indexOf(s)) }

	b = codec.AppendPacked(b, elKeys, keys, index)

	return codec.AppendPacked(b, elVals, vals, index)
}

func appendInfo(b []byte, t *stringTable, info *model.Info) []byte {
	if info == nil {
		return b
	}

	var ib []byte
	ib = appendVarint(ib, infoVersion, uint64(info.Version))
	ib = appendVarint(ib, infoTimestamp, uint64(fromTimestamp(info)))
	ib = appendVarint(ib, infoChangeset, uint64(info.Changeset))
	ib = appendVarint(ib, infoUID, uint64(info.UID))
	ib = appendVarint(ib, infoUserSid, uint64(t.indexOf(info.User)))
	ib = appendVarint(ib, infoVisible, protowire.EncodeBool(info.Visible))

	b = protowire.AppendTag(b, elInfo, protowire.BytesType)

	return protowire.AppendBytes(b, ib)
}

// fromTimestamp converts the info timestamp to units of the date granularity.
func fromTimestamp(info *model.Info) int64 {
	if info.Timestamp.IsZero() {
		return 0
	}

	return info.Timestamp.UnixMilli() / defaultDateGranularity
}

// toCoordinate converts degrees to units of the granularity.
func toCoordinate(d model.Degrees) int64 {
	return int64(math.Round(float64(d) * 1e9 / defaultGranularity))
}

func deltas(values []int64) []int64 {
	var prev int64

	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = v - prev
		prev = v
	}

	return out
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// stringTable is the string table of one block. Index 0 is reserved for the
// empty string, which terminates the tags of a dense node.
type stringTable struct {
	strings []string
	index   map[string]int32
}

func newStringTable(entities []model.Entity) *stringTable {
	seen := map[string]struct{}{"": {}}

	add := func(s string) { seen[s] = struct{}{} }

	for _, e := range entities {
		for k, v := range e.GetTags() {
			add(k)
			add(v)
		}

		if info := e.GetInfo(); info != nil {
			add(info.User)
		}

		if r, ok := e.(model.Relation); ok {
			for _, m := range r.Members {
				add(m.Role)
			}
		}
	}

	strings := make([]string, 0, len(seen))
	for s := range seen {
		strings = append(strings, s)
	}

	// the empty string sorts first
	slices.Sort(strings)

	index := make(map[string]int32, len(strings))
	for i, s := range strings {
		index[s] = int32(i)
	}

	return &stringTable{strings: strings, index: index}
}

func (t *stringTable) indexOf(s string) int32 {
	return t.index[s]
}
