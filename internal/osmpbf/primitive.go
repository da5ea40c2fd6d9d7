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
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
)

// primitive block fields
const (
	pbStringTable     protowire.Number = 1
	pbGroup           protowire.Number = 2
	pbGranularity     protowire.Number = 17
	pbDateGranularity protowire.Number = 18
	pbLatOffset       protowire.Number = 19
	pbLonOffset       protowire.Number = 20

	stString protowire.Number = 1
)

// primitive group fields
const (
	pgNodes     protowire.Number = 1
	pgDense     protowire.Number = 2
	pgWays      protowire.Number = 3
	pgRelations protowire.Number = 4
)

// fields shared by nodes, ways and relations
const (
	elID   protowire.Number = 1
	elKeys protowire.Number = 2
	elVals protowire.Number = 3
	elInfo protowire.Number = 4
)

// element specific fields
const (
	nodeLat protowire.Number = 8
	nodeLon protowire.Number = 9

	denseID       protowire.Number = 1
	denseInfo     protowire.Number = 5
	denseLat      protowire.Number = 8
	denseLon      protowire.Number = 9
	denseKeysVals protowire.Number = 10

	wayRefs protowire.Number = 8

	relRoles protowire.Number = 8
	relIDs   protowire.Number = 9
	relTypes protowire.Number = 10
)

// info and dense info fields
const (
	infoVersion   protowire.Number = 1
	infoTimestamp protowire.Number = 2
	infoChangeset protowire.Number = 3
	infoUID       protowire.Number = 4
	infoUserSid   protowire.Number = 5
	infoVisible   protowire.Number = 6
)

const (
	defaultGranularity     = 100
	defaultDateGranularity = 1000
)

func parsePrimitiveBlock(buf []byte) ([]model.Entity, error) {
	c := &blockContext{
		granularity:     defaultGranularity,
		dateGranularity: defaultDateGranularity,
	}

	var groups [][]byte

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case pbStringTable:
			var b []byte

			n, err := consumeBytes(typ, v, &b)
			if err != nil || n < 0 {
				return n, err
			}

			c.strings, err = parseStringTable(b)

			return n, err
		case pbGroup:
			var b []byte

			n, err := consumeBytes(typ, v, &b)
			groups = append(groups, b)

			return n, err
		case pbGranularity:
			return consumeInt(typ, v, &c.granularity)
		case pbDateGranularity:
			return consumeInt(typ, v, &c.dateGranularity)
		case pbLatOffset:
			return consumeInt(typ, v, &c.latOffset)
		case pbLonOffset:
			return consumeInt(typ, v, &c.lonOffset)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal primitive block: %w", err)
	}

	entities := make([]model.Entity, 0)

	for _, g := range groups {
		if entities, err = c.decodeGroup(entities, g); err != nil {
			return nil, fmt.Errorf("unable to unmarshal primitive group: %w", err)
		}
	}

	return entities, nil
}

func parseStringTable(buf []byte) ([]string, error) {
	var strings []string

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != stString {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}

		var s string

		n, err := consumeString(typ, v, &s)
		strings = append(strings, s)

		return n, err
	})

	return strings, err
}

type blockContext struct {
	strings         []string
	granularity     int32
	latOffset       int64
	lonOffset       int64
	dateGranularity int32
}

func (c *blockContext) decodeGroup(entities []model.Entity, buf []byte) ([]model.Entity, error) {
	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var decode func([]byte) ([]model.Entity, error)

		switch num {
		case pgNodes:
			decode = c.decodeNode
		case pgDense:
			decode = c.decodeDenseNodes
		case pgWays:
			decode = c.decodeWay
		case pgRelations:
			decode = c.decodeRelation
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}

		var b []byte

		n, err := consumeBytes(typ, v, &b)
		if err != nil || n < 0 {
			return n, err
		}

		decoded, err := decode(b)
		entities = append(entities, decoded...)

		return n, err
	})

	return entities, err
}

// element collects the fields shared by plain nodes, ways and relations.
type element struct {
	id   int64
	keys []uint32
	vals []uint32
	info []byte
}

func (e *element) consume(num protowire.Number, typ protowire.Type, v []byte) (int, bool, error) {
	var (
		n   int
		err error
	)

	switch num {
	case elKeys:
		n, err = consumePacked(num, typ, v, &e.keys, unsigned32)
	case elVals:
		n, err = consumePacked(num, typ, v, &e.vals, unsigned32)
	case elInfo:
		n, err = consumeBytes(typ, v, &e.info)
	default:
		return 0, false, nil
	}

	return n, true, err
}

func (c *blockContext) decodeNode(buf []byte) ([]model.Entity, error) {
	var (
		e        element
		lat, lon int64
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if n, ok, err := e.consume(num, typ, v); ok {
			return n, err
		}

		switch num {
		case elID:
			return consumeSint64(typ, v, &e.id)
		case nodeLat:
			return consumeSint64(typ, v, &lat)
		case nodeLon:
			return consumeSint64(typ, v, &lon)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	tags, err := c.decodeTags(e.keys, e.vals)
	if err != nil {
		return nil, err
	}

	info, err := c.decodeInfo(e.info)
	if err != nil {
		return nil, err
	}

	return []model.Entity{model.Node{
		ID:   model.ID(e.id),
		Tags: tags,
		Info: info,
		Lat:  model.ToDegrees(c.latOffset, c.granularity, lat),
		Lon:  model.ToDegrees(c.lonOffset, c.granularity, lon),
	}}, nil
}

func (c *blockContext) decodeDenseNodes(buf []byte) ([]model.Entity, error) {
	var (
		ids, lats, lons []int64
		keyVals         []int32
		dense           []byte
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case denseID:
			return consumePacked(num, typ, v, &ids, zigzag64)
		case denseInfo:
			return consumeBytes(typ, v, &dense)
		case denseLat:
			return consumePacked(num, typ, v, &lats, zigzag64)
		case denseLon:
			return consumePacked(num, typ, v, &lons, zigzag64)
		case denseKeysVals:
			return consumePacked(num, typ, v, &keyVals, plain32)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	if len(lats) != len(ids) || len(lons) != len(ids) {
		return nil, fmt.Errorf("dense nodes: %d ids but %d lats and %d lons", len(ids), len(lats), len(lons))
	}

	tic := c.newTagsContext(keyVals)

	dic, err := c.newDenseInfoContext(dense, len(ids))
	if err != nil {
		return nil, err
	}

	entities := make([]model.Entity, len(ids))

	var id, lat, lon int64
	for i := range ids {
		id += ids[i]
		lat += lats[i]
		lon += lons[i]

		tags, err := tic.decodeTags()
		if err != nil {
			return nil, err
		}

		entities[i] = model.Node{
			ID:   model.ID(id),
			Tags: tags,
			Info: dic.decodeInfo(i),
			Lat:  model.ToDegrees(c.latOffset, c.granularity, lat),
			Lon:  model.ToDegrees(c.lonOffset, c.granularity, lon),
		}
	}

	return entities, nil
}

func (c *blockContext) decodeWay(buf []byte) ([]model.Entity, error) {
	var (
		e    element
		refs []int64
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if n, ok, err := e.consume(num, typ, v); ok {
			return n, err
		}

		switch num {
		case elID:
			return consumeInt(typ, v, &e.id)
		case wayRefs:
			return consumePacked(num, typ, v, &refs, zigzag64)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	tags, err := c.decodeTags(e.keys, e.vals)
	if err != nil {
		return nil, err
	}

	info, err := c.decodeInfo(e.info)
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]model.ID, len(refs))

	var nodeID int64

	for j, delta := range refs {
		nodeID += delta
		nodeIDs[j] = model.ID(nodeID)
	}

	return []model.Entity{model.Way{
		ID:      model.ID(e.id),
		Tags:    tags,
		Info:    info,
		NodeIDs: nodeIDs,
	}}, nil
}

func (c *blockContext) decodeRelation(buf []byte) ([]model.Entity, error) {
	var (
		e      element
		roles  []int32
		memids []int64
		types  []int32
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if n, ok, err := e.consume(num, typ, v); ok {
			return n, err
		}

		switch num {
		case elID:
			return consumeInt(typ, v, &e.id)
		case relRoles:
			return consumePacked(num, typ, v, &roles, plain32)
		case relIDs:
			return consumePacked(num, typ, v, &memids, zigzag64)
		case relTypes:
			return consumePacked(num, typ, v, &types, plain32)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	tags, err := c.decodeTags(e.keys, e.vals)
	if err != nil {
		return nil, err
	}

	info, err := c.decodeInfo(e.info)
	if err != nil {
		return nil, err
	}

	members, err := c.decodeMembers(roles, memids, types)
	if err != nil {
		return nil, fmt.Errorf("relation %d: %w", e.id, err)
	}

	return []model.Entity{model.Relation{
		ID:      model.ID(e.id),
		Tags:    tags,
		Info:    info,
		Members: members,
	}}, nil
}

func (c *blockContext) decodeMembers(roles []int32, memids []int64, types []int32) ([]model.Member, error) {
	if len(roles) != len(memids) || len(types) != len(memids) {
		return nil, fmt.Errorf("%d members but %d roles and %d types", len(memids), len(roles), len(types))
	}

	members := make([]model.Member, len(memids))

	var memid int64

	for i := range memids {
		memid += memids[i]

		role, err := c.lookup(int64(roles[i]))
		if err != nil {
			return nil, err
		}

		t := model.EntityType(types[i])
		if t < model.NODE || t > model.RELATION {
			return nil, fmt.Errorf("unrecognized member type %d", types[i])
		}

		members[i] = model.Member{ID: model.ID(memid), Type: t, Role: role}
	}

	return members, nil
}

func (c *blockContext) lookup(sid int64) (string, error) {
	if sid < 0 || sid >= int64(len(c.strings)) {
		return "", fmt.Errorf("string id %d outside of a table of %d", sid, len(c.strings))
	}

	return c.strings[sid], nil
}

func (c *blockContext) decodeTags(keyIDs, valIDs []uint32) (map[string]string, error) {
	if len(keyIDs) != len(valIDs) {
		return nil, fmt.Errorf("%d tag keys but %d values", len(keyIDs), len(valIDs))
	}

	tags := make(map[string]string, len(keyIDs))

	for i, keyID := range keyIDs {
		k, err := c.lookup(int64(keyID))
		if err != nil {
			return nil, err
		}

		v, err := c.lookup(int64(valIDs[i]))
		if err != nil {
			return nil, err
		}

		tags[k] = v
	}

	return tags, nil
}

func (c *blockContext) decodeInfo(buf []byte) (*model.Info, error) {
	i := &model.Info{Visible: true}

	if buf == nil {
		return i, nil
	}

	var (
		timestamp int64
		userSid   uint32
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case infoVersion:
			return consumeInt(typ, v, &i.Version)
		case infoTimestamp:
			return consumeInt(typ, v, &timestamp)
		case infoChangeset:
			return consumeInt(typ, v, &i.Changeset)
		case infoUID:
			return consumeInt(typ, v, &i.UID)
		case infoUserSid:
			return consumeVarint(typ, v, func(x uint64) { userSid = uint32(x) })
		case infoVisible:
			return consumeVarint(typ, v, func(x uint64) { i.Visible = x != 0 })
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	i.Timestamp = toTimestamp(c.dateGranularity, timestamp)

	if userSid == 0 && len(c.strings) == 0 {
		return i, nil
	}

	if i.User, err = c.lookup(int64(userSid)); err != nil {
		return nil, err
	}

	return i, nil
}

func (c *blockContext) newDenseInfoContext(buf []byte, n int) (*denseInfoContext, error) {
	dic := &denseInfoContext{
		dateGranularity: c.dateGranularity,
		strings:         c.strings,
	}

	if buf == nil {
		return dic, nil
	}

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case infoVersion:
			return consumePacked(num, typ, v, &dic.versions, plain32)
		case infoTimestamp:
			return consumePacked(num, typ, v, &dic.timestamps, zigzag64)
		case infoChangeset:
			return consumePacked(num, typ, v, &dic.changesets, zigzag64)
		case infoUID:
			return consumePacked(num, typ, v, &dic.uids, zigzag32)
		case infoUserSid:
			return consumePacked(num, typ, v, &dic.userSids, zigzag32)
		case infoVisible:
			return consumePacked(num, typ, v, &dic.visibilities, func(x uint64) bool { return x != 0 })
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	for _, l := range []int{len(dic.versions), len(dic.timestamps), len(dic.changesets), len(dic.uids), len(dic.userSids)} {
		if l != n {
			return nil, fmt.Errorf("dense info holds %d entries for %d nodes", l, n)
		}
	}

	if len(dic.visibilities) != 0 && len(dic.visibilities) != n {
		return nil, fmt.Errorf("dense info holds %d visibilities for %d nodes", len(dic.visibilities), n)
	}

	dic.present = true

	return dic, nil
}

type denseInfoContext struct {
	present bool

	timestamp int64
	changeset int64
	uid       int32
	userSid   int32

	dateGranularity int32
	strings         []string
	versions        []int32
	uids            []int32
	timestamps      []int64
	changesets      []int64
	userSids        []int32
	visibilities    []bool
}

// decodeInfo accumulates the delta coded columns up to node i. Nodes must be
// visited in order.
func (dic *denseInfoContext) decodeInfo(i int) *model.Info {
	if !dic.present {
		return &model.Info{Visible: true}
	}

	dic.uid += dic.uids[i]
	dic.timestamp += dic.timestamps[i]
	dic.changeset += dic.changesets[i]
	dic.userSid += dic.userSids[i]

	info := &model.Info{
		Version:   dic.versions[i],
		UID:       model.UID(dic.uid),
		Timestamp: toTimestamp(dic.dateGranularity, dic.timestamp),
		Changeset: dic.changeset,
		Visible:   true,
	}

	if dic.userSid >= 0 && int(dic.userSid) < len(dic.strings) {
		info.User = dic.strings[dic.userSid]
	}

	if len(dic.visibilities) != 0 {
		info.Visible = dic.visibilities[i]
	}

	return info
}

type tagsContext struct {
	strings []string
	i       int
	keyVals []int32
}

func (c *blockContext) newTagsContext(keyVals []int32) *tagsContext {
	return &tagsContext{strings: c.strings, keyVals: keyVals}
}

// decodeTags reads the zero terminated key/value run of the next node.
func (tic *tagsContext) decodeTags() (map[string]string, error) {
	tags := make(map[string]string)

	if len(tic.keyVals) == 0 {
		return tags, nil
	}

	i := tic.i

	for i < len(tic.keyVals) && tic.keyVals[i] != 0 {
		if i+1 >= len(tic.keyVals) {
			return nil, fmt.Errorf("dense tags truncated at %d", i)
		}

		k, v := int(tic.keyVals[i]), int(tic.keyVals[i+1])
		if k < 0 || k >= len(tic.strings) || v < 0 || v >= len(tic.strings) {
			return nil, fmt.Errorf("dense tag string ids %d/%d outside of a table of %d", k, v, len(tic.strings))
		}

		tags[tic.strings[k]] = tic.strings[v]
		i += 2
	}

	tic.i = i + 1

	return tags, nil
}

// toTimestamp converts a timestamp in units of granularity milliseconds to a
// UTC time.
func toTimestamp(granularity int32, timestamp int64) time.Time {
	return time.UnixMilli(timestamp * int64(granularity)).UTC()
}
