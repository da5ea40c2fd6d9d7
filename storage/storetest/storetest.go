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

// Package storetest checks that a storage.Database honors the storage
// contracts.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

// Factory returns an empty database, closed by the test cleanup.
type Factory func(t *testing.T) storage.Database

// Run runs every contract test against databases made by newDB.
func Run(t *testing.T, newDB Factory) {
	t.Run("scan selections", func(t *testing.T) { testScanSelections(t, newDB(t)) })
	t.Run("replace current rows", func(t *testing.T) { testReplaceCurrentRows(t, newDB(t)) })
	t.Run("attic rows accumulate", func(t *testing.T) { testAtticRows(t, newDB(t)) })
	t.Run("replace attic rows", func(t *testing.T) { testReplaceAtticRows(t, newDB(t)) })
	t.Run("roles", func(t *testing.T) { testRoles(t, newDB(t)) })
	t.Run("visitor error", func(t *testing.T) { testVisitorError(t, newDB(t)) })
	t.Run("relations", func(t *testing.T) { testRelations(t, newDB(t)) })
	t.Run("unknown table", func(t *testing.T) { testUnknownTable(t, newDB(t)) })
}

// Fine indices in two distinct partitions.
var (
	london = index.NodeIndex(51.5074, -0.1278)
	paris  = index.NodeIndex(48.8566, 2.3522)
)

func scanNodes(t *testing.T, db storage.Database, sel storage.Selection) map[index.Index][]model.ID {
	t.Helper()

	got := make(map[index.Index][]model.ID)
	err := db.Nodes().Scan(context.Background(), sel, func(idx index.Index, n model.NodeSkeleton) error {
		got[idx] = append(got[idx], n.ID)
		return nil
	})
	require.NoError(t, err)

	return got
}

func testScanSelections(t *testing.T, db storage.Database) {
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, &storage.Batch{Nodes: []storage.Entry[model.NodeSkeleton]{
		{Index: london, Item: model.NodeSkeleton{ID: 3, Lat: 51.5074, Lon: -0.1278}},
		{Index: london, Item: model.NodeSkeleton{ID: 1, Lat: 51.5074, Lon: -0.1278}},
		{Index: paris, Item: model.NodeSkeleton{ID: 2, Lat: 48.8566, Lon: 2.3522}},
	}}))

	both := map[index.Index][]model.ID{london: {1, 3}, paris: {2}}

	assert.Equal(t, both, scanNodes(t, db, storage.Everything()))
	assert.Equal(t, map[index.Index][]model.ID{paris: {2}}, scanNodes(t, db, storage.Buckets([]index.Index{paris, index.World})))
	assert.Empty(t, scanNodes(t, db, storage.Buckets(nil)))
	assert.Equal(t, map[index.Index][]model.ID{london: {1, 3}},
		scanNodes(t, db, storage.Ranges([]index.Range{{Lo: london, Hi: london}})))
	assert.Equal(t, map[index.Index][]model.ID{paris: {2}},
		scanNodes(t, db, storage.Everything().Within([]index.Range{{Lo: paris, Hi: paris}})))

	var lat model.Degrees
	err := db.Nodes().Scan(ctx, storage.Buckets([]index.Index{paris}), func(_ index.Index, n model.NodeSkeleton) error {
		lat = n.Lat
		return nil
	})
	require.NoError(t, err)
	assert.True(t, lat.EqualWithin(48.8566, model.E7))

	n, err := db.Count(ctx, storage.Nodes)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func testReplaceCurrentRows(t *testing.T, db storage.Database) {
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, &storage.Batch{Nodes: []storage.Entry[model.NodeSkeleton]{
		{Index: london, Item: model.NodeSkeleton{ID: 1}},
		{Index: london, Item: model.NodeSkeleton{ID: 2}},
	}}))
	require.NoError(t, db.Write(ctx, &storage.Batch{Nodes: []storage.Entry[model.NodeSkeleton]{
		{Index: paris, Item: model.NodeSkeleton{ID: 1}},
	}}))

	assert.Equal(t, map[index.Index][]model.ID{london: {2}, paris: {1}}, scanNodes(t, db, storage.Everything()))

	located, err := db.Locate(ctx, storage.Nodes, []model.ID{1, 99})
	require.NoError(t, err)
	assert.Equal(t, []index.Index{paris}, located)

	n, err := db.Count(ctx, storage.Nodes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testAtticRows(t *testing.T, db storage.Database) {
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, &storage.Batch{AtticWays: []storage.Entry[model.Attic[model.WaySkeleton]]{
		{Index: london, Item: model.Attic[model.WaySkeleton]{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{1, 2}}, Expires: 10}},
		{Index: paris, Item: model.Attic[model.WaySkeleton]{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{3}}, Expires: 20}},
	}}))

	located, err := db.Locate(ctx, storage.AtticWays, []model.ID{1})
	require.NoError(t, err)
	assert.Equal(t, storage.Buckets([]index.Index{london, paris}).Indices(), located)

	var got []model.Attic[model.WaySkeleton]
	err = db.AtticWays().Scan(ctx, storage.Everything(), func(_ index.Index, a model.Attic[model.WaySkeleton]) error {
		got = append(got, a)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Attic[model.WaySkeleton]{
		{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{1, 2}}, Expires: 10},
		{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{3}}, Expires: 20},
	}, got)
}

func testReplaceAtticRows(t *testing.T, db storage.Database) {
	ctx := context.Background()

	version := func(idx index.Index, expires model.Timestamp, refs ...model.ID) storage.Entry[model.Attic[model.WaySkeleton]] {
		return storage.Entry[model.Attic[model.WaySkeleton]]{
			Index: idx,
			Item:  model.Attic[model.WaySkeleton]{Value: model.WaySkeleton{ID: 1, NodeIDs: refs}, Expires: expires},
		}
	}

	require.NoError(t, db.Write(ctx, &storage.Batch{AtticWays: []storage.Entry[model.Attic[model.WaySkeleton]]{
		version(london, 10, 1, 2),
		version(paris, 20, 3),
	}}))

	// the same versions again, with new bodies, one of them moved
	require.NoError(t, db.Write(ctx, &storage.Batch{AtticWays: []storage.Entry[model.Attic[model.WaySkeleton]]{
		version(london, 10, 7),
		version(london, 10, 4, 5),
		version(london, 20, 6),
	}}))

	got := make(map[index.Index][]model.Attic[model.WaySkeleton])
	err := db.AtticWays().Scan(ctx, storage.Everything(), func(idx index.Index, a model.Attic[model.WaySkeleton]) error {
		got[idx] = append(got[idx], a)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[index.Index][]model.Attic[model.WaySkeleton]{london: {
		{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{4, 5}}, Expires: 10},
		{Value: model.WaySkeleton{ID: 1, NodeIDs: []model.ID{6}}, Expires: 20},
	}}, got)

	located, err := db.Locate(ctx, storage.AtticWays, []model.ID{1})
	require.NoError(t, err)
	assert.Equal(t, []index.Index{london}, located)

	n, err := db.Count(ctx, storage.AtticWays)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testRoles(t *testing.T, db storage.Database) {
	ctx := context.Background()

	roles, err := db.InternRoles(ctx, []string{"outer", "inner"})
	require.NoError(t, err)
	assert.NotEqual(t, roles["outer"], roles["inner"])

	again, err := db.InternRoles(ctx, []string{"inner", "admin_centre"})
	require.NoError(t, err)
	assert.Equal(t, roles["inner"], again["inner"])

	id, err := db.RoleID(ctx, "admin_centre")
	require.NoError(t, err)
	assert.Equal(t, again["admin_centre"], id)

	name, err := db.Role(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin_centre", name)

	id, err = db.RoleID(ctx, "label")
	require.NoError(t, err)
	assert.Equal(t, model.NoRole, id)
}

func testVisitorError(t *testing.T, db storage.Database) {
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, &storage.Batch{Ways: []storage.Entry[model.WaySkeleton]{
		{Index: london, Item: model.WaySkeleton{ID: 1}},
		{Index: paris, Item: model.WaySkeleton{ID: 2}},
	}}))

	stop := errors.New("stop")
	visited := 0

	err := db.Ways().Scan(ctx, storage.Everything(), func(index.Index, model.WaySkeleton) error {
		visited++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, visited)
}

func testRelations(t *testing.T, db storage.Database) {
	ctx := context.Background()

	rel := model.RelationSkeleton{ID: 7, Members: []model.RelationMember{
		{Ref: 1, Type: model.WAY, Role: 1},
		{Ref: 2, Type: model.NODE, Role: 2},
	}}

	require.NoError(t, db.Write(ctx, &storage.Batch{Relations: []storage.Entry[model.RelationSkeleton]{
		{Index: index.World, Item: rel},
	}}))

	var got []model.RelationSkeleton
	err := db.Relations().Scan(ctx, storage.Buckets([]index.Index{index.World}), func(_ index.Index, r model.RelationSkeleton) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []model.RelationSkeleton{rel}, got)

	located, err := db.Locate(ctx, storage.Relations, []model.ID{7})
	require.NoError(t, err)
	assert.Equal(t, []index.Index{index.World}, located)
}

func testUnknownTable(t *testing.T, db storage.Database) {
	_, err := db.Locate(context.Background(), storage.TableID(42), nil)
	assert.ErrorIs(t, err, storage.ErrUnknownTable)

	_, err = db.Count(context.Background(), storage.TableID(42))
	assert.ErrorIs(t, err, storage.ErrUnknownTable)
}
