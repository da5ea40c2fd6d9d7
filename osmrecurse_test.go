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

package osmrecurse_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/config"
	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/internal/osmpbf"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/recurse"
	"m4o.io/osmrecurse/resource"
	"m4o.io/osmrecurse/set"
	"m4o.io/osmrecurse/storage"
)

var paris = []model.Entity{
	model.Node{ID: 1, Lat: 48.8566, Lon: 2.3522},
	model.Node{ID: 2, Lat: 48.8570, Lon: 2.3530},
	model.Node{ID: 3, Lat: 48.8600, Lon: 2.3400},
	model.Node{ID: 4, Lat: 48.8610, Lon: 2.3410},
	model.Way{ID: 10, NodeIDs: []model.ID{1, 2}},
	model.Way{ID: 11, NodeIDs: []model.ID{2, 3}},
	model.Relation{ID: 20, Members: []model.Member{
		{ID: 10, Type: model.WAY, Role: "outer"},
		{ID: 11, Type: model.WAY, Role: "inner"},
		{ID: 1, Type: model.NODE, Role: "admin_centre"},
		{ID: 4, Type: model.NODE},
	}},
	model.Relation{ID: 21, Members: []model.Member{{ID: 20, Type: model.RELATION, Role: "subarea"}}},
	model.Relation{ID: 22, Members: []model.Member{{ID: 21, Type: model.RELATION, Role: "subarea"}}},
}

func encode(t testing.TB, entities ...model.Entity) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	enc, err := osmpbf.NewEncoder(&buf, model.Header{WritingProgram: "test"}, osmpbf.WithBlockSize(3))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(entities...))
	require.NoError(t, enc.Close())

	return &buf
}

func open(t testing.TB, cfg *config.Config, entities ...model.Entity) *osmrecurse.DB {
	t.Helper()

	db, err := osmrecurse.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	_, err = db.Import(context.Background(), encode(t, entities...))
	require.NoError(t, err)

	return db
}

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverMemory

	return cfg
}

type ids struct {
	nodes, ways, relations []model.ID
}

func idsOf(s *set.Set) ids {
	return ids{nodes: s.Nodes.IDs(), ways: s.Ways.IDs(), relations: s.Relations.IDs()}
}

func role(r string) *string { return &r }

func TestRecurse(t *testing.T) {
	sqliteConfig := config.DefaultConfig()
	sqliteConfig.Store.Path = filepath.Join(t.TempDir(), "paris.db")

	stores := map[string]*osmrecurse.DB{
		"memory": open(t, memoryConfig(), paris...),
		"sqlite": open(t, sqliteConfig, paris...),
	}

	none := []model.ID{}

	test_cases := []struct {
		name     string
		query    osmrecurse.Query
		expected ids
	}{
		{"way-node", osmrecurse.Query{Type: "way-node", Ways: []model.ID{10}}, ids{[]model.ID{1, 2}, none, none}},
		{"node-way", osmrecurse.Query{Type: "node-way", Nodes: []model.ID{2}}, ids{none, []model.ID{10, 11}, none}},
		{"node-relation", osmrecurse.Query{Type: "node-relation", Nodes: []model.ID{1, 4}}, ids{none, none, []model.ID{20}}},
		{"relation-way", osmrecurse.Query{Type: "relation-way", Relations: []model.ID{20}}, ids{none, []model.ID{10, 11}, none}},
		{"relation-way role", osmrecurse.Query{Type: "relation-way", Role: role("inner"), Relations: []model.ID{20}}, ids{none, []model.ID{11}, none}},
		{"relation-node empty role", osmrecurse.Query{Type: "relation-node", Role: role(""), Relations: []model.ID{20}}, ids{[]model.ID{4}, none, none}},
		{"relation-node unknown role", osmrecurse.Query{Type: "relation-node", Role: role("label"), Relations: []model.ID{20}}, ids{none, none, none}},
		{"relation-relation", osmrecurse.Query{Type: "relation-relation", Relations: []model.ID{22}}, ids{none, none, []model.ID{21}}},
		{"relation-backwards", osmrecurse.Query{Type: "relation-backwards", Relations: []model.ID{20}}, ids{none, none, []model.ID{21}}},
		{"way-relation", osmrecurse.Query{Type: "way-relation", Ways: []model.ID{11}}, ids{none, none, []model.ID{20}}},
		{"down", osmrecurse.Query{Type: "down", Relations: []model.ID{20}}, ids{[]model.ID{1, 2, 3, 4}, []model.ID{10, 11}, none}},
		{"down-rel", osmrecurse.Query{Type: "down-rel", Relations: []model.ID{22}}, ids{[]model.ID{1, 2, 3, 4}, []model.ID{10, 11}, []model.ID{20, 21, 22}}},
		{"up", osmrecurse.Query{Type: "up", Nodes: []model.ID{3}}, ids{none, []model.ID{11}, []model.ID{20}}},
		{"up-rel", osmrecurse.Query{Type: "up-rel", Nodes: []model.ID{3}}, ids{none, []model.ID{11}, []model.ID{20, 21, 22}}},
		{"missing source", osmrecurse.Query{Type: "way-node", Ways: []model.ID{99}}, ids{none, none, none}},
	}

	for name, db := range stores {
		for _, tc := range test_cases {
			t.Run(name+"/"+tc.name, func(t *testing.T) {
				s, err := db.Recurse(context.Background(), tc.query)
				require.NoError(t, err)
				assert.Equal(t, tc.expected, idsOf(s))
			})
		}
	}
}

func TestRecurseRejectsBadQueries(t *testing.T) {
	db := open(t, memoryConfig(), paris...)

	test_cases := []struct {
		name  string
		query osmrecurse.Query
	}{
		{"unknown type", osmrecurse.Query{Type: "sideways"}},
		{"role on down", osmrecurse.Query{Type: "down", Role: role("outer")}},
		{"role on way-node", osmrecurse.Query{Type: "way-node", Role: role("")}},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.Recurse(context.Background(), tc.query)

			var static *engine.StaticError
			assert.ErrorAs(t, err, &static)
		})
	}
}

func at(version int32, ts int64) *model.Info {
	return &model.Info{Version: version, Timestamp: time.Unix(ts, 0).UTC(), Visible: true}
}

func TestRecurseHistory(t *testing.T) {
	db := open(t, memoryConfig(),
		model.Node{ID: 1, Lat: 48.8566, Lon: 2.3522, Info: at(1, 100)},
		model.Node{ID: 1, Lat: 48.8567, Lon: 2.3523, Info: at(2, 200)},
		model.Node{ID: 2, Lat: 48.8570, Lon: 2.3530, Info: at(1, 100)},
		model.Node{ID: 3, Lat: 48.8600, Lon: 2.3400, Info: at(1, 100)},
		model.Way{ID: 10, NodeIDs: []model.ID{1, 2}, Info: at(1, 100)},
		model.Way{ID: 10, NodeIDs: []model.ID{2, 3}, Info: at(2, 300)},
	)

	test_cases := []struct {
		name    string
		at      time.Time
		current []model.ID
		attic   []model.Attic[model.NodeSkeleton]
	}{
		{"now", time.Time{}, []model.ID{2, 3}, nil},
		{"before the node moved", time.Unix(150, 0), []model.ID{2}, []model.Attic[model.NodeSkeleton]{
			{Value: model.NodeSkeleton{ID: 1, Lat: 48.8566, Lon: 2.3522}, Expires: 200},
		}},
		{"after the node moved", time.Unix(250, 0), []model.ID{1, 2}, nil},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := db.Recurse(context.Background(), osmrecurse.Query{Type: "way-node", At: tc.at, Ways: []model.ID{10}})
			require.NoError(t, err)

			assert.Equal(t, tc.current, s.Nodes.IDs())

			var attic []model.Attic[model.NodeSkeleton]
			for _, items := range s.AtticNodes {
				attic = append(attic, items...)
			}

			assert.Equal(t, tc.attic, attic)
		})
	}
}

func TestRecurseHistoryIsLimited(t *testing.T) {
	db := open(t, memoryConfig(), paris...)

	_, err := db.Recurse(context.Background(), osmrecurse.Query{Type: "node-way", At: time.Unix(150, 0), Nodes: []model.ID{1}})
	assert.ErrorIs(t, err, recurse.ErrHistoricUnsupported)
}

func TestRecurseBudget(t *testing.T) {
	cfg := memoryConfig()
	cfg.Budget.MaxRows = 1

	db := open(t, cfg, paris...)

	_, err := db.Recurse(context.Background(), osmrecurse.Query{Type: "down", Relations: []model.ID{20}})
	assert.ErrorIs(t, err, resource.ErrBudgetExceeded)
}

func TestRecurseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	db, err := osmrecurse.Open(memoryConfig(), osmrecurse.WithRegisterer(reg))
	require.NoError(t, err)

	defer db.Close()

	_, err = db.Import(context.Background(), encode(t, paris...))
	require.NoError(t, err)

	_, err = db.Recurse(context.Background(), osmrecurse.Query{Type: "way-node", Ways: []model.ID{10}})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "osmrecurse_statements_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "osm.db")

	db, err := osmrecurse.Open(cfg)
	require.NoError(t, err)

	n, err := db.Store().Count(context.Background(), storage.Nodes)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, db.Close())

	cfg.Store.Driver = "postgres"

	_, err = osmrecurse.Open(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = osmrecurse.OpenStore(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestImportRejectsGarbage(t *testing.T) {
	db, err := osmrecurse.Open(memoryConfig())
	require.NoError(t, err)

	defer db.Close()

	_, err = db.Import(context.Background(), bytes.NewReader([]byte{0, 0, 0, 1, 0}))
	assert.Error(t, err)
}
