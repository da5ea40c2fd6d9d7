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

package recurse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/engine"
	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/recurse"
	"m4o.io/osmrecurse/set"
)

func constraint(t *testing.T, attrs map[string]string) *recurse.Constraint {
	t.Helper()

	stmt, err := recurse.NewStatement(1, attrs)
	require.NoError(t, err)

	return stmt.Constraint()
}

var (
	paris  = &model.BoundingBox{Left: 2.30, Right: 2.40, Top: 48.90, Bottom: 48.80}
	london = &model.BoundingBox{Left: -0.20, Right: -0.05, Top: 51.55, Bottom: 51.45}
)

func TestConstraintGetNodes(t *testing.T) {
	f := scenario(t)

	test_cases := []struct {
		name     string
		attrs    map[string]string
		source   ids
		ranges   []index.Range
		filter   *recurse.Filter
		expected []model.ID
	}{
		{"relation node", map[string]string{"type": "relation-node"}, ids{relations: []model.ID{R}}, nil, nil, list(P1)},
		{"relation node with role", map[string]string{"type": "relation-node", "role": "outer"}, ids{relations: []model.ID{R}}, nil, nil, list()},
		{"way node", map[string]string{"type": "way-node"}, ids{ways: []model.ID{W1}}, nil, nil, list(P2, P3)},
		{"way node in paris", map[string]string{"type": "way-node"}, ids{ways: []model.ID{W1}}, index.Covering(paris, 8), nil, list(P2, P3)},
		{"way node in london", map[string]string{"type": "way-node"}, ids{ways: []model.ID{W1}}, index.Covering(london, 8), nil, list()},
		{"way node filtered", map[string]string{"type": "way-node"}, ids{ways: []model.ID{W1}}, nil, &recurse.Filter{IDs: []model.ID{P3}}, list(P3)},
		// the nodes of source ways are not candidates of down
		{"down", map[string]string{"type": "down"}, ids{relations: []model.ID{R}, ways: []model.ID{W2}}, nil, nil, list(P1, P2, P3)},
		{"down-rel", map[string]string{"type": "down-rel"}, ids{relations: []model.ID{R2}}, nil, nil, list(P1, P2, P3, P4)},
		{"no nodes upwards", map[string]string{"type": "up"}, ids{nodes: []model.ID{P1}}, nil, nil, list()},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := f.runtime()
			rt.Output(engine.DefaultSet, f.set(tc.source))

			into := set.New()
			require.NoError(t, constraint(t, tc.attrs).GetNodes(context.Background(), rt, into, tc.ranges, tc.filter, model.Now))

			assert.Equal(t, tc.expected, into.Nodes.IDs())
		})
	}
}

func TestConstraintGetNodesHistorical(t *testing.T) {
	f := newFixture(t).
		node(P2, 48.8600, 2.3400).
		atticNode(P2, 48.8000, 2.3000, 100).
		way(W1, P2)

	rt := f.runtime()
	rt.Output(engine.DefaultSet, f.set(ids{ways: []model.ID{W1}}))

	into := set.New()
	require.NoError(t, constraint(t, map[string]string{"type": "way-node"}).GetNodes(context.Background(), rt, into, nil, nil, 50))
	assert.Empty(t, into.Nodes.IDs())
	assert.Equal(t, []model.ID{P2}, into.AtticNodes.IDs())

	err := constraint(t, map[string]string{"type": "relation-node"}).GetNodes(context.Background(), rt, set.New(), nil, nil, 50)
	assert.ErrorIs(t, err, recurse.ErrHistoricUnsupported)
}

func TestConstraintGetWaysOrRelations(t *testing.T) {
	f := scenario(t)

	test_cases := []struct {
		name      string
		attrs     map[string]string
		source    ids
		kind      model.EntityType
		filter    *recurse.Filter
		delivered bool
		expected  []model.ID
	}{
		{"relation way", map[string]string{"type": "relation-way"}, ids{relations: []model.ID{R}}, model.WAY, nil, true, list(W1)},
		{"relation way has no relations", map[string]string{"type": "relation-way"}, ids{relations: []model.ID{R}}, model.RELATION, nil, false, list()},
		{"relation node has no ways", map[string]string{"type": "relation-node"}, ids{relations: []model.ID{R}}, model.WAY, nil, false, list()},
		{"relation relation", map[string]string{"type": "relation-relation"}, ids{relations: []model.ID{R3}}, model.RELATION, nil, true, list(R2)},
		{"backwards", map[string]string{"type": "relation-backwards"}, ids{relations: []model.ID{R2}}, model.RELATION, nil, true, list(R3)},
		{"way relation", map[string]string{"type": "way-relation", "role": "inner"}, ids{ways: []model.ID{W2}}, model.RELATION, nil, true, list(R2)},
		{"node relation", map[string]string{"type": "node-relation"}, ids{nodes: []model.ID{P1}}, model.RELATION, nil, true, list(R)},
		{"node way", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{P3}}, model.WAY, &recurse.Filter{IDs: []model.ID{W2}, Invert: true}, true, list(W1)},
		{"down ways", map[string]string{"type": "down"}, ids{relations: []model.ID{R}}, model.WAY, nil, true, list(W1)},
		{"down-rel ways", map[string]string{"type": "down-rel"}, ids{relations: []model.ID{R3}}, model.WAY, nil, true, list(W1, W2)},
		{"down-rel relations", map[string]string{"type": "down-rel"}, ids{relations: []model.ID{R3}}, model.RELATION, &recurse.Filter{IDs: []model.ID{R3}, Invert: true}, true, list(R, R2)},
		{"up ways", map[string]string{"type": "up"}, ids{nodes: []model.ID{P3}}, model.WAY, nil, true, list(W1, W2)},
		{"up relations", map[string]string{"type": "up"}, ids{nodes: []model.ID{P3}}, model.RELATION, nil, true, list(R, R2)},
		{"up-rel relations", map[string]string{"type": "up-rel"}, ids{nodes: []model.ID{P2}}, model.RELATION, nil, true, list(R, R2, R3)},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := f.runtime()
			rt.Output(engine.DefaultSet, f.set(tc.source))

			into := set.New()
			delivered, err := constraint(t, tc.attrs).GetWaysOrRelations(context.Background(), rt, into, nil, tc.kind, tc.filter, model.Now)
			require.NoError(t, err)

			assert.Equal(t, tc.delivered, delivered)
			if tc.kind == model.WAY {
				assert.Equal(t, tc.expected, into.Ways.IDs())
			} else {
				assert.Equal(t, tc.expected, into.Relations.IDs())
			}
		})
	}
}

func TestConstraintGetWaysOrRelationsWithinRanges(t *testing.T) {
	const (
		PL2 model.ID = 10
		WX  model.ID = 13
		WL  model.ID = 14
		RX  model.ID = 24
	)

	// WX runs from Paris to London, so its cell is far coarser than the
	// cells covering either city.
	f := scenario(t).
		node(PL2, 51.5080, -0.1290).
		way(WX, P1, PL).
		way(WL, PL, PL2).
		relation(RX, w(WX, "outer"))

	test_cases := []struct {
		name     string
		attrs    map[string]string
		source   ids
		kind     model.EntityType
		ranges   []index.Range
		expected []model.ID
	}{
		{"node way spanning paris", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{P1}}, model.WAY, index.Covering(paris, 8), list(WX)},
		{"node way spanning london", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{P1}}, model.WAY, index.Covering(london, 8), list(WX)},
		{"node way outside the window", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{PL}}, model.WAY, index.Covering(paris, 8), list(WX)},
		{"relation way spanning paris", map[string]string{"type": "relation-way"}, ids{relations: []model.ID{RX}}, model.WAY, index.Covering(paris, 8), list(WX)},
		{"node relation spanning paris", map[string]string{"type": "node-relation"}, ids{nodes: []model.ID{P1}}, model.RELATION, index.Covering(paris, 8), list(R)},
		{"way relation spanning paris", map[string]string{"type": "way-relation"}, ids{ways: []model.ID{WX}}, model.RELATION, index.Covering(paris, 8), list(RX)},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := f.runtime()
			rt.Output(engine.DefaultSet, f.set(tc.source))

			into := set.New()
			delivered, err := constraint(t, tc.attrs).GetWaysOrRelations(context.Background(), rt, into, tc.ranges, tc.kind, nil, model.Now)
			require.NoError(t, err)

			assert.True(t, delivered)
			if tc.kind == model.WAY {
				assert.Equal(t, tc.expected, into.Ways.IDs())
			} else {
				assert.Equal(t, tc.expected, into.Relations.IDs())
			}
		})
	}
}

func TestConstraintRelationRelationVisitsLocatedPartitions(t *testing.T) {
	f := scenario(t)
	for id := model.ID(100); id < 150; id++ {
		f.relation(id, n(PL, "label"))
	}

	rt := f.runtime()
	rt.Output(engine.DefaultSet, f.set(ids{relations: []model.ID{R3}}))

	into := set.New()
	delivered, err := constraint(t, map[string]string{"type": "relation-relation"}).
		GetWaysOrRelations(context.Background(), rt, into, nil, model.RELATION, nil, model.Now)
	require.NoError(t, err)

	assert.True(t, delivered)
	assert.Equal(t, list(R2), into.Relations.IDs())
	// the relations in London are never read
	assert.LessOrEqual(t, rt.Checker.Rows(), int64(3))
}

func TestConstraintFilter(t *testing.T) {
	f := scenario(t)
	everything := ids{
		nodes:     []model.ID{P1, P2, P3, P4, PL},
		ways:      []model.ID{W1, W2},
		relations: []model.ID{R, R2, R3},
	}

	test_cases := []struct {
		name     string
		attrs    map[string]string
		source   ids
		expected result
	}{
		{"relation node", map[string]string{"type": "relation-node"}, ids{relations: []model.ID{R}},
			result{Nodes: list(P1), Ways: list(), Relations: list()}},
		{"relation node with role", map[string]string{"type": "relation-node", "role": "outer"}, ids{relations: []model.ID{R}},
			result{Nodes: list(), Ways: list(), Relations: list()}},
		{"way node", map[string]string{"type": "way-node"}, ids{ways: []model.ID{W2}},
			result{Nodes: list(P3, P4), Ways: list(), Relations: list()}},
		{"relation way", map[string]string{"type": "relation-way"}, ids{relations: []model.ID{R, R2}},
			result{Nodes: list(), Ways: list(W1, W2), Relations: list()}},
		{"node way", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{P2}},
			result{Nodes: list(), Ways: list(W1), Relations: list()}},
		{"node relation", map[string]string{"type": "node-relation"}, ids{nodes: []model.ID{P1}},
			result{Nodes: list(), Ways: list(), Relations: list(R)}},
		{"way relation with role", map[string]string{"type": "way-relation", "role": "outer"}, ids{ways: []model.ID{W1, W2}},
			result{Nodes: list(), Ways: list(), Relations: list(R)}},
		{"backwards", map[string]string{"type": "relation-backwards"}, ids{relations: []model.ID{R2}},
			result{Nodes: list(), Ways: list(), Relations: list(R3)}},
		{"relation relation", map[string]string{"type": "relation-relation"}, ids{relations: []model.ID{R2}},
			result{Nodes: list(), Ways: list(), Relations: list(R)}},
		{"up keeps relations", map[string]string{"type": "up"}, ids{nodes: []model.ID{P4}},
			result{Nodes: list(), Ways: list(W2), Relations: list(R, R2, R3)}},
		{"down is left to the second pass", map[string]string{"type": "down"}, ids{relations: []model.ID{R}},
			result{Nodes: list(P1, P2, P3, P4, PL), Ways: list(W1, W2), Relations: list(R, R2, R3)}},
		{"unresolved role", map[string]string{"type": "relation-way", "role": "label"}, ids{relations: []model.ID{R}},
			result{Nodes: list(), Ways: list(), Relations: list()}},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := f.runtime()
			rt.Output(engine.DefaultSet, f.set(tc.source))

			into := f.set(everything)
			require.NoError(t, constraint(t, tc.attrs).Filter(context.Background(), rt, into, model.Now))

			tc.expected.AtticNodes = list()
			assert.Equal(t, tc.expected, idsOf(into))
		})
	}
}

func TestConstraintFilterMissingInput(t *testing.T) {
	f := scenario(t)

	into := f.set(ids{nodes: []model.ID{P1}, relations: []model.ID{R}})
	require.NoError(t, constraint(t, map[string]string{"type": "down", "from": "nothing"}).
		Filter(context.Background(), f.runtime(), into, model.Now))

	assert.True(t, into.IsEmpty())
}

func TestConstraintFilterTransitive(t *testing.T) {
	f := scenario(t)
	everything := ids{
		nodes:     []model.ID{P1, P2, P3, P4, PL},
		ways:      []model.ID{W1, W2},
		relations: []model.ID{R, R2, R3},
	}

	test_cases := []struct {
		name     string
		attrs    map[string]string
		source   ids
		expected result
	}{
		{"down", map[string]string{"type": "down"}, ids{relations: []model.ID{R}},
			result{Nodes: list(P1, P2, P3), Ways: list(W1), Relations: list()}},
		{"down-rel", map[string]string{"type": "down-rel"}, ids{relations: []model.ID{R2}},
			result{Nodes: list(P1, P2, P3, P4), Ways: list(W1, W2), Relations: list(R, R2)}},
		{"up", map[string]string{"type": "up"}, ids{nodes: []model.ID{P1}},
			result{Nodes: list(P1, P2, P3, P4, PL), Ways: list(W1, W2), Relations: list(R)}},
		{"up-rel", map[string]string{"type": "up-rel"}, ids{ways: []model.ID{W2}},
			result{Nodes: list(P1, P2, P3, P4, PL), Ways: list(W1, W2), Relations: list(R2, R3)}},
		{"single step modes are left alone", map[string]string{"type": "node-way"}, ids{nodes: []model.ID{P1}},
			result{Nodes: list(P1, P2, P3, P4, PL), Ways: list(W1, W2), Relations: list(R, R2, R3)}},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := f.runtime()
			rt.Output(engine.DefaultSet, f.set(tc.source))

			into := f.set(everything)
			require.NoError(t, constraint(t, tc.attrs).FilterTransitive(context.Background(), rt, into, model.Now))

			tc.expected.AtticNodes = list()
			assert.Equal(t, tc.expected, idsOf(into))
		})
	}
}

func TestConstraintDeliversData(t *testing.T) {
	assert.True(t, constraint(t, map[string]string{"type": "up"}).DeliversData())
}
