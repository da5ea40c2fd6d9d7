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
	"context"
	"math/rand/v2"
	"os"
	"runtime/trace"
	"strconv"
	"testing"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/model"
)

// grid builds a square grid of nodes, one way per row and one relation per
// band of rows, topped by a relation holding every band.
func grid(size int) []model.Entity {
	var nodes, ways, rels []model.Entity

	r := rand.New(rand.NewPCG(1, 2))

	for y := range size {
		refs := make([]model.ID, size)

		for x := range size {
			id := model.ID(y*size + x + 1)
			refs[x] = id
			nodes = append(nodes, model.Node{
				ID:  id,
				Lat: model.Degrees(48 + float64(y)/100 + r.Float64()/1000),
				Lon: model.Degrees(2 + float64(x)/100 + r.Float64()/1000),
			})
		}

		ways = append(ways, model.Way{ID: model.ID(y + 1), NodeIDs: refs})
	}

	const band = 10

	var top []model.Member

	for b := 0; b*band < size; b++ {
		var members []model.Member
		for y := b * band; y < min((b+1)*band, size); y++ {
			members = append(members, model.Member{ID: model.ID(y + 1), Type: model.WAY, Role: "outer"})
		}

		rels = append(rels, model.Relation{ID: model.ID(b + 1), Members: members})
		top = append(top, model.Member{ID: model.ID(b + 1), Type: model.RELATION, Role: "subarea"})
	}

	rels = append(rels, model.Relation{ID: model.ID(len(rels) + 1), Members: top})

	return append(append(nodes, ways...), rels...)
}

func BenchmarkRecurse(b *testing.B) {
	size, _ := strconv.Atoi(os.Getenv("OSMRECURSE_GRID"))
	if size <= 0 {
		size = 100
	}

	t, err := strconv.ParseBool(os.Getenv("OSMRECURSE_TRACE"))
	if err == nil && t {
		f, e := os.Create("trace.out")
		if e != nil {
			b.Errorf("Error opening trace file: %v", e)
		} else {
			defer f.Close()
			_ = trace.Start(f)
			defer trace.Stop()
		}
	}

	entities := grid(size)
	db := open(b, memoryConfig(), entities...)
	top := entities[len(entities)-1].GetID()

	for _, q := range []osmrecurse.Query{
		{Type: "down-rel", Relations: []model.ID{top}},
		{Type: "up-rel", Nodes: []model.ID{1, model.ID(size * size)}},
		{Type: "node-way", Nodes: []model.ID{model.ID(size*size/2 + 1)}},
	} {
		b.Run(q.Type, func(b *testing.B) {
			for n := 0; n < b.N; n++ {
				if _, err := db.Recurse(context.Background(), q); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
