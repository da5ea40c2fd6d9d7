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
	"fmt"
	"log"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/config"
	"m4o.io/osmrecurse/internal/osmpbf"
	"m4o.io/osmrecurse/model"
)

func Example() {
	var pbf bytes.Buffer

	enc, err := osmpbf.NewEncoder(&pbf, model.Header{WritingProgram: "example"})
	if err != nil {
		log.Fatal(err)
	}

	if err := enc.Encode(
		model.Node{ID: 1, Lat: 51.5072, Lon: -0.1276},
		model.Node{ID: 2, Lat: 51.5080, Lon: -0.1281},
		model.Way{ID: 3, NodeIDs: []model.ID{1, 2}},
		model.Relation{ID: 4, Members: []model.Member{{ID: 3, Type: model.WAY, Role: "outer"}}},
	); err != nil {
		log.Fatal(err)
	}

	if err := enc.Close(); err != nil {
		log.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverMemory

	db, err := osmrecurse.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Import(context.Background(), &pbf); err != nil {
		log.Fatal(err)
	}

	s, err := db.Recurse(context.Background(), osmrecurse.Query{Type: "down", Relations: []model.ID{4}})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Nodes: %v, Ways: %v\n", s.Nodes.IDs(), s.Ways.IDs())
	// Output:
	// Nodes: [1 2], Ways: [3]
}
