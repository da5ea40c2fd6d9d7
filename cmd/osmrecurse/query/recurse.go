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

// Package query runs recurse traversals against the store.
package query

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/cmd/osmrecurse/cli"
	"m4o.io/osmrecurse/index"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/recurse"
	"m4o.io/osmrecurse/set"
)

var out io.Writer = os.Stdout

func init() {
	cli.RootCmd.AddCommand(recurseCmd)

	flags := recurseCmd.Flags()
	flags.StringP("type", "t", "", "traversal, one of "+strings.Join(modeNames(), ", "))
	flags.Int64SliceP("node", "n", nil, "ids of the source nodes")
	flags.Int64SliceP("way", "w", nil, "ids of the source ways")
	flags.Int64SliceP("relation", "r", nil, "ids of the source relations")
	flags.String("role", "", "only follow members with this role, empty for members without one")
	flags.String("at", "", "RFC3339 moment to traverse the history at")
	flags.String("load", "", "OSM file to import before the traversal")
	flags.BoolP("json", "j", false, "format the result in JSON")

	_ = recurseCmd.MarkFlagRequired("type")
}

func modeNames() []string {
	var names []string
	for _, m := range recurse.Modes() {
		names = append(names, m.String())
	}

	return names
}

var recurseCmd = &cobra.Command{
	Use:   "recurse",
	Short: "Traverse from the given entities",
	Long:  "Seed a set with the given entities and print the entities one recurse traversal reaches from it",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		q, err := parseQuery(cmd)
		if err != nil {
			log.Fatal(err)
		}

		reg := prometheus.NewRegistry()

		db, err := osmrecurse.Open(cli.Config(), osmrecurse.WithRegisterer(reg))
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		if path, _ := cmd.Flags().GetString("load"); path != "" {
			if err := load(cmd, db, path); err != nil {
				log.Fatal(err)
			}
		}

		result, err := db.Recurse(cmd.Context(), q)
		if err != nil {
			log.Fatal(err)
		}

		logMetrics(reg)

		jsonfmt, _ := cmd.Flags().GetBool("json")
		if err := render(result, jsonfmt); err != nil {
			log.Fatal(err)
		}
	},
}

func parseQuery(cmd *cobra.Command) (osmrecurse.Query, error) {
	flags := cmd.Flags()

	q := osmrecurse.Query{}
	q.Type, _ = flags.GetString("type")

	if flags.Changed("role") {
		role, _ := flags.GetString("role")
		q.Role = &role
	}

	if at, _ := flags.GetString("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return osmrecurse.Query{}, fmt.Errorf("--at: %w", err)
		}

		q.At = t
	}

	for name, dst := range map[string]*[]model.ID{"node": &q.Nodes, "way": &q.Ways, "relation": &q.Relations} {
		ids, err := flags.GetInt64Slice(name)
		if err != nil {
			return osmrecurse.Query{}, err
		}

		*dst = toIDs(ids)
	}

	return q, nil
}

func toIDs(ids []int64) []model.ID {
	if len(ids) == 0 {
		return nil
	}

	out := make([]model.ID, len(ids))
	for i, id := range ids {
		out[i] = model.ID(id)
	}

	return out
}

func load(cmd *cobra.Command, db *osmrecurse.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := db.Import(cmd.Context(), f)
	if err != nil {
		return err
	}

	slog.Info("loaded", "file", path, "nodes", stats.Nodes, "ways", stats.Ways, "relations", stats.Relations)

	return nil
}

// logMetrics reports the rows the traversal read per table.
func logMetrics(g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		slog.Warn("gathering metrics", "error", err)
		return
	}

	for _, mf := range families {
		if mf.GetName() != "osmrecurse_rows_scanned_total" {
			continue
		}

		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				slog.Debug("rows scanned", l.GetName(), l.GetValue(), "rows", m.GetCounter().GetValue())
			}
		}
	}
}

// result is the JSON form of a traversal result.
type result struct {
	Nodes      []model.ID `json:"nodes"`
	Ways       []model.ID `json:"ways"`
	Relations  []model.ID `json:"relations"`
	AtticNodes []version  `json:"attic_nodes,omitempty"`
	AtticWays  []version  `json:"attic_ways,omitempty"`
}

type version struct {
	ID      model.ID        `json:"id"`
	Expires model.Timestamp `json:"expires"`
}

func toResult(s *set.Set) result {
	r := result{
		Nodes:     s.Nodes.IDs(),
		Ways:      s.Ways.IDs(),
		Relations: s.Relations.IDs(),
	}

	s.AtticNodes.Each(func(_ index.Index, a model.Attic[model.NodeSkeleton]) {
		r.AtticNodes = append(r.AtticNodes, version{ID: a.GetID(), Expires: a.Expires})
	})

	s.AtticWays.Each(func(_ index.Index, a model.Attic[model.WaySkeleton]) {
		r.AtticWays = append(r.AtticWays, version{ID: a.GetID(), Expires: a.Expires})
	})

	return r
}

func render(s *set.Set, jsonfmt bool) error {
	r := toResult(s)

	if jsonfmt {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, string(b))

		return err
	}

	for _, kind := range []struct {
		name string
		ids  []model.ID
	}{{"node", r.Nodes}, {"way", r.Ways}, {"relation", r.Relations}} {
		for _, id := range kind.ids {
			fmt.Fprintf(out, "%s %d\n", kind.name, id)
		}
	}

	for _, v := range r.AtticNodes {
		fmt.Fprintf(out, "node %d (until %s)\n", v.ID, v.Expires)
	}

	for _, v := range r.AtticWays {
		fmt.Fprintf(out, "way %d (until %s)\n", v.ID, v.Expires)
	}

	return nil
}
