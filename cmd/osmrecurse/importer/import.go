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

// Package importer loads PBF files into the store.
package importer

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/cmd/osmrecurse/cli"
	"m4o.io/osmrecurse/loader"
)

var out io.Writer = os.Stdout

func init() {
	cli.RootCmd.AddCommand(importCmd)

	flags := importCmd.Flags()
	flags.Uint16P("cpu", "c", 0, "number of CPUs to use for decoding, 0 uses the configured value")
	flags.IntP("batch-size", "b", 0, "rows written per transaction, 0 uses the configured value")
	flags.BoolP("quiet", "q", false, "do not show progress")
}

var importCmd = &cobra.Command{
	Use:   "import <OSM file>",
	Short: "Load an OSM file into the store",
	Long:  "Load the nodes, ways and relations of an OSM PBF file, with their history, into the configured store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := cli.Config()
		flags := cmd.Flags()

		if n, _ := flags.GetUint16("cpu"); n > 0 {
			cfg.Import.NCPU = n
		}

		if n, _ := flags.GetInt("batch-size"); n > 0 {
			cfg.Import.BatchSize = n
		}

		f, err := os.Open(args[0])
		if err != nil {
			log.Fatal(err)
		}

		var progress io.Writer = os.Stderr
		if quiet, _ := flags.GetBool("quiet"); quiet {
			progress = nil
		}

		in, err := cli.WrapInputFile(f, progress)
		if err != nil {
			log.Fatal(err)
		}
		defer in.Close()

		db, err := osmrecurse.Open(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		stats, err := runImport(cmd.Context(), in, db)
		if err != nil {
			log.Fatal(err)
		}

		renderStats(stats)
	},
}

func runImport(ctx context.Context, in io.Reader, db *osmrecurse.DB) (*loader.Stats, error) {
	start := time.Now()

	stats, err := db.Import(ctx, in)
	if err != nil {
		return nil, err
	}

	slog.Info("imported", "elapsed", time.Since(start))

	return stats, nil
}

func renderStats(s *loader.Stats) {
	fmt.Fprintf(out, "Nodes: %s\n", humanize.Comma(s.Nodes))
	fmt.Fprintf(out, "Ways: %s\n", humanize.Comma(s.Ways))
	fmt.Fprintf(out, "Relations: %s\n", humanize.Comma(s.Relations))
	fmt.Fprintf(out, "AtticNodes: %s\n", humanize.Comma(s.AtticNodes))
	fmt.Fprintf(out, "AtticWays: %s\n", humanize.Comma(s.AtticWays))

	if s.Nodes > 0 {
		fmt.Fprintf(out, "BoundingBox: %s\n", s.BoundingBox)
	}
}
