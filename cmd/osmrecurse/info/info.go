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

// Package info prints what a PBF file or a store holds.
package info

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"m4o.io/osmrecurse"
	"m4o.io/osmrecurse/cmd/osmrecurse/cli"
	"m4o.io/osmrecurse/internal/osmpbf"
	"m4o.io/osmrecurse/model"
	"m4o.io/osmrecurse/storage"
)

var out io.Writer = os.Stdout

type extendedHeader struct {
	model.Header

	NodeCount     int64
	WayCount      int64
	RelationCount int64
}

func init() {
	cli.RootCmd.AddCommand(infoCmd, statsCmd)

	flags := infoCmd.Flags()
	flags.BoolP("json", "j", false, "format information in JSON")
	flags.Uint16P("cpu", "c", osmpbf.DefaultNCpu(), "number of CPUs to use for scanning")
	flags.BoolP("extended", "e", false, "provide extended information (scans entire file)")

	statsCmd.Flags().BoolP("json", "j", false, "format counts in JSON")
}

var infoCmd = &cobra.Command{
	Use:   "info [<OSM file>]",
	Short: "Print information about an OSM file",
	Long:  "Print information about an OSM file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var f *os.File
		var err error
		if len(args) == 1 {
			f, err = os.Open(args[0])
			if err != nil {
				log.Fatal(err)
			}
		} else {
			f = os.Stdin
		}

		flags := cmd.Flags()

		ncpu, err := flags.GetUint16("cpu")
		if err != nil {
			log.Fatal(err)
		}

		extended, err := flags.GetBool("extended")
		if err != nil {
			log.Fatal(err)
		}

		jsonfmt, err := flags.GetBool("json")
		if err != nil {
			log.Fatal(err)
		}

		var progress io.Writer
		if extended && !jsonfmt {
			progress = os.Stderr
		}

		in, err := cli.WrapInputFile(f, progress)
		if err != nil {
			log.Fatal(err)
		}

		info, err := runInfo(cmd.Context(), in, ncpu, extended)
		if err != nil {
			log.Fatal(err)
		}

		if err := in.Close(); err != nil {
			log.Fatal(err)
		}

		if jsonfmt {
			// marshall the smallest struct needed
			var v any = info.Header
			if extended {
				v = info
			}

			err = renderJSON(v)
		} else {
			renderTxt(info, extended)
		}

		if err != nil {
			log.Fatal(err)
		}
	},
}

func runInfo(ctx context.Context, in io.Reader, ncpu uint16, extended bool) (*extendedHeader, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := osmpbf.NewDecoder(ctx, in, osmpbf.WithNCpus(ncpu))
	if err != nil {
		return nil, err
	}
	defer d.Close()

	info := &extendedHeader{Header: d.Header}

	if !extended {
		return info, nil
	}

	for e, err := range d.Entities() {
		if err != nil {
			return nil, err
		}

		switch e.GetType() {
		case model.NODE:
			info.NodeCount++
		case model.WAY:
			info.WayCount++
		case model.RELATION:
			info.RelationCount++
		}
	}

	return info, nil
}

func renderJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, string(b))

	return err
}

func renderTxt(info *extendedHeader, extended bool) {
	fmt.Fprintf(out, "BoundingBox: %s\n", info.BoundingBox)
	fmt.Fprintf(out, "RequiredFeatures: %s\n", strings.Join(info.RequiredFeatures, ", "))
	fmt.Fprintf(out, "OptionalFeatures: %v\n", strings.Join(info.OptionalFeatures, ", "))
	fmt.Fprintf(out, "WritingProgram: %s\n", info.WritingProgram)
	fmt.Fprintf(out, "Source: %s\n", info.Source)
	fmt.Fprintf(out, "OsmosisReplicationTimestamp: %s\n", info.OsmosisReplicationTimestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "OsmosisReplicationSequenceNumber: %d\n", info.OsmosisReplicationSequenceNumber)
	fmt.Fprintf(out, "OsmosisReplicationBaseURL: %s\n", info.OsmosisReplicationBaseURL)
	if extended {
		fmt.Fprintf(out, "NodeCount: %s\n", humanize.Comma(info.NodeCount))
		fmt.Fprintf(out, "WayCount: %s\n", humanize.Comma(info.WayCount))
		fmt.Fprintf(out, "RelationCount: %s\n", humanize.Comma(info.RelationCount))
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the row counts of the store",
	Long:  "Print the number of rows in every table of the configured store",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		db, err := osmrecurse.OpenStore(cli.Config())
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		counts, err := runStats(cmd.Context(), db)
		if err != nil {
			log.Fatal(err)
		}

		jsonfmt, err := cmd.Flags().GetBool("json")
		if err != nil {
			log.Fatal(err)
		}

		if jsonfmt {
			err = renderJSON(counts)
		} else {
			renderCounts(counts)
		}

		if err != nil {
			log.Fatal(err)
		}
	},
}

// tableCount is the row count of one table.
type tableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

func runStats(ctx context.Context, db storage.Store) ([]tableCount, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	counts := make([]tableCount, 0, len(storage.Tables))

	for _, t := range storage.Tables {
		n, err := db.Count(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", t, err)
		}

		counts = append(counts, tableCount{Table: t.String(), Rows: n})
	}

	return counts, nil
}

func renderCounts(counts []tableCount) {
	for _, c := range counts {
		fmt.Fprintf(out, "%s: %s\n", c.Table, humanize.Comma(c.Rows))
	}
}
