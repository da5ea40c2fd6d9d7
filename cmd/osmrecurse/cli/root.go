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

// Package cli holds the root command and what its subcommands share.
package cli

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"m4o.io/osmrecurse/config"
)

var (
	configFile *os.File
	loaded     *config.Config
)

// RootCmd is the osmrecurse command. Subcommands register themselves with it.
var RootCmd = &cobra.Command{
	Use:   "osmrecurse",
	Short: "Traverse the membership graph of OpenStreetMap data",
	Long:  "Import OpenStreetMap PBF files into a skeleton store and traverse the parent and child relationships of its entities",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		level, _ := cfg.LogLevel()
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		loaded = cfg

		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.VarP(NewReaderValue(nil, &configFile, "file"), "config", "f", "YAML configuration file")
	flags.String("driver", config.DriverSQLite, "store driver, memory or sqlite")
	flags.StringP("store", "s", "osmrecurse.db", "SQLite store file")
	flags.String("log-level", "info", "log level")
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// Config returns the configuration the command runs with.
func Config() *config.Config {
	if loaded == nil {
		return config.DefaultConfig()
	}

	return loaded
}

// LoadConfig reads the configuration file, when one was given, and applies
// the flags set on the command line over it.
func LoadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if configFile != nil {
		var err error
		if cfg, err = config.Decode(configFile); err != nil {
			return nil, err
		}
	}

	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}

	override("driver", &cfg.Store.Driver)
	override("store", &cfg.Store.Path)
	override("log-level", &cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
