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

// Package osmrecurse answers recurse queries, the traversals of the
// membership graph between nodes, ways and relations, over a store of
// OpenStreetMap skeletons loaded from PBF files.
package osmrecurse

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"m4o.io/osmrecurse/config"
	"m4o.io/osmrecurse/internal/metrics"
	"m4o.io/osmrecurse/internal/osmpbf"
	"m4o.io/osmrecurse/loader"
	"m4o.io/osmrecurse/storage"
	"m4o.io/osmrecurse/storage/memory"
	"m4o.io/osmrecurse/storage/sqlite"
)

// DB is an opened store together with the configuration queries against it
// run with.
type DB struct {
	store   storage.Database
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// OpenStore opens the configured store, creating its schema when needed.
func OpenStore(cfg *config.Config) (storage.Database, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.New(memory.WithCompression(cfg.Compression())), nil
	case config.DriverSQLite:
		s, err := sqlite.NewStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}

		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating %s: %w", cfg.Store.Path, err)
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalid, cfg.Store.Driver)
	}
}

// Open validates cfg and opens the store it describes.
func Open(cfg *config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	db := &DB{store: store, cfg: cfg, logger: o.logger}
	if o.registerer != nil {
		db.metrics = metrics.New(o.registerer)
	}

	return db, nil
}

// Store returns the underlying store.
func (db *DB) Store() storage.Database {
	return db.store
}

// Close releases the store.
func (db *DB) Close() error {
	return db.store.Close()
}

// Import decodes the PBF stream in and loads its entities, history
// included, into the store.
func (db *DB) Import(ctx context.Context, in io.Reader) (*loader.Stats, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []osmpbf.DecoderOption
	if db.cfg.Import.NCPU > 0 {
		opts = append(opts, osmpbf.WithNCpus(db.cfg.Import.NCPU))
	}

	d, err := osmpbf.NewDecoder(ctx, in, opts...)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	defer d.Close()

	db.logger.Info("importing", "writing_program", d.Header.WritingProgram, "features", d.Header.RequiredFeatures,
		"history", d.Header.HasHistory())

	return loader.Load(ctx, db.store, d.Entities(),
		loader.WithBatchSize(db.cfg.Import.BatchSize),
		loader.WithLogger(db.logger))
}
