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

// Package config loads the configuration of the osmrecurse command.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/resource"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Budget BudgetConfig `yaml:"budget"`
	Import ImportConfig `yaml:"import"`
	Log    LogConfig    `yaml:"log"`
}

// StoreConfig selects the skeleton database.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// Compression of the blocks of the memory store.
	Compression string `yaml:"compression"`
}

// BudgetConfig bounds every query. Zero is unlimited.
type BudgetConfig struct {
	MaxDuration time.Duration `yaml:"max_duration"`
	MaxRows     int64         `yaml:"max_rows"`
	MaxBytes    int64         `yaml:"max_bytes"`
}

// ImportConfig tunes PBF imports.
type ImportConfig struct {
	// NCPU is the number of blob decoding workers, 0 picks one per spare CPU.
	NCPU      uint16 `yaml:"ncpu"`
	BatchSize int    `yaml:"batch_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:      DriverSQLite,
			Path:        "osmrecurse.db",
			Compression: codec.ZSTD.String(),
		},
		Budget: BudgetConfig{
			MaxDuration: 3 * time.Minute,
			MaxBytes:    512 << 20,
		},
		Import: ImportConfig{
			BatchSize: 10_000,
		},
		Log: LogConfig{
			Level: slog.LevelInfo.String(),
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads YAML from r over the defaults.
func Decode(r io.Reader) (*Config, error) {
	config := DefaultConfig()

	if err := yaml.NewDecoder(r).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error

	invalid := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			invalid("store.path is required for the %s driver", DriverSQLite)
		}
	default:
		invalid("store.driver %q is neither %s nor %s", c.Store.Driver, DriverMemory, DriverSQLite)
	}

	if _, err := codec.ParseCompression(c.Store.Compression); err != nil {
		invalid("store.compression: %v", err)
	}

	if c.Budget.MaxDuration < 0 || c.Budget.MaxRows < 0 || c.Budget.MaxBytes < 0 {
		invalid("budget limits must not be negative")
	}

	if c.Import.BatchSize <= 0 {
		invalid("import.batch_size must be positive")
	}

	if _, err := c.LogLevel(); err != nil {
		invalid("log.level: %v", err)
	}

	return errs
}

// ResourceBudget converts the budget settings.
func (c *Config) ResourceBudget() resource.Budget {
	return resource.Budget{
		MaxDuration: c.Budget.MaxDuration,
		MaxRows:     c.Budget.MaxRows,
		MaxBytes:    c.Budget.MaxBytes,
	}
}

// Compression returns the parsed store compression.
func (c *Config) Compression() codec.Compression {
	compression, err := codec.ParseCompression(c.Store.Compression)
	if err != nil {
		return codec.ZSTD
	}

	return compression
}

func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level

	err := l.UnmarshalText([]byte(c.Log.Level))

	return l, err
}
