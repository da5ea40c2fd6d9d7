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

package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/config"
	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/resource"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := config.DefaultConfig()

	require.NoError(t, c.Validate())
	assert.Equal(t, codec.ZSTD, c.Compression())

	level, err := c.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osmrecurse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
  compression: lz4
budget:
  max_duration: 30s
  max_rows: 1000
import:
  ncpu: 2
log:
  level: debug
`), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, config.DriverMemory, c.Store.Driver)
	assert.Equal(t, codec.LZ4, c.Compression())
	assert.Equal(t, uint16(2), c.Import.NCPU)
	assert.Equal(t, 10_000, c.Import.BatchSize, "defaults survive")
	assert.Equal(t, resource.Budget{MaxDuration: 30 * time.Second, MaxRows: 1000, MaxBytes: 512 << 20}, c.ResourceBudget())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: ["), 0o600))

	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	test_cases := []struct {
		name   string
		mutate func(c *config.Config)
		errors int
	}{
		{"memory needs no path", func(c *config.Config) { c.Store.Driver, c.Store.Path = config.DriverMemory, "" }, 0},
		{"sqlite needs a path", func(c *config.Config) { c.Store.Path = "" }, 1},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "postgres" }, 1},
		{"unknown compression", func(c *config.Config) { c.Store.Compression = "bzip2" }, 1},
		{"negative budget", func(c *config.Config) { c.Budget.MaxRows = -1 }, 1},
		{"batch size", func(c *config.Config) { c.Import.BatchSize = 0 }, 1},
		{"log level", func(c *config.Config) { c.Log.Level = "loud" }, 1},
		{"all reported", func(c *config.Config) { c.Store.Driver, c.Import.BatchSize = "", -1 }, 2},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			c := config.DefaultConfig()
			tc.mutate(c)

			err := c.Validate()
			if tc.errors == 0 {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, config.ErrInvalid)

			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			assert.Len(t, merr.Errors, tc.errors)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	c, err := config.Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), c)
}
