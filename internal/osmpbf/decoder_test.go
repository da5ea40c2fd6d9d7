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

package osmpbf_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/internal/osmpbf"
	"m4o.io/osmrecurse/model"
)

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func info(version int32, visible bool) *model.Info {
	return &model.Info{
		Version:   version,
		UID:       42,
		Timestamp: stamp.Add(time.Duration(version) * time.Hour),
		Changeset: 1000 + int64(version),
		User:      "mapper",
		Visible:   visible,
	}
}

func fixture() []model.Entity {
	return []model.Entity{
		model.Node{ID: 1, Tags: map[string]string{}, Info: info(1, true), Lat: 48.8566, Lon: 2.3522},
		model.Node{ID: 2, Tags: map[string]string{"amenity": "cafe", "name": "Le Nemours"}, Info: info(2, true), Lat: 48.8630, Lon: 2.3364},
		model.Node{ID: 7, Tags: map[string]string{}, Info: info(1, false), Lat: -33.8688, Lon: 151.2093},
		model.Way{ID: 10, Tags: map[string]string{"highway": "residential"}, Info: info(3, true), NodeIDs: []model.ID{1, 2, 1}},
		model.Relation{ID: 20, Tags: map[string]string{"type": "multipolygon"}, Info: info(1, true), Members: []model.Member{
			{ID: 10, Type: model.WAY, Role: "outer"},
			{ID: 2, Type: model.NODE, Role: "admin_centre"},
			{ID: 21, Type: model.RELATION, Role: ""},
		}},
		model.Node{ID: 3, Tags: map[string]string{}, Info: info(1, true), Lat: 0, Lon: 0},
	}
}

func encode(t *testing.T, hdr model.Header, entities []model.Entity, opts ...osmpbf.EncoderOption) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer

	enc, err := osmpbf.NewEncoder(&buf, hdr, opts...)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(entities...))
	require.NoError(t, enc.Close())

	return &buf
}

func decodeAll(t *testing.T, r io.Reader, opts ...osmpbf.DecoderOption) (model.Header, []model.Entity) {
	t.Helper()

	dec, err := osmpbf.NewDecoder(context.Background(), r, opts...)
	require.NoError(t, err)

	defer dec.Close()

	var entities []model.Entity

	for e, err := range dec.Entities() {
		require.NoError(t, err)

		entities = append(entities, e)
	}

	return dec.Header, entities
}

func assertEntities(t *testing.T, expected, actual []model.Entity) {
	t.Helper()

	require.Len(t, actual, len(expected))

	for i := range expected {
		switch e := expected[i].(type) {
		case model.Node:
			a, ok := actual[i].(model.Node)
			require.True(t, ok, "entity %d is a %T", i, actual[i])
			assert.Equal(t, e.ID, a.ID)
			assert.Equal(t, e.Tags, a.Tags)
			assert.Equal(t, e.Info, a.Info)
			assert.True(t, e.Lat.EqualWithin(a.Lat, model.E7), "lat %v != %v", e.Lat, a.Lat)
			assert.True(t, e.Lon.EqualWithin(a.Lon, model.E7), "lon %v != %v", e.Lon, a.Lon)
		default:
			assert.Equal(t, e, actual[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	test_cases := []struct {
		name string
		opts []osmpbf.EncoderOption
	}{
		{"dense zlib", nil},
		{"plain nodes", []osmpbf.EncoderOption{osmpbf.WithDenseNodes(false)}},
		{"raw", []osmpbf.EncoderOption{osmpbf.WithCompression(codec.RAW)}},
		{"lzma", []osmpbf.EncoderOption{osmpbf.WithCompression(codec.LZMA)}},
		{"lz4", []osmpbf.EncoderOption{osmpbf.WithCompression(codec.LZ4)}},
		{"zstd", []osmpbf.EncoderOption{osmpbf.WithCompression(codec.ZSTD)}},
		{"small blocks", []osmpbf.EncoderOption{osmpbf.WithBlockSize(2)}},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := encode(t, model.Header{WritingProgram: "test"}, fixture(), tc.opts...)

			hdr, entities := decodeAll(t, buf, osmpbf.WithNCpus(2))

			assert.Equal(t, "test", hdr.WritingProgram)
			assertEntities(t, fixture(), entities)
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	expected := model.Header{
		BoundingBox:                      &model.BoundingBox{Top: 49, Left: 2, Bottom: 48, Right: 3},
		RequiredFeatures:                 []string{"OsmSchema-V0.6", "DenseNodes", "HistoricalInformation"},
		OptionalFeatures:                 []string{"Sort.Type_then_ID"},
		WritingProgram:                   "osmrecurse",
		Source:                           "unit test",
		OsmosisReplicationTimestamp:      stamp,
		OsmosisReplicationSequenceNumber: 4711,
		OsmosisReplicationBaseURL:        "https://planet.example.org/replication",
	}

	hdr, entities := decodeAll(t, encode(t, expected, nil))

	assert.Empty(t, entities)
	assert.True(t, expected.BoundingBox.EqualWithin(hdr.BoundingBox, model.E9))

	hdr.BoundingBox = expected.BoundingBox
	assert.Equal(t, expected, hdr)
}

func TestDecodeBlocks(t *testing.T) {
	buf := encode(t, model.Header{}, fixture(), osmpbf.WithBlockSize(4))

	dec, err := osmpbf.NewDecoder(context.Background(), buf, osmpbf.WithNCpus(1), osmpbf.WithProtoBatchSize(1))
	require.NoError(t, err)

	defer dec.Close()

	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Len(t, first, 4)

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.Len(t, second, 2)

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderErrors(t *testing.T) {
	valid := encode(t, model.Header{}, nil, osmpbf.WithCompression(codec.RAW)).Bytes()

	test_cases := []struct {
		name     string
		input    []byte
		expected error
	}{
		{"empty", nil, io.ErrUnexpectedEOF},
		{"truncated header", valid[:len(valid)-3], io.ErrUnexpectedEOF},
		{"oversized header", binary.BigEndian.AppendUint32(nil, osmpbf.MaxBlobHeaderSize+1), osmpbf.ErrBlobTooLarge},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := osmpbf.NewDecoder(context.Background(), bytes.NewReader(tc.input))
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestUnsupportedFeature(t *testing.T) {
	buf := encode(t, model.Header{RequiredFeatures: []string{"OsmSchema-V0.6", "LocationsOnWays"}}, nil)

	_, err := osmpbf.NewDecoder(context.Background(), buf)
	assert.ErrorIs(t, err, osmpbf.ErrUnsupportedFeature)
}

func TestTruncatedData(t *testing.T) {
	file := encode(t, model.Header{}, fixture()).Bytes()

	dec, err := osmpbf.NewDecoder(context.Background(), bytes.NewReader(file[:len(file)-5]))
	require.NoError(t, err)

	defer dec.Close()

	var last error
	for _, err := range dec.Entities() {
		last = err
	}

	assert.True(t, errors.Is(last, io.ErrUnexpectedEOF), "got %v", last)
}

func TestCloseEarly(t *testing.T) {
	buf := encode(t, model.Header{}, fixture(), osmpbf.WithBlockSize(1))

	dec, err := osmpbf.NewDecoder(context.Background(), buf)
	require.NoError(t, err)

	_, err = dec.Decode()
	require.NoError(t, err)

	dec.Close()
}
