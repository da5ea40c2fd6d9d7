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

package osmpbf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
)

func TestBlobRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("osm"), 100)

	for _, c := range []codec.Compression{codec.RAW, codec.ZLIB, codec.LZMA, codec.LZ4, codec.ZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeBlob(&buf, osmDataType, payload, c))

			b, err := readBlob(&buf)
			require.NoError(t, err)
			assert.Equal(t, osmDataType, b.kind)
			assert.Equal(t, c, b.compression)

			unpacked, err := b.unpack()
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)
		})
	}
}

func TestDataBeforeHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeBlob(&buf, osmDataType, nil, codec.RAW))

	_, err := NewDecoder(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrUnexpectedBlob)
}

func TestUnknownBlobsAreSkipped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeBlob(&buf, osmHeaderType, appendHeader(nil, model.Header{}), codec.RAW))
	require.NoError(t, writeBlob(&buf, "OSMIndex", []byte{1, 2, 3}, codec.RAW))

	enc := &Encoder{w: &buf, cfg: defaultEncoderConfig}
	require.NoError(t, enc.Encode(model.Way{ID: 1, NodeIDs: []model.ID{1, 2}}))
	require.NoError(t, enc.Close())

	dec, err := NewDecoder(context.Background(), &buf)
	require.NoError(t, err)

	defer dec.Close()

	skipped, err := dec.Decode()
	require.NoError(t, err)
	assert.Empty(t, skipped)

	ways, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, []model.Entity{model.Way{ID: 1, Tags: map[string]string{}, Info: &model.Info{Visible: true}, NodeIDs: []model.ID{1, 2}}}, ways)
}

func TestBzip2IsRejected(t *testing.T) {
	var b blob

	err := b.parse([]byte{byte(bBzipData<<3 | 2), 0})
	assert.ErrorIs(t, err, ErrUnknownCompressionType)
}

func TestDenseTags(t *testing.T) {
	tic := (&blockContext{strings: []string{"", "a", "b", "c"}}).newTagsContext([]int32{1, 2, 0, 0, 3, 1, 0})

	test_cases := []map[string]string{{"a": "b"}, {}, {"c": "a"}}

	for _, expected := range test_cases {
		tags, err := tic.decodeTags()
		require.NoError(t, err)
		assert.Equal(t, expected, tags)
	}
}

func TestStringTableReservesEmpty(t *testing.T) {
	st := newStringTable([]model.Entity{model.Node{ID: 1, Tags: map[string]string{"a": "b"}}})

	assert.Equal(t, []string{"", "a", "b"}, st.strings)
	assert.Equal(t, int32(0), st.indexOf(""))
}
