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

// Package codec is the wire format of stored skeletons: protobuf-encoded
// messages, delta coded where ids run in sequence, inside a compressed
// envelope.
package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz/lzma"
	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/internal/codec/packers"
)

// Compression is the compression applied to a packed block.
type Compression int

const (
	RAW Compression = iota
	ZLIB
	LZMA
	LZ4
	ZSTD
)

var ErrUnknownCompressionType = errors.New("unknown block compression type")

var compressionNames = map[Compression]string{
	RAW:  "raw",
	ZLIB: "zlib",
	LZMA: "lzma",
	LZ4:  "lz4",
	ZSTD: "zstd",
}

func (c Compression) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}

	return fmt.Sprintf("Compression(%d)", int(c))
}

// ParseCompression converts a compression name, case insensitive, to a
// Compression.
func ParseCompression(s string) (Compression, error) {
	for c, name := range compressionNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}

	return RAW, fmt.Errorf("%w: %q", ErrUnknownCompressionType, s)
}

// Packer is the interface that groups methods for packing the contents of a
// block.
type Packer interface {
	// WriteCloser is used to write the contents of the block to be packed.
	// Be sure to call the Close method to ensure that all the contents are
	// packed.
	io.WriteCloser

	// Bytes returns the packed contents.
	Bytes() []byte
}

// envelope fields
const (
	envCompression protowire.Number = 1
	envRawSize     protowire.Number = 2
	envData        protowire.Number = 3
)

// Pack compresses data and wraps it in an envelope recording the
// compression and the raw size.
func Pack(data []byte, c Compression) ([]byte, error) {
	packed, err := Deflate(data, c)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, len(packed)+16)
	b = protowire.AppendTag(b, envCompression, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c))
	b = protowire.AppendTag(b, envRawSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(data)))
	b = protowire.AppendTag(b, envData, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)

	return b, nil
}

// Deflate compresses data without any envelope.
func Deflate(data []byte, c Compression) ([]byte, error) {
	p, err := newPacker(c)
	if err != nil {
		return nil, err
	}

	if _, err = p.Write(data); err != nil {
		return nil, fmt.Errorf("could not compress block: %w", err)
	}

	if err = p.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}

	return p.Bytes(), nil
}

// Unpack reverses Pack.
func Unpack(b []byte) ([]byte, error) {
	var (
		c       Compression
		rawSize int
		data    []byte
	)

	err := ForEachField(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == envCompression && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			c = Compression(x)

			return n, nil
		case num == envRawSize && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			rawSize = int(x)

			return n, nil
		case num == envData && typ == protowire.BytesType:
			x, n := protowire.ConsumeBytes(v)
			data = x

			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("unable to read envelope: %w", err)
	}

	return Inflate(data, c, rawSize)
}

// Inflate decompresses data that Deflate compressed with c, checking that it
// yields exactly rawSize bytes.
func Inflate(data []byte, c Compression, rawSize int) ([]byte, error) {
	var factory func(b []byte) (io.Reader, error)

	switch c {
	case RAW:
		return data, nil
	case ZLIB:
		factory = func(b []byte) (io.Reader, error) {
			return zlib.NewReader(bytes.NewReader(b))
		}
	case LZMA:
		factory = func(b []byte) (io.Reader, error) {
			return lzma.NewReader(bytes.NewReader(b))
		}
	case LZ4:
		factory = func(b []byte) (io.Reader, error) {
			return lz4.NewReader(bytes.NewReader(b)), nil
		}
	case ZSTD:
		factory = func(b []byte) (io.Reader, error) {
			d, err := zstd.NewReader(bytes.NewReader(b), zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}

			return d.IOReadCloser(), nil
		}
	default:
		return nil, ErrUnknownCompressionType
	}

	return inflate(factory, data, rawSize)
}

func inflate(factory func(b []byte) (io.Reader, error), data []byte, rawSize int) ([]byte, error) {
	rdr, err := factory(data)
	if err != nil {
		return nil, fmt.Errorf("unpacker factory error: %w", err)
	}

	if c, ok := rdr.(io.Closer); ok {
		defer c.Close()
	}

	buf := bytes.NewBuffer(make([]byte, 0, rawSize+bytes.MinRead))
	if n, err := buf.ReadFrom(rdr); err != nil {
		return nil, fmt.Errorf("unpacker read error: %w", err)
	} else if n != int64(rawSize) {
		return nil, fmt.Errorf("raw block data size %d but expected %d", n, rawSize)
	}

	return buf.Bytes(), nil
}

// newPacker creates the appropriate Packer for the compression.
func newPacker(c Compression) (Packer, error) {
	switch c {
	case RAW:
		return packers.NewRawPacker(), nil
	case ZLIB:
		return packers.NewZlibPacker(), nil
	case LZMA:
		return packers.NewLzmaPacker(), nil
	case LZ4:
		return packers.NewLz4Packer(), nil
	case ZSTD:
		return packers.NewZstdPacker(), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCompressionType, c)
	}
}
