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

// Package osmpbf reads and writes the OpenStreetMap PBF file format.
package osmpbf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/internal/codec"
)

const (
	osmHeaderType = "OSMHeader"
	osmDataType   = "OSMData"

	// MaxBlobHeaderSize is the largest blob header the format allows.
	MaxBlobHeaderSize = 64 * 1024

	// MaxBlobSize is the largest uncompressed blob the format allows.
	MaxBlobSize = 32 * 1024 * 1024
)

var (
	ErrUnknownCompressionType = errors.New("unknown blob compression type")
	ErrBlobTooLarge           = errors.New("blob exceeds the maximum size")
	ErrWireType               = errors.New("unexpected wire type")
)

// blob header fields
const (
	bhType     protowire.Number = 1
	bhDataSize protowire.Number = 3
)

// blob fields
const (
	bRaw      protowire.Number = 1
	bRawSize  protowire.Number = 2
	bZlibData protowire.Number = 3
	bLzmaData protowire.Number = 4
	bBzipData protowire.Number = 5
	bLz4Data  protowire.Number = 6
	bZstdData protowire.Number = 7
)

// blob is a file block whose payload is still compressed.
type blob struct {
	kind        string
	compression codec.Compression
	rawSize     int
	data        []byte
}

// unpack uncompresses the payload of the blob.
//
// This is kept apart from readBlob so that blobs can be uncompressed
// concurrently.
func (b blob) unpack() ([]byte, error) {
	if b.compression == codec.RAW {
		return b.data, nil
	}

	return codec.Inflate(b.data, b.compression, b.rawSize)
}

// readBlob reads the next length prefixed blob header and the blob that
// follows it. io.EOF is returned untouched when r is exhausted between blobs.
func readBlob(r io.Reader) (blob, error) {
	var size uint32

	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		if errors.Is(err, io.EOF) {
			return blob{}, io.EOF
		}

		return blob{}, fmt.Errorf("error reading blob header size: %w", err)
	}

	if size > MaxBlobHeaderSize {
		return blob{}, fmt.Errorf("%w: header of %d bytes", ErrBlobTooLarge, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return blob{}, fmt.Errorf("error reading blob header: %w", err)
	}

	var (
		b        blob
		dataSize int
	)

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case bhType:
			return consumeString(typ, v, &b.kind)
		case bhDataSize:
			return consumeInt(typ, v, &dataSize)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return blob{}, fmt.Errorf("error unmarshalling blob header: %w", err)
	}

	if dataSize > MaxBlobSize {
		return blob{}, fmt.Errorf("%w: blob of %d bytes", ErrBlobTooLarge, dataSize)
	}

	buf = make([]byte, dataSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return blob{}, fmt.Errorf("error reading blob: %w", err)
	}

	if err := b.parse(buf); err != nil {
		return blob{}, fmt.Errorf("error unmarshalling blob: %w", err)
	}

	return b, nil
}

func (b *blob) parse(buf []byte) error {
	payload := func(c codec.Compression, typ protowire.Type, v []byte) (int, error) {
		b.compression = c

		return consumeBytes(typ, v, &b.data)
	}

	return codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case bRaw:
			return payload(codec.RAW, typ, v)
		case bRawSize:
			return consumeInt(typ, v, &b.rawSize)
		case bZlibData:
			return payload(codec.ZLIB, typ, v)
		case bLzmaData:
			return payload(codec.LZMA, typ, v)
		case bBzipData:
			return 0, fmt.Errorf("%w: bzip2", ErrUnknownCompressionType)
		case bLz4Data:
			return payload(codec.LZ4, typ, v)
		case bZstdData:
			return payload(codec.ZSTD, typ, v)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
}

// writeBlob compresses data and writes it as one file block of the kind.
func writeBlob(w io.Writer, kind string, data []byte, c codec.Compression) error {
	packed, err := codec.Deflate(data, c)
	if err != nil {
		return err
	}

	var field protowire.Number

	switch c {
	case codec.RAW:
		field = bRaw
	case codec.ZLIB:
		field = bZlibData
	case codec.LZMA:
		field = bLzmaData
	case codec.LZ4:
		field = bLz4Data
	case codec.ZSTD:
		field = bZstdData
	default:
		return fmt.Errorf("%w: %v", ErrUnknownCompressionType, c)
	}

	var body []byte
	if c != codec.RAW {
		body = protowire.AppendTag(body, bRawSize, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(len(data)))
	}

	body = protowire.AppendTag(body, field, protowire.BytesType)
	body = protowire.AppendBytes(body, packed)

	var hdr []byte
	hdr = protowire.AppendTag(hdr, bhType, protowire.BytesType)
	hdr = protowire.AppendString(hdr, kind)
	hdr = protowire.AppendTag(hdr, bhDataSize, protowire.VarintType)
	hdr = protowire.AppendVarint(hdr, uint64(len(body)))

	if err := binary.Write(w, binary.BigEndian, uint32(len(hdr))); err != nil {
		return fmt.Errorf("error writing blob header size: %w", err)
	}

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("error writing blob header: %w", err)
	}

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("error writing blob: %w", err)
	}

	return nil
}

func consumeVarint(typ protowire.Type, v []byte, visit func(uint64)) (int, error) {
	if typ != protowire.VarintType {
		return 0, ErrWireType
	}

	x, n := protowire.ConsumeVarint(v)
	if n >= 0 {
		visit(x)
	}

	return n, nil
}

func consumeInt[T ~int | ~int32 | ~int64](typ protowire.Type, v []byte, dst *T) (int, error) {
	return consumeVarint(typ, v, func(x uint64) { *dst = T(x) })
}

func consumeSint64(typ protowire.Type, v []byte, dst *int64) (int, error) {
	return consumeVarint(typ, v, func(x uint64) { *dst = protowire.DecodeZigZag(x) })
}

func consumeBytes(typ protowire.Type, v []byte, dst *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, ErrWireType
	}

	x, n := protowire.ConsumeBytes(v)
	if n >= 0 {
		*dst = x
	}

	return n, nil
}

func consumeString(typ protowire.Type, v []byte, dst *string) (int, error) {
	var b []byte

	n, err := consumeBytes(typ, v, &b)
	if n >= 0 {
		*dst = string(b)
	}

	return n, err
}

// consumePacked reads one occurrence of a repeated varint field, packed or
// not, appending the decoded values to dst.
func consumePacked[T any](num protowire.Number, typ protowire.Type, v []byte, dst *[]T, dec func(uint64) T) (int, error) {
	if typ != protowire.VarintType && typ != protowire.BytesType {
		return 0, ErrWireType
	}

	return codec.ConsumeVarints(num, typ, v, func(x uint64) { *dst = append(*dst, dec(x)) }), nil
}

func zigzag64(x uint64) int64 { return protowire.DecodeZigZag(x) }

func zigzag32(x uint64) int32 { return int32(protowire.DecodeZigZag(x & 0xffffffff)) }

func plain32(x uint64) int32 { return int32(x) }

func unsigned32(x uint64) uint32 { return uint32(x) }
