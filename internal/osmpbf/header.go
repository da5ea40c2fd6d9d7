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
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"m4o.io/osmrecurse/internal/codec"
	"m4o.io/osmrecurse/model"
)

// header block fields
const (
	hbBBox                      protowire.Number = 1
	hbRequiredFeatures          protowire.Number = 4
	hbOptionalFeatures          protowire.Number = 5
	hbWritingProgram            protowire.Number = 16
	hbSource                    protowire.Number = 17
	hbReplicationTimestamp      protowire.Number = 32
	hbReplicationSequenceNumber protowire.Number = 33
	hbReplicationBaseURL        protowire.Number = 34
)

// header bounding box fields, in nanodegrees
const (
	bbLeft   protowire.Number = 1
	bbRight  protowire.Number = 2
	bbTop    protowire.Number = 3
	bbBottom protowire.Number = 4
)

const nanodegrees = 1e-9

// parseHeader converts the payload of an OSMHeader blob.
func parseHeader(buf []byte) (model.Header, error) {
	var hdr model.Header

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var s string

		switch num {
		case hbBBox:
			var b []byte

			n, err := consumeBytes(typ, v, &b)
			if err != nil || n < 0 {
				return n, err
			}

			hdr.BoundingBox, err = parseHeaderBBox(b)

			return n, err
		case hbRequiredFeatures:
			n, err := consumeString(typ, v, &s)
			hdr.RequiredFeatures = append(hdr.RequiredFeatures, s)

			return n, err
		case hbOptionalFeatures:
			n, err := consumeString(typ, v, &s)
			hdr.OptionalFeatures = append(hdr.OptionalFeatures, s)

			return n, err
		case hbWritingProgram:
			return consumeString(typ, v, &hdr.WritingProgram)
		case hbSource:
			return consumeString(typ, v, &hdr.Source)
		case hbReplicationTimestamp:
			return consumeVarint(typ, v, func(x uint64) {
				hdr.OsmosisReplicationTimestamp = time.Unix(int64(x), 0).UTC()
			})
		case hbReplicationSequenceNumber:
			return consumeInt(typ, v, &hdr.OsmosisReplicationSequenceNumber)
		case hbReplicationBaseURL:
			return consumeString(typ, v, &hdr.OsmosisReplicationBaseURL)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})

	return hdr, err
}

func parseHeaderBBox(buf []byte) (*model.BoundingBox, error) {
	var left, right, top, bottom int64

	err := codec.ForEachField(buf, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case bbLeft:
			return consumeSint64(typ, v, &left)
		case bbRight:
			return consumeSint64(typ, v, &right)
		case bbTop:
			return consumeSint64(typ, v, &top)
		case bbBottom:
			return consumeSint64(typ, v, &bottom)
		default:
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
	})
	if err != nil {
		return nil, err
	}

	return &model.BoundingBox{
		Top:    model.Degrees(float64(top) * nanodegrees),
		Left:   model.Degrees(float64(left) * nanodegrees),
		Bottom: model.Degrees(float64(bottom) * nanodegrees),
		Right:  model.Degrees(float64(right) * nanodegrees),
	}, nil
}

// appendHeader encodes hdr as the payload of an OSMHeader blob.
func appendHeader(b []byte, hdr model.Header) []byte {
	if bbox := hdr.BoundingBox; bbox != nil {
		var bb []byte
		bb = appendSint64(bb, bbLeft, toNanodegrees(bbox.Left))
		bb = appendSint64(bb, bbRight, toNanodegrees(bbox.Right))
		bb = appendSint64(bb, bbTop, toNanodegrees(bbox.Top))
		bb = appendSint64(bb, bbBottom, toNanodegrees(bbox.Bottom))

		b = protowire.AppendTag(b, hbBBox, protowire.BytesType)
		b = protowire.AppendBytes(b, bb)
	}

	for _, f := range hdr.RequiredFeatures {
		b = appendString(b, hbRequiredFeatures, f)
	}

	for _, f := range hdr.OptionalFeatures {
		b = appendString(b, hbOptionalFeatures, f)
	}

	if hdr.WritingProgram != "" {
		b = appendString(b, hbWritingProgram, hdr.WritingProgram)
	}

	if hdr.Source != "" {
		b = appendString(b, hbSource, hdr.Source)
	}

	if !hdr.OsmosisReplicationTimestamp.IsZero() {
		b = appendVarint(b, hbReplicationTimestamp, uint64(hdr.OsmosisReplicationTimestamp.Unix()))
	}

	if hdr.OsmosisReplicationSequenceNumber != 0 {
		b = appendVarint(b, hbReplicationSequenceNumber, uint64(hdr.OsmosisReplicationSequenceNumber))
	}

	if hdr.OsmosisReplicationBaseURL != "" {
		b = appendString(b, hbReplicationBaseURL, hdr.OsmosisReplicationBaseURL)
	}

	return b
}

func toNanodegrees(d model.Degrees) int64 {
	return int64(math.Round(float64(d) / nanodegrees))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendSint64(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, s)
}
