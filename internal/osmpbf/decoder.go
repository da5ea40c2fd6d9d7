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
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/destel/rill"

	"m4o.io/osmrecurse/model"
)

var (
	ErrUnexpectedBlob     = errors.New("unexpected blob type")
	ErrUnsupportedFeature = errors.New("unsupported required feature")
)

// Decoder reads and decodes OpenStreetMap PBF data from an input stream.
// Blocks are decoded concurrently but delivered in file order.
type Decoder struct {
	Header model.Header

	entities <-chan rill.Try[[]model.Entity]
	cancel   context.CancelFunc
}

// NewDecoder reads the file header off r and starts decoding the data blocks
// in the background. Call Close to release the background workers.
func NewDecoder(ctx context.Context, r io.Reader, opts ...DecoderOption) (*Decoder, error) {
	cfg := defaultDecoderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	blobs := generate(ctx, r, cfg.protoBatchSize)

	return &Decoder{
		Header:   hdr,
		entities: rill.OrderedMap(blobs, int(max(cfg.nCPU, 1)), decode),
		cancel:   cancel,
	}, nil
}

// Decode returns the entities of the next data block, io.EOF once the input
// is exhausted.
func (d *Decoder) Decode() ([]model.Entity, error) {
	t, ok := <-d.entities
	if !ok {
		return nil, io.EOF
	}

	if t.Error != nil {
		return nil, t.Error
	}

	return t.Value, nil
}

// Entities iterates over every remaining entity in file order. Iteration ends
// after the first error.
func (d *Decoder) Entities() iter.Seq2[model.Entity, error] {
	return func(yield func(model.Entity, error) bool) {
		for {
			entities, err := d.Decode()
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				yield(nil, err)
				return
			}

			for _, e := range entities {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// Close stops the background decoding.
func (d *Decoder) Close() {
	d.cancel()

	go func() {
		for range d.entities {
		}
	}()
}

func readHeader(r io.Reader) (model.Header, error) {
	b, err := readBlob(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return model.Header{}, fmt.Errorf("error reading header blob: %w", err)
	}

	if b.kind != osmHeaderType {
		return model.Header{}, fmt.Errorf("%w: expected %s but got %q", ErrUnexpectedBlob, osmHeaderType, b.kind)
	}

	buf, err := b.unpack()
	if err != nil {
		return model.Header{}, fmt.Errorf("error unpacking header blob: %w", err)
	}

	hdr, err := parseHeader(buf)
	if err != nil {
		return model.Header{}, fmt.Errorf("error unmarshalling header: %w", err)
	}

	if unreadable := hdr.Unreadable(); len(unreadable) > 0 {
		return model.Header{}, fmt.Errorf("%w: %s", ErrUnsupportedFeature, strings.Join(unreadable, ", "))
	}

	return hdr, nil
}

// generate reads blobs off r until it is exhausted or ctx is done.
func generate(ctx context.Context, r io.Reader, size int) <-chan rill.Try[blob] {
	out := make(chan rill.Try[blob], max(size, 0))

	go func() {
		defer close(out)

		for {
			b, err := readBlob(r)
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				slog.Error(err.Error())
			}

			select {
			case <-ctx.Done():
				return
			case out <- rill.Try[blob]{Value: b, Error: err}:
			}

			if err != nil {
				return
			}
		}
	}()

	return out
}

// decode unpacks a data blob and parses it into entities. Blobs of unknown
// types are skipped.
func decode(b blob) ([]model.Entity, error) {
	if b.kind != osmDataType {
		return nil, nil
	}

	buf, err := b.unpack()
	if err != nil {
		slog.Error("unable to unpack blob", "error", err)
		return nil, err
	}

	entities, err := parsePrimitiveBlock(buf)
	if err != nil {
		slog.Error("unable to parse block", "error", err)
		return nil, err
	}

	return entities, nil
}
