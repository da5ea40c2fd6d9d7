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
	"runtime"

	"m4o.io/osmrecurse/internal/codec"
)

const (
	// DefaultBatchSize is the default number of blobs read ahead of the
	// decoding workers.
	DefaultBatchSize = 16

	// DefaultBlockSize is the default number of entities per written block.
	DefaultBlockSize = 8000
)

// DefaultNCpu provides the default number of CPUs.
func DefaultNCpu() uint16 {
	cpus := uint16(runtime.GOMAXPROCS(-1))

	return max(cpus-1, 1)
}

// decoderOptions provides optional configuration parameters for Decoder construction.
type decoderOptions struct {
	protoBatchSize int    // blobs read ahead of decoding
	nCPU           uint16 // the number of CPUs to use for background processing
}

// DecoderOption configures how we set up the decoder.
type DecoderOption func(*decoderOptions)

// WithProtoBatchSize lets you set how many blobs are read ahead of decoding.
func WithProtoBatchSize(s int) DecoderOption {
	return func(o *decoderOptions) {
		o.protoBatchSize = s
	}
}

// WithNCpus lets you set the number of CPUs to use for background processing.
func WithNCpus(n uint16) DecoderOption {
	return func(o *decoderOptions) {
		o.nCPU = n
	}
}

// defaultDecoderConfig provides a default configuration for decoders.
var defaultDecoderConfig = decoderOptions{
	protoBatchSize: DefaultBatchSize,
	nCPU:           DefaultNCpu(),
}

// encoderOptions provides optional configuration parameters for Encoder construction.
type encoderOptions struct {
	compression codec.Compression
	blockSize   int
	denseNodes  bool
}

// EncoderOption configures how we set up the encoder.
type EncoderOption func(*encoderOptions)

// WithCompression lets you set the compression of the written blobs.
func WithCompression(c codec.Compression) EncoderOption {
	return func(o *encoderOptions) {
		o.compression = c
	}
}

// WithBlockSize lets you set the number of entities per block.
func WithBlockSize(n int) EncoderOption {
	return func(o *encoderOptions) {
		o.blockSize = n
	}
}

var defaultEncoderConfig = encoderOptions{
	compression: codec.ZLIB,
	blockSize:   DefaultBlockSize,
	denseNodes:  true,
}

// WithDenseNodes lets you choose between dense and plain node encoding.
func WithDenseNodes(dense bool) EncoderOption {
	return func(o *encoderOptions) {
		o.denseNodes = dense
	}
}
