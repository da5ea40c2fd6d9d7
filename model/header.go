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

package model

import (
	"slices"
	"time"
)

// Required features of a PBF file the importer can read.
const (
	FeatureSchema     = "OsmSchema-V0.6"
	FeatureDenseNodes = "DenseNodes"
	FeatureHistory    = "HistoricalInformation"
)

var readableFeatures = []string{FeatureSchema, FeatureDenseNodes, FeatureHistory}

// Header describes an imported PBF file: the area it covers, what a reader
// must understand to load it and the replication state it was cut at.
type Header struct {
	BoundingBox                      *BoundingBox `json:"bounding_box,omitempty"`
	RequiredFeatures                 []string     `json:"required_features,omitempty"`
	OptionalFeatures                 []string     `json:"optional_features,omitempty"`
	WritingProgram                   string       `json:"writing_program,omitempty"`
	Source                           string       `json:"source,omitempty"`
	OsmosisReplicationTimestamp      time.Time    `json:"osmosis_replication_timestamp,omitempty"`
	OsmosisReplicationSequenceNumber int64        `json:"osmosis_replication_sequence_number,omitempty"`
	OsmosisReplicationBaseURL        string       `json:"osmosis_replication_base_url,omitempty"`
}

// HasHistory reports whether the file carries superseded versions.
func (h Header) HasHistory() bool {
	return slices.Contains(h.RequiredFeatures, FeatureHistory)
}

// Unreadable returns the required features the importer does not know, in
// file order.
func (h Header) Unreadable() []string {
	var out []string

	for _, f := range h.RequiredFeatures {
		if !slices.Contains(readableFeatures, f) {
			out = append(out, f)
		}
	}

	return out
}
