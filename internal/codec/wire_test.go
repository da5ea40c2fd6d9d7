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

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcDeltas(t *testing.T) {
	nodes := []int64{1, 1, 2, 3, 5, 7, 12}
	deltas := []int64{1, 0, 1, 1, 2, 2, 5}

	assert.Equal(t, deltas, calcDeltas(nodes))
	assert.Equal(t, nodes, sumDeltas(deltas))
}

func TestCalcDeltasNegative(t *testing.T) {
	ids := []int32{-5, 10, 3}

	assert.Equal(t, []int32{-5, 15, -7}, calcDeltas(ids))
	assert.Equal(t, ids, sumDeltas(calcDeltas(ids)))
}

func TestSumDeltasEmpty(t *testing.T) {
	assert.Nil(t, sumDeltas([]int64{}))
}
