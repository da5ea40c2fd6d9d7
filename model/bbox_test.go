// Copyright 2017-25 the original author or authors.
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

package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"m4o.io/osmrecurse/model"
)

var greaterLondon = &model.BoundingBox{Top: 51.69344, Left: -0.511482, Bottom: 51.28554, Right: 0.335437}

func TestBoundingBoxEqualWithin(t *testing.T) {
	shifted := &model.BoundingBox{
		Top:    greaterLondon.Top + 1e-6,
		Left:   greaterLondon.Left + 1e-6,
		Bottom: greaterLondon.Bottom + 1e-6,
		Right:  greaterLondon.Right + 1e-6,
	}

	assert.True(t, greaterLondon.EqualWithin(greaterLondon, model.E9))
	assert.True(t, greaterLondon.EqualWithin(shifted, model.E5))
	assert.False(t, greaterLondon.EqualWithin(shifted, model.E7))
}

func TestBoundingBoxContains(t *testing.T) {
	const step = 1e-5

	test_cases := []struct {
		name     string
		lat      model.Degrees
		lon      model.Degrees
		expected bool
	}{
		{"south-west corner", greaterLondon.Bottom, greaterLondon.Left, true},
		{"north-east corner", greaterLondon.Top, greaterLondon.Right, true},
		{"charing cross", 51.5072, -0.1276, true},
		{"west of the box", greaterLondon.Bottom, greaterLondon.Left - step, false},
		{"south of the box", greaterLondon.Bottom - step, greaterLondon.Left, false},
		{"east of the box", greaterLondon.Top, greaterLondon.Right + step, false},
		{"north of the box", greaterLondon.Top + step, greaterLondon.Right, false},
		{"paris", 48.8566, 2.3522, false},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, greaterLondon.Contains(tc.lat, tc.lon))
		})
	}
}

func TestBoundingBoxExtend(t *testing.T) {
	bbox := model.InitialBoundingBox()
	assert.True(t, bbox.IsEmpty())

	bbox.Extend(48.8566, 2.3522)
	assert.False(t, bbox.IsEmpty())
	assert.Equal(t, &model.BoundingBox{Top: 48.8566, Left: 2.3522, Bottom: 48.8566, Right: 2.3522}, bbox)

	bbox.Extend(51.5072, -0.1276)
	assert.Equal(t, &model.BoundingBox{Top: 51.5072, Left: -0.1276, Bottom: 48.8566, Right: 2.3522}, bbox)
	assert.True(t, bbox.Contains(50, 1))
}

func TestBoundingBoxString(t *testing.T) {
	assert.Equal(t, "[(51.69344, -0.511482) (51.28554, 0.335437)]", greaterLondon.String())
}
