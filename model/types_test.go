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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"m4o.io/osmrecurse/model"
)

func TestDegreesAngle(t *testing.T) {
	assert.InDelta(t, math.Pi/4, model.Degrees(45).Angle().Radians(), 1e-12)
	assert.InDelta(t, -90, model.Degrees(-90).Angle().Degrees(), 1e-12)
}

func TestDegreesE7(t *testing.T) {
	test_cases := []struct {
		name     string
		d        model.Degrees
		expected int32
	}{
		{"positive", 53.123456789, 531234568},
		{"negative", -0.1276, -1276000},
		{"max longitude", 180, 1800000000},
	}

	for _, tc := range test_cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.d.E7())
			assert.True(t, tc.d.EqualWithin(model.FromE7(tc.expected), model.E7))
		})
	}
}

func TestToDegrees(t *testing.T) {
	assert.True(t, model.Degrees(48.8566).EqualWithin(model.ToDegrees(0, 100, 488566000), model.E9))
	assert.True(t, model.Degrees(48.8566).EqualWithin(model.ToDegrees(8000000, 1000, 48848600), model.E9))
}

func TestDegreesEqualWithin(t *testing.T) {
	assert.True(t, model.Degrees(53.12345).EqualWithin(53.123451, model.E5))
	assert.False(t, model.Degrees(53.12345).EqualWithin(53.12347, model.E5))
}

func TestDegreesString(t *testing.T) {
	assert.Equal(t, "53° 7' 24.42\"", model.Degrees(53.123450).String())
	assert.Equal(t, "-0° 7' 39.36\"", model.Degrees(-0.1276).String())
}

func TestDegreesJSON(t *testing.T) {
	b, err := model.Degrees(2.3522).MarshalJSON()
	assert.NoError(t, err)
	assert.Equal(t, "2.3522", string(b))
}
