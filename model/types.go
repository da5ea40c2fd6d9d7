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

package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/s1"
)

// Degrees is a latitude or longitude in decimal degrees.
type Degrees float64

// Epsilon is the precision two Degrees are compared with.
type Epsilon float64

const (
	E5 Epsilon = 1e-5
	E6 Epsilon = 1e-6
	E7 Epsilon = 1e-7
	E9 Epsilon = 1e-9
)

const (
	nanodegree    = 1e-9
	tenMillionths = 10_000_000
)

// Angle converts d for the s2 geometry.
func (d Degrees) Angle() s1.Angle { return s1.Angle(d) * s1.Degree }

// EqualWithin reports whether d and o are the same once rounded to eps.
func (d Degrees) EqualWithin(o Degrees, eps Epsilon) bool {
	return math.Round(float64(d)/float64(eps)) == math.Round(float64(o)/float64(eps))
}

// E7 returns d in ten millionths of a degree, the resolution skeletons are
// stored with.
func (d Degrees) E7() int32 { return int32(math.Round(float64(d) * tenMillionths)) }

// FromE7 converts ten millionths of a degree back to Degrees.
func FromE7(e7 int32) Degrees { return Degrees(e7) / tenMillionths }

// ToDegrees converts a PBF coordinate, given the offset and granularity of
// its block, in nanodegrees.
func ToDegrees(offset int64, granularity int32, coordinate int64) Degrees {
	return nanodegree * Degrees(offset+int64(granularity)*coordinate)
}

// String formats d in degrees, minutes and seconds.
func (d Degrees) String() string {
	sign := ""
	if d < 0 {
		sign = "-"
	}

	v := math.Abs(float64(d))
	deg := math.Floor(v)
	minutes := math.Floor((v - deg) * 60)
	seconds := (v - deg - minutes/60) * 3600

	return fmt.Sprintf("%s%d° %d' %s\"", sign, int(deg), int(minutes), ftoa(seconds))
}

func (d Degrees) MarshalJSON() ([]byte, error) {
	return []byte(ftoa(float64(d))), nil
}

// ftoa formats f with at most nine decimals and no trailing zeros.
func ftoa(f float64) string {
	s := strconv.FormatFloat(f, 'f', 9, 64)
	s = strings.TrimRight(s, "0")

	return strings.TrimSuffix(s, ".")
}
