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
)

// BoundingBox is a latitude/longitude rectangle.
type BoundingBox struct {
	Top    Degrees `json:"top"`
	Left   Degrees `json:"left"`
	Bottom Degrees `json:"bottom"`
	Right  Degrees `json:"right"`
}

// InitialBoundingBox returns an inverted box that the first Extend
// collapses onto its point.
func InitialBoundingBox() *BoundingBox {
	return &BoundingBox{Top: -90, Left: 180, Bottom: 90, Right: -180}
}

// EqualWithin reports whether every side of b and o is equal within eps.
func (b *BoundingBox) EqualWithin(o *BoundingBox, eps Epsilon) bool {
	return b.Left.EqualWithin(o.Left, eps) &&
		b.Right.EqualWithin(o.Right, eps) &&
		b.Top.EqualWithin(o.Top, eps) &&
		b.Bottom.EqualWithin(o.Bottom, eps)
}

// Contains reports whether the point lies inside b, borders included.
func (b *BoundingBox) Contains(lat, lon Degrees) bool {
	return b.Bottom <= lat && lat <= b.Top && b.Left <= lon && lon <= b.Right
}

// Extend grows b to cover the point.
func (b *BoundingBox) Extend(lat, lon Degrees) {
	b.Top = max(b.Top, lat)
	b.Bottom = min(b.Bottom, lat)
	b.Left = min(b.Left, lon)
	b.Right = max(b.Right, lon)
}

// IsEmpty reports whether nothing was ever added to an initial bounding box.
func (b *BoundingBox) IsEmpty() bool {
	return b.Bottom > b.Top || b.Left > b.Right
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("[(%s, %s) (%s, %s)]",
		ftoa(float64(b.Top)), ftoa(float64(b.Left)),
		ftoa(float64(b.Bottom)), ftoa(float64(b.Right)))
}
