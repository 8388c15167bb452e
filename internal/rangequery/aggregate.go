// Copyright 2026 The AQP Engine Authors.
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

// Package rangequery implements the fractional-overlap range aggregator:
// given a summary KD-tree and a query bounding box, it approximates
// (count, per-dimension sum) by walking the tree and weighting each
// visited subtree by the clipped-overlap ratio between its bound and the
// query box.
package rangequery

import "github.com/kdaqp/engine/internal/kdtree"

const (
	negInf = float32(-1 << 30)
	posInf = float32(1 << 30)
)

// Bound is a single dimension's [Low, High] query constraint. Use
// Unconstrained for a dimension with no predicate.
type Bound struct{ Low, High float32 }

// Unconstrained is the "no predicate on this dimension" bound.
var Unconstrained = Bound{Low: negInf, High: posInf}

// Box is a query bounding box over all D continuous dimensions.
type Box []Bound

// NewBox returns a Box of dim dimensions, all unconstrained.
func NewBox(dim int) Box {
	b := make(Box, dim)
	for i := range b {
		b[i] = Unconstrained
	}
	return b
}

// Aggregate walks a and returns the approximate (count, per-dimension sum)
// of rows whose continuous values fall in box, using splitAxes for the
// contains/crosses pruning tests (ratio always considers every dimension).
func Aggregate(a *kdtree.Arena, splitAxes []int, box Box) (count float64, sum []float64) {
	sum = make([]float64, a.Dim)
	if a.NumNodes() == 0 {
		return 0, sum
	}
	aggregate(a, a.Root, splitAxes, box, &count, sum)
	return count, sum
}

func aggregate(a *kdtree.Arena, node uint32, splitAxes []int, box Box, count *float64, sum []float64) {
	if a.IsLeaf(node) || contains(a, node, splitAxes, box) {
		r := ratio(a, node, box)
		*count += float64(a.Count[node]) * r
		ns := a.SumAt(node)
		for i := range sum {
			sum[i] += float64(ns[i]) * r
		}
		return
	}
	if left := a.Left[node]; left != kdtree.NoChild && crosses(a, left, splitAxes, box) {
		aggregate(a, left, splitAxes, box, count, sum)
	}
	if right := a.Right[node]; right != kdtree.NoChild && crosses(a, right, splitAxes, box) {
		aggregate(a, right, splitAxes, box, count, sum)
	}
}

// contains reports whether node's bound lies inside box on every split
// dimension.
func contains(a *kdtree.Arena, node uint32, splitAxes []int, box Box) bool {
	lo, hi := a.BoundAt(node)
	for _, axis := range splitAxes {
		if lo[axis] < box[axis].Low || hi[axis] > box[axis].High {
			return false
		}
	}
	return true
}

// crosses reports whether node's bound intersects box on every split
// dimension.
func crosses(a *kdtree.Arena, node uint32, splitAxes []int, box Box) bool {
	lo, hi := a.BoundAt(node)
	for _, axis := range splitAxes {
		if lo[axis] > box[axis].High || hi[axis] < box[axis].Low {
			return false
		}
	}
	return true
}

// ratio computes the product, across all D continuous dimensions, of the
// clipped-overlap fraction between node's bound and box. A degenerate
// dimension (low == high) contributes a 0/1 factor for point containment
// instead of a length ratio.
func ratio(a *kdtree.Arena, node uint32, box Box) float64 {
	lo, hi := a.BoundAt(node)
	r := 1.0
	for i := 0; i < a.Dim; i++ {
		if lo[i] == hi[i] {
			if box[i].Low <= lo[i] && lo[i] <= box[i].High {
				continue
			}
			return 0
		}
		clipLo := maxf(box[i].Low, lo[i])
		clipHi := minf(box[i].High, hi[i])
		overlap := float64(clipHi - clipLo)
		if overlap < 0 {
			overlap = 0
		}
		r *= overlap / float64(hi[i]-lo[i])
		if r == 0 {
			return 0
		}
	}
	return r
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
