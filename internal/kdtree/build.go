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

package kdtree

// Build constructs a summary KD-tree over rows[l:r+1], restricted to the
// continuous dimensions. splitAxes is the ordered list of split dimensions
// (len <= 3); depthCap is the hard depth limit H; blend interpolates
// between the performance median (blend=1, balanced/shallow/fast trees)
// and the accuracy median (blend=0, range-bisecting/accurate trees). rows
// is reordered in place by the quickselect partitioning; callers that need
// the original order must copy first.
func Build(rows []Row, l, r int, splitAxes []int, depthCap int, blend float64) *Arena {
	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	a := &Arena{Dim: dim}
	if l > r {
		return a
	}
	a.Root = build(a, rows, l, r, 0, splitAxes, depthCap, blend)
	return a
}

func build(a *Arena, rows []Row, l, r, depth int, splitAxes []int, depthCap int, blend float64) uint32 {
	k := len(splitAxes)
	if l == r || depth >= depthCap || k == 0 {
		return a.appendLeaf(rows, l, r)
	}

	axis := splitAxes[depth%k]
	m := blendedMedian(rows, l, r, axis, blend)
	if m == r {
		return a.appendLeaf(rows, l, r)
	}

	selectNth(rows, l, r, m, axis)

	left := build(a, rows, l, m, depth+1, splitAxes, depthCap, blend)
	right := build(a, rows, m+1, r, depth+1, splitAxes, depthCap, blend)
	return a.appendInternal(left, right)
}

// blendedMedian computes round(m_p*blend + m_a*(1-blend)) per spec.md
// §4.1: m_p is the positional midpoint of [l, r], m_a is l plus the count
// of elements below the midrange of axis's values in [l, r].
func blendedMedian(rows []Row, l, r, axis int, blend float64) int {
	perfMedian := (l + r) / 2

	accMedian := l
	if blend != 1 {
		min, max := rows[l][axis], rows[l][axis]
		for i := l + 1; i <= r; i++ {
			v := rows[i][axis]
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		mid := (min + max) / 2
		for i := l; i <= r; i++ {
			if rows[i][axis] < mid {
				accMedian++
			}
		}
	}

	return int(roundHalfAwayFromZero(float64(perfMedian)*blend + float64(accMedian)*(1-blend)))
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

// selectNth performs an in-place partial reordering of rows[l:r+1] on axis
// so that position m holds the element that would be there in sorted
// order (a quickselect / nth-element partition); the relative order within
// [l, m-1] and [m+1, r] is left unspecified.
func selectNth(rows []Row, l, r, m, axis int) {
	for l < r {
		p := hoarePartition(rows, l, r, axis)
		if m <= p {
			r = p
		} else {
			l = p + 1
		}
	}
}

// hoarePartition picks the midpoint element as pivot and partitions
// rows[l:r+1] around it on axis, returning the final index of the pivot
// value's partition boundary.
func hoarePartition(rows []Row, l, r, axis int) int {
	pivot := rows[(l+r)/2][axis]
	i, j := l-1, r+1
	for {
		for {
			i++
			if rows[i][axis] >= pivot {
				break
			}
		}
		for {
			j--
			if rows[j][axis] <= pivot {
				break
			}
		}
		if i >= j {
			return j
		}
		rows[i], rows[j] = rows[j], rows[i]
	}
}

// DepthCap returns H = max(1, floor(log2(n)) + delta) per spec.md §4.1's
// depth policy.
func DepthCap(n, delta int) int {
	if n <= 0 {
		return 1
	}
	h := ilog2(n) + delta
	if h < 1 {
		h = 1
	}
	return h
}

func ilog2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
