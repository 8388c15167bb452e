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

// Package kdtree implements the summary KD-tree: the per-partition index
// structure whose nodes carry count, sum, and bounding box over a subtree,
// and the builder that constructs one from a contiguous slice of rows.
//
// Nodes live in a flat arena (struct-of-arrays keyed by uint32 index)
// rather than as individually heap-allocated, pointer-linked structs. On a
// 64-bit platform this roughly halves per-node size versus two 8-byte
// pointers and keeps an entire tree in one contiguous allocation, which
// also makes serialization a straightforward traversal rather than a
// pointer-chasing walk.
package kdtree

import "fmt"

// NoChild is the sentinel child index meaning "absent".
const NoChild = ^uint32(0)

// Row is one row's continuous-dimension values, length Dim.
type Row []float32

// Arena holds every node of one summary KD-tree, indexed by uint32. Root
// is the index of the tree's root node; an Arena with zero nodes has no
// root and represents an empty partition (Build returns one only when
// l > r, which the model build path never passes, since partitions are
// always non-empty runs of rows).
type Arena struct {
	Dim   int
	Left  []uint32
	Right []uint32
	Count []int64
	// Sum and bound are flattened Dim-wide rows: node i's data lives at
	// [i*Dim, (i+1)*Dim).
	Sum       []float32
	BoundLow  []float32
	BoundHigh []float32
	Root      uint32
}

// NumNodes returns the number of nodes in the arena.
func (a *Arena) NumNodes() int { return len(a.Count) }

// IsLeaf reports whether node has no children.
func (a *Arena) IsLeaf(node uint32) bool {
	return a.Left[node] == NoChild && a.Right[node] == NoChild
}

// SumAt returns the per-dimension sum slice for node (a view, not a copy).
func (a *Arena) SumAt(node uint32) []float32 {
	return a.Sum[int(node)*a.Dim : int(node)*a.Dim+a.Dim]
}

// BoundAt returns the per-dimension [low, high] bound slices for node
// (views, not copies).
func (a *Arena) BoundAt(node uint32) (low, high []float32) {
	lo := int(node) * a.Dim
	hi := lo + a.Dim
	return a.BoundLow[lo:hi], a.BoundHigh[lo:hi]
}

// appendLeaf appends a leaf node summarizing rows[l:r+1] and returns its
// index.
func (a *Arena) appendLeaf(rows []Row, l, r int) uint32 {
	idx := uint32(len(a.Count))
	a.Left = append(a.Left, NoChild)
	a.Right = append(a.Right, NoChild)
	a.Count = append(a.Count, int64(r-l+1))

	sum := make([]float32, a.Dim)
	lo := make([]float32, a.Dim)
	hi := make([]float32, a.Dim)
	for i := 0; i < a.Dim; i++ {
		lo[i] = rows[l][i]
		hi[i] = rows[l][i]
	}
	for j := l; j <= r; j++ {
		row := rows[j]
		for i := 0; i < a.Dim; i++ {
			v := row[i]
			sum[i] += v
			if v < lo[i] {
				lo[i] = v
			}
			if v > hi[i] {
				hi[i] = v
			}
		}
	}
	a.Sum = append(a.Sum, sum...)
	a.BoundLow = append(a.BoundLow, lo...)
	a.BoundHigh = append(a.BoundHigh, hi...)
	return idx
}

// appendInternal appends an internal node combining the count/sum/bound of
// its two children (either of which may be NoChild) and returns its index.
func (a *Arena) appendInternal(left, right uint32) uint32 {
	idx := uint32(len(a.Count))
	a.Left = append(a.Left, left)
	a.Right = append(a.Right, right)

	sum := make([]float32, a.Dim)
	lo := make([]float32, a.Dim)
	hi := make([]float32, a.Dim)
	var count int64
	seeded := false

	combine := func(child uint32) {
		if child == NoChild {
			return
		}
		count += a.Count[child]
		cs := a.SumAt(child)
		clo, chi := a.BoundAt(child)
		for i := 0; i < a.Dim; i++ {
			sum[i] += cs[i]
		}
		if !seeded {
			copy(lo, clo)
			copy(hi, chi)
			seeded = true
			return
		}
		for i := 0; i < a.Dim; i++ {
			if clo[i] < lo[i] {
				lo[i] = clo[i]
			}
			if chi[i] > hi[i] {
				hi[i] = chi[i]
			}
		}
	}
	combine(left)
	combine(right)

	a.Count = append(a.Count, count)
	a.Sum = append(a.Sum, sum...)
	a.BoundLow = append(a.BoundLow, lo...)
	a.BoundHigh = append(a.BoundHigh, hi...)
	return idx
}

// String renders a compact debug view of the tree rooted at a.Root.
func (a *Arena) String() string {
	if a.NumNodes() == 0 {
		return "<empty>"
	}
	return nodeString(a, a.Root, 0)
}

func nodeString(a *Arena, node uint32, depth int) string {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	s := fmt.Sprintf("%s[count=%d sum=%v]\n", indent, a.Count[node], a.SumAt(node))
	if a.Left[node] != NoChild {
		s += nodeString(a, a.Left[node], depth+1)
	}
	if a.Right[node] != NoChild {
		s += nodeString(a, a.Right[node], depth+1)
	}
	return s
}
