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

package model

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/kdaqp/engine/internal/kdtree"
)

func floatBits(v float32) uint32   { return math.Float32bits(v) }
func bitsFloat(v uint32) float32   { return math.Float32frombits(v) }

// On-disk layout (spec.md §4.4): a flat stream of (partition-key, tree)
// records. The partition key is a 4-byte little-endian signed integer.
// Each tree is a pre-order, depth-first stream of fixed-size node
// records:
//
//	flags   uint8   bit0: left child present, bit1: right child present
//	count   int64   little-endian
//	sum     [dim]float32
//	bound   [dim]float32 low, [dim]float32 high
//
// Children follow their parent in left-then-right order. A present child
// flag obligates exactly one more node record (itself followed by its own
// children) before the stream returns to the parent's sibling or ancestor.
const (
	flagLeft  = 1 << 0
	flagRight = 1 << 1
)

// WriteTree serializes the tree rooted at node (pre-order, depth-first)
// to w.
func WriteTree(w io.Writer, a *kdtree.Arena, node uint32) error {
	var hdr [9]byte
	left, right := a.Left[node], a.Right[node]
	if left != kdtree.NoChild {
		hdr[0] |= flagLeft
	}
	if right != kdtree.NoChild {
		hdr[0] |= flagRight
	}
	binary.LittleEndian.PutUint64(hdr[1:], uint64(a.Count[node]))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	sum := a.SumAt(node)
	lo, hi := a.BoundAt(node)
	buf := make([]byte, 4*len(sum)*3)
	off := 0
	for _, v := range sum {
		binary.LittleEndian.PutUint32(buf[off:], floatBits(v))
		off += 4
	}
	for _, v := range lo {
		binary.LittleEndian.PutUint32(buf[off:], floatBits(v))
		off += 4
	}
	for _, v := range hi {
		binary.LittleEndian.PutUint32(buf[off:], floatBits(v))
		off += 4
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}

	if left != kdtree.NoChild {
		if err := WriteTree(w, a, left); err != nil {
			return err
		}
	}
	if right != kdtree.NoChild {
		if err := WriteTree(w, a, right); err != nil {
			return err
		}
	}
	return nil
}

// ReadTree deserializes a pre-order node stream of the given dimension
// into a fresh Arena.
func ReadTree(r io.Reader, dim int) (*kdtree.Arena, error) {
	a := &kdtree.Arena{Dim: dim}
	root, err := readNode(r, a, dim)
	if err != nil {
		return nil, err
	}
	a.Root = root
	return a, nil
}

func readNode(r io.Reader, a *kdtree.Arena, dim int) (uint32, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	flags := hdr[0]
	count := int64(binary.LittleEndian.Uint64(hdr[1:]))

	buf := make([]byte, 4*dim*3)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	sum := make([]float32, dim)
	lo := make([]float32, dim)
	hi := make([]float32, dim)
	off := 0
	for i := 0; i < dim; i++ {
		sum[i] = bitsFloat(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := 0; i < dim; i++ {
		lo[i] = bitsFloat(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := 0; i < dim; i++ {
		hi[i] = bitsFloat(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}

	idx := uint32(len(a.Count))
	a.Left = append(a.Left, kdtree.NoChild)
	a.Right = append(a.Right, kdtree.NoChild)
	a.Count = append(a.Count, count)
	a.Sum = append(a.Sum, sum...)
	a.BoundLow = append(a.BoundLow, lo...)
	a.BoundHigh = append(a.BoundHigh, hi...)

	if flags&flagLeft != 0 {
		left, err := readNode(r, a, dim)
		if err != nil {
			return 0, err
		}
		a.Left[idx] = left
	}
	if flags&flagRight != 0 {
		right, err := readNode(r, a, dim)
		if err != nil {
			return 0, err
		}
		a.Right[idx] = right
	}
	return idx, nil
}

// WritePartition writes one (partition-key, tree) record.
func WritePartition(w io.Writer, key int32, a *kdtree.Arena) error {
	var kb [4]byte
	binary.LittleEndian.PutUint32(kb[:], uint32(key))
	if _, err := w.Write(kb[:]); err != nil {
		return err
	}
	return WriteTree(w, a, a.Root)
}

// ReadModel reads every (partition-key, tree) record until EOF, building a
// Model. It returns the bytes of node storage materialized for this load
// (the governor's "working_memory"), for the caller to add to its running
// total_memory.
func ReadModel(r io.Reader, name string, columns, splitAxes []int, dim int) (*Model, int64, error) {
	m := New(name, columns, splitAxes)
	var loaded int64
	for {
		var kb [4]byte
		_, err := io.ReadFull(r, kb[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		key := int32(binary.LittleEndian.Uint32(kb[:]))
		a, err := ReadTree(r, dim)
		if err != nil {
			return nil, 0, err
		}
		m.Add(key, a, dim)
		loaded += EstimateArenaBytes(a, dim)
	}
	return m, loaded, nil
}

// WriteModel writes every partition of m to w, in ascending key order, for
// deterministic output (useful for tests and reproducible files).
func WriteModel(w io.Writer, m *Model) error {
	for _, key := range m.SortedKeys() {
		if err := WritePartition(w, key, m.Partitions[key]); err != nil {
			return err
		}
	}
	return nil
}
