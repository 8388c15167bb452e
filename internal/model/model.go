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

// Package model implements the partitioned index: the Model type mapping
// a discrete-value combination to a summary KD-tree root, the build path
// that partitions a dataset and constructs one tree per partition, and the
// on-disk codec used to persist and restore a Model.
package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pilosa/pilosa/roaring"

	"github.com/kdaqp/engine/internal/kdtree"
)

// Model is a partitioned index for one chosen set of split columns: a
// mapping from partition key (the mixed-radix encoding of a discrete-value
// combination, see KeyFor) to the root of a KD-tree built over that
// partition's rows.
type Model struct {
	// Name is the canonical "<col>_<col>_..." encoding used for the
	// on-disk file name. For a built model this is the columns in the
	// order passed to Build (spec.md §4.4); for a query-time lookup this
	// is the sorted selector (spec.md §4.6) — by convention a Build
	// caller passes columns pre-sorted ascending so both agree.
	Name string
	// Columns is the full ordered column list (continuous split axes
	// interleaved with discrete partition columns, in Name's order).
	Columns []int
	// SplitAxes is the subset of Columns that are continuous KD-tree
	// split dimensions, in the order used for contains/crosses tests.
	SplitAxes []int

	Partitions map[int32]*kdtree.Arena
	// Present indexes the partition keys actually on disk, so a group-by
	// query over an absent key can skip the map lookup and tree walk
	// entirely and answer directly with the empty-result sentinel.
	Present *roaring.Bitmap

	// MemoryBytes is the approximate node storage this Model holds,
	// accounted against the cache's memory cap.
	MemoryBytes int64
}

// nodeBaseBytes is the dimension-independent part of the per-node
// accounting unit used for memory governance: a fixed estimate (not an
// exact sizeof); EstimateArenaBytes adds the per-dimension sum and bound
// storage on top of it.
const nodeBaseBytes = 24 // two uint32 children + int64 count, rounded

// EstimateArenaBytes estimates the resident bytes of an arena's nodes,
// used for MemoryBytes accounting (spec.md §4.5: "sizeof(Node) per node").
func EstimateArenaBytes(a *kdtree.Arena, dim int) int64 {
	perNode := int64(nodeBaseBytes) + int64(dim)*4 /*sum*/ + int64(dim)*8 /*bound lo+hi*/
	return int64(a.NumNodes()) * perNode
}

// Name canonicalizes an ordered column list into the "<col>_<col>_..."
// model name (spec.md §4.4).
func Name(columns []int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, "_")
}

// ColumnsFromName parses a model's canonical name back into its ordered
// column list, as needed when warm-starting from model_list.txt where only
// the name (not the original Build call) is available.
func ColumnsFromName(name string) ([]int, error) {
	parts := strings.Split(name, "_")
	cols := make([]int, len(parts))
	for i, p := range parts {
		c, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("model: malformed model name %q: %w", name, err)
		}
		cols[i] = c
	}
	return cols, nil
}

// SplitAxesOf returns the continuous-column subset of columns, in order,
// given the number of continuous columns D in the schema.
func SplitAxesOf(columns []int, continuousCols int) []int {
	var axes []int
	for _, c := range columns {
		if c < continuousCols {
			axes = append(axes, c)
		}
	}
	return axes
}

// New builds an empty Model ready to receive partitions.
func New(name string, columns, splitAxes []int) *Model {
	return &Model{
		Name:       name,
		Columns:    append([]int(nil), columns...),
		SplitAxes:  append([]int(nil), splitAxes...),
		Partitions: make(map[int32]*kdtree.Arena),
		Present:    roaring.NewBitmap(),
	}
}

// Add registers a partition's tree under key, updating the presence index
// and memory accounting.
func (m *Model) Add(key int32, a *kdtree.Arena, dim int) {
	m.Partitions[key] = a
	_, _ = m.Present.Add(uint64(uint32(key)))
	m.MemoryBytes += EstimateArenaBytes(a, dim)
}

// Lookup returns the tree for key and whether it is present.
func (m *Model) Lookup(key int32) (*kdtree.Arena, bool) {
	if !m.Present.Contains(uint64(uint32(key))) {
		return nil, false
	}
	a, ok := m.Partitions[key]
	return a, ok
}

// SortedKeys returns the present partition keys in ascending order, used
// when a testable property needs deterministic partition coverage
// enumeration (spec.md §8 property 7).
func (m *Model) SortedKeys() []int32 {
	keys := make([]int32, 0, len(m.Partitions))
	for k := range m.Partitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
