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
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kdaqp/engine/internal/kdtree"
	"github.com/kdaqp/engine/internal/schema"
)

// FullRow is one dataset row: all C schema columns, continuous first. Both
// continuous and discrete values are stored as float32, matching the
// original implementation's single float array per row — a discrete
// column's values are always small non-negative integers represented
// exactly in float32.
type FullRow []float32

// KeyFor computes the mixed-radix partition key for a row's values on the
// discrete columns in discreteCols, weighted by their schema
// cardinalities in order (spec.md §3, "Partition key").
func KeyFor(row FullRow, sch schema.Schema, discreteCols []int) int32 {
	var key int64
	weight := int64(1)
	for _, c := range discreteCols {
		v := int64(row[c])
		key += weight * v
		weight *= int64(sch.Cardinality(c))
	}
	return int32(key)
}

// BuildAndSave partitions dataset by the discrete columns in columns,
// builds one summary KD-tree per partition over the continuous columns in
// columns, and streams each (partition-key, tree) record to w as it is
// built — a built tree is never held in memory after being written,
// matching spec.md §4.3 step 3d. It returns the model's canonical name,
// split axes, and the partition keys written, in write order.
func BuildAndSave(w io.Writer, dataset []FullRow, sch schema.Schema, columns []int, delta int, blend float64, log *logrus.Entry) (name string, splitAxes []int, keys []int32, err error) {
	name = Name(columns)
	splitAxes = SplitAxesOf(columns, sch.Continuous)
	var discreteCols []int
	for _, c := range columns {
		if sch.IsDiscrete(c) {
			discreteCols = append(discreteCols, c)
		}
	}

	n := len(dataset)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := dataset[order[i]], dataset[order[j]]
		for _, c := range discreteCols {
			if a[c] != b[c] {
				return a[c] < b[c]
			}
		}
		return false
	})

	cont := make([]kdtree.Row, n)
	for i, idx := range order {
		cont[i] = kdtree.Row(dataset[idx][:sch.Continuous])
	}

	l := 0
	for l < n {
		key := KeyFor(dataset[order[l]], sch, discreteCols)
		r := l
		for r+1 < n {
			same := true
			for _, c := range discreteCols {
				if dataset[order[r+1]][c] != dataset[order[l]][c] {
					same = false
					break
				}
			}
			if !same {
				break
			}
			r++
		}

		depthCap := kdtree.DepthCap(r-l+1, delta)
		arena := kdtree.Build(cont, l, r, splitAxes, depthCap, blend)
		if log != nil {
			log.WithFields(logrus.Fields{
				"model":         name,
				"partition_key": key,
				"rows":          r - l + 1,
				"depth_cap":     depthCap,
				"nodes":         arena.NumNodes(),
			}).Debug("built partition")
		}
		if err := WritePartition(w, key, arena); err != nil {
			return "", nil, nil, err
		}
		keys = append(keys, key)
		l = r + 1
	}
	return name, splitAxes, keys, nil
}
