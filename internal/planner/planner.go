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

package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kdaqp/engine/internal/aqperrors"
	"github.com/kdaqp/engine/internal/cache"
	"github.com/kdaqp/engine/internal/model"
	"github.com/kdaqp/engine/internal/rangequery"
	"github.com/kdaqp/engine/internal/schema"
)

// Plan executes one query: it validates ops/preds/groupBy, derives the
// model selector and split axes (spec.md §4.6, "Predicate extraction"),
// loads the selected model through gov, enumerates group values, and
// assembles the rounded Answer.
func Plan(gov *cache.Governor, planCache *Cache, sch schema.Schema, ops []Operation, preds []Predicate, groupBy int, mode Mode, log *logrus.Entry) (Answer, error) {
	if err := validate(sch, ops, preds, groupBy); err != nil {
		return nil, err
	}

	box := rangequery.NewBox(sch.Continuous)
	for _, p := range preds {
		if sch.IsContinuous(p.Col) {
			box[p.Col] = rangequery.Bound{Low: p.Lb, High: p.Ub}
		}
	}

	h, err := shapeHash(mode, preds, groupBy)
	if err != nil {
		return nil, fmt.Errorf("planner: hashing query shape: %w", err)
	}
	pl, ok := planCache.get(h)
	if !ok {
		pl = buildShape(mode, preds, groupBy, sch)
		planCache.put(h, pl)
	}

	fixed := make([]int32, len(pl.Columns))
	for i := range fixed {
		fixed[i] = -1
	}
	for _, p := range preds {
		if !sch.IsDiscrete(p.Col) {
			continue
		}
		for i, c := range pl.Columns {
			if c == p.Col {
				fixed[i] = int32(p.Lb)
			}
		}
	}

	m, err := gov.Load(pl.Name, pl.Columns, pl.SplitAxes)
	if err != nil {
		return nil, err
	}

	var groupValues []int32
	switch {
	case groupBy == -1:
		groupValues = []int32{-1}
	case pl.GroupIdx >= 0 && fixed[pl.GroupIdx] >= 0:
		groupValues = []int32{fixed[pl.GroupIdx]}
	default:
		card := sch.Cardinality(groupBy)
		groupValues = make([]int32, card)
		for i := range groupValues {
			groupValues[i] = int32(i)
		}
	}

	answer := make(Answer, 0, len(groupValues)*len(ops))
	for _, v := range groupValues {
		if groupBy != -1 && pl.GroupIdx >= 0 {
			fixed[pl.GroupIdx] = v
		}
		key := partitionKey(sch, pl.Columns, fixed)

		var count float64
		sum := make([]float64, sch.Continuous)
		if arena, ok := m.Lookup(key); ok {
			count, sum = rangequery.Aggregate(arena, pl.SplitAxes, box)
		}

		id := int32(-1)
		if groupBy != -1 {
			id = v
		}
		for _, op := range ops {
			switch op.Op {
			case OpCount:
				answer = append(answer, GroupAnswer{ID: id, Value: math.Round(count)})
			case OpSum:
				answer = append(answer, GroupAnswer{ID: id, Value: math.Round(sum[op.Col]*10) / 10})
			case OpAvg:
				if count == 0 {
					answer = append(answer, GroupAnswer{ID: id, Value: 1})
				} else {
					answer = append(answer, GroupAnswer{ID: id, Value: sum[op.Col] / count})
				}
			}
		}
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"model":  pl.Name,
			"groups": len(groupValues),
			"ops":    len(ops),
			"mode":   mode,
		}).Debug("query planned")
	}
	return answer, nil
}

func validate(sch schema.Schema, ops []Operation, preds []Predicate, groupBy int) error {
	for _, p := range preds {
		if !sch.Valid(p.Col) {
			return aqperrors.ErrInvalidQuery.New(fmt.Sprintf("predicate references unknown column %d", p.Col))
		}
	}
	for _, op := range ops {
		if op.Op == OpSum || op.Op == OpAvg {
			if !sch.Valid(op.Col) {
				return aqperrors.ErrInvalidQuery.New(fmt.Sprintf("%s references unknown column %d", op.Op, op.Col))
			}
			if !sch.IsContinuous(op.Col) {
				return aqperrors.ErrInvalidQuery.New(fmt.Sprintf("%s applied to non-continuous column %d", op.Op, op.Col))
			}
		}
	}
	if groupBy != -1 {
		if !sch.Valid(groupBy) {
			return aqperrors.ErrInvalidQuery.New(fmt.Sprintf("group-by references unknown column %d", groupBy))
		}
		if sch.IsContinuous(groupBy) {
			return aqperrors.ErrInvalidQuery.New(fmt.Sprintf("group-by column %d is continuous", groupBy))
		}
	}
	return nil
}

// buildShape derives the selector/model-name/split-axes for a query shape,
// following spec.md §4.6 "Predicate extraction" and "Model selection &
// group-by" exactly (verified against
// original_source/codes/libaqp.cc:extract_pred). It depends only on which
// columns are referenced and whether they are continuous or discrete, not
// on predicate bounds or fixed values — this is what makes it safe to
// memoize by shape in Cache.
func buildShape(mode Mode, preds []Predicate, groupBy int, sch schema.Schema) plan {
	var columns []int
	seen := make(map[int]bool)
	add := func(c int) {
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}

	switch mode {
	case ModePerformance:
		splitCount := 0
		for _, p := range preds {
			if sch.IsContinuous(p.Col) {
				if !seen[p.Col] && splitCount < 3 {
					add(p.Col)
					splitCount++
				}
			} else {
				add(p.Col)
			}
		}
	case ModeMemory:
		contCount := 0
		for _, p := range preds {
			if sch.IsContinuous(p.Col) {
				contCount++
			}
		}
		dropContinuous := contCount == 0 && len(preds) == 3
		if !dropContinuous {
			for c := 0; c < sch.Continuous; c++ {
				add(c)
			}
		}
		for _, p := range preds {
			if sch.IsDiscrete(p.Col) {
				add(p.Col)
			}
		}
	}

	if groupBy != -1 {
		add(groupBy)
	}

	sorted := append([]int(nil), columns...)
	sort.Ints(sorted)

	groupIdx := -1
	if groupBy != -1 {
		for i, c := range sorted {
			if c == groupBy {
				groupIdx = i
				break
			}
		}
	}

	return plan{
		Name:      model.Name(sorted),
		Columns:   sorted,
		SplitAxes: model.SplitAxesOf(sorted, sch.Continuous),
		GroupIdx:  groupIdx,
	}
}

// partitionKey computes the mixed-radix key for a model's sorted column
// list, skipping any column whose fixed value is -1 (a continuous split
// axis never contributes to the key; spec.md §4.6).
func partitionKey(sch schema.Schema, columns []int, fixed []int32) int32 {
	var key int64
	weight := int64(1)
	for i, c := range columns {
		if fixed[i] < 0 {
			continue
		}
		key += weight * int64(fixed[i])
		weight *= int64(sch.Cardinality(c))
	}
	return int32(key)
}
