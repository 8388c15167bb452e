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

import "github.com/mitchellh/hashstructure"

// shape is the part of a query that determines the selector/model-name
// derivation independent of predicate bounds or fixed discrete values:
// the mode, the predicate columns in the order given, and the group-by
// column. Two queries sharing a shape always resolve to the same model
// name, column list, and split axes.
type shape struct {
	Mode    Mode
	Cols    []int
	GroupBy int
}

// plan is the shape-derived part of a query plan: everything Resolve
// would otherwise recompute from scratch by walking the predicate list.
type plan struct {
	Name      string
	Columns   []int
	SplitAxes []int
	GroupIdx  int // index of the group-by entry within Columns, or -1
}

// Cache memoizes the shape -> plan mapping for the lifetime of an Engine.
// Repeated queries with the same operators/predicate columns/group-by but
// different bounds or fixed values skip re-deriving the selector entirely.
type Cache struct {
	entries map[uint64]plan
}

// NewCache returns an empty plan cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]plan)}
}

func shapeHash(mode Mode, preds []Predicate, groupBy int) (uint64, error) {
	cols := make([]int, len(preds))
	for i, p := range preds {
		cols[i] = p.Col
	}
	return hashstructure.Hash(shape{Mode: mode, Cols: cols, GroupBy: groupBy}, nil)
}

func (c *Cache) get(h uint64) (plan, bool) {
	p, ok := c.entries[h]
	return p, ok
}

func (c *Cache) put(h uint64, p plan) {
	c.entries[h] = p
}
