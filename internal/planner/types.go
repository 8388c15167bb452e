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

// Package planner implements the Query Planner / Group-By Dispatcher: it
// turns an incoming predicate/aggregation list into a selected Model, one
// or more range queries (one per group value), and the assembled Answer.
package planner

// Op is the three-way aggregation operation tag.
type Op int

const (
	OpCount Op = iota
	OpSum
	OpAvg
)

func (o Op) String() string {
	switch o {
	case OpCount:
		return "COUNT"
	case OpSum:
		return "SUM"
	case OpAvg:
		return "AVG"
	default:
		return "UNKNOWN"
	}
}

// Mode selects between the PERFORMANCE and MEMORY model-selection
// strategies of spec.md §4.6.
type Mode int

const (
	ModePerformance Mode = iota
	ModeMemory
)

// Operation is one requested aggregation: an operator and, for SUM/AVG,
// the continuous column it applies to (ignored for COUNT).
type Operation struct {
	Op  Op
	Col int
}

// Predicate constrains a column to [Lb, Ub]. For a discrete column, Lb is
// the required equality value and Ub is ignored.
type Predicate struct {
	Col    int
	Lb, Ub float32
}

// GroupAnswer is one (group id, aggregate value) pair. ID is -1 when the
// query has no grouping column.
type GroupAnswer struct {
	ID    int32
	Value float64
}

// Answer is an ordered batch of GroupAnswer records.
type Answer []GroupAnswer
