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

// Package aqperrors declares the engine's error taxonomy: I/O failure,
// resource exhaustion, and invalid query. Each is a distinct errors.Kind so
// callers can distinguish them with errors.Is / Kind.Is rather than string
// matching.
package aqperrors

import errors "gopkg.in/src-d/go-errors.v1"

var (
	// ErrIO is returned when a model file is missing or a record is
	// truncated mid-read. The partially loaded tree is discarded and the
	// model is never registered with the cache.
	ErrIO = errors.NewKind("aqp: I/O failure loading model %q: %s")

	// ErrResourceExhausted is returned when the memory governor evicts
	// every loaded model and total_memory still exceeds MEM_LIMIT.
	ErrResourceExhausted = errors.NewKind("aqp: resource exhausted loading model %q: %d bytes exceeds %d byte limit even after evicting all loaded models")

	// ErrInvalidQuery is returned when a query references an unknown
	// column, applies SUM/AVG to a non-continuous column, or marks a
	// continuous column as the grouping column. It is detected before any
	// tree is touched; no engine state is mutated.
	ErrInvalidQuery = errors.NewKind("aqp: invalid query: %s")
)

// Note: an empty result (a query that matches zero rows) is part of the
// taxonomy spec.md §7 documents, but it is not an error. Its policy is to
// return a normal, successful Answer carrying the sentinel values
// (COUNT=0, SUM=0, AVG=1) — see planner.Plan. Do not turn it into an error
// return; callers rely on the sentinel to avoid NaN surfacing from a
// divide-by-zero.
