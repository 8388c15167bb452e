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

// Package cache implements the Model Cache / Memory Governor: the
// in-memory registry of loaded Models, the total-memory cap, and random
// admission/eviction. It is not safe for concurrent use — like the rest of
// the engine, callers must serialize access.
package cache

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/kdaqp/engine/internal/aqperrors"
	"github.com/kdaqp/engine/internal/model"
	"github.com/kdaqp/engine/internal/schema"
)

// DefaultMemLimit is the 10 GiB default cap from spec.md §6.
const DefaultMemLimit = 10 * 1024 * 1024 * 1024

// Governor is the Model Cache / Memory Governor of spec.md §4.5.
type Governor struct {
	dir         string
	schema      schema.Schema
	memLimit    int64
	totalMemory int64
	loaded      map[string]*model.Model
	order       []string // resident names in insertion order; eviction picks from it
	sizes       *SizeCache
	log         *logrus.Entry
	rng         *rand.Rand
}

// New constructs a Governor rooted at dir with the given memory cap. If
// memLimit <= 0, DefaultMemLimit is used.
func New(dir string, memLimit int64, sch schema.Schema, log *logrus.Entry) (*Governor, error) {
	if memLimit <= 0 {
		memLimit = DefaultMemLimit
	}
	sizes, err := OpenSizeCache(dir)
	if err != nil {
		return nil, err
	}
	return &Governor{
		dir:      dir,
		schema:   sch,
		memLimit: memLimit,
		loaded:   make(map[string]*model.Model),
		sizes:    sizes,
		log:      log,
		rng:      rand.New(rand.NewSource(1)),
	}, nil
}

// TotalMemory returns the current total_memory counter.
func (g *Governor) TotalMemory() int64 { return g.totalMemory }

// Loaded reports whether name is currently resident.
func (g *Governor) Loaded(name string) bool {
	_, ok := g.loaded[name]
	return ok
}

// Get returns a resident model, or nil if not loaded.
func (g *Governor) Get(name string) *model.Model {
	return g.loaded[name]
}

// Load returns the named model, loading it from disk if necessary.
// Loading first evicts random resident models while total_memory exceeds
// the cap (spec.md §4.5); if eviction cannot make room even after
// clearing everything, it returns ErrResourceExhausted.
func (g *Governor) Load(name string, columns, splitAxes []int) (*model.Model, error) {
	if m, ok := g.loaded[name]; ok {
		return m, nil
	}

	for g.totalMemory > g.memLimit && len(g.order) > 0 {
		g.evictRandom()
	}

	path := model.Path(g.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, aqperrors.ErrIO.Wrap(err, name, "open")
	}
	defer f.Close()

	m, workingMemory, err := model.ReadModel(bufio.NewReader(f), name, columns, splitAxes, g.schema.Continuous)
	if err != nil {
		return nil, aqperrors.ErrIO.Wrap(err, name, "truncated or malformed record")
	}

	g.totalMemory += workingMemory
	for g.totalMemory > g.memLimit && len(g.order) > 0 {
		g.evictRandom()
	}
	if g.totalMemory > g.memLimit {
		g.totalMemory -= workingMemory
		return nil, aqperrors.ErrResourceExhausted.New(name, g.totalMemory+workingMemory, g.memLimit)
	}

	g.loaded[name] = m
	g.order = append(g.order, name)
	if err := g.sizes.Put(name, workingMemory); err != nil && g.log != nil {
		g.log.WithError(err).Warn("size cache write failed")
	}
	if g.log != nil {
		g.log.WithFields(logrus.Fields{
			"model":        name,
			"bytes":        workingMemory,
			"total_memory": g.totalMemory,
		}).Info("loaded model")
	}
	return m, nil
}

// evictRandom evicts one uniformly-random resident model. The eviction
// policy is deliberately random — cheap and adequate given relatively
// uniform model sizes (spec.md §4.5, §9).
func (g *Governor) evictRandom() {
	i := g.rng.Intn(len(g.order))
	g.evictAt(i)
}

func (g *Governor) evictAt(i int) {
	name := g.order[i]
	g.evict(name)
	g.order = append(g.order[:i], g.order[i+1:]...)
}

// evict frees name's trees and subtracts its size from total_memory. It
// does not touch g.order; callers that know the slice index use evictAt,
// callers that don't (e.g. Clear) look it up by name.
func (g *Governor) evict(name string) {
	m, ok := g.loaded[name]
	if !ok {
		return
	}
	g.totalMemory -= m.MemoryBytes
	delete(g.loaded, name)
	if g.log != nil {
		g.log.WithField("model", name).Info("evicted model")
	}
}

// Evict evicts a specific model by name, if resident.
func (g *Governor) Evict(name string) {
	for i, n := range g.order {
		if n == name {
			g.evictAt(i)
			return
		}
	}
}

// Clear evicts every resident model.
func (g *Governor) Clear() {
	for _, name := range g.order {
		g.evict(name)
	}
	g.order = nil
}

// Close releases the governor's sidecar size cache.
func (g *Governor) Close() error {
	return g.sizes.Close()
}

// WarmStart reads model_list.txt and loads models in listed order while
// total_memory stays under the cap. If the set of currently loaded models
// already matches the registry file, it is a no-op (spec.md §4.5).
func (g *Governor) WarmStart() error {
	names, err := model.ReadList(g.dir)
	if err != nil {
		return aqperrors.ErrIO.Wrap(err, filepath.Base(model.ListPath(g.dir)), "read model list")
	}
	if g.sameAsLoaded(names) {
		return nil
	}
	g.Clear()

	if total, complete := g.sizes.EstimateTotal(names); complete && g.log != nil {
		g.log.WithFields(logrus.Fields{"estimated_bytes": total, "mem_limit": g.memLimit}).
			Debug("size cache estimate for warm start")
	}

	for _, name := range names {
		if g.totalMemory >= g.memLimit {
			break
		}
		columns, err := model.ColumnsFromName(name)
		if err != nil {
			return aqperrors.ErrIO.Wrap(err, name, "parse model name")
		}
		splitAxes := model.SplitAxesOf(columns, g.schema.Continuous)
		if _, err := g.Load(name, columns, splitAxes); err != nil {
			return err
		}
	}
	return nil
}

func (g *Governor) sameAsLoaded(names []string) bool {
	if len(names) != len(g.loaded) {
		return false
	}
	for _, n := range names {
		if !g.Loaded(n) {
			return false
		}
	}
	return true
}
