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

// Package aqp is the Approximate Query Processing engine: a single-
// threaded handle over a Schema Registry, an in-memory dataset, a
// partitioned-KD-tree Model Cache, and a Query Planner, matching the five
// entry points of spec.md §6 (Init, LoadData, Build, LoadModels, Query)
// plus Clear.
package aqp

import (
	"bufio"
	"fmt"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/kdaqp/engine/internal/cache"
	"github.com/kdaqp/engine/internal/model"
	"github.com/kdaqp/engine/internal/planner"
	"github.com/kdaqp/engine/internal/schema"
)

// Re-exported query vocabulary. These are defined in internal/planner
// because the planner needs them independent of this package (it must
// never import aqp, which imports planner); Engine.Query accepts and
// returns them under their public names here.
type (
	Op          = planner.Op
	Mode        = planner.Mode
	Operation   = planner.Operation
	Predicate   = planner.Predicate
	GroupAnswer = planner.GroupAnswer
	Answer      = planner.Answer
)

const (
	OpCount = planner.OpCount
	OpSum   = planner.OpSum
	OpAvg   = planner.OpAvg
)

const (
	ModePerformance = planner.ModePerformance
	ModeMemory      = planner.ModeMemory
)

// Config configures an Engine. The zero Config is valid: it disables
// logging and tracing and uses cache.DefaultMemLimit.
type Config struct {
	// MemLimit caps resident model memory in bytes (spec.md §6's
	// MEM_LIMIT). Zero uses cache.DefaultMemLimit (10 GiB).
	MemLimit int64
	// Logger receives structured logs from every component that performs
	// I/O or mutates shared state (builder, loader, evictor, planner).
	// Nil disables logging.
	Logger *logrus.Entry
	// Tracer wraps each of the five public entry points in a span tagged
	// with the operation name. Nil uses opentracing.GlobalTracer(), which
	// is a no-op until a host driver registers a real tracer.
	Tracer opentracing.Tracer
}

// Engine is the Engine Lifecycle of spec.md §9's "Global mutable state"
// design note: the Schema Registry, in-memory dataset, Model Cache /
// Memory Governor, Query Planner, and last-produced Answer, all owned by
// one value. Engine is not safe for concurrent use — like the components
// it composes, callers must serialize every call.
type Engine struct {
	cfg    Config
	tracer opentracing.Tracer

	dir     string
	schema  schema.Schema
	dataset []model.FullRow

	gov        *cache.Governor
	planCache  *planner.Cache
	lastAnswer Answer
}

// NewEngine constructs an Engine from cfg. Call Init before any other
// method; LoadModels and Query panic against the nil *cache.Governor an
// un-Init'd Engine carries, which is deliberate — there is no sensible
// default model directory to fall back to.
func NewEngine(cfg Config) *Engine {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}
	return &Engine{cfg: cfg, tracer: tracer, planCache: planner.NewCache()}
}

func (e *Engine) startSpan(op string) opentracing.Span {
	span := e.tracer.StartSpan(op)
	span.SetTag("component", "aqp.Engine")
	return span
}

// Init sets the model directory and schema, opening (or reopening) the
// Model Cache / Memory Governor rooted there. It is idempotent: calling it
// again on a live Engine discards the in-memory dataset, any loaded
// models, and the last Answer, and starts fresh against the new
// directory/schema (spec.md §6: "sets the model directory, loads the
// schema; idempotent").
func (e *Engine) Init(dir string, sch schema.Schema) error {
	span := e.startSpan("aqp.Init")
	defer span.Finish()

	if e.gov != nil {
		if err := e.gov.Close(); err != nil && e.cfg.Logger != nil {
			e.cfg.Logger.WithError(err).Warn("aqp: closing previous model cache during re-init")
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "aqp: create model directory")
	}
	gov, err := cache.New(dir, e.cfg.MemLimit, sch, e.cfg.Logger)
	if err != nil {
		return errors.Wrap(err, "aqp: open model cache")
	}

	e.dir = dir
	e.schema = sch
	e.gov = gov
	e.dataset = nil
	e.lastAnswer = nil
	e.planCache = planner.NewCache()
	return nil
}

// LoadData replaces the in-memory dataset (spec.md §6's loadData). Every
// row must carry exactly schema.Columns values.
func (e *Engine) LoadData(rows []Row) error {
	span := e.startSpan("aqp.LoadData")
	defer span.Finish()

	dataset := make([]model.FullRow, len(rows))
	for i, r := range rows {
		if len(r) != e.schema.Columns {
			return fmt.Errorf("aqp: row %d has %d columns, schema expects %d", i, len(r), e.schema.Columns)
		}
		dataset[i] = model.FullRow(r)
	}
	e.dataset = dataset
	if e.cfg.Logger != nil {
		e.cfg.Logger.WithField("rows", len(dataset)).Info("aqp: loaded dataset")
	}
	return nil
}

// Build partitions the currently loaded dataset by cols' discrete columns,
// constructs one summary KD-tree per partition over cols' continuous
// columns, writes the Model to disk, and appends its name to
// model_list.txt (spec.md §4.3, §6). By convention cols should be passed
// in ascending order so the build-time name matches the sorted selector a
// later query derives for the same column set (see model.Model.Name).
func (e *Engine) Build(cols []int, delta int, blend float64) error {
	span := e.startSpan("aqp.Build")
	defer span.Finish()

	if e.dataset == nil {
		return fmt.Errorf("aqp: Build called before LoadData")
	}

	buildID, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "aqp: generate build id")
	}
	log := e.cfg.Logger
	if log != nil {
		log = log.WithField("build_id", buildID.String())
	}

	path := model.Path(e.dir, model.Name(cols))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "aqp: create model file")
	}
	w := bufio.NewWriter(f)
	name, _, keys, err := model.BuildAndSave(w, e.dataset, e.schema, cols, delta, blend, log)
	if err != nil {
		f.Close()
		return errors.Wrap(err, "aqp: build model")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "aqp: flush model file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "aqp: close model file")
	}
	if err := model.AppendToList(e.dir, name, buildID.String()); err != nil {
		return errors.Wrap(err, "aqp: register model")
	}

	if log != nil {
		log.WithFields(logrus.Fields{"model": name, "partitions": len(keys)}).Info("aqp: build complete")
	}
	return nil
}

// LoadModels warm-loads the models listed in model_list.txt, in listed
// order, until MemLimit is reached (spec.md §4.5, §6's load_models).
func (e *Engine) LoadModels() error {
	span := e.startSpan("aqp.LoadModels")
	defer span.Finish()
	return e.gov.WarmStart()
}

// Query answers one aggregate query (spec.md §4.6, §6's aqpQuery) and
// retains the result as the engine's last Answer, releasing the previous
// one.
func (e *Engine) Query(ops []Operation, preds []Predicate, groupBy int, mode Mode) (Answer, error) {
	span := e.startSpan("aqp.Query")
	defer span.Finish()

	answer, err := planner.Plan(e.gov, e.planCache, e.schema, ops, preds, groupBy, mode, e.cfg.Logger)
	if err != nil {
		return nil, err
	}
	e.lastAnswer = answer
	return answer, nil
}

// LastAnswer returns the Answer from the most recent successful Query, or
// nil if none has run since the last Init/Clear.
func (e *Engine) LastAnswer() Answer {
	return e.lastAnswer
}

// Clear frees the dataset, the last Answer, and every loaded model
// (spec.md §6's clear).
func (e *Engine) Clear() {
	span := e.startSpan("aqp.Clear")
	defer span.Finish()

	e.dataset = nil
	e.lastAnswer = nil
	if e.gov != nil {
		e.gov.Clear()
	}
	e.planCache = planner.NewCache()
}
