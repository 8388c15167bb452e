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

package aqp

// Row is one dataset row: all schema.Schema.Columns values in order,
// continuous columns first, discrete columns last — the layout LoadData
// expects and the layout the original row-major float buffer of spec.md
// §6's loadData entry point carries.
type Row []float32
