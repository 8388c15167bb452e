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

// Package schemacfg loads a schema.Schema from a YAML file, as an
// alternative to constructing one programmatically. It is a convenience for
// host drivers that prefer to keep the column layout in a config file
// alongside MODEL_DIR rather than compiled into the driver.
package schemacfg

import (
	"io/ioutil"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"

	"github.com/kdaqp/engine/internal/schema"
)

// rawConfig mirrors the YAML shape documented in SPEC_FULL.md §6:
//
//	columns: 12
//	continuous: 7
//	discrete_cardinalities: [26, 363, 53, 366, 53]
//
// Fields are left as interface{} and coerced with spf13/cast so that a
// config author's stray string-typed integers ("12" instead of 12) still
// load instead of failing strict YAML unmarshaling.
type rawConfig struct {
	Columns               interface{}   `yaml:"columns"`
	Continuous            interface{}   `yaml:"continuous"`
	DiscreteCardinalities []interface{} `yaml:"discrete_cardinalities"`
}

// Load reads and validates a schema config file at path.
func Load(path string) (schema.Schema, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return schema.Schema{}, err
	}
	return Parse(data)
}

// Parse decodes a schema config from raw YAML bytes.
func Parse(data []byte) (schema.Schema, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return schema.Schema{}, err
	}

	columns, err := cast.ToIntE(raw.Columns)
	if err != nil {
		return schema.Schema{}, err
	}
	continuous, err := cast.ToIntE(raw.Continuous)
	if err != nil {
		return schema.Schema{}, err
	}
	cards := make([]int, len(raw.DiscreteCardinalities))
	for i, v := range raw.DiscreteCardinalities {
		c, err := cast.ToIntE(v)
		if err != nil {
			return schema.Schema{}, err
		}
		cards[i] = c
	}
	return schema.New(columns, continuous, cards)
}
