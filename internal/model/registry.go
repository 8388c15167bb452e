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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path returns the on-disk path of a model's binary file under dir.
func Path(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("model_%s.bin", name))
}

// ListPath returns the path of the model-list registry file under dir.
func ListPath(dir string) string {
	return filepath.Join(dir, "model_list.txt")
}

// AppendToList appends name to the model-list registry, creating the file
// if needed. buildID, if non-empty, is recorded as a trailing "# build=..."
// comment for operational traceability; ReadList ignores it.
func AppendToList(dir, name, buildID string) error {
	f, err := os.OpenFile(ListPath(dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := name
	if buildID != "" {
		line = fmt.Sprintf("%s  # build=%s", name, buildID)
	}
	_, err = fmt.Fprintln(f, line)
	return err
}

// ReadList reads the model-list registry, returning the model names in
// file order. Blank lines are skipped; anything after a '#' on a line is
// treated as a comment and ignored, so AppendToList's build-id annotation
// round-trips transparently.
func ReadList(dir string) ([]string, error) {
	f, err := os.Open(ListPath(dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			names = append(names, tok)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
