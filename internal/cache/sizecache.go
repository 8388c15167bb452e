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

package cache

import (
	"encoding/binary"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"
)

var sizesBucket = []byte("sizes")

// SizeCache is a sidecar embedded key/value store recording each model's
// last-observed resident byte size, keyed by model name. It is advisory:
// a miss or a stale value never blocks a Load, it only lets WarmStart
// estimate total memory before reading any model file. It is not part of
// the persistence format spec.md §4.4 defines — model_<name>.bin and
// model_list.txt keep their exact layout regardless of this cache.
type SizeCache struct {
	db *bolt.DB
}

// OpenSizeCache opens (creating if absent) the size cache file under dir.
func OpenSizeCache(dir string) (*SizeCache, error) {
	db, err := bolt.Open(filepath.Join(dir, ".aqp-sizecache.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sizesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &SizeCache{db: db}, nil
}

// Put records bytes as the most recently observed size of model name.
func (c *SizeCache) Put(name string, bytes int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(bytes))
		return tx.Bucket(sizesBucket).Put([]byte(name), buf)
	})
}

// Get returns the last observed size of model name, if any.
func (c *SizeCache) Get(name string) (bytes int64, ok bool) {
	_ = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sizesBucket).Get([]byte(name))
		if v != nil {
			bytes = int64(binary.LittleEndian.Uint64(v))
			ok = true
		}
		return nil
	})
	return bytes, ok
}

// EstimateTotal sums the cached sizes of names, reporting whether every
// name had a cached entry (complete=false means the estimate is a
// lower bound only).
func (c *SizeCache) EstimateTotal(names []string) (total int64, complete bool) {
	complete = true
	for _, n := range names {
		if v, ok := c.Get(n); ok {
			total += v
		} else {
			complete = false
		}
	}
	return total, complete
}

// Close releases the underlying file.
func (c *SizeCache) Close() error {
	return c.db.Close()
}
