/*******************************************************************************
 * Copyright (c) 2024 Genome Research Ltd.
 *
 * Author: Sendu Bala <sb10@sanger.ac.uk>
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package jobdb

import (
	"syscall"

	"github.com/ugorji/go/codec"
	bolt "go.etcd.io/bbolt"
)

const (
	recordBucket = "records"
	dbBasename   = "jobdb.bolt"
	dbOpenMode   = 0600
)

// Cache is the cross-restart persisted form of the database's byId index:
// a single bolt bucket mapping job id to its encoded Record, so a server
// restart doesn't have to re-read and re-parse every job's setup.json and
// post.json from scratch. Modelled directly on dguta/db.go's dbSet: the
// same NoFreelistSync/FreelistMapType write options and MAP_POPULATE
// read-only options, the same codec.BincHandle encoding.
type Cache struct {
	db *bolt.DB
	ch codec.Handle
}

// OpenCache opens (creating if necessary) the bolt-backed record cache at
// path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{
		NoFreelistSync: true,
		NoGrowSync:     true,
		FreelistType:   bolt.FreelistMapType,
	})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, errc := tx.CreateBucketIfNotExists([]byte(recordBucket))

		return errc
	}); err != nil {
		db.Close()

		return nil, err
	}

	return &Cache{db: db, ch: new(codec.BincHandle)}, nil
}

// OpenCacheReadOnly opens an existing record cache read-only, with
// MAP_POPULATE to pre-fault its pages the way dguta/db.go's
// openBoltReadOnly does for query-heavy workloads.
func OpenCacheReadOnly(path string) (*Cache, error) {
	db, err := bolt.Open(path, dbOpenMode, &bolt.Options{
		ReadOnly:  true,
		MmapFlags: syscall.MAP_POPULATE,
	})
	if err != nil {
		return nil, err
	}

	return &Cache{db: db, ch: new(codec.BincHandle)}, nil
}

// Close closes the underlying bolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached Record for jobID, if any.
func (c *Cache) Get(jobID string) (*Record, bool, error) {
	var (
		rec   Record
		found bool
	)

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))

		v := b.Get([]byte(jobID))
		if v == nil {
			return nil
		}

		found = true

		dec := codec.NewDecoderBytes(v, c.ch)

		return dec.Decode(&rec)
	})
	if err != nil {
		return nil, false, err
	}

	if !found {
		return nil, false, nil
	}

	return &rec, true, nil
}

// Put stores rec under its job id.
func (c *Cache) Put(rec *Record) error {
	var encoded []byte

	enc := codec.NewEncoderBytes(&encoded, c.ch)
	if err := enc.Encode(rec); err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))

		return b.Put([]byte(rec.JobID), encoded)
	})
}

// Delete removes jobID's cached record, if present.
func (c *Cache) Delete(jobID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))

		return b.Delete([]byte(jobID))
	})
}

// Keys returns every job id currently cached.
func (c *Cache) Keys() ([]string, error) {
	var keys []string

	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(recordBucket))

		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))

			return nil
		})
	})

	return keys, err
}
