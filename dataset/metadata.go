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

// package dataset implements the on-disk, sliced, chained, typed columnar
// storage described in spec.md §4.5: dataset metadata persistence, chain
// traversal with cached ancestor snapshots, and streaming iteration with
// the fixed filter-application order.
package dataset

import (
	"os"
	"strconv"
	"strings"

	"github.com/ugorji/go/codec"

	"github.com/wtsi-ssg/batchjob/dataset/column"
)

const metadataVersionMajor = 3
const metadataVersionMinor = 3

// cacheEvery is how often (in chain length) a Metadata record carries a
// cached snapshot of an ancestor, giving O(1) amortised chain-tip access
// (§2 "Dataset", "a cached ancestor snapshot every 64 predecessors").
const cacheEvery = 64

// ColumnMeta is one column's entry in a dataset's metadata (§6.3
// "columns (map of name -> record {type, compression, location, min, max,
// offsets, none_support})").
type ColumnMeta struct {
	Type        column.Type
	Compression int // gzip level as declared; 0 means the writer's default level (column files are always gzip-compressed)
	Location    string
	Min         interface{}
	Max         interface{}
	// Offsets gives the starting byte of each slice within a merged file.
	// nil for per-slice storage (§4.5.1). An empty slice's offset is
	// represented by OffsetAbsent.
	Offsets    []int64
	NoneSupport bool
}

// OffsetAbsent is the sentinel recorded for an empty slice's offset in a
// merged column file (§4.5.1: "Empty slices have offset false (sentinel)
// and consume no space").
const OffsetAbsent int64 = -1

// Metadata is a dataset's persisted record (§6.3), version (3,3).
type Metadata struct {
	VersionMajor int
	VersionMinor int

	Filename string
	Hashlabel string // empty means none
	Caption   string

	Columns map[string]ColumnMeta

	Previous string // previous dataset in this chain: its FSSafeName if in the same job, else a "jobid/name" locator; empty if none
	Parent   string // FSSafeName of the inheritance parent, empty if none

	Lines []int64 // per-slice row count

	Cache         *Metadata // snapshot of an older chain tip; Chain uses it when present, but launcher.FinalizeDatasets never sets it
	CacheDistance int       // how many `previous` hops the cached snapshot is from here
}

// NewMetadata returns an empty Metadata at the current format version.
func NewMetadata(filename string) Metadata {
	return Metadata{
		VersionMajor: metadataVersionMajor,
		VersionMinor: metadataVersionMinor,
		Filename:     filename,
		Columns:      make(map[string]ColumnMeta),
	}
}

var bincHandle = new(codec.BincHandle)

// Save writes m to path using the teacher's binc encoding, the same
// codec.BincHandle-based serialisation used for the job database's bbolt
// records (dguta/db.go), here repurposed for a dataset's standalone
// metadata file rather than a bolt value.
func Save(path string, m Metadata) error {
	var buf []byte

	enc := codec.NewEncoderBytes(&buf, bincHandle)
	if err := enc.Encode(m); err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0o600)
}

// LoadMetadata reads a dataset metadata file written by Save.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return Metadata{}, err
	}

	var m Metadata

	dec := codec.NewDecoderBytes(raw, bincHandle)
	if err := dec.Decode(&m); err != nil {
		return Metadata{}, err
	}

	return m, nil
}

// FSSafeName percent-escapes control characters, '%', '/' and '\' in name
// so it can be used as a filename component (§4.5.1 "Filesystem-safe names
// percent-escape control characters, %, / and \").
func FSSafeName(name string) string {
	var b strings.Builder

	for i := 0; i < len(name); i++ {
		c := name[i]

		if c < 0x20 || c == 0x7f || c == '%' || c == '/' || c == '\\' {
			b.WriteByte('%')

			hex := strings.ToUpper(strconv.FormatUint(uint64(c), 16))
			if len(hex) < 2 {
				b.WriteByte('0')
			}

			b.WriteString(hex)

			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}
