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

package dataset

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
)

// HashValue computes the hashlabel hash used to assign a row to a slice
// (§2 "hash(value) mod slices == s", §8 "Hash partitioning"). The source
// system's exact hash function is unspecified beyond "hash(value)"; this
// implementation uses FNV-1a over a per-type byte representation of the
// value (no type tag is included, and a float64 is truncated to int64
// first), which is stable, fast, and - critically - used identically by
// the split writer (to pick a row's slice) and by Writer.HashCheck (to
// test a slice-bound write), which is the only correctness requirement
// spec.md actually states.
func HashValue(v interface{}) uint64 {
	h := fnv.New64a()

	switch t := v.(type) {
	case int32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(t)) //nolint:gosec
		h.Write(buf[:])
	case int64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(t)) //nolint:gosec
		h.Write(buf[:])
	case int:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(t))) //nolint:gosec
		h.Write(buf[:])
	case string:
		h.Write([]byte(t))
	case []byte:
		h.Write(t)
	case bool:
		if t {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case float64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(t))) //nolint:gosec
		h.Write(buf[:])
	default:
		h.Write([]byte(fmt.Sprintf("%v", t)))
	}

	return h.Sum64()
}

// SliceFor returns which slice (in [0, slices)) the given hashlabel value
// belongs to.
func SliceFor(v interface{}, slices int) int {
	if slices <= 0 {
		return 0
	}

	return int(HashValue(v) % uint64(slices)) //nolint:gosec
}
