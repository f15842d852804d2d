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

package column

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTruncated is returned by the Decode* readers when the input ends
// before a complete value can be read.
var ErrTruncated = errors.New("column: truncated value")

// noneBlobLength is the length prefix value (0xffffff00) spec.md §4.5.2
// reserves to mean None: "The value 0xff,0,0,0,0 (length = 0xffffff00)
// encodes None."
const noneBlobLength = 0xffffff00

// EncodeBlob writes data's length-prefixed variable-size encoding (§4.5.2):
// a single byte if len(data) < 255, otherwise 0xff followed by a 4-byte
// little-endian length. isNone overrides data and writes the None marker
// instead.
func EncodeBlob(w io.Writer, data []byte, isNone bool) error {
	if isNone {
		_, err := w.Write([]byte{0xff, 0, 0, 0, 0})

		return err
	}

	n := len(data)
	if n < 0xff {
		if _, err := w.Write([]byte{byte(n)}); err != nil {
			return err
		}
	} else {
		var hdr [5]byte

		hdr[0] = 0xff
		binary.LittleEndian.PutUint32(hdr[1:], uint32(n)) //nolint:gosec

		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
	}

	_, err := w.Write(data)

	return err
}

// DecodeBlob reads one length-prefixed value from r. isNone is true and
// data is nil when the None marker was read.
func DecodeBlob(r io.Reader) (data []byte, isNone bool, err error) {
	var first [1]byte

	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, false, err
	}

	var length uint32

	if first[0] < 0xff {
		length = uint32(first[0])
	} else {
		var rest [4]byte

		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return nil, false, ErrTruncated
		}

		length = binary.LittleEndian.Uint32(rest[:])

		if length == noneBlobLength {
			return nil, true, nil
		}
	}

	buf := make([]byte, length)

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, false, ErrTruncated
	}

	return buf, false, nil
}
