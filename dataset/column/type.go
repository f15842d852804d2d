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

// package column implements the dataset engine's closed column type
// catalogue and its binary encodings (fixed-size with None-sentinels,
// length-prefixed variable-size blobs, and the variable-width "number"
// format), described in spec.md §4.5.2.
package column

// Type is one member of the closed column type catalogue (§2 "Column
// type").
type Type int

const (
	Int32 Type = iota
	Int64
	Float32
	Float64
	Complex64
	Complex128
	Bool
	Number // arbitrary-precision, variable-width encoding
	ASCII
	UTF8
	Bytes
	JSON
	Object // self-describing (gob-encoded) value
	Date
	Time
	DateTime
)

// Fixed reports whether t has a fixed-size in-memory encoding (as opposed
// to the variable-size length-prefixed encodings used by the blob types).
func (t Type) Fixed() bool {
	switch t {
	case Bytes, JSON, Object, ASCII, UTF8, Number:
		return false
	default:
		return true
	}
}

// Size returns the fixed encoded width in bytes for a Fixed type. It
// panics for variable-size types and for Number, whose width varies
// per value; callers must check Fixed first (Number is deliberately not
// Fixed precisely because it has no constant Size).
func (t Type) Size() int {
	switch t {
	case Bool:
		return 1
	case Int32, Float32:
		return 4
	case Int64, Float64, Complex64, Date:
		return 8
	case Complex128, DateTime:
		return 16
	case Time:
		return 8
	default:
		panic("column: Size called on a variable-size type")
	}
}

func (t Type) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case ASCII:
		return "ascii"
	case UTF8:
		return "unicode"
	case Bytes:
		return "bytes"
	case JSON:
		return "json"
	case Object:
		return "object"
	case Date:
		return "date"
	case Time:
		return "time"
	case DateTime:
		return "datetime"
	default:
		return "unknown"
	}
}
