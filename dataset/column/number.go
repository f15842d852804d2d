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
	"io"
	"math"
	"math/big"
)

// Number is the decoded form of the "number" column type (§4.5.2): either
// an IEEE double, a machine int64 (the common case, kept unboxed for
// speed), or an arbitrary-precision integer for values outside int64
// range. Exactly one of Big/IsFloat is relevant at a time; Int64 is valid
// whenever Big is nil and IsFloat is false.
type Number struct {
	IsNone  bool
	IsFloat bool
	Float   float64
	Int64   int64
	Big     *big.Int // non-nil only when the value doesn't fit in int64
}

const (
	numberNoneTag   = 0xff
	numberFloatTag  = 0x00
	numberInlineLo  = 0x80
	numberInlineHi  = 0xfa
	numberInlineOff = 0x85 // value = firstByte - 0x85
	numberInlineMin = numberInlineLo - numberInlineOff // -5
	numberInlineMax = numberInlineHi - numberInlineOff // derived from the tag range, not the spec's stated -5..121 (0xfa-0x85=117, not 121; the tag bounds 0x80..0xfa are the unambiguous anchor, see DESIGN.md)
)

// EncodeNumber writes n in the variable-width "number" encoding (§4.5.2):
// tag byte 0 for a double, 2/4/8 for a little-endian signed int of that
// width, 9..126 for a big-endian two's-complement bignum of that many
// bytes, 0x80..0xfa for an inline small int, or 0xff for None.
func EncodeNumber(w io.Writer, n Number) error {
	if n.IsNone {
		_, err := w.Write([]byte{numberNoneTag})

		return err
	}

	if n.IsFloat {
		var buf [9]byte

		buf[0] = numberFloatTag
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(n.Float))
		_, err := w.Write(buf[:])

		return err
	}

	if n.Big != nil {
		return encodeBigInt(w, n.Big)
	}

	return encodeSmallInt(w, n.Int64)
}

func encodeSmallInt(w io.Writer, v int64) error {
	if v >= numberInlineMin && v <= numberInlineMax {
		_, err := w.Write([]byte{byte(v + numberInlineOff)})

		return err
	}

	switch {
	case v >= math.MinInt16 && v <= math.MaxInt16:
		var buf [3]byte

		buf[0] = 2
		binary.LittleEndian.PutUint16(buf[1:], uint16(v)) //nolint:gosec
		_, err := w.Write(buf[:])

		return err
	case v >= math.MinInt32 && v <= math.MaxInt32:
		var buf [5]byte

		buf[0] = 4
		binary.LittleEndian.PutUint32(buf[1:], uint32(v)) //nolint:gosec
		_, err := w.Write(buf[:])

		return err
	default:
		var buf [9]byte

		buf[0] = 8
		binary.LittleEndian.PutUint64(buf[1:], uint64(v)) //nolint:gosec
		_, err := w.Write(buf[:])

		return err
	}
}

func encodeBigInt(w io.Writer, v *big.Int) error {
	b := twosComplementBytes(v)
	if len(b) < 9 || len(b) > 126 {
		// Falls back to the widest supported length; values this large
		// are outside the documented ±(2^1007-1) range anyway.
		b = b[:126] //nolint:gosec
	}

	if _, err := w.Write([]byte{byte(len(b))}); err != nil {
		return err
	}

	_, err := w.Write(b)

	return err
}

// twosComplementBytes returns the big-endian two's-complement
// representation of v using the minimum number of bytes (at least 9, the
// smallest length the number format reserves for the bignum branch).
func twosComplementBytes(v *big.Int) []byte {
	if v.Sign() >= 0 {
		raw := v.Bytes()

		if len(raw) == 0 || raw[0]&0x80 != 0 {
			raw = append([]byte{0}, raw...)
		}

		return padLeft(raw, 9)
	}

	// negative: two's complement of |v| at the chosen byte width
	abs := new(big.Int).Abs(v)
	nBytes := len(abs.Bytes()) + 1

	if nBytes < 9 {
		nBytes = 9
	}

	mod := new(big.Int).Lsh(big.NewInt(1), uint(nBytes*8)) //nolint:gosec
	twos := new(big.Int).Add(mod, v)

	return padLeft(twos.Bytes(), nBytes)
}

func padLeft(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}

	out := make([]byte, n)
	copy(out[n-len(b):], b)

	return out
}

// DecodeNumber reads one "number"-encoded value from r.
func DecodeNumber(r io.Reader) (Number, error) {
	var tag [1]byte

	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Number{}, err
	}

	switch {
	case tag[0] == numberNoneTag:
		return Number{IsNone: true}, nil
	case tag[0] == numberFloatTag:
		var buf [8]byte

		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Number{}, ErrTruncated
		}

		return Number{IsFloat: true, Float: math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))}, nil
	case tag[0] == 2 || tag[0] == 4 || tag[0] == 8:
		return decodeFixedInt(r, int(tag[0]))
	case tag[0] >= 9 && tag[0] <= 126:
		return decodeBigInt(r, int(tag[0]))
	case tag[0] >= numberInlineLo && tag[0] <= numberInlineHi:
		return Number{Int64: int64(tag[0]) - numberInlineOff}, nil
	default:
		return Number{}, ErrTruncated
	}
}

func decodeFixedInt(r io.Reader, width int) (Number, error) {
	buf := make([]byte, width)

	if _, err := io.ReadFull(r, buf); err != nil {
		return Number{}, ErrTruncated
	}

	switch width {
	case 2:
		return Number{Int64: int64(int16(binary.LittleEndian.Uint16(buf)))}, nil //nolint:gosec
	case 4:
		return Number{Int64: int64(int32(binary.LittleEndian.Uint32(buf)))}, nil //nolint:gosec
	default:
		return Number{Int64: int64(binary.LittleEndian.Uint64(buf))}, nil //nolint:gosec
	}
}

func decodeBigInt(r io.Reader, length int) (Number, error) {
	buf := make([]byte, length)

	if _, err := io.ReadFull(r, buf); err != nil {
		return Number{}, ErrTruncated
	}

	v := new(big.Int).SetBytes(buf)

	if buf[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(length*8)) //nolint:gosec
		v.Sub(v, mod)
	}

	if v.IsInt64() {
		return Number{Int64: v.Int64()}, nil
	}

	return Number{Big: v}, nil
}
