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
	"math"
)

// Fixed-type None sentinels (§4.5.2: "None-support for fixed types uses a
// sentinel value: INT_MIN for signed ints, a quiet-NaN payload for floats,
// 255 for bool, 0 for the first datetime word").
const (
	int32NoneSentinel = math.MinInt32
	int64NoneSentinel = math.MinInt64
	boolNoneSentinel  = byte(255)

	// floatNonePayload is the quiet-NaN payload used to mark a float
	// column's None value. Any other NaN bit pattern is a real (if
	// unusual) value and must round-trip unchanged; only this exact
	// payload means None.
	floatNonePayload = 0x7ff8000000000001

	// float32NonePayload is the float32 column's equivalent quiet-NaN
	// None marker.
	float32NonePayload = 0x7fc00001
)

// EncodeInt32 writes v (or the None sentinel) as 4 little-endian bytes.
func EncodeInt32(v int32, isNone bool) [4]byte {
	var buf [4]byte

	if isNone {
		v = int32NoneSentinel
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(v)) //nolint:gosec

	return buf
}

// DecodeInt32 reads a 4-byte little-endian int32, reporting None if the
// value equals the sentinel.
func DecodeInt32(b []byte) (int32, bool) {
	v := int32(binary.LittleEndian.Uint32(b)) //nolint:gosec

	return v, v == int32NoneSentinel
}

// EncodeInt64 writes v (or the None sentinel) as 8 little-endian bytes.
func EncodeInt64(v int64, isNone bool) [8]byte {
	var buf [8]byte

	if isNone {
		v = int64NoneSentinel
	}

	binary.LittleEndian.PutUint64(buf[:], uint64(v)) //nolint:gosec

	return buf
}

// DecodeInt64 reads an 8-byte little-endian int64, reporting None if the
// value equals the sentinel.
func DecodeInt64(b []byte) (int64, bool) {
	v := int64(binary.LittleEndian.Uint64(b)) //nolint:gosec

	return v, v == int64NoneSentinel
}

// EncodeFloat32 writes v (or the None sentinel) as 4 little-endian bytes.
func EncodeFloat32(v float32, isNone bool) [4]byte {
	var buf [4]byte

	bits := math.Float32bits(v)
	if isNone {
		bits = float32NonePayload
	}

	binary.LittleEndian.PutUint32(buf[:], bits)

	return buf
}

// DecodeFloat32 reads a 4-byte little-endian float32, reporting None if the
// bit pattern is exactly the float32 None payload.
func DecodeFloat32(b []byte) (float32, bool) {
	bits := binary.LittleEndian.Uint32(b)

	return math.Float32frombits(bits), bits == float32NonePayload
}

// EncodeFloat64 writes v (or the None sentinel) as 8 little-endian bytes.
func EncodeFloat64(v float64, isNone bool) [8]byte {
	var buf [8]byte

	bits := math.Float64bits(v)
	if isNone {
		bits = floatNonePayload
	}

	binary.LittleEndian.PutUint64(buf[:], bits)

	return buf
}

// DecodeFloat64 reads an 8-byte little-endian float64, reporting None if
// the bit pattern is exactly the None payload.
//
// CanonicalNaN folds any other NaN bit pattern to a single canonical NaN
// value for hashing purposes only (§9 "None-sentinel for floats": "An
// implementation must round-trip non-standard NaN bit-patterns to a
// canonical NaN for hashing only; stored bytes must preserve the payload
// for non-None values"). DecodeFloat64 itself never performs that folding
// - callers that hash float column values must call CanonicalNaN
// themselves before hashing.
func DecodeFloat64(b []byte) (float64, bool) {
	bits := binary.LittleEndian.Uint64(b)

	return math.Float64frombits(bits), bits == floatNonePayload
}

// CanonicalNaN returns v unchanged unless it is NaN, in which case it
// returns a single canonical NaN value regardless of payload, so that two
// differently-payloaded NaNs hash identically.
func CanonicalNaN(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}

	return v
}

// EncodeBool writes v (or the None sentinel 255) as one byte.
func EncodeBool(v, isNone bool) byte {
	if isNone {
		return boolNoneSentinel
	}

	if v {
		return 1
	}

	return 0
}

// DecodeBool reads one byte, reporting None if it equals the sentinel.
func DecodeBool(b byte) (bool, bool) {
	if b == boolNoneSentinel {
		return false, true
	}

	return b != 0, false
}

const dateTimeNoneFirstWord = 0

// EncodeDateTime writes a (seconds, nanoseconds) pair as 16 little-endian
// bytes; None is signalled by a first word of 0, matching the source
// format's datetime None encoding.
func EncodeDateTime(seconds, nanos int64, isNone bool) [16]byte {
	var buf [16]byte

	if isNone {
		seconds = dateTimeNoneFirstWord
		nanos = 0
	} else if seconds == dateTimeNoneFirstWord {
		// a real datetime at the epoch second collides with the None
		// sentinel: it is written unchanged, and DecodeDateTime reports
		// it as None.
		seconds = dateTimeNoneFirstWord
	}

	binary.LittleEndian.PutUint64(buf[0:8], uint64(seconds)) //nolint:gosec
	binary.LittleEndian.PutUint64(buf[8:16], uint64(nanos))  //nolint:gosec

	return buf
}

// DecodeDateTime reads a 16-byte (seconds, nanoseconds) pair, reporting
// None if the first word is 0.
func DecodeDateTime(b []byte) (seconds, nanos int64, isNone bool) {
	seconds = int64(binary.LittleEndian.Uint64(b[0:8])) //nolint:gosec
	nanos = int64(binary.LittleEndian.Uint64(b[8:16]))  //nolint:gosec

	return seconds, nanos, seconds == dateTimeNoneFirstWord
}
