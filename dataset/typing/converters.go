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

package typing

import (
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wtsi-ssg/batchjob/dataset/column"
)

// ErrUnknownConverter is returned by Parse for a spec string matching no
// member of the closed catalogue (§4.5.5).
const ErrUnknownConverter = Error("typing: unknown converter")

// Parse returns the Converter for a closed-catalogue spec string (§4.5.5):
//
//	int32_10, int32_16, int32_0, int32_8, int32_10i (trailing-garbage
//	  tolerant), and the int64_* equivalents
//	datetime:<strftime format>  (e.g. "datetime:%Y-%m-%d %H:%M:%S")
//	unicode:<encoding>/<errors> (only utf-8 is supported; errors is one of
//	  strict, replace, ignore)
//	ascii
//	bytes       (passthrough, no conversion)
//	number      (arbitrary-precision; add ",comma" for comma-decimal locale,
//	             §4.5.5's numericComma as a per-converter option)
func Parse(spec string) (Converter, error) {
	switch {
	case strings.HasPrefix(spec, "int32_"):
		return parseInt(spec, 32)
	case strings.HasPrefix(spec, "int64_"):
		return parseInt(spec, 64)
	case strings.HasPrefix(spec, "datetime:"):
		return dateTimeConverter{layout: toGoLayout(strings.TrimPrefix(spec, "datetime:"))}, nil
	case strings.HasPrefix(spec, "unicode:"):
		return parseUnicode(strings.TrimPrefix(spec, "unicode:"))
	case spec == "ascii":
		return unicodeConverter{asciiOnly: true, onError: errReplace}, nil
	case spec == "bytes":
		return bytesConverter{}, nil
	case spec == "number":
		return numberConverter{}, nil
	case spec == "number,comma":
		return numberConverter{comma: true}, nil
	default:
		return nil, ErrUnknownConverter
	}
}

// --- integers (int32_0/_8/_10/_16[i], int64_0/_8/_10/_16[i]) ---

type intConverter struct {
	bits         int
	base         int
	allowGarbage bool
}

func parseInt(spec string, bits int) (Converter, error) {
	rest := spec[strings.IndexByte(spec, '_')+1:]

	allowGarbage := strings.HasSuffix(rest, "i")
	if allowGarbage {
		rest = strings.TrimSuffix(rest, "i")
	}

	base, err := strconv.Atoi(rest)
	if err != nil {
		return nil, ErrUnknownConverter
	}

	switch base {
	case 0, 8, 10, 16:
	default:
		return nil, ErrUnknownConverter
	}

	return intConverter{bits: bits, base: base, allowGarbage: allowGarbage}, nil
}

func (c intConverter) OutputType() column.Type {
	if c.bits == 32 {
		return column.Int32
	}

	return column.Int64
}

func (c intConverter) Convert(raw []byte) (interface{}, bool) {
	s := strings.TrimSpace(string(raw))
	if c.allowGarbage {
		s = trimTrailingGarbage(s, c.base)
	}

	v, err := strconv.ParseInt(s, c.base, c.bits)
	if err != nil {
		return nil, false
	}

	if c.bits == 32 {
		return int32(v), true //nolint:gosec
	}

	return v, true
}

// trimTrailingGarbage keeps only the leading sign and digit run of s, per
// §4.5.5 "optionally accept trailing garbage (int32_10i)".
func trimTrailingGarbage(s string, base int) string {
	isDigit := func(b byte) bool {
		switch base {
		case 16:
			return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
		case 8:
			return b >= '0' && b <= '7'
		default:
			return b >= '0' && b <= '9'
		}
	}

	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}

	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}

	if i == start {
		return s
	}

	return s[:i]
}

// --- datetime:<strftime format> ---

type dateTimeConverter struct {
	layout string
}

var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006", "%y", "06",
	"%m", "01", "%d", "02",
	"%H", "15", "%M", "04", "%S", "05",
	"%z", "-0700", "%Z", "MST",
	"%B", "January", "%b", "Jan",
	"%A", "Monday", "%a", "Mon",
	"%%", "%",
)

func toGoLayout(strftime string) string {
	return strftimeReplacer.Replace(strftime)
}

func (dateTimeConverter) OutputType() column.Type { return column.DateTime }

func (c dateTimeConverter) Convert(raw []byte) (interface{}, bool) {
	t, err := time.Parse(c.layout, string(raw))
	if err != nil {
		return nil, false
	}

	return t, true
}

// --- unicode:<encoding>/<errors>, ascii ---

type errorMode int

const (
	errStrict errorMode = iota
	errReplace
	errIgnore
)

type unicodeConverter struct {
	asciiOnly bool
	onError   errorMode
}

func parseUnicode(spec string) (Converter, error) {
	parts := strings.SplitN(spec, "/", 2)

	encoding := parts[0]
	if encoding != "utf-8" && encoding != "utf8" {
		return nil, ErrUnknownConverter
	}

	mode := errStrict

	if len(parts) == 2 {
		switch parts[1] {
		case "strict":
			mode = errStrict
		case "replace":
			mode = errReplace
		case "ignore":
			mode = errIgnore
		default:
			return nil, ErrUnknownConverter
		}
	}

	return unicodeConverter{onError: mode}, nil
}

func (c unicodeConverter) OutputType() column.Type {
	if c.asciiOnly {
		return column.ASCII
	}

	return column.UTF8
}

func (c unicodeConverter) Convert(raw []byte) (interface{}, bool) {
	if c.asciiOnly {
		return c.convertASCII(raw)
	}

	if utf8.Valid(raw) {
		return string(raw), true
	}

	switch c.onError {
	case errStrict:
		return nil, false
	case errIgnore:
		return stripInvalidUTF8(raw, false), true
	default: // errReplace
		return stripInvalidUTF8(raw, true), true
	}
}

func (c unicodeConverter) convertASCII(raw []byte) (interface{}, bool) {
	for _, b := range raw {
		if b >= utf8.RuneSelf {
			switch c.onError {
			case errStrict:
				return nil, false
			case errIgnore:
				return asciiFilter(raw, false), true
			default:
				return asciiFilter(raw, true), true
			}
		}
	}

	return string(raw), true
}

func asciiFilter(raw []byte, replace bool) string {
	var b strings.Builder

	for _, c := range raw {
		if c < utf8.RuneSelf {
			b.WriteByte(c)
		} else if replace {
			b.WriteByte('?')
		}
	}

	return b.String()
}

func stripInvalidUTF8(raw []byte, replace bool) string {
	var b strings.Builder

	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size <= 1 {
			if replace {
				b.WriteRune(utf8.RuneError)
			}

			raw = raw[1:]

			continue
		}

		b.WriteRune(r)
		raw = raw[size:]
	}

	return b.String()
}

// --- bytes (passthrough) ---

type bytesConverter struct{}

func (bytesConverter) OutputType() column.Type { return column.Bytes }

func (bytesConverter) Convert(raw []byte) (interface{}, bool) {
	out := make([]byte, len(raw))
	copy(out, raw)

	return out, true
}

// --- number (arbitrary precision, §4.5.5) ---

type numberConverter struct {
	comma bool
}

func (numberConverter) OutputType() column.Type { return column.Number }

// Convert parses raw as an arbitrary-precision integer, falling back to a
// float when a decimal separator or exponent is present (§4.5.5 "The
// 'number' converter parses arbitrary-precision integers falling back to
// float when a decimal separator or exponent is present"). comma makes
// opts per-converter rather than a process-global sticky flag, per
// SPEC_FULL.md's REDESIGN FLAG decision.
func (c numberConverter) Convert(raw []byte) (interface{}, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, false
	}

	norm := s
	if c.comma {
		norm = strings.ReplaceAll(norm, ".", "")
		norm = strings.ReplaceAll(norm, ",", ".")
	}

	if isFloatLike(norm) {
		f, err := strconv.ParseFloat(norm, 64)
		if err != nil {
			return nil, false
		}

		return column.Number{IsFloat: true, Float: f}, true
	}

	if v, err := strconv.ParseInt(norm, 10, 64); err == nil {
		return column.Number{Int64: v}, true
	}

	bigVal, ok := new(big.Int).SetString(norm, 10)
	if !ok {
		return nil, false
	}

	return column.Number{Big: bigVal}, true
}

func isFloatLike(s string) bool {
	return strings.ContainsAny(s, ".eE") && s != "."
}
