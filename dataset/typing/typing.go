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

// package typing implements datasetType (§4.5.5): rewriting a source
// dataset's bytes/ascii/unicode columns into typed columns under a new
// dataset, via a closed catalogue of parametric converters.
//
// The source system materialises whole columns as arrays and therefore
// types a dataset's hashlabel column in one pass (building a slicemap and
// badmap) before streaming the remaining columns through that map, purely
// to avoid re-typing the hashlabel column twice. This engine already reads
// a source dataset row-at-a-time with every requested column decoded
// together (dataset.RowReader), so there is nothing to re-type: Type below
// runs the equivalent of both those passes in one pass over the rows,
// preserving the same bad-row and rehash semantics without the source
// system's array-oriented optimisation being applicable (see DESIGN.md).
package typing

import (
	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

// ErrNotBytesLike is returned when a source column's value isn't a string
// or []byte, meaning it wasn't itself a bytes/ascii/unicode column.
const ErrNotBytesLike = Error("typing: source column value is not string/[]byte")

// ColumnSpec declares one output column: which source column's raw bytes
// feed it, which Converter types them, and what to do when conversion
// fails for some row.
type ColumnSpec struct {
	Source      string
	Dest        string // defaults to Source if empty
	Converter   Converter
	Default     interface{}
	HasDefault  bool
}

func (c ColumnSpec) destName() string {
	if c.Dest != "" {
		return c.Dest
	}

	return c.Source
}

// Options configures Type (§4.5.5).
type Options struct {
	Columns []ColumnSpec

	// FilterBad diverts a row that fails typing to a sibling "bad" dataset
	// (via BadWriter) instead of silently rejecting it.
	FilterBad bool

	// Hashlabel, if non-empty, must name one of Columns' Dest columns;
	// Writer is expected to be a split writer configured with the same
	// hashlabel, so a row's typed hashlabel value drives its destination
	// slice (the "rehash" in "when rehash=true... typing also
	// repartitions").
	Hashlabel string
}

// Result tallies what Type did (§4.5.5, used by the launcher's dataset
// reports and by callers wanting to know how much was diverted).
type Result struct {
	Written int64
	Bad     int64
}

// Type reads every row src yields, converts each declared column via its
// Converter, and writes the typed row to out - or, on a row that fails
// typing (any column with no Default converts unsuccessfully), either
// drops the row (default) or writes the original untyped row to badOut
// (opts.FilterBad).
func Type(src dataset.RowReader, out, badOut *writer.Writer, opts Options) (Result, error) {
	var res Result

	for {
		row, ok, err := src.Next()
		if err != nil {
			return res, err
		}

		if !ok {
			break
		}

		typed, good := typeRow(row, opts.Columns)

		if !good {
			res.Bad++

			if opts.FilterBad && badOut != nil {
				if err := badOut.WriteRow(row); err != nil {
					return res, err
				}
			}

			continue
		}

		if err := out.WriteRow(typed); err != nil {
			return res, err
		}

		res.Written++
	}

	return res, nil
}

func typeRow(row dataset.Row, columns []ColumnSpec) (dataset.Row, bool) {
	typed := make(dataset.Row, len(columns))

	for _, cs := range columns {
		raw := row[cs.Source]

		if raw == nil {
			typed[cs.destName()] = nil

			continue
		}

		b, ok := toBytes(raw)
		if !ok {
			if cs.HasDefault {
				typed[cs.destName()] = cs.Default

				continue
			}

			return nil, false
		}

		v, ok := cs.Converter.Convert(b)
		if !ok {
			if cs.HasDefault {
				typed[cs.destName()] = cs.Default

				continue
			}

			return nil, false
		}

		typed[cs.destName()] = v
	}

	return typed, true
}

func toBytes(v interface{}) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		return nil, false
	}
}

// Converter decodes one column's source bytes into a typed value, per the
// closed catalogue in §4.5.5 ("each column's converter is selected from a
// closed catalogue").
type Converter interface {
	// OutputType is the column.Type the converted value should be written
	// with.
	OutputType() column.Type

	// Convert parses raw into a typed value. ok is false if raw doesn't
	// parse, in which case the row fails typing (unless the ColumnSpec
	// carries a Default).
	Convert(raw []byte) (value interface{}, ok bool)
}
