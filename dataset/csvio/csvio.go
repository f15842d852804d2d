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

// package csvio implements the csvExport/csvImport round-trip primitives
// named in §8's "Round-trip typing" testable property: datasetType(D,T),
// csvExport, csvImport should reproduce D's bytes columns modulo
// None/empty normalisation. Full CSV/zip importer tooling is explicitly
// out of scope; these are the small library functions that invariant
// requires to exist.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
)

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

// ErrColumnCount is returned by Import when a CSV row has a different
// number of fields than the header.
const ErrColumnCount = Error("csvio: row has wrong number of fields")

// noneField is how a None value round-trips through a CSV field: empty.
const noneField = ""

// Export writes src's rows as CSV to w, one column per entry of columns
// (in that order), with a header row naming them. A None value renders
// as an empty field.
func Export(w io.Writer, src dataset.RowReader, columns []string) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(columns); err != nil {
		return err
	}

	for {
		row, ok, err := src.Next()
		if err != nil {
			return err
		}

		if !ok {
			break
		}

		record := make([]string, len(columns))
		for i, name := range columns {
			record[i] = formatValue(row[name])
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// formatValue renders a value as it was decoded by dataset/reader (or
// converted by dataset/typing) back into its CSV text form.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return noneField
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case column.Number:
		return formatNumber(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func formatNumber(n column.Number) string {
	switch {
	case n.IsNone:
		return noneField
	case n.IsFloat:
		return strconv.FormatFloat(n.Float, 'g', -1, 64)
	case n.Big != nil:
		return n.Big.String()
	default:
		return strconv.FormatInt(n.Int64, 10)
	}
}

// ColumnSpec declares how Import should parse one CSV field back into a
// typed value: Name identifies the CSV column, Type selects the parser.
type ColumnSpec struct {
	Name string
	Type column.Type
}

// Import reads CSV from r (a header row naming the fields, as Export
// produces) and returns one dataset.Row per data row, with each named
// column's field parsed according to its ColumnSpec.Type. An empty field
// decodes as None (nil), the mirror image of Export's noneField.
func Import(r io.Reader, columns []ColumnSpec) ([]dataset.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}

		return nil, err
	}

	types := make(map[string]column.Type, len(columns))
	for _, c := range columns {
		types[c.Name] = c.Type
	}

	var rows []dataset.Row

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		if len(record) != len(header) {
			return nil, ErrColumnCount
		}

		row := make(dataset.Row, len(header))

		for i, name := range header {
			t, known := types[name]
			if !known {
				row[name] = record[i]

				continue
			}

			v, err := parseValue(record[i], t)
			if err != nil {
				return nil, err
			}

			row[name] = v
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// parseValue is the inverse of formatValue for one column.Type.
func parseValue(s string, t column.Type) (interface{}, error) {
	if s == noneField {
		return nil, nil
	}

	switch t {
	case column.Int32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, err
		}

		return int32(v), nil
	case column.Int64:
		return strconv.ParseInt(s, 10, 64)
	case column.Float32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}

		return float32(v), nil
	case column.Float64:
		return strconv.ParseFloat(s, 64)
	case column.Bool:
		return strconv.ParseBool(s)
	case column.Bytes:
		return []byte(s), nil
	case column.DateTime:
		return time.Parse(time.RFC3339Nano, s)
	case column.Number:
		return parseNumber(s)
	default: // ASCII, UTF8, JSON, and anything else round-trips as text
		return s, nil
	}
}

func parseNumber(s string) (column.Number, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return column.Number{Int64: v}, nil
	}

	if bigVal, ok := new(big.Int).SetString(s, 10); ok {
		return column.Number{Big: bigVal}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return column.Number{}, err
	}

	return column.Number{IsFloat: true, Float: f}, nil
}
