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

// Error is our error type, so that errors can be compared with ==.
type Error string

func (e Error) Error() string { return string(e) }

// ErrHashMismatch is returned by Iterate when the caller asks for a
// specific hashlabel with rehash disabled and some dataset in the chain
// declares a different one (§4.5.3 invariant).
const ErrHashMismatch = Error("dataset: chain member's hashlabel does not match the requested hashlabel")

// Row is one decoded row: column name -> typed value (nil means None).
type Row map[string]interface{}

// RangeFilter restricts iteration to rows whose range column's value v
// satisfies Min <= v < Max (Min inclusive, Max exclusive; either bound
// may be nil for "unbounded"). A whole dataset is skipped without
// reading it when its recorded column min/max can't overlap the range;
// a dataset that only partially overlaps is read row-by-row instead
// (§4.5.3, §8 scenario 3).
type RangeFilter struct {
	Column   string
	Min, Max interface{}
}

// Options configures Iterate (§4.5.3): the slice to read, the columns to
// project, and the filters applied in a fixed order: hashlabel check,
// per-dataset range filter, per-column translator, per-row predicate,
// outer slice window.
type Options struct {
	Slice   int
	Columns []string

	Range *RangeFilter

	// Hashlabel, when non-empty, is the hashlabel Iterate requires of
	// every dataset in the chain. If Rehash is false, a dataset declaring
	// a different hashlabel is a hard error (ErrHashMismatch). If Rehash
	// is true the check is skipped and such a dataset is read as stored:
	// its rows are not re-partitioned by hash(value_under_Hashlabel).
	Hashlabel string
	Rehash    bool

	// Translator maps a column name to a function rewriting its decoded
	// value before the row filter runs.
	Translator map[string]func(interface{}) interface{}

	// RowFilter, if non-nil, is applied after translation; a row is kept
	// only if RowFilter returns true.
	RowFilter func(Row) bool

	// Offset/Limit implement the outer slice window, applied last.
	Offset int
	Limit  int // 0 means unlimited
}

// RowReader is a column-decoding cursor over one dataset's one slice,
// implemented by package dataset/reader for whichever
// on-disk layout (per-slice, merged, fully-merged) that dataset actually
// uses.
type RowReader interface {
	Next() (Row, bool, error)
	Close() error
}

// DatasetReader opens a RowReader for one member of a chain, reading only
// the requested columns from the given slice.
type DatasetReader interface {
	OpenSlice(jobPath, fsSafeName string, slice int, columns []string) (RowReader, error)
}

// Iterate concatenates row iterators across chain, read in the order
// given (oldest first, as Chain returns it), for the given Options
// (§4.5.3): the hashlabel check runs before any reader is opened, then
// range -> translator -> row filter -> outer slice window.
func Iterate(reader DatasetReader, chain []Handle, opts Options) (RowReader, error) {
	if opts.Hashlabel != "" && !opts.Rehash {
		for _, h := range chain {
			if h.Meta.Hashlabel != "" && h.Meta.Hashlabel != opts.Hashlabel {
				return nil, ErrHashMismatch
			}
		}
	}

	// oldest-first, matching the teacher's convention of reading dguta
	// chains root-to-leaf (dgut/tree.go's chain walk reads ancestors
	// before descendants so accumulation order is stable).
	var readers []RowReader

	for _, h := range chain {
		columns := opts.Columns
		needsRowFilter := false

		if opts.Range != nil {
			cm, ok := h.Meta.Columns[opts.Range.Column]

			switch {
			case ok && !rangeOverlaps(cm, opts.Range):
				// dataset's own min/max can't intersect the query range at
				// all: skip it without opening a reader (the fast path).
				continue
			case ok && rangeContains(cm, opts.Range):
				// every row in this dataset is already known to satisfy
				// the range: no per-row check needed.
			default:
				// partial overlap (or min/max not recorded at all, e.g. an
				// empty-looking column metadata): fall back to checking
				// every row.
				needsRowFilter = true
			}
		}

		dropColumn := false

		if needsRowFilter && columns != nil && !containsString(columns, opts.Range.Column) {
			columns = append(append([]string{}, columns...), opts.Range.Column)
			dropColumn = true
		}

		rr, err := reader.OpenSlice(h.JobPath, h.Name, opts.Slice, columns)
		if err != nil {
			closeAll(readers)

			return nil, err
		}

		if needsRowFilter {
			rr = &rangeRowReader{
				RowReader:  rr,
				column:     opts.Range.Column,
				min:        opts.Range.Min,
				max:        opts.Range.Max,
				dropColumn: dropColumn,
			}
		}

		readers = append(readers, rr)
	}

	return &chainReader{
		readers:    readers,
		translator: opts.Translator,
		rowFilter:  opts.RowFilter,
		offset:     opts.Offset,
		limit:      opts.Limit,
	}, nil
}

func closeAll(readers []RowReader) {
	for _, r := range readers {
		r.Close() //nolint:errcheck
	}
}

// rangeOverlaps reports whether cm's recorded [Min,Max] could contain any
// row satisfying f (Min inclusive, Max exclusive). It is deliberately
// conservative: an incomparable bound (nil, or a non-numeric type) never
// rules out overlap, so this is only ever used to skip a dataset, never to
// decide rows are in range.
func rangeOverlaps(cm ColumnMeta, f *RangeFilter) bool {
	if f.Min != nil {
		if cmp, ok := compareValues(cm.Max, f.Min); ok && cmp < 0 {
			return false // dataset's max is below the query's lower bound
		}
	}

	if f.Max != nil {
		if cmp, ok := compareValues(cm.Min, f.Max); ok && cmp >= 0 {
			return false // dataset's min is at or above the query's exclusive upper bound
		}
	}

	return true
}

// rangeContains reports whether every row in cm is guaranteed to already
// satisfy f, so no per-row check is needed for this dataset. Unlike
// rangeOverlaps, an incomparable bound means "can't prove it", which
// conservatively means false (fall back to checking every row).
func rangeContains(cm ColumnMeta, f *RangeFilter) bool {
	if f.Min != nil {
		if cmp, ok := compareValues(cm.Min, f.Min); !ok || cmp < 0 {
			return false
		}
	}

	if f.Max != nil {
		if cmp, ok := compareValues(cm.Max, f.Max); !ok || cmp >= 0 {
			return false
		}
	}

	return true
}

// compareValues compares two values that came from column min/max or a
// range filter bound. It supports the ordered scalar kinds the range
// filter is meaningful for; ok is false when either side can't be
// compared (nil or a non-numeric type).
func compareValues(a, b interface{}) (cmp int, ok bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if !aok || !bok {
		return 0, false
	}

	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

// containsString reports whether s is present in list.
func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// valueInRange reports whether v (a decoded column value) satisfies
// min <= v < max. A value that can't be compared (nil, or a non-numeric
// type the range filter doesn't support) is excluded rather than passed
// through, since "is this row in range" must have a definite answer once
// we've committed to reading the row.
func valueInRange(v, min, max interface{}) bool {
	vf, ok := toFloat(v)
	if !ok {
		return false
	}

	if min != nil {
		if minf, ok := toFloat(min); ok && vf < minf {
			return false
		}
	}

	if max != nil {
		if maxf, ok := toFloat(max); ok && vf >= maxf {
			return false
		}
	}

	return true
}

// rangeRowReader wraps a RowReader with a per-row RangeFilter check, for a
// dataset that rangeOverlaps let through but rangeContains couldn't
// guarantee is entirely in range. If the range column was only read to
// make this check possible (the caller didn't actually request it),
// dropColumn removes it again before the row is handed onward.
type rangeRowReader struct {
	RowReader

	column     string
	min, max   interface{}
	dropColumn bool
}

func (r *rangeRowReader) Next() (Row, bool, error) {
	for {
		row, ok, err := r.RowReader.Next()
		if err != nil || !ok {
			return row, ok, err
		}

		if !valueInRange(row[r.column], r.min, r.max) {
			continue
		}

		if r.dropColumn {
			delete(row, r.column)
		}

		return row, true, nil
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// chainReader concatenates multiple RowReaders and applies the
// translator/row-filter/offset/limit stages after the hashlabel check and
// range stage have already been applied by Iterate (a hashlabel mismatch
// fails the Iterate call itself, before any row is read).
type chainReader struct {
	readers    []RowReader
	translator map[string]func(interface{}) interface{}
	rowFilter  func(Row) bool

	offset int
	limit  int
	seen   int
	idx    int
}

func (c *chainReader) Next() (Row, bool, error) {
	for {
		if c.limit > 0 && c.seen >= c.limit {
			return nil, false, nil
		}

		row, ok, err := c.nextRaw()
		if err != nil || !ok {
			return nil, ok, err
		}

		for col, fn := range c.translator {
			if v, present := row[col]; present {
				row[col] = fn(v)
			}
		}

		if c.rowFilter != nil && !c.rowFilter(row) {
			continue
		}

		if c.offset > 0 {
			c.offset--

			continue
		}

		c.seen++

		return row, true, nil
	}
}

func (c *chainReader) nextRaw() (Row, bool, error) {
	for c.idx < len(c.readers) {
		row, ok, err := c.readers[c.idx].Next()
		if err != nil {
			return nil, false, err
		}

		if ok {
			return row, true, nil
		}

		c.idx++
	}

	return nil, false, nil
}

func (c *chainReader) Close() error {
	var first error

	for _, r := range c.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
