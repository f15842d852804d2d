package typing

import (
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/reader"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
)

// fakeRowReader yields a fixed sequence of rows, standing in for a real
// dataset.RowReader over a bytes/ascii/unicode source dataset.
type fakeRowReader struct {
	rows []dataset.Row
	i    int
}

func (f *fakeRowReader) Next() (dataset.Row, bool, error) {
	if f.i >= len(f.rows) {
		return nil, false, nil
	}

	row := f.rows[f.i]
	f.i++

	return row, true, nil
}

func (f *fakeRowReader) Close() error { return nil }

func TestParse(t *testing.T) {
	Convey("Parse recognises every closed-catalogue spec", t, func() {
		cases := []struct {
			spec string
			want column.Type
		}{
			{"int32_10", column.Int32},
			{"int32_16", column.Int32},
			{"int32_10i", column.Int32},
			{"int64_0", column.Int64},
			{"datetime:%Y-%m-%d", column.DateTime},
			{"unicode:utf-8/replace", column.UTF8},
			{"ascii", column.ASCII},
			{"bytes", column.Bytes},
			{"number", column.Number},
			{"number,comma", column.Number},
		}

		for _, c := range cases {
			conv, err := Parse(c.spec)
			So(err, ShouldBeNil)
			So(conv.OutputType(), ShouldEqual, c.want)
		}
	})

	Convey("Parse rejects an unknown spec", t, func() {
		_, err := Parse("not-a-type")
		So(err, ShouldEqual, ErrUnknownConverter)
	})
}

func TestIntConverter(t *testing.T) {
	Convey("int32_10 parses decimal strings and rejects garbage", t, func() {
		conv, err := Parse("int32_10")
		So(err, ShouldBeNil)

		v, ok := conv.Convert([]byte("42"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, int32(42))

		_, ok = conv.Convert([]byte("42x"))
		So(ok, ShouldBeFalse)
	})

	Convey("int32_10i tolerates trailing garbage", t, func() {
		conv, err := Parse("int32_10i")
		So(err, ShouldBeNil)

		v, ok := conv.Convert([]byte("42kg"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, int32(42))
	})

	Convey("int32_16 parses hex", t, func() {
		conv, err := Parse("int32_16")
		So(err, ShouldBeNil)

		v, ok := conv.Convert([]byte("2a"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, int32(42))
	})
}

func TestNumberConverter(t *testing.T) {
	Convey("number falls back to float on a decimal point", t, func() {
		conv, _ := Parse("number")

		v, ok := conv.Convert([]byte("3.5"))
		So(ok, ShouldBeTrue)
		So(v.(column.Number).IsFloat, ShouldBeTrue)
		So(v.(column.Number).Float, ShouldEqual, 3.5)
	})

	Convey("number stays integral without a separator", t, func() {
		conv, _ := Parse("number")

		v, ok := conv.Convert([]byte("12345"))
		So(ok, ShouldBeTrue)
		So(v.(column.Number).IsFloat, ShouldBeFalse)
		So(v.(column.Number).Int64, ShouldEqual, int64(12345))
	})

	Convey("number,comma treats comma as the decimal separator", t, func() {
		conv, _ := Parse("number,comma")

		v, ok := conv.Convert([]byte("3,5"))
		So(ok, ShouldBeTrue)
		So(v.(column.Number).IsFloat, ShouldBeTrue)
		So(v.(column.Number).Float, ShouldEqual, 3.5)
	})
}

func TestDateTimeConverter(t *testing.T) {
	Convey("datetime:%Y-%m-%d parses a date", t, func() {
		conv, err := Parse("datetime:%Y-%m-%d")
		So(err, ShouldBeNil)

		v, ok := conv.Convert([]byte("2024-03-05"))
		So(ok, ShouldBeTrue)

		tm := v.(time.Time)
		So(tm.Year(), ShouldEqual, 2024)
		So(tm.Month(), ShouldEqual, time.March)
		So(tm.Day(), ShouldEqual, 5)
	})
}

func TestType(t *testing.T) {
	Convey("Type converts good rows and drops bad ones by default", t, func() {
		dir := t.TempDir()

		intConv, _ := Parse("int32_10")

		out, err := writer.New(dir, "typed", 1, []writer.ColumnDecl{
			{Name: "n", Type: column.Int32},
		}, "", false)
		So(err, ShouldBeNil)
		So(out.SetSlice(0), ShouldBeNil)

		src := &fakeRowReader{rows: []dataset.Row{
			{"raw": "1"},
			{"raw": "nope"},
			{"raw": "3"},
		}}

		res, err := Type(src, out, nil, Options{
			Columns: []ColumnSpec{{Source: "raw", Dest: "n", Converter: intConv}},
		})
		So(err, ShouldBeNil)
		So(res.Written, ShouldEqual, 2)
		So(res.Bad, ShouldEqual, 1)

		_, err = out.Finish()
		So(err, ShouldBeNil)

		m := dataset.NewMetadata("typed")
		m.Lines = []int64{2}
		m.Columns["n"] = dataset.ColumnMeta{Type: column.Int32}
		So(dataset.Save(filepath.Join(dir, "DS", "typed.p"), m), ShouldBeNil)

		r := reader.New()

		rr, err := r.OpenSlice(dir, "typed", 0, nil)
		So(err, ShouldBeNil)

		row, ok, err := rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldEqual, int32(1))

		row, ok, err = rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldEqual, int32(3))

		So(rr.Close(), ShouldBeNil)
	})

	Convey("Type diverts bad rows to badOut when FilterBad is set", t, func() {
		dir := t.TempDir()

		intConv, _ := Parse("int32_10")

		out, err := writer.New(dir, "typed", 1, []writer.ColumnDecl{{Name: "n", Type: column.Int32}}, "", false)
		So(err, ShouldBeNil)
		So(out.SetSlice(0), ShouldBeNil)

		badOut, err := writer.New(dir, "bad", 1, []writer.ColumnDecl{{Name: "raw", Type: column.UTF8}}, "", false)
		So(err, ShouldBeNil)
		So(badOut.SetSlice(0), ShouldBeNil)

		src := &fakeRowReader{rows: []dataset.Row{{"raw": "nope"}}}

		res, err := Type(src, out, badOut, Options{
			Columns:   []ColumnSpec{{Source: "raw", Dest: "n", Converter: intConv}},
			FilterBad: true,
		})
		So(err, ShouldBeNil)
		So(res.Bad, ShouldEqual, 1)

		badResult, err := badOut.Finish()
		So(err, ShouldBeNil)
		So(badResult.Columns["raw"].PerSlice[0].Count, ShouldEqual, 1)
	})

	Convey("A column default substitutes for a conversion failure instead of rejecting the row", t, func() {
		dir := t.TempDir()

		intConv, _ := Parse("int32_10")

		out, err := writer.New(dir, "typed", 1, []writer.ColumnDecl{{Name: "n", Type: column.Int32}}, "", false)
		So(err, ShouldBeNil)
		So(out.SetSlice(0), ShouldBeNil)

		src := &fakeRowReader{rows: []dataset.Row{{"raw": "nope"}}}

		res, err := Type(src, out, nil, Options{
			Columns: []ColumnSpec{
				{Source: "raw", Dest: "n", Converter: intConv, Default: int32(-1), HasDefault: true},
			},
		})
		So(err, ShouldBeNil)
		So(res.Written, ShouldEqual, 1)
		So(res.Bad, ShouldEqual, 0)
	})
}
