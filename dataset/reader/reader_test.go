package reader

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
	"github.com/wtsi-ssg/batchjob/launcher"
)

// writeAndSave writes one slice's worth of rows through writer.Writer,
// saves matching metadata (bypassing launcher.FinalizeDatasets, which is
// exercised separately), and returns the job directory.
func writeAndSave(t *testing.T, dsName string, slices int, cols []writer.ColumnDecl,
	rows []map[string]interface{},
) string {
	t.Helper()

	dir := t.TempDir()

	w, err := writer.New(dir, dsName, slices, cols, "", false)
	So(err, ShouldBeNil)
	So(w.SetSlice(0), ShouldBeNil)

	for _, row := range rows {
		So(w.WriteRow(row), ShouldBeNil)
	}

	result, err := w.Finish()
	So(err, ShouldBeNil)

	m := dataset.NewMetadata(dsName)
	m.Lines = make([]int64, slices)

	for _, c := range cols {
		info := result.Columns[c.Name]

		for _, sc := range info.PerSlice {
			if sc.Count > m.Lines[sc.Slice] {
				m.Lines[sc.Slice] = sc.Count
			}
		}

		m.Columns[c.Name] = dataset.ColumnMeta{Type: c.Type, Min: info.Min, Max: info.Max}
	}

	So(dataset.Save(filepath.Join(dir, "DS", dsName+".p"), m), ShouldBeNil)

	return dir
}

func TestReaderRoundTrip(t *testing.T) {
	Convey("A reader decodes exactly what the writer wrote, per-slice layout", t, func() {
		cols := []writer.ColumnDecl{
			{Name: "id", Type: column.Int32},
			{Name: "name", Type: column.UTF8},
			{Name: "score", Type: column.Float64},
		}

		rows := []map[string]interface{}{
			{"id": int32(1), "name": "alice", "score": 9.5},
			{"id": int32(2), "name": nil, "score": 3.25},
			{"id": int32(3), "name": "carol", "score": nil},
		}

		dir := writeAndSave(t, "people", 1, cols, rows)

		r := New()

		rr, err := r.OpenSlice(dir, "people", 0, nil)
		So(err, ShouldBeNil)

		var got []dataset.Row

		for {
			row, ok, err := rr.Next()
			So(err, ShouldBeNil)

			if !ok {
				break
			}

			got = append(got, row)
		}

		So(rr.Close(), ShouldBeNil)
		So(len(got), ShouldEqual, 3)

		So(got[0]["id"], ShouldEqual, int32(1))
		So(got[0]["name"], ShouldEqual, "alice")
		So(got[0]["score"], ShouldEqual, 9.5)

		So(got[1]["name"], ShouldBeNil)
		So(got[2]["score"], ShouldBeNil)
	})

	Convey("Requesting an unknown column is an error", t, func() {
		dir := writeAndSave(t, "ds", 1, []writer.ColumnDecl{{Name: "a", Type: column.Int32}},
			[]map[string]interface{}{{"a": int32(1)}})

		r := New()

		_, err := r.OpenSlice(dir, "ds", 0, []string{"nope"})
		So(err, ShouldEqual, ErrUnknownColumn)
	})

	Convey("A number column round-trips inline, fixed-width, float and None values", t, func() {
		cols := []writer.ColumnDecl{{Name: "n", Type: column.Number}}

		rows := []map[string]interface{}{
			{"n": column.Number{Int64: 3}},
			{"n": column.Number{Int64: 100000}},
			{"n": column.Number{IsFloat: true, Float: 2.5}},
			{"n": column.Number{IsNone: true}},
		}

		dir := writeAndSave(t, "nums", 1, cols, rows)

		r := New()

		rr, err := r.OpenSlice(dir, "nums", 0, []string{"n"})
		So(err, ShouldBeNil)

		row, ok, err := rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldEqual, int64(3))

		row, ok, err = rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldEqual, int64(100000))

		row, ok, err = rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldEqual, 2.5)

		row, ok, err = rr.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["n"], ShouldBeNil)

		So(rr.Close(), ShouldBeNil)
	})
}

func TestReaderMergedLayout(t *testing.T) {
	Convey("A reader decodes a fully-merged dataset file the same as per-slice", t, func() {
		dir := t.TempDir()

		cols := []writer.ColumnDecl{
			{Name: "id", Type: column.Int32},
			{Name: "tag", Type: column.ASCII},
		}

		w, err := writer.New(dir, "small", 2, cols, "", false)
		So(err, ShouldBeNil)

		So(w.SetSlice(0), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int32(1), "tag": "x"}), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int32(2), "tag": "y"}), ShouldBeNil)

		result0, err := w.Finish()
		So(err, ShouldBeNil)

		w2, err := writer.New(dir, "small", 2, cols, "", false)
		So(err, ShouldBeNil)
		So(w2.SetSlice(1), ShouldBeNil)
		So(w2.WriteRow(map[string]interface{}{"id": int32(3), "tag": "z"}), ShouldBeNil)

		result1, err := w2.Finish()
		So(err, ShouldBeNil)

		reports := map[string]launcher.DatasetReport{
			"small": mergeColumnReports(cols, result0, result1),
		}

		So(launcher.FinalizeDatasets(dir, 2, reports), ShouldBeNil)

		dsDir := filepath.Join(dir, "DS", "small.d")
		entries, err := os.ReadDir(dsDir)
		So(err, ShouldBeNil)

		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}

		So(names, ShouldContain, "dataset.m")

		r := New()

		rr, err := r.OpenSlice(dir, "small", 0, nil)
		So(err, ShouldBeNil)

		var slice0 []dataset.Row

		for {
			row, ok, err := rr.Next()
			So(err, ShouldBeNil)

			if !ok {
				break
			}

			slice0 = append(slice0, row)
		}

		So(rr.Close(), ShouldBeNil)
		So(len(slice0), ShouldEqual, 2)
		So(slice0[0]["tag"], ShouldEqual, "x")
		So(slice0[1]["id"], ShouldEqual, int32(2))

		rr1, err := r.OpenSlice(dir, "small", 1, nil)
		So(err, ShouldBeNil)

		row, ok, err := rr1.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(row["tag"], ShouldEqual, "z")

		_, ok, err = rr1.Next()
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
		So(rr1.Close(), ShouldBeNil)
	})
}

// mergeColumnReports combines two slice-bound writer results into the
// single DatasetReport launcher.FinalizeDatasets expects, the way the
// launcher's own aggregation does across workers.
func mergeColumnReports(cols []writer.ColumnDecl, a, b writer.SliceResult) launcher.DatasetReport {
	out := launcher.DatasetReport{Columns: make(map[string]launcher.ColumnReport, len(cols))}

	for _, c := range cols {
		info := a.Columns[c.Name]
		info.PerSlice = append(append([]writer.SliceCount{}, info.PerSlice...), b.Columns[c.Name].PerSlice...)

		out.Columns[c.Name] = launcher.ColumnReport{Type: c.Type, ColumnSliceInfo: info}
	}

	return out
}
