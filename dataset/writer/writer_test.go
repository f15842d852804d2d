package writer

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/dataset/column"
)

func TestWriterBasic(t *testing.T) {
	Convey("A slice-bound writer writes rows to per-slice files", t, func() {
		dir := t.TempDir()

		w, err := New(dir, "mydataset", 2, []ColumnDecl{
			{Name: "id", Type: column.Int32},
			{Name: "name", Type: column.UTF8},
		}, "", false)
		So(err, ShouldBeNil)

		So(w.SetSlice(0), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int32(1), "name": "alice"}), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int32(2), "name": "bob"}), ShouldBeNil)

		result, err := w.Finish()
		So(err, ShouldBeNil)
		So(result.Columns["id"].PerSlice[0].Count, ShouldEqual, 2)

		dsDir := filepath.Join(dir, "DS", "mydataset.d")
		entries, err := os.ReadDir(dsDir)
		So(err, ShouldBeNil)
		So(len(entries), ShouldBeGreaterThan, 0)
	})

	Convey("Duplicate column names are rejected", t, func() {
		_, err := New(t.TempDir(), "d", 1, []ColumnDecl{
			{Name: "a", Type: column.Int32},
			{Name: "a", Type: column.Int32},
		}, "", false)
		So(err, ShouldEqual, ErrDuplicateColumn)
	})

	Convey("SetSlice is rejected on a split writer", t, func() {
		w, err := New(t.TempDir(), "d", 2, []ColumnDecl{{Name: "a", Type: column.Int32}}, "", true)
		So(err, ShouldBeNil)
		So(w.SetSlice(0), ShouldEqual, ErrSetSliceOnSplit)
	})

	Convey("A split writer routes rows by hashlabel without SetSlice", t, func() {
		w, err := New(t.TempDir(), "d", 3, []ColumnDecl{
			{Name: "a", Type: column.Int32},
		}, "a", true)
		So(err, ShouldBeNil)

		So(w.WriteRow(map[string]interface{}{"a": int32(7)}), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"a": int32(8)}), ShouldBeNil)

		result, err := w.Finish()
		So(err, ShouldBeNil)
		So(result.Columns["a"].PerSlice, ShouldNotBeEmpty)
	})

	Convey("A wrong-slice write is rejected unless EnableHashDiscard is set", t, func() {
		w, err := New(t.TempDir(), "d", 4, []ColumnDecl{{Name: "a", Type: column.Int32}}, "a", false)
		So(err, ShouldBeNil)
		So(w.SetSlice(0), ShouldBeNil)

		// find a value that does NOT hash to slice 0
		var wrongVal int32

		for i := int32(0); i < 100; i++ {
			if !w.HashCheck(i) {
				wrongVal = i

				break
			}
		}

		err = w.WriteRow(map[string]interface{}{"a": wrongVal})
		So(err, ShouldEqual, ErrWrongSlice)

		w.EnableHashDiscard()
		err = w.WriteRow(map[string]interface{}{"a": wrongVal})
		So(err, ShouldBeNil)
	})
}
