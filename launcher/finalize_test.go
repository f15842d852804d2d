package launcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/dataset/column"
	"github.com/wtsi-ssg/batchjob/dataset/writer"
)

func TestMergeDatasetReports(t *testing.T) {
	Convey("mergeDatasetReports combines per-slice column stats across workers", t, func() {
		outcome := &Outcome{Datasets: make(map[string]DatasetReport)}

		So(mergeDatasetReports(outcome, map[string]DatasetReport{
			"widgets": {
				Caption: "widget export",
				Columns: map[string]ColumnReport{
					"id": {Type: column.Int64, ColumnSliceInfo: writer.ColumnSliceInfo{
						PerSlice: []writer.SliceCount{{Slice: 0, Count: 10}}, Min: 1.0, Max: 5.0,
					}},
				},
			},
		}), ShouldBeNil)

		So(mergeDatasetReports(outcome, map[string]DatasetReport{
			"widgets": {
				Columns: map[string]ColumnReport{
					"id": {Type: column.Int64, ColumnSliceInfo: writer.ColumnSliceInfo{
						PerSlice: []writer.SliceCount{{Slice: 1, Count: 20}}, Min: 0.0, Max: 9.0,
					}},
				},
			},
		}), ShouldBeNil)

		col := outcome.Datasets["widgets"].Columns["id"]
		So(col.PerSlice, ShouldHaveLength, 2)
		So(col.Min, ShouldEqual, 0.0)
		So(col.Max, ShouldEqual, 9.0)
		So(outcome.Datasets["widgets"].Caption, ShouldEqual, "widget export")
	})
}

func TestTopoOrder(t *testing.T) {
	Convey("topoOrder places a dataset before anything chained onto it", t, func() {
		reports := map[string]DatasetReport{
			"child":  {Previous: "parent"},
			"parent": {},
			"other":  {},
		}

		order := topoOrder(reports)
		So(order, ShouldHaveLength, 3)

		parentIdx, childIdx := -1, -1

		for i, name := range order {
			if name == "parent" {
				parentIdx = i
			}

			if name == "child" {
				childIdx = i
			}
		}

		So(parentIdx, ShouldBeLessThan, childIdx)
	})
}

func TestFinalizeDatasets(t *testing.T) {
	Convey("FinalizeDatasets merges per-slice column files and writes dataset metadata", t, func() {
		jobDir := t.TempDir()

		w, err := writer.New(jobDir, "widgets", 2, []writer.ColumnDecl{
			{Name: "id", Type: column.Int64},
		}, "", false)
		So(err, ShouldBeNil)

		So(w.SetSlice(0), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int64(1)}), ShouldBeNil)
		So(w.SetSlice(1), ShouldBeNil)
		So(w.WriteRow(map[string]interface{}{"id": int64(2)}), ShouldBeNil)

		sliceResult, err := w.Finish()
		So(err, ShouldBeNil)

		reports := map[string]DatasetReport{
			"widgets": {
				Columns: map[string]ColumnReport{
					"id": {Type: column.Int64, ColumnSliceInfo: sliceResult.Columns["id"]},
				},
			},
		}

		So(FinalizeDatasets(jobDir, 2, reports), ShouldBeNil)

		meta, err := dataset.LoadMetadata(filepath.Join(jobDir, "DS", "widgets.p"))
		So(err, ShouldBeNil)
		So(meta.Columns["id"].Type, ShouldEqual, column.Int64)
		So(meta.Lines, ShouldResemble, []int64{1, 1})
	})
}

func TestWritePost(t *testing.T) {
	Convey("WritePost writes post.json with produced files and subjobs", t, func() {
		jobDir := t.TempDir()

		outcome := &Outcome{
			ProducedFiles: []string{"a.txt"},
			Subjobs:       map[string]bool{"results-0": true},
			PerSlice:      nil,
		}

		now := time.Now()
		So(WritePost(jobDir, now, now, outcome), ShouldBeNil)

		_, err := os.Stat(filepath.Join(jobDir, "post.json"))
		So(err, ShouldBeNil)
	})
}
