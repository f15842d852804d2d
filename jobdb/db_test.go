package jobdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/workdir"
)

func writeSetup(t *testing.T, jobPath string, s SetupFile) {
	t.Helper()

	So(os.MkdirAll(jobPath, 0o755), ShouldBeNil)

	data, err := json.Marshal(s)
	So(err, ShouldBeNil)
	So(os.WriteFile(filepath.Join(jobPath, setupBasename), data, 0o644), ShouldBeNil)
}

func writePost(t *testing.T, jobPath string, p PostFile) {
	t.Helper()

	data, err := json.Marshal(p)
	So(err, ShouldBeNil)
	So(os.WriteFile(filepath.Join(jobPath, postBasename), data, 0o644), ShouldBeNil)
}

func TestJobDB(t *testing.T) {
	Convey("With a workdir containing two completed jobs", t, func() {
		dir := t.TempDir()

		store, err := workdir.NewStore([]workdir.Workdir{{Name: "results", Path: dir, Slices: 2}})
		So(err, ShouldBeNil)

		wd, err := store.Lookup("results")
		So(err, ShouldBeNil)

		writeSetup(t, filepath.Join(dir, "results-1"), SetupFile{
			Version: 4, Method: "build_thing", Hash: "abc123",
			Options:  map[string]interface{}{"foo": "foo"},
			Datasets: map[string]interface{}{}, Jobs: map[string]interface{}{},
			StartTime: 1000, JobID: "results-1",
		})
		writePost(t, filepath.Join(dir, "results-1"), PostFile{
			Version: 1, ExecTime: ExecTime{Total: 5},
		})

		writeSetup(t, filepath.Join(dir, "results-2"), SetupFile{
			Version: 4, Method: "build_thing", Hash: "abc123",
			Options:  map[string]interface{}{"foo": "bar"},
			Datasets: map[string]interface{}{}, Jobs: map[string]interface{}{},
			StartTime: 2000, JobID: "results-2",
		})
		writePost(t, filepath.Join(dir, "results-2"), PostFile{
			Version: 1, ExecTime: ExecTime{Total: 7},
		})

		db := New(store, nil)

		db.Begin()
		So(db.Refresh(wd, 4), ShouldBeNil)
		db.Finish(map[string]string{"build_thing": "abc123"})

		Convey("MatchExact finds the job with the matching fingerprint", func() {
			fp := fingerprintOf("build_thing", canonicalizeOptions(map[string]interface{}{"foo": "bar"}),
				map[string]interface{}{}, map[string]interface{}{})

			id, ok := db.MatchExact("build_thing", fp)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "results-2")
		})

		Convey("MatchSubset finds a job whose options are a superset", func() {
			id, ok := db.MatchSubset("build_thing", map[string]string{"foo": `"bar"`})
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "results-2")
		})

		Convey("LatestByMethod walks newest-first with an offset", func() {
			id, ok := db.LatestByMethod("build_thing", 0, true)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "results-2")

			id, ok = db.LatestByMethod("build_thing", 1, true)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "results-1")

			_, ok = db.LatestByMethod("build_thing", 2, true)
			So(ok, ShouldBeFalse)
		})

		Convey("A stale source hash drops jobs from byMethodCurrent but not byMethodAll", func() {
			db.Begin()
			So(db.Refresh(wd, 4), ShouldBeNil)
			db.Finish(map[string]string{"build_thing": "newhash"})

			_, ok := db.MatchExact("build_thing", "anything")
			So(ok, ShouldBeFalse)

			id, ok := db.LatestByMethod("build_thing", 0, false)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "results-2")
		})

		Convey("A job whose subjob is invalidated is pruned too", func() {
			writeSetup(t, filepath.Join(dir, "results-3"), SetupFile{
				Version: 4, Method: "downstream", Hash: "xyz",
				Options:  map[string]interface{}{},
				Datasets: map[string]interface{}{},
				Jobs:     map[string]interface{}{"input": "results-2"},
				StartTime: 3000, JobID: "results-3",
			})
			writePost(t, filepath.Join(dir, "results-3"), PostFile{Version: 1})

			db.Begin()
			So(db.Refresh(wd, 4), ShouldBeNil)
			db.Finish(map[string]string{"build_thing": "changed", "downstream": "xyz"})

			_, ok := db.LatestByMethod("downstream", 0, true)
			So(ok, ShouldBeFalse)
		})

		Convey("A job removed from disk is dropped after the next cycle", func() {
			So(os.RemoveAll(filepath.Join(dir, "results-1")), ShouldBeNil)

			db.Begin()
			So(db.Refresh(wd, 4), ShouldBeNil)
			db.Finish(map[string]string{"build_thing": "abc123"})

			_, err := db.Record("results-1")
			So(err, ShouldEqual, ErrNoSuchJob)
		})
	})
}
