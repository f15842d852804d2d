package server

import (
	"path/filepath"
	"testing"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/jobdb"
	"github.com/wtsi-ssg/batchjob/method"
	"github.com/wtsi-ssg/batchjob/workdir"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	dir := t.TempDir()

	store, err := workdir.NewStore([]workdir.Workdir{{Name: "testwd", Path: filepath.Join(dir, "testwd"), Slices: 2}})
	So(err, ShouldBeNil)

	registry := method.NewRegistry()
	db := jobdb.New(store, nil)

	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())

	return NewEngine(registry, db, store, "testwd", 2, nil, logger)
}

func TestEngineStatus(t *testing.T) {
	Convey("Given a fresh Engine", t, func() {
		e := newTestEngine(t)

		Convey("Status reports idle with no running jobs", func() {
			snap := e.Status()
			So(snap.Idle, ShouldBeTrue)
			So(snap.Jobs, ShouldBeEmpty)
		})

		Convey("RefreshMethods succeeds against an empty registry", func() {
			So(e.RefreshMethods(), ShouldBeNil)
		})

		Convey("JobsAreCurrent reports false for an unknown job id", func() {
			result := e.JobsAreCurrent([]string{"testwd-1"})
			So(result["testwd-1"], ShouldBeFalse)
		})

		Convey("JobsAreCurrent reports false for a malformed id", func() {
			result := e.JobsAreCurrent([]string{"not-a-job-id"})
			So(result["not-a-job-id"], ShouldBeFalse)
		})
	})
}
