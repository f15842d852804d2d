package urd

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a Store", t, func() {
		s := NewStore(nil)

		Convey("Add inserts a new entry", func() {
			res, err := s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-01"}, AddFlags{})
			So(err, ShouldBeNil)
			So(res.New, ShouldBeTrue)

			entries, err := s.Since("test", "ing", "0")
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
		})

		Convey("Add rejects a new timestamp that is not after the list's latest", func() {
			_, err := s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-02"}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-01"}, AddFlags{})
			So(err, ShouldEqual, ErrNotIncreasing)
		})

		Convey("Add rejects mismatched user", func() {
			_, err := s.Add("other", &Entry{User: "test", List: "ing", Timestamp: "2023-01"}, AddFlags{})
			So(err, ShouldEqual, ErrPermission)
		})

		Convey("Add rejects conflicting re-add without update", func() {
			_, err := s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-01", Caption: "a"}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-01", Caption: "b"}, AddFlags{})
			So(err, ShouldEqual, ErrConflict)

			res, err := s.Add("test", &Entry{User: "test", List: "ing", Timestamp: "2023-01", Caption: "b"},
				AddFlags{Update: true})
			So(err, ShouldBeNil)
			So(res.Changed, ShouldBeTrue)
		})

		Convey("Update ghosts dependents, scenario 5", func() {
			_, err := s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-01",
				Joblist: []JobRef{{Name: "a", JobID: "wd-1"}},
			}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-02",
				Joblist: []JobRef{{Name: "b", JobID: "wd-2"}},
				Deps: map[string]DepSnapshot{
					"test/ing": {Timestamp: "2023-01", Joblist: []JobRef{{Name: "a", JobID: "wd-1"}}},
				},
			}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-01",
				Joblist: []JobRef{{Name: "a", JobID: "wd-99"}},
			}, AddFlags{Update: true})
			So(err, ShouldBeNil)

			entries, err := s.Since("test", "ing", "0")
			So(err, ShouldBeNil)

			var timestamps []string

			for _, e := range entries {
				timestamps = append(timestamps, e.Timestamp)
			}

			So(timestamps, ShouldResemble, []string{"2023-01"})
		})

		Convey("Get skips a ghosted tip for \"latest\" and \"first\"", func() {
			_, err := s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-01",
				Joblist: []JobRef{{Name: "a", JobID: "wd-1"}},
			}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-02",
				Joblist: []JobRef{{Name: "b", JobID: "wd-2"}},
				Deps: map[string]DepSnapshot{
					"test/ing": {Timestamp: "2023-01", Joblist: []JobRef{{Name: "a", JobID: "wd-1"}}},
				},
			}, AddFlags{})
			So(err, ShouldBeNil)

			_, err = s.Add("test", &Entry{
				User: "test", List: "ing", Timestamp: "2023-01",
				Joblist: []JobRef{{Name: "a", JobID: "wd-99"}},
			}, AddFlags{Update: true})
			So(err, ShouldBeNil)

			latest, err := s.Get("test", "ing", "latest")
			So(err, ShouldBeNil)
			So(latest.Timestamp, ShouldEqual, "2023-01")

			first, err := s.Get("test", "ing", "first")
			So(err, ShouldBeNil)
			So(first.Timestamp, ShouldEqual, "2023-01")
		})

		Convey("Truncate leaves only entries before the given timestamp", func() {
			for _, ts := range []string{"2023-01", "2023-02", "2023-03"} {
				_, err := s.Add("test", &Entry{User: "test", List: "ing", Timestamp: ts}, AddFlags{})
				So(err, ShouldBeNil)
			}

			res, err := s.Truncate("test", "ing", "2023-02")
			So(err, ShouldBeNil)
			So(res.Count, ShouldEqual, 2)

			entries, err := s.Since("test", "ing", "0")
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Timestamp, ShouldEqual, "2023-01")
		})
	})
}

func TestLogRoundTrip(t *testing.T) {
	Convey("Given a log file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "urd.log")

		lf, err := OpenFile(path)
		So(err, ShouldBeNil)

		e := &Entry{
			User: "test", List: "ing", Timestamp: "2023-01",
			Joblist: []JobRef{{Name: "a", JobID: "wd-1"}},
			Deps: map[string]DepSnapshot{
				"test/other": {Timestamp: "2023-01", Joblist: nil, Caption: "c"},
			},
			Caption: "hello\tworld",
		}

		So(lf.Append(e), ShouldBeNil)
		So(lf.Close(), ShouldBeNil)

		Convey("ReadAll reconstructs the entry", func() {
			entries, err := ReadAll(path)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].User, ShouldEqual, "test")
			So(entries[0].Caption, ShouldEqual, "hello\tworld")
			So(entries[0].Joblist, ShouldResemble, e.Joblist)
		})
	})

	Convey("Given a version-3 pipe-separated line", t, func() {
		line := `3|"test"|"ing"|"2023-01"|[{"name":"a","jobid":"wd-1"}]|{}|"cap"|"wd-1"|0`

		Convey("parseLine accepts it", func() {
			e, err := parseLine(line)
			So(err, ShouldBeNil)
			So(e.User, ShouldEqual, "test")
			So(e.Caption, ShouldEqual, "cap")
		})
	})
}
