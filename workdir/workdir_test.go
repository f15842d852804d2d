package workdir

import (
	"path/filepath"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAllocate(t *testing.T) {
	Convey("Allocate assigns strictly increasing job ids", t, func() {
		dir := t.TempDir()
		store, err := NewStore([]Workdir{{Name: "results", Path: filepath.Join(dir, "results"), Slices: 4}})
		So(err, ShouldBeNil)

		wd, err := store.Lookup("results")
		So(err, ShouldBeNil)

		id1, _, err := store.Allocate(wd)
		So(err, ShouldBeNil)
		So(id1, ShouldEqual, "results-1")

		id2, _, err := store.Allocate(wd)
		So(err, ShouldBeNil)
		So(id2, ShouldEqual, "results-2")

		tip, ok, err := store.Tip(wd)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(tip, ShouldEqual, "results-2")
	})

	Convey("Allocate is safe under concurrent use", t, func() {
		dir := t.TempDir()
		store, err := NewStore([]Workdir{{Name: "w", Path: dir, Slices: 1}})
		So(err, ShouldBeNil)

		wd, err := store.Lookup("w")
		So(err, ShouldBeNil)

		const n = 20

		ids := make([]string, n)

		var wg sync.WaitGroup

		for i := 0; i < n; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				id, _, err := store.Allocate(wd)
				if err == nil {
					ids[i] = id
				}
			}(i)
		}

		wg.Wait()

		seen := make(map[string]bool, n)
		for _, id := range ids {
			So(id, ShouldNotBeEmpty)
			So(seen[id], ShouldBeFalse)
			seen[id] = true
		}
	})

	Convey("ParseJobID splits workdir name and sequence number", t, func() {
		name, n, err := ParseJobID("results-42")
		So(err, ShouldBeNil)
		So(name, ShouldEqual, "results")
		So(n, ShouldEqual, 42)

		_, _, err = ParseJobID("noseparator")
		So(err, ShouldNotBeNil)
	})
}
