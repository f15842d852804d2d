package resolver

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/method"
)

func TestExplain(t *testing.T) {
	Convey("Explain finds the newest job whose options are a superset of the query", t, func() {
		r, wd, db := newTestResolver(t)

		_, err := r.Submit(Submission{
			Method:  "build_thing",
			Options: map[string]interface{}{"foo": "foo", "a": "a"},
			Workdir: "results",
		})
		So(err, ShouldBeNil)

		indexJob(t, db, wd, "results-1")

		rec, ok, err := Explain(r.registry, db, "build_thing", map[string]interface{}{"foo": "foo"})
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(rec.JobID, ShouldEqual, "results-1")

		_, ok, err = Explain(r.registry, db, "build_thing", map[string]interface{}{"foo": "nope"})
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("Explain rejects an unknown method", t, func() {
		r, _, db := newTestResolver(t)

		_, _, err := Explain(r.registry, db, "nope", nil)
		So(err, ShouldEqual, method.ErrUnknownMethod)
	})
}
