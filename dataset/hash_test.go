package dataset

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHashPartitioning(t *testing.T) {
	Convey("Every value consistently maps to the same slice", t, func() {
		slices := 3
		for _, v := range []interface{}{"a", "42", int32(7), int64(1000)} {
			s1 := SliceFor(v, slices)
			s2 := SliceFor(v, slices)
			So(s1, ShouldEqual, s2)
			So(s1, ShouldBeBetween, -1, slices)
		}
	})

	Convey("SliceFor is safe with zero or negative slice counts", t, func() {
		So(SliceFor("x", 0), ShouldEqual, 0)
		So(SliceFor("x", -2), ShouldEqual, 0)
	})
}
