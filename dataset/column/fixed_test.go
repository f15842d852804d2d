package column

import (
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFixedCodecs(t *testing.T) {
	Convey("Int32 round-trips and signals None via its sentinel", t, func() {
		buf := EncodeInt32(42, false)
		v, isNone := DecodeInt32(buf[:])
		So(v, ShouldEqual, 42)
		So(isNone, ShouldBeFalse)

		buf = EncodeInt32(0, true)
		_, isNone = DecodeInt32(buf[:])
		So(isNone, ShouldBeTrue)
	})

	Convey("Int64 round-trips and signals None via its sentinel", t, func() {
		buf := EncodeInt64(-9001, false)
		v, isNone := DecodeInt64(buf[:])
		So(v, ShouldEqual, -9001)
		So(isNone, ShouldBeFalse)

		buf = EncodeInt64(0, true)
		_, isNone = DecodeInt64(buf[:])
		So(isNone, ShouldBeTrue)
	})

	Convey("Float64 preserves a non-None NaN payload but flags the None payload", t, func() {
		weird := math.Float64frombits(0x7ff8000000000099)
		buf := EncodeFloat64(weird, false)
		v, isNone := DecodeFloat64(buf[:])
		So(math.Float64bits(v), ShouldEqual, math.Float64bits(weird))
		So(isNone, ShouldBeFalse)

		buf = EncodeFloat64(0, true)
		_, isNone = DecodeFloat64(buf[:])
		So(isNone, ShouldBeTrue)
	})

	Convey("CanonicalNaN folds any NaN to one bit pattern but passes other values through", t, func() {
		a := CanonicalNaN(math.Float64frombits(0x7ff8000000000099))
		b := CanonicalNaN(math.NaN())
		So(math.Float64bits(a), ShouldEqual, math.Float64bits(b))
		So(CanonicalNaN(3.5), ShouldEqual, 3.5)
	})

	Convey("Bool round-trips and 255 means None", t, func() {
		b := EncodeBool(true, false)
		v, isNone := DecodeBool(b)
		So(v, ShouldBeTrue)
		So(isNone, ShouldBeFalse)

		b = EncodeBool(false, true)
		_, isNone = DecodeBool(b)
		So(isNone, ShouldBeTrue)
	})

	Convey("DateTime's first word of zero means None", t, func() {
		buf := EncodeDateTime(1700000000, 123, false)
		sec, nsec, isNone := DecodeDateTime(buf[:])
		So(sec, ShouldEqual, 1700000000)
		So(nsec, ShouldEqual, 123)
		So(isNone, ShouldBeFalse)

		buf = EncodeDateTime(0, 0, true)
		_, _, isNone = DecodeDateTime(buf[:])
		So(isNone, ShouldBeTrue)
	})
}
