package column

import (
	"bytes"
	"math/big"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNumberCodec(t *testing.T) {
	Convey("Small ints use the inline single-byte form", t, func() {
		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{Int64: 42}), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 1)

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.Int64, ShouldEqual, 42)
		So(n.IsFloat, ShouldBeFalse)
		So(n.IsNone, ShouldBeFalse)
	})

	Convey("Negative small ints use the inline form too", t, func() {
		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{Int64: -5}), ShouldBeNil)

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.Int64, ShouldEqual, -5)
	})

	Convey("Larger ints widen to the 2/4/8-byte fixed forms", t, func() {
		for _, v := range []int64{1000, -40000, 1 << 40, -(1 << 40)} {
			var buf bytes.Buffer
			So(EncodeNumber(&buf, Number{Int64: v}), ShouldBeNil)

			n, err := DecodeNumber(&buf)
			So(err, ShouldBeNil)
			So(n.Int64, ShouldEqual, v)
		}
	})

	Convey("Floats use the 0-tagged double form", t, func() {
		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{IsFloat: true, Float: 3.25}), ShouldBeNil)
		So(buf.Bytes()[0], ShouldEqual, 0)

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.IsFloat, ShouldBeTrue)
		So(n.Float, ShouldEqual, 3.25)
	})

	Convey("Values outside int64 range round-trip through the bignum form", t, func() {
		big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)

		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{Big: big1}), ShouldBeNil)

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.Big, ShouldNotBeNil)
		So(n.Big.String(), ShouldEqual, big1.String())
	})

	Convey("A negative bignum round-trips its sign", t, func() {
		big1, _ := new(big.Int).SetString("-987654321098765432109876543210", 10)

		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{Big: big1}), ShouldBeNil)

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.Big.Sign(), ShouldBeLessThan, 0)
		So(n.Big.String(), ShouldEqual, big1.String())
	})

	Convey("None encodes as the 0xff tag", t, func() {
		var buf bytes.Buffer
		So(EncodeNumber(&buf, Number{IsNone: true}), ShouldBeNil)
		So(buf.Bytes(), ShouldResemble, []byte{0xff})

		n, err := DecodeNumber(&buf)
		So(err, ShouldBeNil)
		So(n.IsNone, ShouldBeTrue)
	})
}
