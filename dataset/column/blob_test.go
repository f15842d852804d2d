package column

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestBlobCodec(t *testing.T) {
	Convey("A short blob uses a one-byte length prefix", t, func() {
		var buf bytes.Buffer
		So(EncodeBlob(&buf, []byte("hello"), false), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 1+5)

		data, isNone, err := DecodeBlob(&buf)
		So(err, ShouldBeNil)
		So(isNone, ShouldBeFalse)
		So(string(data), ShouldEqual, "hello")
	})

	Convey("A long blob uses the 0xff + 4-byte length prefix", t, func() {
		big := bytes.Repeat([]byte("x"), 300)

		var buf bytes.Buffer
		So(EncodeBlob(&buf, big, false), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 5+300)

		data, isNone, err := DecodeBlob(&buf)
		So(err, ShouldBeNil)
		So(isNone, ShouldBeFalse)
		So(data, ShouldResemble, big)
	})

	Convey("None encodes as the reserved 0xff,0,0,0,0 marker", t, func() {
		var buf bytes.Buffer
		So(EncodeBlob(&buf, nil, true), ShouldBeNil)
		So(buf.Bytes(), ShouldResemble, []byte{0xff, 0, 0, 0, 0})

		data, isNone, err := DecodeBlob(&buf)
		So(err, ShouldBeNil)
		So(isNone, ShouldBeTrue)
		So(data, ShouldBeNil)
	})

	Convey("An empty non-None blob is distinguishable from None", t, func() {
		var buf bytes.Buffer
		So(EncodeBlob(&buf, []byte{}, false), ShouldBeNil)

		data, isNone, err := DecodeBlob(&buf)
		So(err, ShouldBeNil)
		So(isNone, ShouldBeFalse)
		So(len(data), ShouldEqual, 0)
	})
}
