package launcher

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStatus(t *testing.T) {
	Convey("A Status registry tracks per-slice state, pid and output tail", t, func() {
		s := NewStatus()

		s.setState(0, StateRunning)
		s.setPid(0, 1234)
		s.appendOutput(0, []byte("hello "))
		s.appendOutput(0, []byte("world"))

		snap := s.Snapshot()
		So(snap[0].State, ShouldEqual, StateRunning)
		So(snap[0].Pid, ShouldEqual, 1234)
		So(snap[0].Tail, ShouldEqual, "hello world")

		Convey("the tail is capped at tailSize bytes", func() {
			big := make([]byte, tailSize+100)
			for i := range big {
				big[i] = 'x'
			}

			s.appendOutput(1, big)

			So(len(s.Snapshot()[1].Tail), ShouldEqual, tailSize)
		})
	})
}
