package launcher

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCaptureOutput(t *testing.T) {
	Convey("captureOutput strips the pid preamble and writes the rest to OUTPUT/<sliceno>", t, func() {
		dir := t.TempDir()
		outPath := filepath.Join(dir, "OUTPUT", "3")
		So(os.MkdirAll(filepath.Dir(outPath), 0o755), ShouldBeNil)

		r, w, err := os.Pipe()
		So(err, ShouldBeNil)

		go func() {
			So(writeWorkerPreamble(w), ShouldBeNil)
			_, _ = w.Write([]byte("line one\nline two\n"))
			w.Close()
		}()

		status := NewStatus()

		pid, err := captureOutput(r, 3, outPath, status)
		So(err, ShouldBeNil)
		So(pid, ShouldEqual, os.Getpid())

		data, err := os.ReadFile(outPath)
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, "line one\nline two\n")

		So(status.Snapshot()[3].Tail, ShouldEqual, "line one\nline two\n")
		So(status.Snapshot()[3].Pid, ShouldEqual, os.Getpid())
	})
}

func writePidPreambleString() string {
	return strconv.FormatInt(int64(os.Getpid()), 16) + "\n"
}

func TestTrimNewline(t *testing.T) {
	Convey("trimNewline strips a trailing CRLF or LF", t, func() {
		So(trimNewline("abc\r\n"), ShouldEqual, "abc")
		So(trimNewline("abc\n"), ShouldEqual, "abc")
		So(trimNewline("abc"), ShouldEqual, "abc")
	})
}

func TestWriteWorkerPreamble(t *testing.T) {
	Convey("writeWorkerPreamble writes the process pid in hex", t, func() {
		var b strings.Builder
		So(writeWorkerPreamble(&b), ShouldBeNil)
		So(b.String(), ShouldEqual, writePidPreambleString())
	})
}
