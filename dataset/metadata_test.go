package dataset

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetadataRoundTrip(t *testing.T) {
	Convey("A Metadata record round-trips through Save/LoadMetadata", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "ds.p")

		m := NewMetadata("source.txt")
		m.Hashlabel = "id"
		m.Caption = "a test dataset"
		m.Columns["id"] = ColumnMeta{Type: 0, Compression: 6, Location: "id%0.gz"}
		m.Lines = []int64{3, 5, 2}

		So(Save(path, m), ShouldBeNil)

		loaded, err := LoadMetadata(path)
		So(err, ShouldBeNil)
		So(loaded.Hashlabel, ShouldEqual, "id")
		So(loaded.Caption, ShouldEqual, "a test dataset")
		So(loaded.Lines, ShouldResemble, []int64{3, 5, 2})
		So(loaded.Columns["id"].Compression, ShouldEqual, 6)
	})

	Convey("FSSafeName percent-escapes control chars, %, / and \\", t, func() {
		So(FSSafeName("plain"), ShouldEqual, "plain")
		So(FSSafeName("a/b"), ShouldEqual, "a%2Fb")
		So(FSSafeName("a\\b"), ShouldEqual, "a%5Cb")
		So(FSSafeName("100%"), ShouldEqual, "100%25")
		So(FSSafeName("\x01x"), ShouldEqual, "%01x")
	})
}

func TestMetadataFileExists(t *testing.T) {
	Convey("Save writes an actual file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "ds.p")
		So(Save(path, NewMetadata("f")), ShouldBeNil)

		_, err := os.Stat(path)
		So(err, ShouldBeNil)
	})
}
