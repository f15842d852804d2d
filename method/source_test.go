/*******************************************************************************
 * Copyright (c) 2024 Genome Research Ltd.
 *
 * Author: Sendu Bala <sb10@sanger.ac.uk>
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package method

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHash(t *testing.T) {
	Convey("Given a method source directory", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644), ShouldBeNil) //nolint:gosec
		So(os.WriteFile(filepath.Join(dir, "b.go"), []byte("package a\n\nconst b = 1\n"), 0o644), ShouldBeNil) //nolint:gosec

		Convey("Hash is stable across repeated calls", func() {
			h1, err := Hash(dir)
			So(err, ShouldBeNil)
			h2, err := Hash(dir)
			So(err, ShouldBeNil)
			So(h1, ShouldEqual, h2)
			So(h1, ShouldHaveLength, 40) // hex sha1
		})

		Convey("Hash changes when a file's content changes", func() {
			h1, err := Hash(dir)
			So(err, ShouldBeNil)

			So(os.WriteFile(filepath.Join(dir, "b.go"), []byte("package a\n\nconst b = 2\n"), 0o644), ShouldBeNil) //nolint:gosec

			h2, err := Hash(dir)
			So(err, ShouldBeNil)
			So(h1, ShouldNotEqual, h2)
		})

		Convey("Hash changes when a file is renamed without changing content", func() {
			h1, err := Hash(dir)
			So(err, ShouldBeNil)

			So(os.Rename(filepath.Join(dir, "b.go"), filepath.Join(dir, "c.go")), ShouldBeNil)

			h2, err := Hash(dir)
			So(err, ShouldBeNil)
			So(h1, ShouldNotEqual, h2)
		})
	})
}

func TestPackage(t *testing.T) {
	Convey("Given a method source directory", t, func() {
		dir := t.TempDir()
		So(os.Mkdir(filepath.Join(dir, "sub"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644), ShouldBeNil)             //nolint:gosec
		So(os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("package a\n"), 0o644), ShouldBeNil) //nolint:gosec

		Convey("Package produces a gzipped tar containing every file", func() {
			dest := filepath.Join(t.TempDir(), "method.tar.gz")
			So(Package(dir, dest), ShouldBeNil)

			f, err := os.Open(dest)
			So(err, ShouldBeNil)
			defer f.Close()

			gz, err := gzip.NewReader(f)
			So(err, ShouldBeNil)

			tr := tar.NewReader(gz)

			var names []string
			for {
				hdr, err := tr.Next()
				if err == io.EOF {
					break
				}
				So(err, ShouldBeNil)
				names = append(names, hdr.Name)
			}

			So(names, ShouldContain, "a.go")
			So(names, ShouldContain, "sub/b.go")
		})
	})
}
