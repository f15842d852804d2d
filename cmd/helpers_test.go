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

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-ssg/batchjob/config"
)

func TestServerBaseURL(t *testing.T) {
	Convey("Given configs with various listen addresses", t, func() {
		Convey("A bare port gets localhost and http:// prepended", func() {
			So(serverBaseURL(&config.Config{Listen: ":1234"}), ShouldEqual, "http://localhost:1234")
		})

		Convey("A host:port gets http:// prepended", func() {
			So(serverBaseURL(&config.Config{Listen: "example.org:1234"}), ShouldEqual, "http://example.org:1234")
		})

		Convey("An address that already has a scheme is left alone", func() {
			So(serverBaseURL(&config.Config{Listen: "https://example.org:1234"}), ShouldEqual, "https://example.org:1234")
		})

		Convey("A trailing slash is trimmed", func() {
			So(serverBaseURL(&config.Config{Listen: "http://example.org/"}), ShouldEqual, "http://example.org")
		})
	})
}

func TestParseJSONFlag(t *testing.T) {
	Convey("Given an empty flag value", t, func() {
		Convey("parseJSONFlag returns an empty map rather than erroring", func() {
			So(parseJSONFlag("options", ""), ShouldResemble, map[string]interface{}{})
			So(parseJSONFlag("options", "   "), ShouldResemble, map[string]interface{}{})
		})
	})

	Convey("Given a valid JSON object flag value", t, func() {
		Convey("parseJSONFlag decodes it", func() {
			got := parseJSONFlag("options", `{"foo":"bar","n":1}`)
			So(got, ShouldResemble, map[string]interface{}{"foo": "bar", "n": 1.0})
		})
	})
}

func TestParseAccounts(t *testing.T) {
	Convey("Given a mix of well-formed and malformed account strings", t, func() {
		accounts := parseAccounts([]string{"alice:secret", "bob:hunter2", "malformed"})

		Convey("parseAccounts keeps only the well-formed ones", func() {
			So(accounts, ShouldResemble, gin.Accounts{
				"alice": "secret",
				"bob":   "hunter2",
			})
		})
	})
}

func TestDirSize(t *testing.T) {
	Convey("Given a directory with nested files", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "a"), []byte("12345"), 0o644), ShouldBeNil) //nolint:gosec
		So(os.Mkdir(filepath.Join(dir, "sub"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("1234567890"), 0o644), ShouldBeNil) //nolint:gosec

		Convey("dirSize sums every regular file's size", func() {
			size, err := dirSize(dir)
			So(err, ShouldBeNil)
			So(size, ShouldEqual, uint64(15))
		})
	})
}

func TestFindOrphans(t *testing.T) {
	Convey("Given a workdir with one complete job and one orphaned allocation", t, func() {
		base := t.TempDir()
		wdPath := filepath.Join(base, "alpha")
		So(os.MkdirAll(filepath.Join(wdPath, "alpha-1"), 0o755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(wdPath, "alpha-1", "setup.json"), []byte("{}"), 0o644), ShouldBeNil) //nolint:gosec
		So(os.MkdirAll(filepath.Join(wdPath, "alpha-2"), 0o755), ShouldBeNil)

		conf := &config.Config{Slices: 1, Workdirs: []config.Workdir{{Name: "alpha", Path: wdPath}}}
		store := buildWorkdirStore(conf)
		wd, err := store.Lookup("alpha")
		So(err, ShouldBeNil)

		Convey("findOrphans reports only the directory lacking setup.json", func() {
			orphans := findOrphans(store, wd)
			So(orphans, ShouldHaveLength, 1)
			So(orphans[0].jobID, ShouldEqual, "alpha-2")
		})
	})
}
