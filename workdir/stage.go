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

package workdir

import (
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	cp "github.com/otiai10/copy"
	shutil "github.com/termie/go-shutil"
)

// StageMethodSource copies a method's source directory into a job
// directory's "method_src" area. Nothing in this module calls it;
// method.tar.gz is packaged straight from the method's SourcePath
// (server/engine.go). Mirrors neaten/copydb.go's use of otiai10/copy
// for bulk directory staging.
func StageMethodSource(methodDir, jobPath string) error {
	dest := filepath.Join(jobPath, "method_src")

	return cp.Copy(methodDir, dest)
}

// CommitJobDir renames a job's in-progress staging directory into its
// final job path, falling back to a per-file copy+remove when the rename
// crosses a device boundary. Nothing in this module calls it. Mirrors
// neaten/neaten.go's renameAndCorrectPerms: try os.Rename first, and only
// on failure fall back to shutil.CopyFile, file by file.
func CommitJobDir(stagingPath, finalPath string) error {
	if err := os.Rename(stagingPath, finalPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(finalPath, dirMode); err != nil {
		return err
	}

	if err := filepath.Walk(stagingPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(stagingPath, path)
		if err != nil {
			return err
		}

		dest := filepath.Join(finalPath, rel)

		if info.IsDir() {
			return os.MkdirAll(dest, dirMode)
		}

		return shutil.CopyFile(path, dest, false)
	}); err != nil {
		return err
	}

	return os.RemoveAll(stagingPath)
}

// CrossDeviceGuard reports whether path and the workdir root wd.Path are
// on different mounted filesystems, in which case Allocate's job
// directory creation cannot rely on a same-device atomic rename and the
// caller should route job completion through CommitJobDir's copy
// fallback instead of a bare os.Rename. Follows basedirs/history.go's
// getMountPoints: a single GetMounts(nil) call listing every mount, then
// picking the longest matching prefix ourselves (the mountinfo package
// itself offers no per-path filter).
func CrossDeviceGuard(wd *Workdir, path string) (bool, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return false, err
	}

	return longestMountpoint(mounts, filepath.Dir(path)) != longestMountpoint(mounts, wd.Path), nil
}

func longestMountpoint(mounts []*mountinfo.Info, path string) string {
	best := ""

	for _, m := range mounts {
		mp := m.Mountpoint
		if len(mp) > len(best) && (path == mp || len(path) >= len(mp) && path[:len(mp)] == mp) {
			best = mp
		}
	}

	return best
}
