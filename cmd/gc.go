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
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adhocore/gronx"
	"github.com/adhocore/gronx/pkg/tasker"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/config"
	"github.com/wtsi-ssg/batchjob/workdir"
)

// options for this cmd.
var (
	gcDelete  bool
	gcCrontab string
)

// gcCmd represents the gc command.
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Find (and optionally delete) orphaned job directories",
	Long: `Find orphaned job directories across every configured workdir.

A job directory is orphaned if it has no setup.json: the server crashed,
or was killed, after workdir.Store.Allocate reserved the directory but
before the job's setup was ever written to it, so the job database will
never pick it up on a refresh and it will never be built into. By default
this only reports what it finds; pass --delete to actually remove them.

With --crontab, this runs on a schedule instead of once, the way
'batchjob cron' style commands in the wider toolset do.

$ batchjob gc
$ batchjob gc --delete
$ batchjob gc --delete --crontab "0 3 * * *"
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		if gcCrontab == "" {
			runGC(conf)

			return
		}

		gron := gronx.New()
		if !gron.IsValid(gcCrontab) {
			die("--crontab is invalid")
		}

		taskr := tasker.New(tasker.Option{})
		taskr.Task(gcCrontab, func(_ context.Context) (int, error) {
			runGC(conf)

			return 0, nil
		})

		taskr.Run()
	},
}

func init() {
	RootCmd.AddCommand(gcCmd)

	gcCmd.Flags().BoolVar(&gcDelete, "delete", false, "delete orphaned job directories instead of just reporting them")
	gcCmd.Flags().StringVar(&gcCrontab, "crontab", "", "run repeatedly on this schedule instead of once")
}

// orphan is one job directory lacking setup.json.
type orphan struct {
	workdirName string
	jobID       string
	path        string
}

// runGC scans every configured workdir for orphaned job directories and
// reports or deletes them.
func runGC(conf *config.Config) {
	store := buildWorkdirStore(conf)

	var orphans []orphan

	for _, name := range store.Names() {
		wd, err := store.Lookup(name)
		if err != nil {
			warn("skipping workdir %q: %s", name, err)

			continue
		}

		orphans = append(orphans, findOrphans(store, wd)...)
	}

	if len(orphans) == 0 {
		cliPrint("no orphaned job directories found\n")

		return
	}

	reportOrphans(orphans)

	if gcDelete {
		deleteOrphans(orphans)
	}
}

// findOrphans lists every job directory under wd and keeps the ones with
// no setup.json (§9's "the job directory's presence on disk, but absence
// from the job database, marks it as garbage").
func findOrphans(store *workdir.Store, wd *workdir.Workdir) []orphan {
	ids, err := store.ListJobs(wd)
	if err != nil {
		warn("failed to list jobs in workdir %q: %s", wd.Name, err)

		return nil
	}

	var out []orphan

	for _, jobID := range ids {
		jobPath, err := workdir.JobPath(wd, jobID)
		if err != nil {
			continue
		}

		if _, err := os.Stat(filepath.Join(jobPath, "setup.json")); os.IsNotExist(err) {
			out = append(out, orphan{workdirName: wd.Name, jobID: jobID, path: jobPath})
		}
	}

	return out
}

func reportOrphans(orphans []orphan) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Workdir", "Job", "Path", "Size"})

	for _, o := range orphans {
		size, err := dirSize(o.path)
		if err != nil {
			warn("failed to size %s: %s", o.path, err)
		}

		table.Append([]string{o.workdirName, o.jobID, o.path, humanize.Bytes(size)})
	}

	table.Render()
}

// dirSize sums the apparent size of every regular file under path, for
// reporting how much disk space a gc run would reclaim.
func dirSize(path string) (uint64, error) {
	var total uint64

	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return ierr
		}

		total += uint64(info.Size())

		return nil
	})

	return total, err
}

func deleteOrphans(orphans []orphan) {
	removed := 0

	for _, o := range orphans {
		if err := os.RemoveAll(o.path); err != nil {
			warn("failed to remove %s: %s", o.path, err)

			continue
		}

		removed++
	}

	info("removed %d orphaned job directories", removed)
}
