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
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/dataset"
	"github.com/wtsi-ssg/batchjob/launcher"
	"github.com/wtsi-ssg/batchjob/method"
	"github.com/wtsi-ssg/batchjob/methods"
	"github.com/wtsi-ssg/batchjob/workdir"
)

// resultFD is the file descriptor the spawning process leaves open for us
// to write our WorkerMessage to (launcher/process.go's cmd.ExtraFiles).
const resultFD = 3

// workerCmd is the hidden re-exec entry point a spawned job subprocess
// runs: "batchjob __worker <phase> --config path". It is never meant to be
// typed by a human - the job server spawns it (cmd/server.go's spawnSelf) -
// so it's hidden from help output and takes its real instructions from
// stdin (a launcher.WorkerRequest) rather than from flags.
var workerCmd = &cobra.Command{
	Use:    workerSubcommand + " [phase]",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		phase, err := strconv.Atoi(args[0])
		if err != nil {
			die("bad phase argument %q: %s", args[0], err)
		}

		runWorker(method.Phase(phase))
	},
}

func init() {
	RootCmd.AddCommand(workerCmd)
}

// runWorker reads a WorkerRequest from stdin, runs the given phase of its
// method in this process, and writes the resulting WorkerMessage to fd 3.
// It rebuilds its own workdir store and method registry from --config,
// since the only thing that actually crosses from the spawning server
// process is the request on stdin (see launcher.Spawn's doc comment: a
// Spawn func controls command construction only, not live state).
func runWorker(phase method.Phase) {
	conf := loadConfig()

	req, err := launcher.ReadRequest(os.Stdin)
	if err != nil {
		die("failed to read worker request: %s", err)
	}

	req.Phase = phase

	reg := method.NewRegistry()
	methods.Register(reg)

	def, ok := reg.Lookup(req.Method)
	if !ok {
		die("unknown method %q", req.Method)
	}

	store := buildWorkdirStore(conf)

	if err := os.Chdir(req.JobPath); err != nil {
		die("failed to chdir to job directory [%s]: %s", req.JobPath, err)
	}

	result := os.NewFile(resultFD, "result")
	if result == nil {
		die("fd %d (result pipe) was not passed to this worker", resultFD)
	}
	defer result.Close() //nolint:errcheck

	err = launcher.RunWorker(context.Background(), def,
		datasetResolver(store), jobResolver(store), req, os.Stdout, result)
	if err != nil {
		die("worker failed: %s", err)
	}
}

// datasetResolver resolves a "jobid/name" locator to a dataset.Handle via
// store, the same filesystem-backed resolution the job server itself uses
// to load chain/dataset inputs.
func datasetResolver(store *workdir.Store) launcher.DatasetResolver {
	fsStore := dataset.NewFSStore(store)

	return func(locator string) (interface{}, error) {
		return fsStore.OpenHandle(locator)
	}
}

// jobResolver confirms a job id names a job directory that actually
// exists, the way RunWorker expects a JobResolver to validate a Jobs
// input before handing its id to the phase function.
func jobResolver(store *workdir.Store) launcher.JobResolver {
	return func(jobID string) (interface{}, error) {
		wdName, _, err := workdir.ParseJobID(jobID)
		if err != nil {
			return nil, err
		}

		wd, err := store.Lookup(wdName)
		if err != nil {
			return nil, err
		}

		return workdir.JobPath(wd, jobID)
	}
}
