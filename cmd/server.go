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
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/config"
	"github.com/wtsi-ssg/batchjob/jobdb"
	"github.com/wtsi-ssg/batchjob/launcher"
	"github.com/wtsi-ssg/batchjob/method"
	"github.com/wtsi-ssg/batchjob/methods"
	"github.com/wtsi-ssg/batchjob/server"
	"github.com/wtsi-ssg/batchjob/workdir"
)

// options for this cmd.
var (
	serverJobDBCache  string
	serverConcurrency int
)

const defaultServerConcurrency = 4

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the job server",
	Long: `Start the job server.

Starting the job server brings up the REST API described by the 'submit',
'status', 'abort', 'why' and 'methods' subcommands: it resolves submissions
against its method registry and job database, builds jobs it hasn't seen
before by re-invoking this same binary as a worker subprocess for each
phase, and serves status/diagnostic queries while doing so.

This command will block forever in the foreground; you can background it
with ctrl-z; bg, or daemonize it.
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		if conf.Listen == "" {
			die("config must set 'listen'")
		}

		engine := buildEngine(conf)

		info("refreshing job database...")

		if err := engine.RefreshMethods(); err != nil {
			die("failed to refresh job database: %s", err)
		}

		srv := server.New(engine, appLogger)
		defer srv.Stop()

		sayStarted()

		if err := srv.Start(conf.Listen); err != nil {
			die("server stopped: %s", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverJobDBCache, "jobdb-cache", "",
		"path to a bolt file caching parsed job records across restarts (default: in-memory only)")
	serverCmd.Flags().IntVar(&serverConcurrency, "concurrency", defaultServerConcurrency,
		"maximum number of analysis slices to run concurrently per job")
}

// buildEngine wires a server.Engine from conf: a workdir store over every
// configured workdir, an optional bolt-backed job database cache, the
// built-in method registry (plus a warning for any configured method
// package this Go binary can't dynamically load), and a launcher that
// re-execs this binary as a worker subprocess per phase.
func buildEngine(conf *config.Config) *server.Engine {
	store := buildWorkdirStore(conf)
	registry := buildRegistry(conf)

	cache := openJobDBCache()

	db := jobdb.New(store, cache)

	return server.NewEngine(registry, db, store, conf.TargetWorkdir, serverConcurrency, spawnSelf(), appLogger)
}

func buildWorkdirStore(conf *config.Config) *workdir.Store {
	dirs := make([]workdir.Workdir, len(conf.Workdirs))

	for i, wd := range conf.Workdirs {
		dirs[i] = workdir.Workdir{Name: wd.Name, Path: wd.Path, Slices: conf.Slices}
	}

	store, err := workdir.NewStore(dirs)
	if err != nil {
		die("failed to set up workdir store: %s", err)
	}

	return store
}

// buildRegistry registers every built-in method. Unlike the original
// system's "methods live in configured directories, discovered at server
// start" dynamic loading, a Go method is a compiled-in method.Definition:
// an entry in conf.MethodPackages names a package this binary would need
// to import and register at compile time, so we can't honour it here -
// we log it instead, the way an operator would notice a method package
// that needs building into a fresh binary.
func buildRegistry(conf *config.Config) *method.Registry {
	reg := method.NewRegistry()
	methods.Register(reg)

	for _, pkg := range conf.MethodPackages {
		warn("method package %q is not compiled into this binary; "+
			"dynamic method loading has no Go equivalent, rebuild with it imported and registered", pkg)
	}

	return reg
}

func openJobDBCache() *jobdb.Cache {
	if serverJobDBCache == "" {
		return nil
	}

	cache, err := jobdb.OpenCache(serverJobDBCache)
	if err != nil {
		die("failed to open job database cache [%s]: %s", serverJobDBCache, err)
	}

	return cache
}

// workerSubcommand is the hidden subcommand name a spawned worker process
// is re-invoked with (cmd/worker.go).
const workerSubcommand = "__worker"

// spawnSelf returns the launcher.Spawn a production server uses: it
// re-execs this running binary with the hidden worker subcommand, passing
// through the same --config flag so the worker process can build its own
// workdir store and method registry independently (see worker.go).
func spawnSelf() launcher.Spawn {
	exe, err := os.Executable()
	if err != nil {
		die("could not determine own executable path: %s", err)
	}

	return func(req launcher.WorkerRequest) (*exec.Cmd, error) {
		return exec.Command(exe, workerSubcommand, strconv.Itoa(int(req.Phase)), "--config", configPath), nil //nolint:gosec
	}
}

// sayStarted logs to console that the server started. It does this a
// second after being called in a goroutine, when we can assume the server
// has actually started; if it failed, we expect it to do so in less than a
// second and exit.
func sayStarted() {
	go func() {
		<-time.After(1 * time.Second)

		info("server started")
	}()
}
