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

// package cmd is the cobra file that enables subcommands and handles
// command-line args.
package cmd

import (
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/config"
)

// appLogger is used for logging events in our commands.
var appLogger = log15.New()

// configPath is accessible by every subcommand.
var configPath string

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use:   "batchjob",
	Short: "batchjob resolves, builds and caches the results of jobs defined by small Go methods.",
	Long: `batchjob resolves, builds and caches the results of jobs defined by small Go methods.

A method declares some options, optional dataset/job inputs, and up to three
phases (prepare, analysis, synthesis). Submitting a method with a given set of
options either returns an existing job that already answers it, or builds a
new one: the job server allocates a job directory, packages the method's
source, and runs its phases as subprocess workers, writing any columnar
datasets the method produces.

Before doing anything else, a job server must be running (see 'batchjob
server'). Submit work to it, inspect its state, or explain why a particular
job would (or wouldn't) be reused with the other subcommands.

$ batchjob server --config batchjob.conf
$ batchjob submit --method my_method --options '{"foo":"bar"}'
$ batchjob status
$ batchjob why my_method --options '{"foo":"bar"}'
`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		die(err.Error())
	}
}

func init() {
	appLogger.SetHandler(log15.LvlFilterHandler(log15.LvlInfo, log15.StderrHandler))

	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "batchjob.conf",
		"path to the batchjob configuration file")
}

// loadConfig parses configPath, exiting on error.
func loadConfig() *config.Config {
	conf, err := config.Parse(configPath)
	if err != nil {
		die("failed to parse config [%s]: %s", configPath, err)
	}

	return conf
}

// cliPrint outputs the message to STDOUT.
func cliPrint(msg string, a ...interface{}) {
	fmt.Fprintf(os.Stdout, msg, a...)
}

// info is a convenience to log a message at the Info level.
func info(msg string, a ...interface{}) {
	appLogger.Info(fmt.Sprintf(msg, a...))
}

// warn is a convenience to log a message at the Warn level.
func warn(msg string, a ...interface{}) {
	appLogger.Warn(fmt.Sprintf(msg, a...))
}

// die is a convenience to log a message at the Error level and exit non zero.
func die(msg string, a ...interface{}) {
	appLogger.Error(fmt.Sprintf(msg, a...))
	os.Exit(1)
}
