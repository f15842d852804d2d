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
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/urd"
)

// options for this cmd.
var (
	urdLogPath  string
	urdAccounts []string
)

// urdCmd represents the urd command.
var urdCmd = &cobra.Command{
	Use:   "urd",
	Short: "Start the urd provenance log server",
	Long: `Start the urd provenance log server.

urd records, for a (user, list) pair, the most recent timestamped set of
job ids a pipeline run produced, so a later run of the same pipeline can
ask "what did I build last time, and is it still current". Every write
goes through POST /add, guarded by HTTP basic auth; every other endpoint
is read-only and unauthenticated, since urd is expected to run on a
trusted network (see the main 'batchjob' help for the wider picture).

$ batchjob urd --log urd.log --account alice:secret
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		bind := conf.BoardListen
		if bind == "" {
			die("config must set 'board listen'")
		}

		if urdLogPath == "" {
			die("--log is required")
		}

		file, err := urd.OpenFile(urdLogPath)
		if err != nil {
			die("failed to open urd log [%s]: %s", urdLogPath, err)
		}
		defer file.Close() //nolint:errcheck

		entries, err := urd.ReadAll(urdLogPath)
		if err != nil {
			die("failed to read urd log [%s]: %s", urdLogPath, err)
		}

		store := urd.NewStore(file)
		store.Load(entries)

		srv := urd.NewServer(store, os.Stderr)
		srv.SetAccounts(parseAccounts(urdAccounts))
		defer srv.Stop()

		info("urd started with %d entries from %s", len(entries), urdLogPath)

		if err := srv.Start(bind); err != nil {
			die("urd server stopped: %s", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(urdCmd)

	urdCmd.Flags().StringVar(&urdLogPath, "log", "", "path to the urd append-only log file")
	urdCmd.Flags().StringArrayVar(&urdAccounts, "account", nil,
		"a user:password pair allowed to POST /add; repeatable")
}

// parseAccounts turns a list of "user:password" strings into gin.Accounts.
// Malformed entries (no colon) are skipped with a warning rather than
// aborting startup over one typo.
func parseAccounts(raw []string) gin.Accounts {
	accounts := make(gin.Accounts, len(raw))

	for _, entry := range raw {
		user, pass, ok := strings.Cut(entry, ":")
		if !ok {
			warn("ignoring malformed --account %q, want user:password", entry)

			continue
		}

		accounts[user] = pass
	}

	return accounts
}
