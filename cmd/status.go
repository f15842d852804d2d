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
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wtsi-ssg/batchjob/server"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the job server is currently building",
	Long: `Show what the job server is currently building.

Prints one row per running job's analysis slice: its state, worker pid
(while running) and a tail of its most recent output.
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		var snap server.StatusSnapshot
		if err := getJSON(conf, "/status", &snap); err != nil {
			die("status request failed: %s", err)
		}

		printStatus(snap)
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func printStatus(snap server.StatusSnapshot) {
	if snap.Idle {
		cliPrint("server is idle\n")
	} else {
		cliPrint("server is building\n")
	}

	if snap.LastErr != "" {
		cliPrint("last error: %s\n", snap.LastErr)
	}

	jobIDs := make([]string, 0, len(snap.Jobs))
	for id := range snap.Jobs {
		jobIDs = append(jobIDs, id)
	}

	sort.Strings(jobIDs)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Method", "Slice", "State", "Pid", "Tail"})

	for _, id := range jobIDs {
		js := snap.Jobs[id]

		slices := make([]int, 0, len(js.Slices))
		for n := range js.Slices {
			slices = append(slices, n)
		}

		sort.Ints(slices)

		for _, n := range slices {
			ss := js.Slices[n]
			table.Append([]string{
				id, js.Method, strconv.Itoa(n), fmt.Sprint(ss.State), strconv.Itoa(ss.Pid), ss.Tail,
			})
		}
	}

	table.Render()
}
