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
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// methodsCmd represents the methods command.
var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List methods the job server knows how to build",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		var names []string
		if err := getJSON(conf, "/methods", &names); err != nil {
			die("methods request failed: %s", err)
		}

		sort.Strings(names)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Method"})

		for _, name := range names {
			table.Append([]string{name})
		}

		table.Render()
	},
}

// options for methodInfoCmd.
var methodInfoCmd = &cobra.Command{
	Use:   "method-info [name]",
	Short: "Show one method's declared inputs and phases",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig()

		var info map[string]interface{}
		if err := getJSON(conf, "/method_info/"+args[0], &info); err != nil {
			die("method_info request failed: %s", err)
		}

		printJSON(info)
	},
}

func init() {
	RootCmd.AddCommand(methodsCmd)
	RootCmd.AddCommand(methodInfoCmd)
}
