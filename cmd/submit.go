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
	"encoding/json"
	"net/url"

	"github.com/spf13/cobra"
)

// options for this cmd.
var (
	submitMethod     string
	submitOptions    string
	submitDatasets   string
	submitJobs       string
	submitCaption    string
	submitForceBuild bool
	submitWorkdir    string
)

// submitCmd represents the submit command.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a method to the job server",
	Long: `Submit a method and its options to the job server.

The server either returns an existing job that already answers this exact
submission, or builds a new one. --options/--datasets/--jobs each take a
JSON object on the command line.

$ batchjob submit --method my_method --options '{"foo":"bar"}'
`,
	Run: func(cmd *cobra.Command, args []string) {
		if submitMethod == "" {
			die("--method is required")
		}

		conf := loadConfig()

		setup := map[string]interface{}{
			"method":     submitMethod,
			"options":    parseJSONFlag("options", submitOptions),
			"datasets":   parseJSONFlag("datasets", submitDatasets),
			"jobs":       parseJSONFlag("jobs", submitJobs),
			"caption":    submitCaption,
			"forcebuild": submitForceBuild,
			"workdir":    submitWorkdir,
		}

		raw, err := json.Marshal(setup)
		if err != nil {
			die("failed to encode submission: %s", err)
		}

		var resp map[string]interface{}
		if err := postForm(conf, "/submit", url.Values{"json": {string(raw)}}, &resp); err != nil {
			die("submit failed: %s", err)
		}

		printJSON(resp)
	},
}

func init() {
	RootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitMethod, "method", "", "name of the method to build")
	submitCmd.Flags().StringVar(&submitOptions, "options", "", "JSON object of method options")
	submitCmd.Flags().StringVar(&submitDatasets, "datasets", "", "JSON object of dataset inputs")
	submitCmd.Flags().StringVar(&submitJobs, "jobs", "", "JSON object of job inputs")
	submitCmd.Flags().StringVar(&submitCaption, "caption", "", "human-readable caption for this job")
	submitCmd.Flags().BoolVar(&submitForceBuild, "force", false, "rebuild even if a matching job already exists")
	submitCmd.Flags().StringVar(&submitWorkdir, "workdir", "", "workdir to build into, overriding the server's default")
}
