/***************************************************************
 *
 * Copyright (C) 2024, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pelicanplatform/uploadpath/config"
	"github.com/pelicanplatform/uploadpath/structs"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <destination> <name>[:<hint>] [<name>[:<hint>]...]",
	Short: "Resolve final paths for a batch of uploaded files",
	Long: `Resolve computes the final relative path for each named file.
Append a browser-style relative path hint after a colon, e.g.:

    uploadpath resolve documents rapport.pdf:documents/rapport.pdf`,
	Args: cobra.MinimumNArgs(2),
	RunE: runResolve,
}

func parseBatch(args []string) []structs.UploadFile {
	batch := make([]structs.UploadFile, 0, len(args))
	for _, arg := range args {
		name, hint, _ := strings.Cut(arg, ":")
		batch = append(batch, structs.UploadFile{
			OriginalName:     name,
			RelativePathHint: hint,
		})
	}
	return batch
}

func runResolve(cmd *cobra.Command, args []string) error {
	destFolder := args[0]
	batch := parseBatch(args[1:])

	r := config.NewResolverFromConfig()
	r.Monitor().Start(cmd.Context())
	defer r.Monitor().Stop()

	results := r.ResolvePathsBatch(batch, destFolder)

	if outputJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	for i, result := range results {
		status := "ok"
		if result.Error {
			status = "recovered"
		}
		fmt.Printf("%-40s -> %-50s [%s, %s, confidence %.2f]\n",
			batch[i].OriginalName, result.FinalPath, result.Strategy, status, result.Confidence)
		for _, warning := range result.Warnings {
			fmt.Printf("    warning: %s\n", warning)
		}
	}
	return nil
}
