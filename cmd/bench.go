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
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pelicanplatform/uploadpath/config"
	"github.com/pelicanplatform/uploadpath/structs"
)

var (
	benchIterations int
	benchBatchSize  int

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Exercise the resolver in a loop and report percentile timings",
		Long: `Bench synthesizes folder-upload batches, resolves them repeatedly,
and reports per-operation percentile timings against the configured
thresholds. The command exits nonzero when a threshold is missed.`,
		RunE: runBench,
	}
)

func init() {
	benchCmd.Flags().IntVar(&benchIterations, "count", 1000, "Number of batch resolutions to perform")
	benchCmd.Flags().IntVar(&benchBatchSize, "batch", 8, "Files per synthesized batch")
}

// synthesizeBatch fabricates a folder-upload batch with realistic hints,
// varied per iteration so the cache sees a mix of hits and misses.
func synthesizeBatch(iteration, size int) []structs.UploadFile {
	batch := make([]structs.UploadFile, 0, size)
	for i := 0; i < size; i++ {
		name := fmt.Sprintf("file%02d.dat", i)
		hint := fmt.Sprintf("project%d/assets/data/%s", iteration%25, name)
		batch = append(batch, structs.UploadFile{OriginalName: name, RelativePathHint: hint})
	}
	return batch
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchIterations <= 0 || benchBatchSize <= 0 {
		return errors.New("both --count and --batch must be positive")
	}

	r := config.NewResolverFromConfig()
	r.Monitor().Start(cmd.Context())
	defer r.Monitor().Stop()

	start := time.Now()
	for iteration := 0; iteration < benchIterations; iteration++ {
		r.ResolvePathsBatch(synthesizeBatch(iteration, benchBatchSize), "uploads")
	}
	elapsed := time.Since(start)

	benchmarks := r.Monitor().Benchmarks()
	if outputJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(benchmarks); err != nil {
			return err
		}
	} else {
		fmt.Printf("Resolved %d files in %s (%d batches of %d)\n",
			benchIterations*benchBatchSize, elapsed, benchIterations, benchBatchSize)
		fmt.Printf("%-24s %10s %10s %10s %12s %s\n", "operation", "avg ms", "p95 ms", "p99 ms", "threshold", "target")
		for _, b := range benchmarks {
			target := "met"
			if !b.MeetsTarget {
				target = "MISSED"
			}
			fmt.Printf("%-24s %10.3f %10.3f %10.3f %12s %s\n",
				b.Operation, b.AvgMs, b.P95Ms, b.P99Ms, b.Threshold, target)
		}
	}

	for _, b := range benchmarks {
		if !b.MeetsTarget {
			return errors.Errorf("operation %s missed its %s latency target", b.Operation, b.Threshold)
		}
	}
	return nil
}
