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
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pelicanplatform/uploadpath/config"
)

var (
	cfgFile    string
	outputJSON bool

	rootCmd = &cobra.Command{
		Use:   "uploadpath",
		Short: "Resolve safe destination paths for uploaded files",
		Long: `The uploadpath tool computes the correct final sub-path for
uploaded files, removing duplicated path segments introduced by
browser folder-upload hints while preserving genuine folder
structure.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig(cfgFile)
		},
	}
)

// bindConfigFlags maps command-line flags onto their configuration keys so
// that flags, environment variables, and the config file all resolve through
// the same parameters.
func bindConfigFlags(flags *pflag.FlagSet) {
	if err := viper.BindPFlag("Logging.Level", flags.Lookup("log-level")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("Logging.EnableDetailed", flags.Lookup("debug")); err != nil {
		panic(err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Emit results as JSON")
	rootCmd.PersistentFlags().String("log-level", "error", "Minimum log level (debug, info, warning, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable detailed debug logging")
	bindConfigFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(benchCmd)
}

// Execute runs the command inside an errgroup whose context is cancelled on
// SIGINT/SIGTERM, so long-running subcommands (and the monitor goroutines
// they start from the command context) shut down cleanly on interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	egrp, egrpCtx := errgroup.WithContext(ctx)
	egrp.Go(func() error {
		return rootCmd.ExecuteContext(egrpCtx)
	})
	if err := egrp.Wait(); err != nil {
		log.Errorln("Fatal error occurred:", err)
		return err
	}
	return nil
}
