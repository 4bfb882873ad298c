// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version string
var timestamp string
var commit string

var colorError = color.New(color.FgRed)

// log is configured by the root command before any subcommand runs.
var log = logrus.NewEntry(logrus.StandardLogger())

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "zenhub-tap",
	Short:         "Singer tap for ZenHub boards and GitHub issues.",
	SilenceErrors: true,
	Version: fmt.Sprintf(`Version: %s
Timestamp: %s
Commit: %s
`, version, timestamp, commit),
	Long: `Extracts ZenHub issues and issue events for a list of GitHub repositories.

Records are written to stdout as singer messages; logs go to stderr.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		viper.RegisterAlias("debug", "verbose")
		viper.BindPFlags(cmd.Flags())
		viper.BindPFlags(cmd.PersistentFlags())

		formatter, err := newFormatter(viper.GetString(ArgGlobalLogFormat))
		if err != nil {
			return err
		}
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(formatter)
		configureLogFile(logrus.StandardLogger(), viper.GetString(ArgGlobalLogFile))

		log = logrus.NewEntry(logrus.StandardLogger()).WithField("@command", cmd.Name())

		if viper.GetBool(ArgGlobalVerbose) {
			logrus.SetLevel(logrus.DebugLevel)
			log.Debug("Logging at debug level.")
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}

		cmd.SilenceUsage = true
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		colorError.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const (
	ArgGlobalVerbose     = "verbose"
	ArgGlobalConfig      = "config"
	ArgGlobalState       = "state"
	ArgGlobalStateOutput = "state-output"
	ArgGlobalOutput      = "output"
)

func init() {
	rootCmd.PersistentFlags().StringP(ArgGlobalConfig, "c", "", "Tap config file (JSON or YAML). You can also set ZENHUB_TAP_CONFIG.")
	rootCmd.PersistentFlags().StringP(ArgGlobalState, "s", "", "State file from a previous run. Missing or empty means a full sync.")
	rootCmd.PersistentFlags().String(ArgGlobalStateOutput, "", "Where to save state after a successful run. Defaults to --state.")
	rootCmd.PersistentFlags().StringP(ArgGlobalOutput, "o", "", "Output format. Options are `table`, `json` or `yaml`. Only respected by some commands.")
	rootCmd.PersistentFlags().Bool(ArgGlobalVerbose, false, "Enable verbose logging.")
	rootCmd.PersistentFlags().String(ArgGlobalLogFormat, "text", "Format of logs written to stderr. Options are `text`, `json` or `prefixed`.")
	rootCmd.PersistentFlags().String(ArgGlobalLogFile, "", "Also write logs to this file, rotated when it grows past 10MB.")

	viper.RegisterAlias("debug", "verbose")
	viper.BindPFlags(rootCmd.PersistentFlags())

	viper.AutomaticEnv()

	viper.BindEnv(ArgGlobalConfig, "ZENHUB_TAP_CONFIG")
}
