/*
Copyright © 2023 Rob Haswell <rob@haswell.co.uk>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fpv-bridge",
	Short: "A serial bridge translating a USB controller into CRSF channel data",
	Long: `fpv-bridge reads a local controller, maps its axes and buttons into a
16-channel RC set, and streams that set to an ExpressLRS module over CRSF at
a fixed cadence. It also decodes CRSF telemetry coming back from the module
and can mirror both to a JSONL log and an optional MQTT broker.

Use the 'run' command to start the bridge (it attaches an interactive
console in-process), or 'debug' to open a standalone console against a
static neutral channel set.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults, no file)")
}
