package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/nemanja-m/hivemind/pkg/jobs/password"
	_ "github.com/nemanja-m/hivemind/pkg/jobs/substring"
)

var (
	cfgFile    string
	batch      bool
	inputs     []string
	outputPath string
)

var rootCmd = &cobra.Command{
	Use:   "hivemind-master",
	Short: "Crack participant passwords and pair up their DNA on a worker cluster",
	Long:  `hivemind-master loads participant records, submits one password job per
participant and one comparison job per pair, and schedules them on local
workers and on worker processes that join over gRPC.

Type "exit" on the console to drain and stop, or "kill" to stop at once.`,
	Example: `  # Run with the default config and wait for an exit command
  hivemind-master

  # Submit everything, drain and exit once done
  hivemind-master --batch --input 'data/**/*.csv' --output results.tsv`,
	SilenceUsage: true,
	RunE:         runMaster,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.Flags().BoolVar(&batch, "batch", false, "shut down as soon as every job is submitted")
	rootCmd.Flags().StringSliceVar(&inputs, "input", nil, "participant CSV glob patterns")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "result TSV path")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
