package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	isDebug   bool
	inputPath string
	drain     bool
)

var rootCmd = &cobra.Command{
	Use:   "courier",
	Short: "Courier notification delivery",
	Long:  `Courier validates notifications and delivers them with retry, fallback and circuit breaking through a single-worker queue.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver newline-delimited JSON notifications",
	Long: `Reads notifications from --input (or stdin), one JSON object per line,
and delivers them through the configured sender.

SIGUSR1 pauses the queue, SIGUSR2 resumes it. SIGINT/SIGTERM shut down.`,
	RunE: runCourier,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	runCmd.Flags().StringVar(&inputPath, "input", "", "notification file (default stdin)")
	runCmd.Flags().BoolVar(&drain, "drain", false, "exit once every input notification has been handled")

	rootCmd.AddCommand(runCmd)
}
