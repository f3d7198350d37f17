package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "nextsignal",
	Short: "nextsignal - next trading signal service",
	Long: `nextsignal serves a hosted list of binary-option signals to signed-in users.
It picks the next upcoming live signal for the current time of day, or the
whole OTC group, and reveals it after a short delay.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
