// Package commands implements the dailybar command line.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	symbolFlag string
)

// rootCmd runs a single extraction pass when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "dailybar",
	Short: "Daily OHLCV extractor with a deduplicated CSV history",
	Long: `dailybar fetches the most recent finished daily bar for one symbol,
appends it to a date-keyed CSV history and writes a trailing-window summary.

When no bar can be produced a sentinel record is written to the latest
snapshot path instead, so downstream consumers always find an artifact.`,
	SilenceUsage: true,
	RunE:         runExtract,
}

// Execute adds all child commands to the root command and runs it with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&symbolFlag, "symbol", "s", "", "symbol to process (overrides config)")
}

func defaultConfigPath() string {
	if p := os.Getenv("DAILYBAR_CONFIG"); p != "" {
		return p
	}
	return "config/dailybar.yaml"
}
