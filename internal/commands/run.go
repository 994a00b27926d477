package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the latest bar, append it to the history and write the report",
	Long: `Run one extraction pass.

The command exits 0 whenever a durable artifact was written: the new bar,
a duplicate skip, or a sentinel record. It exits 1 when the sentinel itself
cannot be written or when the history file is corrupt or cannot be rewritten.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, symbolFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.gatherer.Extract(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("run complete",
		"symbol", a.cfg.Extract.Symbol,
		"outcome", out.Run,
		"fetch", out.Result.Kind.String(),
		"inserted", out.Inserted)
	return nil
}
