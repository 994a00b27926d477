package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"dailybar/internal/domain"
)

var reportRuns int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild the summary report from the stored history",
	Long: `Summarize the trailing window of the stored history without fetching.

The report is written to the report path and printed to stdout. With --runs
and a configured SQLite database, the most recent run log entries are printed
as well.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportRuns, "runs", 0, "also print the last N runs from the run log")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, symbolFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	rep, err := a.gatherer.Report(ctx)
	switch {
	case errors.Is(err, domain.ErrEmptyStore):
		fmt.Fprintf(cmd.OutOrStdout(), "no history for %s yet\n", a.cfg.Extract.Symbol)
	case err != nil:
		return err
	default:
		if err := enc.Encode(rep); err != nil {
			return err
		}
	}

	if reportRuns <= 0 {
		return nil
	}
	if a.runs == nil {
		return errors.New("--runs needs a working storage.sqlite_path")
	}
	runs, err := a.runs.RecentRuns(ctx, reportRuns)
	if err != nil {
		return err
	}
	return enc.Encode(runs)
}
