package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"dailybar/internal/scheduler"
)

var runOnStart bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the extraction on the configured cron schedule",
	Long: `Run the extraction pass on schedule.cron (six fields, seconds first)
evaluated in the extract timezone, until interrupted.

Example:
  dailybar daemon --run-on-start`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one pass immediately before waiting for the schedule")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, symbolFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	loc, err := a.cfg.Extract.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(ctx, loc)
	if err := sched.Register(a.cfg.Schedule.Cron, a.gatherer); err != nil {
		return err
	}
	if runOnStart {
		sched.RunNow(a.gatherer)
	}

	sched.Start()
	slog.Info("waiting for schedule", "cron", a.cfg.Schedule.Cron, "next", sched.Next())
	<-ctx.Done()
	slog.Info("shutdown signal received")
	sched.Stop()
	return nil
}
