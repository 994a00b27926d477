// Command dailybar extracts one daily OHLCV bar per run and keeps a
// deduplicated CSV history with a trailing-window summary.
//
// Usage:
//
//	go run ./cmd/dailybar run
//	go run ./cmd/dailybar report --runs 10
//	go run ./cmd/dailybar daemon --run-on-start
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dailybar/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
