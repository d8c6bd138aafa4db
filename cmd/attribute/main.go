package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/chocobo244/creatingcustomersegment/internal/monitoring"
)

func main() {
	logger := monitoring.NewLoggerWithWriter(os.Stderr, monitoring.ParseLevel(os.Getenv("ATTRIBUTION_LOG_LEVEL")))
	slog.SetDefault(logger.Logger)

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
