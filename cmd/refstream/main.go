package main

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
)

// version is stamped by the build.
var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error onto the process contract: 1 when the
// run finished but at least one vendor failed, 130 on interrupt, 2 for
// usage mistakes and fatal infrastructure errors.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errRunFailed):
		return 1
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 2
	}
}
