// Command scanworker-admin runs one-off operations against the scan worker's
// storage, transport and ledger.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/quarantine-scanner/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.ConfigureLogger(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &appContext{Logger: logger, Config: cfg, Out: os.Stdout}
	if err := newRootCmd(app).ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}
