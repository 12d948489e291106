// Command graphctl runs social graph operations against a store backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/armstrong-haulage/community-hub/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand(cli.Dependencies{}).ExecuteContext(ctx)
	if err != nil && !cli.Reported(err) {
		fmt.Fprintf(os.Stderr, "graphctl: %v\n", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
