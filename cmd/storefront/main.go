// Command storefront is a terminal client for the storefront API and the
// backend-for-frontend server that holds browser visitors' state.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

// run executes one command line and releases everything it opened, so state
// changes are persisted even when the command fails.
func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	cmd, a := newRootCmd(out)
	cmd.SetArgs(args)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, a.close(context.WithoutCancel(ctx)))
}
