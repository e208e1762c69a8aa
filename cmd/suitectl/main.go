// Package main is the entry point for suitectl, the command-line client of
// the business suite backends. It wires storage, session, the shared HTTP
// client and the feature modules together and runs one command.
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

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, &globalOptions{}, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, opts *globalOptions, args []string, out, errOut io.Writer) int {
	cmd, cleanup := newRootCmd(opts, out, errOut)
	defer cleanup()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
		return 1
	}
	return 0
}
