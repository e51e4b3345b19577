// Package main provides the entry point for csim.
// csim replays a Valgrind memory trace against a set-associative LRU cache
// and reports hits, misses and evictions.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/tebeka/atexit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	cmd := newRootCmd(os.Stdout, os.Stderr)
	err := cmd.ExecuteContext(ctx)
	stop()

	// atexit runs registered cleanups (e.g. the access recorder) before exiting.
	atexit.Exit(exitCode(cmd, err, os.Stderr))
}
