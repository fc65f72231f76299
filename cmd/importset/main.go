// Command importset builds a downstream parameter set archive from an
// upstream run archive.
//
// Usage:
//
//	importset -i imports.csv -u UPSTREAM -r RUN -d DOWNSTREAM [-w DIR] [--keep] [--verbose]
//	importset serve
//	importset history [--limit N]
//
// The build summary is the only output on stdout; logs go to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/importset/internal/config"
	"github.com/JonMunkholm/importset/internal/core"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.1.0"

func main() {
	// A .env file is optional; variables already set in the environment win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "importset: %v\n", err)
		return core.ExitFailure
	}

	root := newRootCmd(&app{cfg: cfg, stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return core.ExitCode(err)
	}
	return core.ExitOK
}

// reportError prints the technical error, then the user message when one
// applies.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "importset: %v\n", err)
	if core.IsUserFacing(err) {
		fmt.Fprintf(w, "  %s\n", core.FormatUserError(err))
	}
}
