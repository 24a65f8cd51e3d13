// Command scribe is the CLI surface over this module's commit store: it
// wraps internal/envelope, internal/store, internal/cdc, and
// internal/config behind the subcommands described in spec.md §6. It
// is deliberately undecorated — standard library flag parsing, no color or
// table-formatting library — so its output stays stable for scripting.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	// Load a .env file if present (non-fatal; CI and production won't have one).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		usage()
		return 2
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "init":
		err = runInit(args)
	case "commit":
		err = runCommit(ctx, args)
	case "log":
		err = runLog(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "verify":
		err = runVerify(ctx, args)
	case "watch":
		err = runWatch(ctx, args)
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "scribe: unknown command %q\n", cmd)
		usage()
		return 2
	}

	if err == errVerificationFailed {
		return 1 // verify has already printed its own report
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scribe: %v\n", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scribe <command> [flags]

commands:
  init [-author ID] [-role ROLE] [PATH]
  commit -m MSG [-a ID] [-r ROLE] [-p PROCESS] [-V VERSION] [-t TABLE -o OP -d DATA]
  log [-oneline] [-json] [-n NUM] [-a ID] [-p NAME] [COMMIT]
  status [-porcelain]
  verify [-verbose] [COMMIT]
  watch -c CONN [-t TABLES] [-m trigger|logical] [-i MS] [-s SLOT] [-S|-C]`)
}
