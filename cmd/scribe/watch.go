package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wildmix/scribe/internal/cdc"
)

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	conn := fs.String("c", "", "upstream PostgreSQL connection string (default: config.json pg_connection_string)")
	tables := fs.String("t", "", "comma-separated watched tables (default: config.json watched_tables)")
	mode := fs.String("m", "trigger", "capture mode: trigger or logical")
	intervalMS := fs.Int("i", 1000, "poll interval in milliseconds")
	slot := fs.String("s", "scribe_slot", "logical replication slot name (logical mode only)")
	setupOnly := fs.Bool("S", false, "install the capture mechanism on the upstream, then exit")
	cleanupOnly := fs.Bool("C", false, "remove the capture mechanism from the upstream, then exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()

	connStr := *conn
	if connStr == "" {
		connStr = r.cfg.PGConnectionString
	}
	if connStr == "" {
		return fmt.Errorf("watch: -c CONN is required (or set pg_connection_string in config.json)")
	}

	tableList := splitNonEmpty(*tables, ",")
	if len(tableList) == 0 {
		tableList = r.cfg.WatchedTables
	}
	if len(tableList) == 0 {
		return fmt.Errorf("watch: -t TABLES is required (or set watched_tables in config.json)")
	}

	cfg := cdc.Config{
		ConnString:   connStr,
		Tables:       tableList,
		Mode:         cdc.Mode(strings.ToLower(*mode)),
		PollInterval: time.Duration(*intervalMS) * time.Millisecond,
		SlotName:     *slot,
		AuthorID:     r.cfg.AuthorID,
		AuthorRole:   r.cfg.AuthorRole,
	}

	mon := cdc.New(cfg, r.store, slog.Default())

	if *setupOnly && *cleanupOnly {
		return fmt.Errorf("watch: -S and -C are mutually exclusive")
	}
	if *setupOnly || *cleanupOnly {
		return mon.SetupOrCleanup(ctx, *cleanupOnly)
	}

	return mon.Run(ctx)
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
