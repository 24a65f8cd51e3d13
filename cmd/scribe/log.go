package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/store"
)

func runLog(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	_ = fs.Bool("oneline", true, "one line per commit (the only non-JSON format this CLI renders)")
	asJSON := fs.Bool("json", false, "print the canonical envelope JSON, one object per commit")
	n := fs.Int("n", 20, "maximum number of commits to show (0 for unbounded)")
	author := fs.String("a", "", "filter by author id instead of walking HEAD's history")
	process := fs.String("p", "", "filter by process name instead of walking HEAD's history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()

	var envs []*envelope.Envelope
	switch {
	case *author != "":
		envs, err = r.store.FindByAuthor(ctx, *author)
	case *process != "":
		envs, err = r.store.FindByProcess(ctx, *process)
	default:
		var start digest.Hash
		if fs.NArg() > 0 {
			start, err = digest.ParseHash(fs.Arg(0))
		} else {
			start, err = r.store.GetRef(ctx, store.HeadRef)
		}
		if err != nil {
			return err
		}
		envs, err = r.store.GetHistory(ctx, start, *n)
	}
	if err != nil {
		return err
	}
	if *n > 0 && len(envs) > *n {
		envs = envs[:*n]
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range envs {
			raw, err := envelope.MarshalCanonical(e)
			if err != nil {
				return err
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range envs {
		fmt.Printf("%s %s\n", e.CommitID.String()[:12], e.Message)
	}
	return nil
}
