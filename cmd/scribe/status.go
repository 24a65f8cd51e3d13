package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/wildmix/scribe/internal/store"
)

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	porcelain := fs.Bool("porcelain", false, "machine-readable, script-stable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()

	head, err := r.store.GetRef(ctx, store.HeadRef)
	if err != nil {
		return err
	}
	count, err := r.store.CommitCount(ctx)
	if err != nil {
		return err
	}

	if *porcelain {
		if head.IsZero() {
			fmt.Println("head (none)")
		} else {
			fmt.Printf("head %s\n", head)
		}
		fmt.Printf("commits %d\n", count)
		return nil
	}

	fmt.Printf("repository: %s\n", r.dir)
	fmt.Printf("author: %s (%s)\n", r.cfg.AuthorID, r.cfg.AuthorRole)
	if head.IsZero() {
		fmt.Println("head: (none)")
	} else {
		fmt.Printf("head: %s\n", head)
	}
	fmt.Printf("commits: %d\n", count)
	return nil
}
