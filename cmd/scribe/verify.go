package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/store"
)

// errVerificationFailed signals a non-zero exit from runVerify without
// producing an extra "scribe: ..." line for what verify already printed.
var errVerificationFailed = errors.New("one or more commits failed verification")

func runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "print one pass/fail line per commit instead of a single summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := openRepo(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()

	var start digest.Hash
	if fs.NArg() > 0 {
		start, err = digest.ParseHash(fs.Arg(0))
	} else {
		start, err = r.store.GetRef(ctx, store.HeadRef)
	}
	if err != nil {
		return err
	}

	if !*verbose {
		if err := r.store.VerifyChain(ctx, start); err != nil {
			fmt.Printf("verify: FAILED: %v\n", err)
			return errVerificationFailed
		}
		fmt.Println("verify: all commits pass")
		return nil
	}

	envs, err := r.store.GetHistory(ctx, start, 0)
	if err != nil {
		return err
	}
	failed := false
	for _, e := range envs {
		if verr := envelope.Verify(e); verr != nil {
			failed = true
			fmt.Printf("%s FAILED: %v\n", e.CommitID.String()[:12], verr)
		} else {
			fmt.Printf("%s OK\n", e.CommitID.String()[:12])
		}
	}
	if failed {
		return errVerificationFailed
	}
	return nil
}
