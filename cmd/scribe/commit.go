package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/envelope"
	"github.com/wildmix/scribe/internal/scribeerr"
	"github.com/wildmix/scribe/internal/store"
)

func runCommit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	message := fs.String("m", "", "commit message (required)")
	author := fs.String("a", "", "author id override")
	role := fs.String("r", "", "author role override")
	process := fs.String("p", "manual", "process name")
	version := fs.String("V", "", "process version")
	table := fs.String("t", "", "table name for a single manually recorded change")
	op := fs.String("o", "", "operation for -t: insert, update, or delete")
	data := fs.String("d", "", "opaque data hashed into the change's before/after digest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *message == "" {
		return scribeerr.New(scribeerr.KindInvalidArg, "-m MESSAGE is required")
	}

	r, err := openRepo(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer r.Close()

	authorID := *author
	if authorID == "" {
		authorID = r.cfg.AuthorID
	}
	authorRole := *role
	if authorRole == "" {
		authorRole = r.cfg.AuthorRole
	}

	head, err := r.store.GetRef(ctx, store.HeadRef)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("read HEAD: %w", err)
	}

	b := envelope.New().
		SetAuthor(authorID).
		SetAuthorRole(authorRole).
		SetProcess(*process).
		SetProcessVersion(*version).
		SetParent(head).
		SetMessage(*message)

	if *table != "" {
		if *op == "" {
			return scribeerr.New(scribeerr.KindInvalidArg, "-o OPERATION is required when -t is given")
		}
		operation := envelope.Operation(*op)
		c := envelope.Change{Table: *table, Operation: operation, PrimaryKey: *data}
		switch operation {
		case envelope.OpInsert:
			c.AfterHash = digest.HashBytes([]byte(*data))
		case envelope.OpDelete:
			c.BeforeHash = digest.HashBytes([]byte(*data))
		case envelope.OpUpdate:
			c.BeforeHash = digest.HashBytes([]byte(*data))
			c.AfterHash = digest.HashBytes([]byte(*data))
		default:
			return scribeerr.New(scribeerr.KindInvalidArg, "-o must be one of insert, update, delete")
		}
		b.AddChange(c)
	}

	env := b.Build()
	if err := envelope.Finalize(env); err != nil {
		return err
	}
	if err := r.store.StoreCommit(ctx, env); err != nil && err != store.ErrAlreadyExists {
		return err
	}
	if err := r.store.SetRef(ctx, store.HeadRef, env.CommitID); err != nil {
		return err
	}

	fmt.Println(env.CommitID.String())
	return nil
}
