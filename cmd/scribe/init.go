package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wildmix/scribe/internal/config"
	"github.com/wildmix/scribe/internal/scribeerr"
	"github.com/wildmix/scribe/internal/store"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	author := fs.String("author", "", "author id for commits created in this repository (default user:$USER)")
	role := fs.String("role", "operator", "author role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "."
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	dir := filepath.Join(path, repoDirName)
	if _, err := os.Stat(dir); err == nil {
		return scribeerr.New(scribeerr.KindRepoExists, "repository already exists at "+dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create repository directory: %w", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(dir, dbFileName), nil)
	if err != nil {
		return err
	}
	defer st.Close()

	authorID := *author
	if authorID == "" {
		authorID = "user:" + currentUser()
	}
	cfg := config.Default(authorID, *role)
	if err := config.Save(config.Path(dir), cfg); err != nil {
		return err
	}

	fmt.Printf("initialized empty scribe repository in %s\n", dir)
	return nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
