package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wildmix/scribe/internal/config"
	"github.com/wildmix/scribe/internal/scribeerr"
	"github.com/wildmix/scribe/internal/store"
)

// repoDirName is the conventional repository directory, analogous to .git.
const repoDirName = ".scribe"

// dbFileName is the SQLite database file inside a repository directory.
const dbFileName = "scribe.db"

// repo bundles an opened store and its loaded configuration for one
// command invocation.
type repo struct {
	dir   string
	store *store.Store
	cfg   config.Config
}

// findRepoDir walks up from the working directory looking for a .scribe
// directory, the way git walks up looking for .git.
func findRepoDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, repoDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", scribeerr.New(scribeerr.KindNotARepo, "not a scribe repository (or any parent up to /)")
		}
		dir = parent
	}
}

// openRepo discovers, opens, and loads the repository rooted at or above
// the working directory.
func openRepo(ctx context.Context, logger *slog.Logger) (*repo, error) {
	dir, err := findRepoDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.Path(dir))
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, filepath.Join(dir, dbFileName), logger)
	if err != nil {
		return nil, err
	}
	return &repo{dir: dir, store: st, cfg: cfg}, nil
}

func (r *repo) Close() {
	_ = r.store.Close()
}
