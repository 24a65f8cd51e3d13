//go:build integration

package cdc_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildmix/scribe/internal/cdc"
	"github.com/wildmix/scribe/internal/store"
	"github.com/wildmix/scribe/internal/testutil"
)

// TestTriggerModeEndToEnd exercises spec.md §8 end-to-end scenario 5:
// starting a Monitor in TRIGGER mode against a real PostgreSQL container,
// inserting a row into a watched table, and observing exactly one new
// commit whose sole change is an INSERT with the expected hashes.
func TestTriggerModeEndToEnd(t *testing.T) {
	pg := testutil.MustStartPostgres()
	defer pg.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, pg.ConnString)
	if err != nil {
		t.Fatalf("connect to upstream: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `CREATE TABLE t (id INT PRIMARY KEY, x INT)`); err != nil {
		t.Fatalf("create watched table: %v", err)
	}

	st, err := testutil.NewTestStore(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := cdc.Config{
		ConnString:   pg.ConnString,
		Tables:       []string{"t"},
		Mode:         cdc.ModeTrigger,
		PollInterval: 200 * time.Millisecond,
	}
	mon := cdc.New(cfg, st, testutil.TestLogger())

	runCtx, runCancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- mon.Run(runCtx) }()

	// Give Setup a moment to install the trigger before writing.
	time.Sleep(500 * time.Millisecond)
	if _, err := pool.Exec(ctx, `INSERT INTO t (id, x) VALUES (42, 1)`); err != nil {
		t.Fatalf("insert into watched table: %v", err)
	}

	time.Sleep(1 * time.Second)
	runCancel()
	<-done

	head, err := st.GetRef(ctx, store.HeadRef)
	if err != nil {
		t.Fatalf("get HEAD: %v", err)
	}
	if head.IsZero() {
		t.Fatal("expected HEAD to advance after the insert was polled")
	}

	env, err := st.LoadCommit(ctx, head)
	if err != nil {
		t.Fatalf("load HEAD commit: %v", err)
	}
	if len(env.Changes) != 1 {
		t.Fatalf("expected exactly one change, got %d", len(env.Changes))
	}
	c := env.Changes[0]
	if c.Table != "t" || c.Operation != "insert" {
		t.Fatalf("unexpected change: table=%s op=%s", c.Table, c.Operation)
	}
	if c.AfterHash.IsZero() {
		t.Fatal("expected non-zero after_hash for an insert")
	}
	if !c.BeforeHash.IsZero() {
		t.Fatal("expected zero before_hash for an insert")
	}
}
