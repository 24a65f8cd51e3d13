package main

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withWorkdir runs fn with the process working directory set to dir,
// restoring the original directory afterward. Subcommands discover the
// repository relative to os.Getwd, so CLI-level tests drive them this way
// rather than through exec.Command.
func withWorkdir(t *testing.T, dir string, fn func()) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(orig) }()
	fn()
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestInitCommitLogStatusVerify(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	withWorkdir(t, dir, func() {
		require.NoError(t, runInit([]string{"-author", "user:alice", "-role", "engineer"}))

		commitOut := captureStdout(t, func() {
			require.NoError(t, runCommit(ctx, []string{"-m", "first commit", "-t", "orders", "-o", "insert", "-d", `{"id":1}`}))
		})
		assert.NotEmpty(t, commitOut)

		statusOut := captureStdout(t, func() {
			require.NoError(t, runStatus(ctx, []string{"-porcelain"}))
		})
		assert.Contains(t, statusOut, "commits 1")
		assert.NotContains(t, statusOut, "head (none)")

		logOut := captureStdout(t, func() {
			require.NoError(t, runLog(ctx, []string{"-n", "5"}))
		})
		assert.Contains(t, logOut, "first commit")

		require.NoError(t, runVerify(ctx, nil))
	})
}

func TestStatusOnEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	withWorkdir(t, dir, func() {
		require.NoError(t, runInit([]string{"-author", "user:bob"}))

		out := captureStdout(t, func() {
			require.NoError(t, runStatus(ctx, []string{"-porcelain"}))
		})
		assert.Contains(t, out, "head (none)")
		assert.Contains(t, out, "commits 0")
	})
}

func TestCommitOutsideRepositoryFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	withWorkdir(t, dir, func() {
		err := runCommit(ctx, []string{"-m", "no repo here"})
		require.Error(t, err)
	})
}
