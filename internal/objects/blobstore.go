// Package objects implements the optional content-addressed blob sink
// under .scribe/objects/XX/YYYY... (the first two hex characters of a
// digest name the shard directory, the remaining 62 name the file). It is
// a simple collaborator to the commit store, not a core component: commits
// only ever reference content by hash, and the objects sink is one place
// (of potentially several) that can resolve a hash back to bytes.
package objects

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wildmix/scribe/internal/digest"
	"github.com/wildmix/scribe/internal/scribeerr"
)

// Store is a directory-backed, content-addressed blob sink.
type Store struct {
	root string
}

// Open ensures root exists and returns a Store rooted there.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindIO, "create objects directory", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) pathFor(h digest.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Has reports whether a blob with the given hash is already stored.
func (s *Store) Has(h digest.Hash) bool {
	_, err := os.Stat(s.pathFor(h))
	return err == nil
}

// Put writes data to the object sink, keyed by its own content hash. It is
// idempotent: writing the same bytes twice succeeds both times. The write
// is atomic — data lands in a temp file in the same shard directory, then
// is renamed into place, so a crash mid-write never leaves a partial object
// visible at its final path.
func (s *Store) Put(ctx context.Context, data []byte) (digest.Hash, error) {
	h := digest.HashBytes(data)
	dst := s.pathFor(h)
	if _, err := os.Stat(dst); err == nil {
		return h, nil
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "create object shard directory", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s.tmp.*", filepath.Base(dst)))
	if err != nil {
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "create temp object file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "write temp object file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "sync temp object file", err)
	}
	if err := tmp.Close(); err != nil {
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "close temp object file", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return digest.Zero, scribeerr.Wrap(scribeerr.KindIO, "rename object into place", err)
	}
	return h, nil
}

// Get reads back a stored blob by hash.
func (s *Store) Get(ctx context.Context, h digest.Hash) ([]byte, error) {
	f, err := os.Open(s.pathFor(h))
	if os.IsNotExist(err) {
		return nil, scribeerr.New(scribeerr.KindObjectMissing, "object not found: "+h.String())
	}
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindIO, "open object", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, scribeerr.Wrap(scribeerr.KindIO, "read object", err)
	}
	return data, nil
}
