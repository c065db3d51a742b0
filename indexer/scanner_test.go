package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/filegate/db"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

var dbfile = "/tmp/filegate_indexer_test.db"

func TestMain(m *testing.M) {
	_ = os.Remove(dbfile)
	if err := db.InitDB(dbfile); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = os.Remove(dbfile)
	if code != 0 {
		os.Exit(code)
	}
}

func newTestIndexer(t *testing.T, base string) *Indexer {
	t.Helper()
	gate := pathgate.New([]string{base}, ownership.NewApplier(nil, nil))
	ix, err := New(db.GetClient(), gate, 2)
	require.NoError(t, err)
	return ix
}

func TestScanAddsEntries(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "docs", "a.txt"), []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "b.txt"), []byte("b"), 0o644))

	ix := newTestIndexer(t, base)
	res, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Added)
	assert.GreaterOrEqual(t, res.Scanned, int64(2))

	item, ok, err := ix.IdentifyPath(ctx, base, filepath.Join("docs", "a.txt"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), item.FileSize)
	assert.NotEmpty(t, item.Id)
}

func TestScanDetectsMove(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "old.txt"), []byte("x"), 0o644))

	ix := newTestIndexer(t, base)
	_, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)
	before, ok, err := ix.IdentifyPath(ctx, base, "old.txt")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, os.Rename(filepath.Join(base, "old.txt"), filepath.Join(base, "new.txt")))
	time.Sleep(10 * time.Millisecond)

	res, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Moved, int64(1))

	after, ok, err := ix.IdentifyPath(ctx, base, "new.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before.Id, after.Id)

	_, ok, err = ix.IdentifyPath(ctx, base, "old.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanSkipsUnchangedSubtree(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "stable"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "stable", "f.txt"), []byte("x"), 0o644))

	ix := newTestIndexer(t, base)
	_, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)

	res, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Skipped, int64(1))
	assert.Equal(t, int64(0), res.Added)
	// entries under the skipped subtree survive the stale sweep
	assert.Equal(t, int64(0), res.Removed)
	_, ok, err := ix.IdentifyPath(ctx, base, filepath.Join("stable", "f.txt"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScanSweepsVanishedEntries(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "gone.txt"), []byte("x"), 0o644))

	ix := newTestIndexer(t, base)
	_, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(base, "gone.txt")))
	time.Sleep(10 * time.Millisecond)

	res, err := ix.ScanBasePath(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)
	_, ok, err := ix.IdentifyPath(ctx, base, "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMoveRealPathPreservesId(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("x"), 0o644))

	ix := newTestIndexer(t, base)
	id, err := ix.IndexRealPath(ctx, base, filepath.Join(base, "a.txt"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, os.Rename(filepath.Join(base, "a.txt"), filepath.Join(base, "b.txt")))
	moved, err := ix.MoveRealPath(ctx, base, filepath.Join(base, "a.txt"), filepath.Join(base, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, id, moved)
}

func TestScanAllAggregates(t *testing.T) {
	ctx := context.Background()
	b1 := t.TempDir()
	b2 := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(b1, "x"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b2, "y"), []byte("2"), 0o644))

	gate := pathgate.New([]string{b1, b2}, ownership.NewApplier(nil, nil))
	ix, err := New(db.GetClient(), gate, 2)
	require.NoError(t, err)

	res, err := ix.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Added)
}
