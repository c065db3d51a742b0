package dao

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ValentinKolb/filegate/db"
	"github.com/ValentinKolb/filegate/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dbfile       = "/tmp/filegate_dao_test.db"
	fileIndexDao IFileIndexDao
	scanStateDao IScanStateDao
)

func setup() {
	tearDown()
	if err := db.InitDB(dbfile); err != nil {
		panic(err)
	}
	fileIndexDao = NewFileIndexDao(db.GetClient())
	scanStateDao = NewScanStateDao(db.GetClient())
}

func tearDown() {
	_ = os.Remove(dbfile)
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	tearDown()
	if code != 0 {
		os.Exit(code)
	}
}

func indexReq(base, rel string, dev, ino uint64) *entity.IndexFileRequest {
	return &entity.IndexFileRequest{
		BasePath:  base,
		RelPath:   rel,
		Dev:       dev,
		Ino:       ino,
		FileSize:  42,
		MtimeMs:   time.Now().UnixMilli(),
		IndexedAt: time.Now().UnixMilli(),
	}
}

func TestIndexFileIdentity(t *testing.T) {
	ctx := context.Background()

	added, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "dir/a.txt", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, entity.IndexActionAdded, added.Action)
	assert.NotEmpty(t, added.Id)

	// same path again is an in-place refresh
	again, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "dir/a.txt", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, entity.IndexActionExisting, again.Action)
	assert.Equal(t, added.Id, again.Id)

	// same inode under a new path is a move and keeps the id
	moved, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "dir/b.txt", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, entity.IndexActionMoved, moved.Action)
	assert.Equal(t, added.Id, moved.Id)

	_, ok, err := fileIndexDao.IdentifyPath(ctx, "/base1", "dir/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	item, ok, err := fileIndexDao.IdentifyPath(ctx, "/base1", "dir/b.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, added.Id, item.Id)

	// the same inode pair in another base is a distinct entry
	other, err := fileIndexDao.IndexFile(ctx, indexReq("/base2", "dir/a.txt", 1, 100))
	require.NoError(t, err)
	assert.Equal(t, entity.IndexActionAdded, other.Action)
	assert.NotEqual(t, added.Id, other.Id)
}

func TestResolveAndBulkResolve(t *testing.T) {
	ctx := context.Background()
	r1, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "bulk/x", 2, 200))
	require.NoError(t, err)
	r2, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "bulk/y", 2, 201))
	require.NoError(t, err)

	item, ok, err := fileIndexDao.ResolveId(ctx, r1.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bulk/x", item.RelPath)

	m, err := fileIndexDao.BulkResolve(ctx, []string{r1.Id, r2.Id, "00000000-0000-0000-0000-000000000000"})
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Contains(t, m, r1.Id)
	assert.Contains(t, m, r2.Id)
}

func TestRemoveRecursiveLikeEscape(t *testing.T) {
	ctx := context.Background()
	// dir name containing LIKE metacharacters must not match siblings
	_, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "a_b", 3, 300))
	require.NoError(t, err)
	_, err = fileIndexDao.IndexFile(ctx, indexReq("/base1", "a_b/child", 3, 301))
	require.NoError(t, err)
	_, err = fileIndexDao.IndexFile(ctx, indexReq("/base1", "aXb/child", 3, 302))
	require.NoError(t, err)
	_, err = fileIndexDao.IndexFile(ctx, indexReq("/base1", "a%b/child", 3, 303))
	require.NoError(t, err)

	require.NoError(t, fileIndexDao.RemoveFromIndexRecursive(ctx, "/base1", "a_b"))

	_, ok, err := fileIndexDao.IdentifyPath(ctx, "/base1", "a_b/child")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = fileIndexDao.IdentifyPath(ctx, "/base1", "aXb/child")
	require.NoError(t, err)
	assert.True(t, ok, "sibling must survive the recursive delete")
	_, ok, err = fileIndexDao.IdentifyPath(ctx, "/base1", "a%b/child")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTouchAndStaleSweep(t *testing.T) {
	ctx := context.Background()
	base := "/base-sweep"
	old := time.Now().Add(-time.Hour).UnixMilli()
	gen := time.Now().UnixMilli()

	reqA := indexReq(base, "keep/a", 4, 400)
	reqA.IndexedAt = old
	_, err := fileIndexDao.IndexFile(ctx, reqA)
	require.NoError(t, err)
	reqB := indexReq(base, "gone/b", 4, 401)
	reqB.IndexedAt = old
	_, err = fileIndexDao.IndexFile(ctx, reqB)
	require.NoError(t, err)

	require.NoError(t, fileIndexDao.TouchIndexedAtUnderDir(ctx, base, "keep", gen))

	removed, err := fileIndexDao.RemoveStaleEntries(ctx, base, gen)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := fileIndexDao.IdentifyPath(ctx, base, "keep/a")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = fileIndexDao.IdentifyPath(ctx, base, "gone/b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenamePreservesId(t *testing.T) {
	ctx := context.Background()
	r, err := fileIndexDao.IndexFile(ctx, indexReq("/base1", "ren/old.txt", 5, 500))
	require.NoError(t, err)
	require.NoError(t, fileIndexDao.Rename(ctx, r.Id, "/base1", "ren/new.txt"))

	item, ok, err := fileIndexDao.IdentifyPath(ctx, "/base1", "ren/new.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.Id, item.Id)
	_, ok, err = fileIndexDao.IdentifyPath(ctx, "/base1", "ren/old.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanStateUpsert(t *testing.T) {
	ctx := context.Background()
	item := &entity.ScanStateItem{BasePath: "/base1", DirPath: "d1", MtimeMs: 111, ScannedAt: 222}
	require.NoError(t, scanStateDao.Upsert(ctx, item))

	got, ok, err := scanStateDao.Get(ctx, "/base1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(111), got.MtimeMs)

	item.MtimeMs = 333
	require.NoError(t, scanStateDao.Upsert(ctx, item))
	got, ok, err = scanStateDao.Get(ctx, "/base1", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(333), got.MtimeMs)

	_, ok, err = scanStateDao.Get(ctx, "/base1", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
