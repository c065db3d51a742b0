package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/filegate/dao"
	"github.com/ValentinKolb/filegate/db"
	"github.com/ValentinKolb/filegate/entity"
)

var (
	dbfile  = "/tmp/filegate_dao_cache_test.db"
	testDao dao.IFileIndexDao
)

func TestMain(m *testing.M) {
	_ = os.Remove(dbfile)
	if err := db.InitDB(dbfile); err != nil {
		panic(err)
	}
	var err error
	testDao, err = NewFileIndexDao(dao.NewFileIndexDao(db.GetClient()))
	if err != nil {
		panic(err)
	}
	code := m.Run()
	_ = os.Remove(dbfile)
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
		FileSize:  1,
		MtimeMs:   time.Now().UnixMilli(),
		IndexedAt: time.Now().UnixMilli(),
	}
}

func TestCachedLookupsStayCoherentAcrossMove(t *testing.T) {
	ctx := context.Background()
	added, err := testDao.IndexFile(ctx, indexReq("/b", "dir/old.txt", 1, 10))
	require.NoError(t, err)

	// warm both caches
	item, ok, err := testDao.IdentifyPath(ctx, "/b", "dir/old.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, added.Id, item.Id)
	_, ok, err = testDao.ResolveId(ctx, added.Id)
	require.NoError(t, err)
	require.True(t, ok)

	// the inode shows up elsewhere: a move that must evict the old path
	moved, err := testDao.IndexFile(ctx, indexReq("/b", "dir/new.txt", 1, 10))
	require.NoError(t, err)
	assert.Equal(t, entity.IndexActionMoved, moved.Action)
	assert.Equal(t, added.Id, moved.Id)

	_, ok, err = testDao.IdentifyPath(ctx, "/b", "dir/old.txt")
	require.NoError(t, err)
	assert.False(t, ok, "stale cached path must not survive a move")
	item, ok, err = testDao.IdentifyPath(ctx, "/b", "dir/new.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, added.Id, item.Id)

	resolved, ok, err := testDao.ResolveId(ctx, added.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dir/new.txt", resolved.RelPath)
}

func TestCachedRenameAndRemove(t *testing.T) {
	ctx := context.Background()
	added, err := testDao.IndexFile(ctx, indexReq("/b", "ren/a.txt", 2, 20))
	require.NoError(t, err)
	_, _, err = testDao.IdentifyPath(ctx, "/b", "ren/a.txt")
	require.NoError(t, err)

	require.NoError(t, testDao.Rename(ctx, added.Id, "/b", "ren/b.txt"))
	_, ok, err := testDao.IdentifyPath(ctx, "/b", "ren/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	item, ok, err := testDao.ResolveId(ctx, added.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ren/b.txt", item.RelPath)

	require.NoError(t, testDao.RemoveFromIndex(ctx, "/b", "ren/b.txt"))
	_, ok, err = testDao.IdentifyPath(ctx, "/b", "ren/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}
