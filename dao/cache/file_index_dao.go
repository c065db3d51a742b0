package cache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	explru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ValentinKolb/filegate/cacheapi"
	cachewrap "github.com/ValentinKolb/filegate/cacheapi/adaptor"
	"github.com/ValentinKolb/filegate/dao"
	"github.com/ValentinKolb/filegate/entity"
)

const (
	defaultMaxIdCacheSize   = 10000
	defaultIdCacheExpire    = time.Minute
	defaultPathCacheExpire  = 30 * time.Second
	defaultPathCacheCounter = 100000
	defaultPathCacheCost    = 10000
)

// fileIndexDao caches id and path lookups in front of the sqlite DAO.
// Entries carry short TTLs: bulk mutations (stale sweeps, recursive
// removals) cannot enumerate affected keys, so expiry bounds staleness
// while the hot read paths (fileId enrichment, bulk resolve) stay cheap.
type fileIndexDao struct {
	dao.IFileIndexDao
	idCache   cacheapi.ICache[string, *entity.FileIndexItem]
	pathCache cacheapi.ICache[uint64, *entity.FileIndexItem]
}

func NewFileIndexDao(impl dao.IFileIndexDao) (dao.IFileIndexDao, error) {
	idc := explru.NewLRU[string, *entity.FileIndexItem](defaultMaxIdCacheSize, nil, defaultIdCacheExpire)
	rc, err := ristretto.NewCache(&ristretto.Config[uint64, *entity.FileIndexItem]{
		NumCounters: defaultPathCacheCounter,
		MaxCost:     defaultPathCacheCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &fileIndexDao{
		IFileIndexDao: impl,
		idCache:       cachewrap.WrapExpirableLruCache(idc),
		pathCache:     cachewrap.WrapRistrettoCache(rc, defaultPathCacheExpire),
	}, nil
}

func pathKey(basePath, relPath string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(basePath)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(relPath)
	return h.Sum64()
}

func (f *fileIndexDao) invalidate(ctx context.Context, id string, basePath, relPath string) {
	if len(id) > 0 {
		_ = f.idCache.Del(ctx, id)
	}
	_ = f.pathCache.Del(ctx, pathKey(basePath, relPath))
}

func (f *fileIndexDao) IndexFile(ctx context.Context, req *entity.IndexFileRequest) (*entity.IndexFileResponse, error) {
	rsp, err := f.IFileIndexDao.IndexFile(ctx, req)
	if err != nil {
		return nil, err
	}
	f.invalidate(ctx, rsp.Id, req.BasePath, req.RelPath)
	if len(rsp.PrevRelPath) > 0 {
		f.invalidate(ctx, "", req.BasePath, rsp.PrevRelPath)
	}
	return rsp, nil
}

func (f *fileIndexDao) ResolveId(ctx context.Context, id string) (*entity.FileIndexItem, bool, error) {
	return cacheapi.Load(ctx, f.idCache, id, func(ctx context.Context, miss []string) (map[string]*entity.FileIndexItem, error) {
		return f.IFileIndexDao.BulkResolve(ctx, miss)
	})
}

func (f *fileIndexDao) IdentifyPath(ctx context.Context, basePath, relPath string) (*entity.FileIndexItem, bool, error) {
	return cacheapi.Load(ctx, f.pathCache, pathKey(basePath, relPath), func(ctx context.Context, miss []uint64) (map[uint64]*entity.FileIndexItem, error) {
		item, ok, err := f.IFileIndexDao.IdentifyPath(ctx, basePath, relPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			return map[uint64]*entity.FileIndexItem{}, nil
		}
		return map[uint64]*entity.FileIndexItem{pathKey(basePath, relPath): item}, nil
	})
}

func (f *fileIndexDao) BulkResolve(ctx context.Context, ids []string) (map[string]*entity.FileIndexItem, error) {
	return cacheapi.LoadMany(ctx, f.idCache, ids, func(ctx context.Context, miss []string) (map[string]*entity.FileIndexItem, error) {
		return f.IFileIndexDao.BulkResolve(ctx, miss)
	})
}

func (f *fileIndexDao) Rename(ctx context.Context, id string, basePath, relPath string) error {
	if item, ok, err := f.IFileIndexDao.ResolveId(ctx, id); err == nil && ok {
		f.invalidate(ctx, id, item.BasePath, item.RelPath)
	}
	defer f.invalidate(ctx, id, basePath, relPath)
	return f.IFileIndexDao.Rename(ctx, id, basePath, relPath)
}

func (f *fileIndexDao) RemoveFromIndex(ctx context.Context, basePath, relPath string) error {
	if item, ok, err := f.IFileIndexDao.IdentifyPath(ctx, basePath, relPath); err == nil && ok {
		f.invalidate(ctx, item.Id, basePath, relPath)
	}
	return f.IFileIndexDao.RemoveFromIndex(ctx, basePath, relPath)
}

func (f *fileIndexDao) RemoveFromIndexRecursive(ctx context.Context, basePath, relPath string) error {
	// descendants age out through the TTL
	if item, ok, err := f.IFileIndexDao.IdentifyPath(ctx, basePath, relPath); err == nil && ok {
		f.invalidate(ctx, item.Id, basePath, relPath)
	}
	return f.IFileIndexDao.RemoveFromIndexRecursive(ctx, basePath, relPath)
}
