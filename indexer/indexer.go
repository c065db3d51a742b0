package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/dao"
	daocache "github.com/ValentinKolb/filegate/dao/cache"
	"github.com/ValentinKolb/filegate/entity"
	"github.com/ValentinKolb/filegate/pathgate"
	"github.com/ValentinKolb/filegate/utils"
)

// Indexer assigns stable ids to inodes under the configured bases and keeps
// them current through incremental scans. All methods are safe for
// concurrent callers; the handle is nil when indexing is disabled and
// callers are expected to guard on Enabled-style nil checks.
type Indexer struct {
	fileIndexDao dao.IFileIndexDao
	scanStateDao dao.IScanStateDao
	gate         *pathgate.Gate
	concurrency  int
}

func New(dbc database.IDatabase, gate *pathgate.Gate, concurrency int) (*Indexer, error) {
	cached, err := daocache.NewFileIndexDao(dao.NewFileIndexDao(dbc))
	if err != nil {
		return nil, fmt.Errorf("init index cache failed, err:%w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		fileIndexDao: cached,
		scanStateDao: dao.NewScanStateDao(dbc),
		gate:         gate,
		concurrency:  concurrency,
	}, nil
}

// IndexRealPath stats a validated real path and records it, returning the
// stable id. An empty id means the platform exposes no inode identity.
func (ix *Indexer) IndexRealPath(ctx context.Context, basePath, realPath string) (string, error) {
	fi, err := os.Lstat(realPath)
	if err != nil {
		return "", fmt.Errorf("stat failed, err:%w", err)
	}
	rel, err := ix.gate.RelPath(basePath, realPath)
	if err != nil {
		return "", err
	}
	id, _, err := ix.indexEntry(ctx, basePath, rel, fi, time.Now().UnixMilli())
	return id, err
}

func (ix *Indexer) indexEntry(ctx context.Context, basePath, rel string, fi os.FileInfo, indexedAt int64) (string, string, error) {
	dev, ino, ok := utils.InodeIdentity(fi)
	if !ok {
		return "", "", nil
	}
	rsp, err := ix.fileIndexDao.IndexFile(ctx, &entity.IndexFileRequest{
		BasePath:  basePath,
		RelPath:   rel,
		Dev:       dev,
		Ino:       ino,
		FileSize:  fi.Size(),
		MtimeMs:   fi.ModTime().UnixMilli(),
		IsDir:     fi.IsDir(),
		IndexedAt: indexedAt,
	})
	if err != nil {
		return "", "", err
	}
	return rsp.Id, rsp.Action, nil
}

// IdentifyRealPath returns the id recorded for a validated real path.
func (ix *Indexer) IdentifyRealPath(ctx context.Context, basePath, realPath string) (string, error) {
	rel, err := ix.gate.RelPath(basePath, realPath)
	if err != nil {
		return "", err
	}
	item, ok, err := ix.fileIndexDao.IdentifyPath(ctx, basePath, rel)
	if err != nil || !ok {
		return "", err
	}
	return item.Id, nil
}

func (ix *Indexer) IdentifyPath(ctx context.Context, basePath, relPath string) (*entity.FileIndexItem, bool, error) {
	return ix.fileIndexDao.IdentifyPath(ctx, basePath, relPath)
}

func (ix *Indexer) ResolveId(ctx context.Context, id string) (*entity.FileIndexItem, bool, error) {
	return ix.fileIndexDao.ResolveId(ctx, id)
}

func (ix *Indexer) BulkResolve(ctx context.Context, ids []string) (map[string]*entity.FileIndexItem, error) {
	return ix.fileIndexDao.BulkResolve(ctx, ids)
}

// MoveRealPath rewrites the location of a previously indexed entry,
// preserving its id. Falls back to fresh indexing when the source had no
// entry.
func (ix *Indexer) MoveRealPath(ctx context.Context, basePath, oldReal, newReal string) (string, error) {
	oldRel, err := ix.gate.RelPath(basePath, oldReal)
	if err != nil {
		return "", err
	}
	newRel, err := ix.gate.RelPath(basePath, newReal)
	if err != nil {
		return "", err
	}
	item, ok, err := ix.fileIndexDao.IdentifyPath(ctx, basePath, oldRel)
	if err != nil {
		return "", err
	}
	if !ok {
		return ix.IndexRealPath(ctx, basePath, newReal)
	}
	if err := ix.fileIndexDao.Rename(ctx, item.Id, basePath, newRel); err != nil {
		return "", err
	}
	return item.Id, nil
}

// RemoveRealPath drops the entry for a validated real path; recursive
// removals take everything below it too.
func (ix *Indexer) RemoveRealPath(ctx context.Context, basePath, realPath string, recursive bool) error {
	rel, err := ix.gate.RelPath(basePath, realPath)
	if err != nil {
		return err
	}
	if recursive {
		return ix.fileIndexDao.RemoveFromIndexRecursive(ctx, basePath, rel)
	}
	return ix.fileIndexDao.RemoveFromIndex(ctx, basePath, rel)
}

func (ix *Indexer) Stats(ctx context.Context) (*entity.IndexStats, error) {
	return ix.fileIndexDao.GetIndexStats(ctx)
}

// StartRescanLoop runs full scans on a fixed interval until ctx ends.
func (ix *Indexer) StartRescanLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := ix.ScanAll(ctx)
				if err != nil {
					logutil.GetLogger(ctx).Error("background rescan failed", zap.Error(err))
					continue
				}
				logutil.GetLogger(ctx).Info("background rescan finished",
					zap.Int64("scanned", res.Scanned), zap.Int64("skipped", res.Skipped),
					zap.Int64("added", res.Added), zap.Int64("moved", res.Moved),
					zap.Int64("removed", res.Removed), zap.Int64("duration_ms", res.DurationMs))
			}
		}
	}()
}
