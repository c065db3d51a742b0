package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ValentinKolb/filegate/entity"
)

// dirQueue is the shared FIFO of pending directories. pending counts queued
// plus in-flight directories so workers know when the walk has drained.
type dirQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	pending int
}

func newDirQueue() *dirQueue {
	q := &dirQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *dirQueue) push(dir string) {
	q.mu.Lock()
	q.items = append(q.items, dir)
	q.pending++
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a directory is available or the walk has drained.
func (q *dirQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.pending > 0 {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	dir := q.items[0]
	q.items = q.items[1:]
	return dir, true
}

// done marks one popped directory as fully processed.
func (q *dirQueue) done() {
	q.mu.Lock()
	q.pending--
	drained := q.pending == 0
	q.mu.Unlock()
	if drained {
		q.cond.Broadcast()
	}
}

type scanCounters struct {
	scanned int64
	skipped int64
	added   int64
	moved   int64
}

// ScanBasePath walks one base breadth-first with a bounded worker pool,
// skipping subtrees whose directory mtime matches the scan-state cache and
// sweeping entries the walk no longer reached.
func (ix *Indexer) ScanBasePath(ctx context.Context, basePath string) (*entity.ScanResult, error) {
	start := time.Now()
	scanStart := start.UnixMilli()
	realBase, err := ix.gate.RealBase(basePath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(realBase); err != nil {
		// an unreadable root yields empty counts, never an error
		logutil.GetLogger(ctx).Warn("scan root not statable", zap.String("base", basePath), zap.Error(err))
		return &entity.ScanResult{DurationMs: time.Since(start).Milliseconds()}, nil
	}

	counters := &scanCounters{}
	queue := newDirQueue()
	queue.push(".")

	eg, subctx := errgroup.WithContext(ctx)
	for i := 0; i < ix.concurrency; i++ {
		eg.Go(func() error {
			for {
				dirRel, ok := queue.pop()
				if !ok {
					return nil
				}
				ix.scanDir(subctx, basePath, realBase, dirRel, scanStart, queue, counters)
				queue.done()
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	removed, err := ix.fileIndexDao.RemoveStaleEntries(ctx, basePath, scanStart)
	if err != nil {
		return nil, err
	}
	return &entity.ScanResult{
		Scanned:    atomic.LoadInt64(&counters.scanned),
		Skipped:    atomic.LoadInt64(&counters.skipped),
		Added:      atomic.LoadInt64(&counters.added),
		Moved:      atomic.LoadInt64(&counters.moved),
		Removed:    removed,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// scanDir handles a single directory: either skip the whole subtree on an
// mtime match, or enumerate, index, and enqueue child directories. Stat
// failures on entries are skipped silently.
func (ix *Indexer) scanDir(ctx context.Context, basePath, realBase, dirRel string, scanStart int64, queue *dirQueue, counters *scanCounters) {
	logger := logutil.GetLogger(ctx)
	dirAbs := filepath.Join(realBase, dirRel)
	fi, err := os.Stat(dirAbs)
	if err != nil {
		return
	}
	mtimeMs := fi.ModTime().UnixMilli()
	now := time.Now().UnixMilli()

	state, ok, err := ix.scanStateDao.Get(ctx, basePath, dirRel)
	if err == nil && ok && state.MtimeMs == mtimeMs {
		if err := ix.fileIndexDao.TouchIndexedAtUnderDir(ctx, basePath, dirRel, now); err != nil {
			logger.Error("touch skipped subtree failed", zap.String("dir", dirRel), zap.Error(err))
		}
		_ = ix.scanStateDao.Upsert(ctx, &entity.ScanStateItem{
			BasePath: basePath, DirPath: dirRel, MtimeMs: mtimeMs, ScannedAt: now,
		})
		atomic.AddInt64(&counters.skipped, 1)
		return
	}

	ents, err := os.ReadDir(dirAbs)
	if err != nil {
		return
	}
	for _, ent := range ents {
		entFi, err := ent.Info()
		if err != nil {
			continue
		}
		if entFi.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if !entFi.IsDir() && !entFi.Mode().IsRegular() {
			continue
		}
		entRel := filepath.Join(dirRel, ent.Name())
		_, action, err := ix.indexEntry(ctx, basePath, entRel, entFi, time.Now().UnixMilli())
		if err != nil {
			logger.Error("index entry failed", zap.String("rel", entRel), zap.Error(err))
			continue
		}
		switch action {
		case entity.IndexActionAdded:
			atomic.AddInt64(&counters.added, 1)
		case entity.IndexActionMoved:
			atomic.AddInt64(&counters.moved, 1)
		}
		if entFi.IsDir() {
			queue.push(entRel)
		}
	}
	_ = ix.scanStateDao.Upsert(ctx, &entity.ScanStateItem{
		BasePath: basePath, DirPath: dirRel, MtimeMs: mtimeMs, ScannedAt: now,
	})
	atomic.AddInt64(&counters.scanned, 1)
}

// ScanAll scans every configured base sequentially and aggregates counts.
func (ix *Indexer) ScanAll(ctx context.Context) (*entity.ScanResult, error) {
	total := &entity.ScanResult{}
	for _, base := range ix.gate.Bases() {
		res, err := ix.ScanBasePath(ctx, base)
		if err != nil {
			return nil, err
		}
		total.Merge(res)
	}
	return total, nil
}
