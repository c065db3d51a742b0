package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/xxxsen/common/logger"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/config"
	"github.com/ValentinKolb/filegate/db"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/indexer"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
	"github.com/ValentinKolb/filegate/search"
	"github.com/ValentinKolb/filegate/server"
	"github.com/ValentinKolb/filegate/thumbnail"
	"github.com/ValentinKolb/filegate/uploader"
)

func main() {
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed, err:%v\n", err)
		os.Exit(1)
	}
	logger := logger.Init("", c.LogLevel, 0, 0, 0, true)
	logger.Info("filegate starting")
	logger.Info("-- base paths", zap.Strings("paths", c.BasePaths))
	logger.Info("-- size caps",
		zap.String("max_upload", humanize.IBytes(uint64(c.MaxUploadBytes))),
		zap.String("max_download", humanize.IBytes(uint64(c.MaxDownloadBytes))),
		zap.String("max_chunk", humanize.IBytes(uint64(c.MaxChunkBytes))))
	logger.Info("-- upload staging",
		zap.String("temp_dir", c.UploadTempDir),
		zap.Duration("expiry", c.UploadExpiry),
		zap.Duration("cleanup_interval", c.DiskCleanupInterval))
	logger.Info("-- index feature",
		zap.Bool("enable", c.EnableIndex),
		zap.String("database", c.IndexDatabaseURL),
		zap.Duration("rescan_interval", c.IndexRescanInterval),
		zap.Int("scan_concurrency", c.IndexScanConcurrency))
	if c.DevUIDOverride != nil || c.DevGIDOverride != nil {
		logger.Warn("dev ownership override is active, all chown calls are redirected")
	}

	applier := ownership.NewApplier(c.DevUIDOverride, c.DevGIDOverride)
	gate := pathgate.New(c.BasePaths, applier)
	for _, base := range c.BasePaths {
		if _, err := gate.RealBase(base); err != nil {
			logger.Fatal("resolve base path failed", zap.String("base", base), zap.Error(err))
		}
	}

	ctx := context.Background()
	var ix *indexer.Indexer
	if c.EnableIndex {
		if err := db.InitDB(c.IndexDatabaseURL); err != nil {
			logger.Fatal("init index db failed", zap.Error(err))
		}
		ix, err = indexer.New(db.GetClient(), gate, c.IndexScanConcurrency)
		if err != nil {
			logger.Fatal("init indexer failed", zap.Error(err))
		}
		go func() {
			res, err := ix.ScanAll(ctx)
			if err != nil {
				logger.Error("initial scan failed", zap.Error(err))
				return
			}
			logger.Info("initial scan finished",
				zap.Int64("scanned", res.Scanned), zap.Int64("skipped", res.Skipped),
				zap.Int64("added", res.Added), zap.Int64("moved", res.Moved),
				zap.Int64("removed", res.Removed), zap.Int64("duration_ms", res.DurationMs))
		}()
		ix.StartRescanLoop(ctx, c.IndexRescanInterval)
	}

	if err := os.MkdirAll(c.UploadTempDir, 0755); err != nil {
		logger.Fatal("create upload temp dir failed", zap.Error(err))
	}
	fsvc := fileops.New(gate, applier, ix, c.MaxUploadBytes, c.MaxDownloadBytes)
	usvc := uploader.New(gate, applier, fsvc, ix, c.UploadTempDir, c.MaxUploadBytes, c.MaxChunkBytes, c.UploadExpiry)
	usvc.StartJanitor(ctx, c.DiskCleanupInterval)
	ssvc := search.New(gate, fsvc, c.SearchMaxResults, c.SearchMaxRecursiveWildcards)
	tsvc := thumbnail.New(gate)

	svr, err := server.New(fmt.Sprintf(":%d", c.Port),
		server.WithToken(c.Token),
		server.WithFileService(fsvc),
		server.WithUploadManager(usvc),
		server.WithSearchService(ssvc),
		server.WithThumbnailService(tsvc),
		server.WithIndexer(ix),
	)
	if err != nil {
		logger.Fatal("init server fail", zap.Error(err))
	}
	logger.Info("init server succ, start it...", zap.Int("port", c.Port))
	if err := svr.Run(); err != nil {
		logger.Fatal("run server fail", zap.Error(err))
	}
}
