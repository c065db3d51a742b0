package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/uploader"
)

const defaultUploadThreads = 4

// ChunkedUpload uploads src to remotePath/filename through the chunk API:
// hash, start (or resume), fan the missing chunks out over threads with
// retries, and return the assembled file entry.
func (c *Client) ChunkedUpload(ctx context.Context, src, remotePath, filename string, chunkSize int64, threads int) (*fileops.FileInfo, error) {
	if threads <= 0 {
		threads = defaultUploadThreads
	}
	plan, err := PrepareChunks(src, chunkSize)
	if err != nil {
		return nil, err
	}
	start, err := c.UploadStart(ctx, remotePath, filename, plan.Size, plan.Checksum, plan.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("start upload failed, err:%w", err)
	}
	uploaded := make(map[int64]struct{}, len(start.UploadedChunks))
	for _, idx := range start.UploadedChunks {
		uploaded[idx] = struct{}{}
	}

	var mu sync.Mutex
	var result *fileops.FileInfo
	eg, subctx := errgroup.WithContext(ctx)
	eg.SetLimit(threads)
	for i := int64(0); i < start.TotalChunks; i++ {
		if _, ok := uploaded[i]; ok {
			continue
		}
		idx := i
		eg.Go(func() error {
			begin := time.Now()
			rsp, err := c.chunkUploadWithRetry(subctx, src, start.UploadId, plan, idx)
			if err != nil {
				return err
			}
			cost := time.Since(begin)
			speed := "-"
			if cost > 0 {
				speed = humanize.IBytes(uint64(float64(plan.ChunkSize)*1000/float64(int64(cost/time.Millisecond)))) + "/s"
			}
			logutil.GetLogger(ctx).Debug("chunk upload finish",
				zap.Int64("chunk_index", idx), zap.Duration("cost", cost), zap.String("speed", speed))
			if rsp.Completed && rsp.File != nil {
				mu.Lock()
				result = rsp.File
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if result == nil {
		// every chunk was already staged before this run: resend the last
		// one to trigger assembly
		last := start.TotalChunks - 1
		rsp, err := c.chunkUploadWithRetry(ctx, src, start.UploadId, plan, last)
		if err != nil {
			return nil, err
		}
		if !rsp.Completed || rsp.File == nil {
			return nil, fmt.Errorf("upload did not complete")
		}
		result = rsp.File
	}
	return result, nil
}

func (c *Client) chunkUploadWithRetry(ctx context.Context, src, uploadId string, plan *ChunkPlan, idx int64) (*uploader.ChunkResponse, error) {
	offset, length := plan.ChunkRange(idx)
	var out *uploader.ChunkResponse
	if err := retry.RetryDo(ctx, 3, 2*time.Second, func(ctx context.Context) error {
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		r := io.LimitReader(f, length)
		rsp, err := c.UploadChunk(ctx, uploadId, idx, "", r)
		if err != nil {
			logutil.GetLogger(ctx).Error("upload chunk failed, wait retry", zap.Error(err), zap.Int64("chunk_index", idx))
			return err
		}
		out = rsp
		return nil
	}); err != nil {
		return nil, err
	}
	return out, nil
}
