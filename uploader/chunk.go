package uploader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/ownership"
)

// UploadChunk stages one chunk. The temp-then-rename step is the commit
// point: a chunk is either fully present under its final name or invisible.
func (m *Manager) UploadChunk(ctx context.Context, uploadId string, chunkIndex int64, chunkChecksum string, body io.Reader) (*ChunkResponse, error) {
	meta, err := m.loadMeta(uploadId)
	if err != nil {
		return nil, errs.New(http.StatusNotFound, "upload not found")
	}
	if chunkIndex < 0 || chunkIndex >= meta.TotalChunks {
		return nil, errs.New(http.StatusBadRequest, "invalid chunk index")
	}
	if len(chunkChecksum) > 0 && !checksumPattern.MatchString(chunkChecksum) {
		return nil, errs.New(http.StatusBadRequest, "invalid checksum format")
	}

	dir := m.sessionDir(uploadId)
	final := filepath.Join(dir, strconv.FormatInt(chunkIndex, 10))
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create chunk file failed: %v", err)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(f, hasher), io.LimitReader(body, m.maxChunkBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, errs.New(http.StatusInternalServerError, "write chunk failed: %v", err)
	}
	if written > m.maxChunkBytes {
		_ = os.Remove(tmp)
		return nil, errs.New(http.StatusRequestEntityTooLarge, "chunk too large")
	}
	digest := formatChecksum(hasher.Sum(nil))
	if len(chunkChecksum) > 0 && chunkChecksum != digest {
		_ = os.Remove(tmp)
		return nil, errs.New(http.StatusBadRequest, "checksum mismatch: expected %s, got %s", chunkChecksum, digest)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, errs.New(http.StatusInternalServerError, "commit chunk failed: %v", err)
	}

	chunks, err := m.listChunks(uploadId)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "list chunks failed: %v", err)
	}
	if int64(len(chunks)) < meta.TotalChunks {
		return &ChunkResponse{ChunkIndex: chunkIndex, UploadedChunks: chunks, Completed: false}, nil
	}

	info, err := m.assemble(ctx, meta)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("chunked upload assembled",
		zap.String("upload_id", uploadId), zap.String("path", meta.Path),
		zap.String("filename", meta.Filename), zap.Int64("size", meta.Size))
	return &ChunkResponse{ChunkIndex: chunkIndex, UploadedChunks: chunks, Completed: true, File: info}, nil
}

// assemble composes the final file. The singleflight group keyed on the
// upload id guarantees a single assembler per session; racing callers
// share its outcome.
func (m *Manager) assemble(ctx context.Context, meta *Meta) (*fileops.FileInfo, error) {
	v, err, _ := m.assembleGroup.Do(meta.UploadId, func() (interface{}, error) {
		return m.doAssemble(ctx, meta)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*fileops.FileInfo), nil
}

func (m *Manager) doAssemble(ctx context.Context, meta *Meta) (*fileops.FileInfo, error) {
	dir := m.sessionDir(meta.UploadId)
	chunks, err := m.listChunks(meta.UploadId)
	if err != nil {
		if os.IsNotExist(err) {
			// another assembler already finished and removed the session
			return nil, nil
		}
		return nil, errs.New(http.StatusInternalServerError, "list chunks failed: %v", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	if missing := missingIndices(chunks, meta.TotalChunks); len(missing) > 0 {
		return nil, errs.New(http.StatusInternalServerError, "missing chunks: %v", missing)
	}

	var owner *ownership.Ownership
	if meta.Ownership != nil {
		if owner, err = meta.Ownership.toOwnership(); err != nil {
			return nil, errs.New(http.StatusBadRequest, "%v", err)
		}
	}
	target := filepath.Join(meta.Path, meta.Filename)
	res, err := m.gate.Validate(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(res.RealPath), 0755); err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create parent failed: %v", err)
	}

	dst, err := os.OpenFile(res.RealPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create destination failed: %v", err)
	}
	hasher := sha256.New()
	out := io.MultiWriter(dst, hasher)
	for i := int64(0); i < meta.TotalChunks; i++ {
		if err := appendChunk(out, filepath.Join(dir, strconv.FormatInt(i, 10))); err != nil {
			_ = dst.Close()
			_ = os.Remove(res.RealPath)
			return nil, errs.New(http.StatusInternalServerError, "read chunk %d failed: %v", i, err)
		}
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(res.RealPath)
		return nil, errs.New(http.StatusInternalServerError, "close destination failed: %v", err)
	}

	digest := formatChecksum(hasher.Sum(nil))
	if digest != meta.Checksum {
		_ = os.Remove(res.RealPath)
		return nil, errs.New(http.StatusInternalServerError, "checksum mismatch: expected %s, got %s", meta.Checksum, digest)
	}
	if owner != nil {
		if err := m.applier.ApplyFile(ctx, res.RealPath, owner); err != nil {
			_ = os.Remove(res.RealPath)
			return nil, errs.New(http.StatusInternalServerError, "apply ownership failed: %v", err)
		}
	}
	if m.ix != nil {
		if _, err := m.ix.IndexRealPath(ctx, res.BasePath, res.RealPath); err != nil {
			logutil.GetLogger(ctx).Warn("index assembled file failed", zap.String("path", res.RealPath), zap.Error(err))
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		logutil.GetLogger(ctx).Warn("remove upload dir failed", zap.String("dir", dir), zap.Error(err))
	}

	fi, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	info := m.fsvc.BuildFileInfo(ctx, target, res.BasePath, res.RealPath, fi)
	info.Checksum = meta.Checksum
	return info, nil
}

func appendChunk(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy failed, err:%w", err)
	}
	return nil
}
