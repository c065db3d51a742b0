package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ChunkPlan describes how a local file will be chunk-uploaded, mirroring
// what the browser helper computes before calling upload/start.
type ChunkPlan struct {
	Size        int64
	Checksum    string
	ChunkSize   int64
	TotalChunks int64
}

// PrepareChunks hashes the file once and derives the chunk layout.
func PrepareChunks(path string, chunkSize int64) (*ChunkPlan, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size:%d", chunkSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, fmt.Errorf("hash file failed, err:%w", err)
	}
	return &ChunkPlan{
		Size:        fi.Size(),
		Checksum:    "sha256:" + hex.EncodeToString(hasher.Sum(nil)),
		ChunkSize:   chunkSize,
		TotalChunks: (fi.Size() + chunkSize - 1) / chunkSize,
	}, nil
}

// ChunkRange returns the byte range of one chunk.
func (p *ChunkPlan) ChunkRange(idx int64) (offset int64, length int64) {
	offset = idx * p.ChunkSize
	length = p.ChunkSize
	if offset+length > p.Size {
		length = p.Size - offset
	}
	return offset, length
}
