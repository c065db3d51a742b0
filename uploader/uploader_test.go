package uploader

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

func newTestManager(t *testing.T, base string) *Manager {
	t.Helper()
	gate := pathgate.New([]string{base}, ownership.NewApplier(nil, nil))
	applier := ownership.NewApplier(nil, nil)
	fsvc := fileops.New(gate, applier, nil, 1<<30, 1<<30)
	return New(gate, applier, fsvc, nil, t.TempDir(), 1<<20, 16*1024, time.Hour)
}

func randomPayload(t *testing.T, n int) ([]byte, string) {
	t.Helper()
	payload := make([]byte, n)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	sum := sha256.Sum256(payload)
	return payload, "sha256:" + hex.EncodeToString(sum[:])
}

func chunkOf(payload []byte, idx, size int) []byte {
	lo := idx * size
	hi := lo + size
	if hi > len(payload) {
		hi = len(payload)
	}
	return payload[lo:hi]
}

func TestDeriveUploadIdDeterministic(t *testing.T) {
	a := DeriveUploadId("/base/dir", "f.bin", "sha256:"+string(bytes.Repeat([]byte("a"), 64)))
	b := DeriveUploadId("/base/dir", "f.bin", "sha256:"+string(bytes.Repeat([]byte("a"), 64)))
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	c := DeriveUploadId("/base/dir", "g.bin", "sha256:"+string(bytes.Repeat([]byte("a"), 64)))
	assert.NotEqual(t, a, c)
}

func TestStartValidation(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	_, checksum := randomPayload(t, 8)

	_, err := m.Start(ctx, &StartRequest{Path: base, Filename: "f", Size: 10, Checksum: "not-a-checksum", ChunkSize: 4})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.CodeOf(err))

	_, err = m.Start(ctx, &StartRequest{Path: base, Filename: "f", Size: 2 << 20, Checksum: checksum, ChunkSize: 4})
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, errs.CodeOf(err))

	_, err = m.Start(ctx, &StartRequest{Path: base, Filename: "f", Size: 10, Checksum: checksum, ChunkSize: 1 << 20})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.CodeOf(err))

	_, err = m.Start(ctx, &StartRequest{Path: "/outside", Filename: "f", Size: 10, Checksum: checksum, ChunkSize: 4})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errs.CodeOf(err))
}

func TestChunkedHappyPathOutOfOrder(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	payload, checksum := randomPayload(t, 50*1024)
	const chunkSize = 10240

	start, err := m.Start(ctx, &StartRequest{
		Path: base, Filename: "big.bin", Size: int64(len(payload)),
		Checksum: checksum, ChunkSize: chunkSize,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), start.TotalChunks)
	assert.Empty(t, start.UploadedChunks)

	var last *ChunkResponse
	for _, idx := range []int{3, 0, 4, 1, 2} {
		last, err = m.UploadChunk(ctx, start.UploadId, int64(idx), "", bytes.NewReader(chunkOf(payload, idx, chunkSize)))
		require.NoError(t, err)
	}
	require.True(t, last.Completed)
	require.NotNil(t, last.File)
	assert.Equal(t, int64(len(payload)), last.File.Size)
	assert.Equal(t, checksum, last.File.Checksum)

	got, err := os.ReadFile(filepath.Join(base, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// the session directory is gone after successful assembly
	_, statErr := os.Stat(m.sessionDir(start.UploadId))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStartResume(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	payload, checksum := randomPayload(t, 50*1024)
	const chunkSize = 10240

	req := &StartRequest{Path: base, Filename: "r.bin", Size: int64(len(payload)), Checksum: checksum, ChunkSize: chunkSize}
	start, err := m.Start(ctx, req)
	require.NoError(t, err)
	for _, idx := range []int{0, 1} {
		_, err = m.UploadChunk(ctx, start.UploadId, int64(idx), "", bytes.NewReader(chunkOf(payload, idx, chunkSize)))
		require.NoError(t, err)
	}

	resumed, err := m.Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, start.UploadId, resumed.UploadId)
	assert.Equal(t, int64(5), resumed.TotalChunks)
	assert.Equal(t, []int64{0, 1}, resumed.UploadedChunks)
	assert.False(t, resumed.Completed)
}

func TestChunkChecksumMismatch(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	payload, checksum := randomPayload(t, 1024)

	start, err := m.Start(ctx, &StartRequest{Path: base, Filename: "c.bin", Size: 1024, Checksum: checksum, ChunkSize: 1024})
	require.NoError(t, err)

	wrong := sha256.Sum256([]byte("other"))
	_, err = m.UploadChunk(ctx, start.UploadId, 0, "sha256:"+hex.EncodeToString(wrong[:]), bytes.NewReader(payload))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.CodeOf(err))
	assert.Contains(t, err.Error(), "checksum mismatch")

	// neither committed chunk nor temp file remains
	ents, err := os.ReadDir(m.sessionDir(start.UploadId))
	require.NoError(t, err)
	for _, ent := range ents {
		assert.Equal(t, metaFileName, ent.Name())
	}
}

func TestAssemblyChecksumMismatch(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	payload, _ := randomPayload(t, 2048)
	// declare a checksum that cannot match the uploaded bytes
	bogus := sha256.Sum256([]byte("declared"))
	checksum := "sha256:" + hex.EncodeToString(bogus[:])

	start, err := m.Start(ctx, &StartRequest{Path: base, Filename: "bad.bin", Size: 2048, Checksum: checksum, ChunkSize: 1024})
	require.NoError(t, err)
	_, err = m.UploadChunk(ctx, start.UploadId, 0, "", bytes.NewReader(payload[:1024]))
	require.NoError(t, err)
	_, err = m.UploadChunk(ctx, start.UploadId, 1, "", bytes.NewReader(payload[1024:]))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errs.CodeOf(err))
	assert.Contains(t, err.Error(), fmt.Sprintf("checksum mismatch: expected %s", checksum))

	// the destination must not exist, the chunks stay for a retry
	_, statErr := os.Stat(filepath.Join(base, "bad.bin"))
	assert.True(t, os.IsNotExist(statErr))
	chunks, err := m.listChunks(start.UploadId)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, chunks)
}

func TestUploadChunkErrors(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	ctx := context.Background()
	payload, checksum := randomPayload(t, 1024)

	_, err := m.UploadChunk(ctx, "deadbeefdeadbeef", 0, "", bytes.NewReader(payload))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errs.CodeOf(err))

	start, err := m.Start(ctx, &StartRequest{Path: base, Filename: "e.bin", Size: 1024, Checksum: checksum, ChunkSize: 512})
	require.NoError(t, err)

	_, err = m.UploadChunk(ctx, start.UploadId, 7, "", bytes.NewReader(payload))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.CodeOf(err))

	// a chunk above the configured cap is rejected and leaves nothing
	big := make([]byte, 20*1024)
	_, err = m.UploadChunk(ctx, start.UploadId, 0, "", bytes.NewReader(big))
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, errs.CodeOf(err))
	chunks, err := m.listChunks(start.UploadId)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestJanitorRemovesExpired(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, base)
	m.expiry = 50 * time.Millisecond
	ctx := context.Background()
	payload, checksum := randomPayload(t, 1024)

	start, err := m.Start(ctx, &StartRequest{Path: base, Filename: "j.bin", Size: 1024, Checksum: checksum, ChunkSize: 512})
	require.NoError(t, err)
	_, err = m.UploadChunk(ctx, start.UploadId, 0, "", bytes.NewReader(payload[:512]))
	require.NoError(t, err)

	// fresh session survives
	assert.Equal(t, 0, m.CleanupExpired(ctx))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, m.CleanupExpired(ctx))
	_, statErr := os.Stat(m.sessionDir(start.UploadId))
	assert.True(t, os.IsNotExist(statErr))

	// a directory without readable meta is swept as well
	orphan := m.sessionDir("cafebabecafebabe")
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "0"), []byte("x"), 0o644))
	assert.Equal(t, 1, m.CleanupExpired(ctx))
	_, statErr = os.Stat(orphan)
	assert.True(t, os.IsNotExist(statErr))
}
