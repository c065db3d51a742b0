package uploader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/indexer"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
	"github.com/ValentinKolb/filegate/utils"
)

const metaFileName = "meta.json"

var checksumPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// MetaOwnership is the JSON form of an ownership triple inside meta.json.
type MetaOwnership struct {
	UID      int    `json:"uid"`
	GID      int    `json:"gid"`
	FileMode string `json:"fileMode"`
	DirMode  string `json:"dirMode,omitempty"`
}

func (m *MetaOwnership) toOwnership() (*ownership.Ownership, error) {
	return ownership.New(m.UID, m.GID, m.FileMode, m.DirMode)
}

// Meta is the persisted state of one upload session. Its identity is fully
// determined by (path, filename, checksum), so a retried request lands in
// the same session directory and resumes.
type Meta struct {
	UploadId    string         `json:"uploadId"`
	Path        string         `json:"path"`
	Filename    string         `json:"filename"`
	Size        int64          `json:"size"`
	Checksum    string         `json:"checksum"`
	ChunkSize   int64          `json:"chunkSize"`
	TotalChunks int64          `json:"totalChunks"`
	Ownership   *MetaOwnership `json:"ownership,omitempty"`
	CreatedAt   int64          `json:"createdAt"`
}

type StartRequest struct {
	Path      string
	Filename  string
	Size      int64
	Checksum  string
	ChunkSize int64
	Ownership *MetaOwnership
}

type StartResponse struct {
	UploadId       string  `json:"uploadId"`
	TotalChunks    int64   `json:"totalChunks"`
	ChunkSize      int64   `json:"chunkSize"`
	UploadedChunks []int64 `json:"uploadedChunks"`
	Completed      bool    `json:"completed"`
}

type ChunkResponse struct {
	ChunkIndex     int64             `json:"chunkIndex"`
	UploadedChunks []int64           `json:"uploadedChunks"`
	Completed      bool              `json:"completed"`
	File           *fileops.FileInfo `json:"file,omitempty"`
}

// Manager owns the chunk-session lifecycle: staging, assembly, and expiry.
type Manager struct {
	gate    *pathgate.Gate
	applier *ownership.Applier
	fsvc    *fileops.Service
	ix      *indexer.Indexer

	tempDir        string
	maxUploadBytes int64
	maxChunkBytes  int64
	expiry         time.Duration

	assembleGroup singleflight.Group
}

func New(gate *pathgate.Gate, applier *ownership.Applier, fsvc *fileops.Service, ix *indexer.Indexer,
	tempDir string, maxUploadBytes, maxChunkBytes int64, expiry time.Duration) *Manager {
	return &Manager{
		gate:           gate,
		applier:        applier,
		fsvc:           fsvc,
		ix:             ix,
		tempDir:        tempDir,
		maxUploadBytes: maxUploadBytes,
		maxChunkBytes:  maxChunkBytes,
		expiry:         expiry,
	}
}

// DeriveUploadId computes the deterministic session id: the first 16 hex
// characters of SHA-256(path + ":" + filename + ":" + checksum). Clients
// rely on this exact derivation to resume without server affinity.
func DeriveUploadId(path, filename, checksum string) string {
	sum := sha256.Sum256([]byte(path + ":" + filename + ":" + checksum))
	return hex.EncodeToString(sum[:])[:16]
}

func (m *Manager) sessionDir(uploadId string) string {
	return filepath.Join(m.tempDir, uploadId)
}

func (m *Manager) loadMeta(uploadId string) (*Meta, error) {
	raw, err := os.ReadFile(filepath.Join(m.sessionDir(uploadId), metaFileName))
	if err != nil {
		return nil, err
	}
	meta := &Meta{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (m *Manager) saveMeta(meta *Meta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return utils.SafeSaveIOToFile(filepath.Join(m.sessionDir(meta.UploadId), metaFileName), bytes.NewReader(raw))
}

// listChunks returns the committed chunk indices in ascending order.
// In-flight .tmp files and the meta file are invisible here: a chunk only
// exists once its rename committed.
func (m *Manager) listChunks(uploadId string) ([]int64, error) {
	ents, err := os.ReadDir(m.sessionDir(uploadId))
	if err != nil {
		return nil, err
	}
	chunks := make([]int64, 0, len(ents))
	for _, ent := range ents {
		idx, err := strconv.ParseInt(ent.Name(), 10, 64)
		if err != nil {
			continue
		}
		chunks = append(chunks, idx)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i] < chunks[j] })
	return chunks, nil
}

// Start begins a new session or resumes an existing one.
func (m *Manager) Start(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	if !checksumPattern.MatchString(req.Checksum) {
		return nil, errs.New(http.StatusBadRequest, "invalid checksum format")
	}
	filename, err := fileops.CheckFilename(req.Filename)
	if err != nil {
		return nil, err
	}
	if req.Size <= 0 {
		return nil, errs.New(http.StatusBadRequest, "invalid size")
	}
	if req.Size > m.maxUploadBytes {
		return nil, errs.New(http.StatusRequestEntityTooLarge, "upload too large")
	}
	if req.ChunkSize <= 0 || req.ChunkSize > m.maxChunkBytes {
		return nil, errs.New(http.StatusBadRequest, "invalid chunk size")
	}
	var owner *ownership.Ownership
	if req.Ownership != nil {
		if owner, err = req.Ownership.toOwnership(); err != nil {
			return nil, errs.New(http.StatusBadRequest, "%v", err)
		}
	}
	if _, err := m.gate.Validate(ctx, filepath.Join(req.Path, filename), &pathgate.ValidateOption{
		CreateParents: true,
		Ownership:     owner,
	}); err != nil {
		return nil, err
	}

	uploadId := DeriveUploadId(req.Path, filename, req.Checksum)
	totalChunks := (req.Size + req.ChunkSize - 1) / req.ChunkSize

	if meta, err := m.loadMeta(uploadId); err == nil {
		// resume: refresh the expiry clock and report committed chunks
		meta.CreatedAt = time.Now().UnixMilli()
		if err := m.saveMeta(meta); err != nil {
			return nil, errs.New(http.StatusInternalServerError, "persist upload meta failed: %v", err)
		}
		chunks, err := m.listChunks(uploadId)
		if err != nil {
			return nil, errs.New(http.StatusInternalServerError, "list chunks failed: %v", err)
		}
		return &StartResponse{
			UploadId:       uploadId,
			TotalChunks:    meta.TotalChunks,
			ChunkSize:      meta.ChunkSize,
			UploadedChunks: chunks,
			Completed:      false,
		}, nil
	}

	meta := &Meta{
		UploadId:    uploadId,
		Path:        req.Path,
		Filename:    filename,
		Size:        req.Size,
		Checksum:    req.Checksum,
		ChunkSize:   req.ChunkSize,
		TotalChunks: totalChunks,
		Ownership:   req.Ownership,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := m.saveMeta(meta); err != nil {
		return nil, errs.New(http.StatusInternalServerError, "persist upload meta failed: %v", err)
	}
	return &StartResponse{
		UploadId:       uploadId,
		TotalChunks:    totalChunks,
		ChunkSize:      req.ChunkSize,
		UploadedChunks: []int64{},
		Completed:      false,
	}, nil
}

func missingIndices(present []int64, total int64) []int64 {
	have := make(map[int64]struct{}, len(present))
	for _, c := range present {
		have[c] = struct{}{}
	}
	missing := make([]int64, 0)
	for i := int64(0); i < total; i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func formatChecksum(sum []byte) string {
	return "sha256:" + hex.EncodeToString(sum)
}
