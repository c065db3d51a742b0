package fileops

import (
	"context"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/indexer"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

// Service implements the filesystem operations behind the HTTP surface.
// Every entry point validates through the path gate before touching disk.
type Service struct {
	gate             *pathgate.Gate
	applier          *ownership.Applier
	ix               *indexer.Indexer
	maxUploadBytes   int64
	maxDownloadBytes int64
}

func New(gate *pathgate.Gate, applier *ownership.Applier, ix *indexer.Indexer, maxUploadBytes, maxDownloadBytes int64) *Service {
	return &Service{
		gate:             gate,
		applier:          applier,
		ix:               ix,
		maxUploadBytes:   maxUploadBytes,
		maxDownloadBytes: maxDownloadBytes,
	}
}

func (s *Service) Gate() *pathgate.Gate {
	return s.gate
}

// DetectMime guesses a file's content type, extension first with a content
// sniff fallback.
func DetectMime(realPath string) string {
	if mt := mime.TypeByExtension(filepath.Ext(realPath)); mt != "" {
		return mt
	}
	if mt, err := mimetype.DetectFile(realPath); err == nil {
		return mt.String()
	}
	return "application/octet-stream"
}

// BuildFileInfo assembles the wire entry for a validated path. requestPath
// is echoed back as the user-facing path.
func (s *Service) BuildFileInfo(ctx context.Context, requestPath, basePath, realPath string, fi os.FileInfo) *FileInfo {
	info := &FileInfo{
		Name:     fi.Name(),
		Path:     requestPath,
		Size:     fi.Size(),
		Mtime:    fi.ModTime().UTC().Format(time.RFC3339),
		IsHidden: strings.HasPrefix(fi.Name(), "."),
	}
	if fi.IsDir() {
		info.Type = TypeDirectory
		info.Size = 0
	} else {
		info.Type = TypeFile
		info.MimeType = DetectMime(realPath)
	}
	if s.ix != nil {
		id, err := s.ix.IdentifyRealPath(ctx, basePath, realPath)
		if err != nil {
			logutil.GetLogger(ctx).Warn("identify path failed", zap.String("path", realPath), zap.Error(err))
		}
		info.FileId = id
	}
	return info
}

// DirSize walks the subtree and sums file sizes.
func DirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}

// Stat returns a FileInfo for files and a DirInfo for directories.
func (s *Service) Stat(ctx context.Context, path string, opts StatOptions) (interface{}, error) {
	res, err := s.gate.Validate(ctx, path, &pathgate.ValidateOption{AllowBasePath: true})
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(http.StatusNotFound, "path not found")
		}
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	if !fi.IsDir() {
		info := s.BuildFileInfo(ctx, path, res.BasePath, res.RealPath, fi)
		return info, nil
	}
	return s.listDir(ctx, path, res.BasePath, res.RealPath, fi, opts)
}

// listDir reads the directory and stats entries in parallel. Entries that
// fail to stat are silently dropped.
func (s *Service) listDir(ctx context.Context, requestPath, basePath, realPath string, fi os.FileInfo, opts StatOptions) (*DirInfo, error) {
	ents, err := os.ReadDir(realPath)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "read dir failed: %v", err)
	}
	dir := &DirInfo{
		FileInfo: *s.BuildFileInfo(ctx, requestPath, basePath, realPath, fi),
		Items:    make([]*FileInfo, len(ents)),
	}
	var wg sync.WaitGroup
	for i, ent := range ents {
		if !opts.ShowHidden && strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			entReal := filepath.Join(realPath, name)
			entFi, err := os.Stat(entReal)
			if err != nil {
				return
			}
			item := s.BuildFileInfo(ctx, filepath.Join(requestPath, name), basePath, entReal, entFi)
			if entFi.IsDir() && opts.ComputeSizes {
				item.Size = DirSize(entReal)
			}
			dir.Items[i] = item
		}(i, ent.Name())
	}
	wg.Wait()
	items := dir.Items[:0]
	for _, item := range dir.Items {
		if item != nil {
			items = append(items, item)
		}
	}
	dir.Items = items
	sort.Slice(dir.Items, func(i, j int) bool { return dir.Items[i].Name < dir.Items[j].Name })
	dir.Total = int64(len(dir.Items))
	if opts.ComputeSizes {
		var sum int64
		for _, item := range dir.Items {
			sum += item.Size
		}
		dir.Size = sum
	}
	return dir, nil
}

// Download describes a validated download target.
type Download struct {
	RealPath string
	BasePath string
	Info     os.FileInfo
	IsDir    bool
	// DirSize is filled for directories so the handler can reject
	// oversized archives before streaming.
	DirSize int64
}

// OpenDownload validates and size-checks a download target. The handler
// streams the content itself.
func (s *Service) OpenDownload(ctx context.Context, path string) (*Download, error) {
	res, err := s.gate.Validate(ctx, path, &pathgate.ValidateOption{AllowBasePath: true})
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(http.StatusNotFound, "path not found")
		}
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	d := &Download{RealPath: res.RealPath, BasePath: res.BasePath, Info: fi, IsDir: fi.IsDir()}
	if fi.IsDir() {
		d.DirSize = DirSize(res.RealPath)
		if d.DirSize > s.maxDownloadBytes {
			return nil, errs.New(http.StatusRequestEntityTooLarge, "directory too large to download")
		}
		return d, nil
	}
	if fi.Size() > s.maxDownloadBytes {
		return nil, errs.New(http.StatusRequestEntityTooLarge, "file too large to download")
	}
	return d, nil
}

// Mkdir creates a directory (and parents), applying ownership when given.
// On ownership failure the created tree is rolled back.
func (s *Service) Mkdir(ctx context.Context, path string, owner *ownership.Ownership) (*FileInfo, error) {
	res, err := s.gate.Validate(ctx, path, &pathgate.ValidateOption{CreateParents: true, Ownership: owner})
	if err != nil {
		return nil, err
	}
	mode := os.FileMode(0755)
	if owner != nil {
		mode = owner.EffectiveDirMode()
	}
	existed := false
	if _, err := os.Stat(res.RealPath); err == nil {
		existed = true
	}
	if err := os.MkdirAll(res.RealPath, mode); err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create directory failed: %v", err)
	}
	if owner != nil {
		if err := s.applier.ApplyDir(ctx, res.RealPath, owner); err != nil {
			if !existed {
				_ = os.RemoveAll(res.RealPath)
			}
			return nil, errs.New(http.StatusInternalServerError, "apply ownership failed: %v", err)
		}
	}
	s.indexBestEffort(ctx, res.BasePath, res.RealPath)
	fi, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	return s.BuildFileInfo(ctx, path, res.BasePath, res.RealPath, fi), nil
}

// Delete removes a file or directory tree. Index removal is best-effort.
func (s *Service) Delete(ctx context.Context, path string) error {
	res, err := s.gate.Validate(ctx, path, nil)
	if err != nil {
		return err
	}
	fi, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(http.StatusNotFound, "path not found")
		}
		return errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	isDir := fi.IsDir()
	if err := os.RemoveAll(res.RealPath); err != nil {
		return errs.New(http.StatusInternalServerError, "delete failed: %v", err)
	}
	if s.ix != nil {
		if err := s.ix.RemoveRealPath(ctx, res.BasePath, res.RealPath, isDir); err != nil {
			logutil.GetLogger(ctx).Warn("remove from index failed", zap.String("path", res.RealPath), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) indexBestEffort(ctx context.Context, basePath, realPath string) {
	if s.ix == nil {
		return
	}
	if _, err := s.ix.IndexRealPath(ctx, basePath, realPath); err != nil {
		logutil.GetLogger(ctx).Warn("index path failed", zap.String("path", realPath), zap.Error(err))
	}
}
