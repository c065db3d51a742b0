package fileops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

// TransferRequest describes a move or copy.
type TransferRequest struct {
	From             string
	To               string
	Mode             string
	Ownership        *ownership.Ownership
	EnsureUniqueName bool
}

// EnsureUniqueName returns target if free, otherwise the first
// `<base>-NN<ext>` with NN in 01..99, falling back to a unix-ms suffix.
func EnsureUniqueName(target string) string {
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return target
	}
	dir := filepath.Dir(target)
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)
	for i := 1; i <= 99; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%02d%s", stem, i, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, time.Now().UnixMilli(), ext))
}

// Transfer dispatches to move or copy semantics.
func (s *Service) Transfer(ctx context.Context, req *TransferRequest) (*FileInfo, error) {
	switch req.Mode {
	case TransferModeMove:
		return s.move(ctx, req)
	case TransferModeCopy:
		return s.copy(ctx, req)
	default:
		return nil, errs.New(http.StatusBadRequest, "mode must be move or copy")
	}
}

// move renames within a single base and carries the index id along.
func (s *Service) move(ctx context.Context, req *TransferRequest) (*FileInfo, error) {
	res, err := s.gate.ValidateSameBase(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(res.RealFrom); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(http.StatusNotFound, "source not found")
		}
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	dest := res.RealTo
	if req.EnsureUniqueName {
		dest = EnsureUniqueName(dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create parent failed: %v", err)
	}
	if err := os.Rename(res.RealFrom, dest); err != nil {
		return nil, errs.New(http.StatusInternalServerError, "move failed: %v", err)
	}
	if req.Ownership != nil {
		if err := s.applier.ApplyRecursive(ctx, dest, req.Ownership); err != nil {
			return nil, errs.New(http.StatusInternalServerError, "apply ownership failed: %v", err)
		}
	}
	if s.ix != nil {
		if _, err := s.ix.MoveRealPath(ctx, res.BasePath, res.RealFrom, dest); err != nil {
			logutil.GetLogger(ctx).Warn("index move failed", zap.String("from", res.RealFrom), zap.String("to", dest), zap.Error(err))
		}
	}
	return s.finishTransfer(ctx, req.To, res.BasePath, dest)
}

// copy duplicates a file or tree. Cross-base copies must carry ownership
// so the copy lands with explicit uid/gid/mode on the target filesystem.
func (s *Service) copy(ctx context.Context, req *TransferRequest) (*FileInfo, error) {
	src, err := s.gate.Validate(ctx, req.From, nil)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(src.RealPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(http.StatusNotFound, "source not found")
		}
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	_, sameBaseErr := s.gate.ValidateSameBase(ctx, req.From, req.To)
	if sameBaseErr != nil && req.Ownership == nil {
		return nil, errs.New(http.StatusBadRequest, "cross-base copy requires ownership (ownerUid, ownerGid, fileMode)")
	}
	dst, err := s.gate.Validate(ctx, req.To, &pathgate.ValidateOption{CreateParents: true, Ownership: req.Ownership})
	if err != nil {
		return nil, err
	}
	dest := dst.RealPath
	if req.EnsureUniqueName {
		dest = EnsureUniqueName(dest)
	}
	if err := copyTree(src.RealPath, dest); err != nil {
		_ = os.RemoveAll(dest)
		return nil, errs.New(http.StatusInternalServerError, "copy failed: %v", err)
	}
	if req.Ownership != nil {
		if err := s.applier.ApplyRecursive(ctx, dest, req.Ownership); err != nil {
			_ = os.RemoveAll(dest)
			return nil, errs.New(http.StatusInternalServerError, "apply ownership failed: %v", err)
		}
	}
	s.indexBestEffort(ctx, dst.BasePath, dest)
	return s.finishTransfer(ctx, req.To, dst.BasePath, dest)
}

func (s *Service) finishTransfer(ctx context.Context, requestPath, basePath, realPath string) (*FileInfo, error) {
	fi, err := os.Stat(realPath)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	// echo the possibly-uniquified name back through the request path
	echoed := filepath.Join(filepath.Dir(requestPath), filepath.Base(realPath))
	return s.BuildFileInfo(ctx, echoed, basePath, realPath, fi), nil
}

// copyTree copies a file or directory tree preserving permission bits.
func copyTree(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		// resolved trees only; a link at this point would bypass the gate
		return nil
	}
	if !fi.IsDir() {
		return copyFile(src, dst, fi.Mode().Perm())
	}
	if err := os.MkdirAll(dst, fi.Mode().Perm()); err != nil {
		return err
	}
	ents, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, ent := range ents {
		if err := copyTree(filepath.Join(src, ent.Name()), filepath.Join(dst, ent.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
