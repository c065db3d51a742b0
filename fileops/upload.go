package fileops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

var (
	controlCharPattern = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	reservedNames      = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {},
	}
)

// SanitizeFilename strips separators and control characters. Callers must
// reject names that change under sanitization: a mutated name means the
// client tried to smuggle path structure through the filename.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, `\`, "")
	name = controlCharPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "." || name == ".." {
		return ""
	}
	stem := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	if _, ok := reservedNames[stem]; ok {
		return ""
	}
	return name
}

// CheckFilename returns the sanitized name or a 400 when sanitization
// would alter it.
func CheckFilename(name string) (string, error) {
	clean := SanitizeFilename(name)
	if len(clean) == 0 || clean != name {
		return "", errs.New(http.StatusBadRequest, "invalid filename")
	}
	return clean, nil
}

// errTooLarge aborts the copy loop once the cap is crossed.
var errTooLarge = fmt.Errorf("stream exceeds limit")

type limitedReader struct {
	r    io.Reader
	left int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.left -= int64(n)
	if l.left < 0 {
		return n, errTooLarge
	}
	return n, err
}

// UploadFile streams a single request body to path/filename. The partial
// file is unlinked on any failure.
func (s *Service) UploadFile(ctx context.Context, path, filename string, owner *ownership.Ownership, body io.Reader) (*FileInfo, error) {
	clean, err := CheckFilename(filename)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(path, clean)
	res, err := s.gate.Validate(ctx, target, &pathgate.ValidateOption{CreateParents: true, Ownership: owner})
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(res.RealPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "create file failed: %v", err)
	}
	lr := &limitedReader{r: body, left: s.maxUploadBytes}
	if _, err := io.Copy(f, lr); err != nil {
		_ = f.Close()
		_ = os.Remove(res.RealPath)
		if err == errTooLarge {
			return nil, errs.New(http.StatusRequestEntityTooLarge, "upload too large")
		}
		return nil, errs.New(http.StatusInternalServerError, "write file failed: %v", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(res.RealPath)
		return nil, errs.New(http.StatusInternalServerError, "close file failed: %v", err)
	}
	if owner != nil {
		if err := s.applier.ApplyFile(ctx, res.RealPath, owner); err != nil {
			_ = os.Remove(res.RealPath)
			return nil, errs.New(http.StatusInternalServerError, "apply ownership failed: %v", err)
		}
	}
	s.indexBestEffort(ctx, res.BasePath, res.RealPath)
	fi, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
	}
	return s.BuildFileInfo(ctx, target, res.BasePath, res.RealPath, fi), nil
}
