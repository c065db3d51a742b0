package utils

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
)

// SafeSaveIOToFile streams r into a temp sibling of dst and renames it into
// place, so readers never observe a partially written dst.
func SafeSaveIOToFile(dst string, r io.Reader) error {
	dir := path.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory failed: %w", err)
	}
	dstTmp := dst + "." + uuid.NewString() + ".temp"
	f, err := os.OpenFile(dstTmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create tmp file failed: %w", err)
	}
	defer os.Remove(dstTmp)
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("copy stream to tmp file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close tmp file failed: %w", err)
	}
	if err := os.Rename(dstTmp, dst); err != nil {
		return fmt.Errorf("rename tmp file to target failed: %w", err)
	}
	return nil
}
