package file

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/archive"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/server/httpkit"
)

// FileDownload handles GET /files/content: files stream as-is,
// directories stream as a tar archive.
func (h *FileHandler) FileDownload(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.Query("path")
	if len(path) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	inline := httpkit.ParseBool(c.Query("inline"))
	d, err := h.fsvc.OpenDownload(ctx, path)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	if d.IsDir {
		h.downloadDir(c, d)
		return
	}

	f, err := os.Open(d.RealPath)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("open file failed, err:%w", err))
		return
	}
	defer f.Close()
	c.Header("Content-Type", fileops.DetectMime(d.RealPath))
	c.Header("Content-Length", strconv.FormatInt(d.Info.Size(), 10))
	c.Header("Content-Disposition", httpkit.ContentDisposition(d.Info.Name(), inline))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		// the client went away mid-stream; nothing sensible left to send
		logutil.GetLogger(ctx).Debug("download stream aborted", zap.String("path", d.RealPath), zap.Error(err))
	}
}

func (h *FileHandler) downloadDir(c *gin.Context, d *fileops.Download) {
	ctx := c.Request.Context()
	name := filepath.Base(d.RealPath) + ".tar"
	c.Header("Content-Type", "application/x-tar")
	c.Header("Content-Disposition", httpkit.ContentDisposition(name, false))
	c.Status(http.StatusOK)
	if err := archive.WriteTar(c.Writer, d.RealPath); err != nil {
		logutil.GetLogger(ctx).Debug("tar stream aborted", zap.String("path", d.RealPath), zap.Error(err))
	}
}
