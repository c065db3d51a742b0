package file

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
)

// IndexScan handles POST /files/index/scan: a full scan over all bases.
func (h *FileHandler) IndexScan(c *gin.Context) {
	ctx := c.Request.Context()
	if h.ix == nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("index is disabled"))
		return
	}
	res, err := h.ix.ScanAll(ctx)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("scan failed, err:%w", err))
		return
	}
	proxyutil.Success(c, http.StatusOK, res)
}

// IndexStats handles GET /files/index/stats.
func (h *FileHandler) IndexStats(c *gin.Context) {
	ctx := c.Request.Context()
	if h.ix == nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("index is disabled"))
		return
	}
	stats, err := h.ix.Stats(ctx)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusInternalServerError, fmt.Errorf("read stats failed, err:%w", err))
		return
	}
	proxyutil.Success(c, http.StatusOK, stats)
}
