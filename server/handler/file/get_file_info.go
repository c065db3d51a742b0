package file

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/server/httpkit"
)

// GetFileInfo handles GET /files/info.
func (h *FileHandler) GetFileInfo(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.Query("path")
	if len(path) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	info, err := h.fsvc.Stat(ctx, path, fileops.StatOptions{
		ShowHidden:   httpkit.ParseBool(c.Query("showHidden")),
		ComputeSizes: httpkit.ParseBool(c.Query("computeSizes")),
	})
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusOK, info)
}
