package file

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
)

// FileUpload handles PUT /files/content: the request body is the raw file
// content, target and ownership travel in headers.
func (h *FileHandler) FileUpload(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.GetHeader("X-File-Path")
	filename := c.GetHeader("X-File-Name")
	if len(path) == 0 || len(filename) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("X-File-Path and X-File-Name are required"))
		return
	}
	owner, err := ownershipFromHeaders(
		c.GetHeader("X-Owner-UID"), c.GetHeader("X-Owner-GID"),
		c.GetHeader("X-File-Mode"), c.GetHeader("X-Dir-Mode"))
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	info, err := h.fsvc.UploadFile(ctx, path, filename, owner, c.Request.Body)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusCreated, info)
}
