package file

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/server/model"
)

// Mkdir handles POST /files/mkdir.
func (h *FileHandler) Mkdir(c *gin.Context) {
	ctx := c.Request.Context()
	req := &model.MkdirRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	owner, err := ownershipFromFields(req.OwnerUID, req.OwnerGID, req.FileMode, req.DirMode)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	info, err := h.fsvc.Mkdir(ctx, req.Path, owner)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusCreated, info)
}

// Delete handles DELETE /files/delete.
func (h *FileHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.Query("path")
	if len(path) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	if err := h.fsvc.Delete(ctx, path); err != nil {
		proxyutil.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
