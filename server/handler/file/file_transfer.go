package file

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/server/model"
)

// Transfer handles POST /files/transfer.
func (h *FileHandler) Transfer(c *gin.Context) {
	ctx := c.Request.Context()
	req := &model.TransferRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	owner, err := ownershipFromFields(req.OwnerUID, req.OwnerGID, req.FileMode, req.DirMode)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	info, err := h.fsvc.Transfer(ctx, &fileops.TransferRequest{
		From:             req.From,
		To:               req.To,
		Mode:             req.Mode,
		Ownership:        owner,
		EnsureUniqueName: req.EnsureUniqueName,
	})
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusOK, info)
}
