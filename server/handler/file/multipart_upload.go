package file

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/server/model"
	"github.com/ValentinKolb/filegate/uploader"
)

// UploadStart handles POST /files/upload/start.
func (h *FileHandler) UploadStart(c *gin.Context) {
	ctx := c.Request.Context()
	req := &model.UploadStartRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}
	var owner *uploader.MetaOwnership
	if req.OwnerUID != nil || req.OwnerGID != nil || len(req.FileMode) > 0 {
		if req.OwnerUID == nil || req.OwnerGID == nil || len(req.FileMode) == 0 {
			proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("incomplete ownership (ownerUid, ownerGid, fileMode)"))
			return
		}
		owner = &uploader.MetaOwnership{
			UID:      *req.OwnerUID,
			GID:      *req.OwnerGID,
			FileMode: req.FileMode,
			DirMode:  req.DirMode,
		}
	}
	rsp, err := h.usvc.Start(ctx, &uploader.StartRequest{
		Path:      req.Path,
		Filename:  req.Filename,
		Size:      req.Size,
		Checksum:  req.Checksum,
		ChunkSize: req.ChunkSize,
		Ownership: owner,
	})
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	logutil.GetLogger(ctx).Debug("upload session started",
		zap.String("upload_id", rsp.UploadId), zap.Int64("total_chunks", rsp.TotalChunks))
	proxyutil.Success(c, http.StatusOK, rsp)
}

// UploadChunk handles POST /files/upload/chunk: the body is the raw chunk
// bytes, identity travels in headers.
func (h *FileHandler) UploadChunk(c *gin.Context) {
	ctx := c.Request.Context()
	uploadId := c.GetHeader("X-Upload-Id")
	if len(uploadId) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("X-Upload-Id is required"))
		return
	}
	chunkIndex, err := strconv.ParseInt(c.GetHeader("X-Chunk-Index"), 10, 64)
	if err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid chunk index"))
		return
	}
	rsp, err := h.usvc.UploadChunk(ctx, uploadId, chunkIndex, c.GetHeader("X-Chunk-Checksum"), c.Request.Body)
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusOK, rsp)
}
