package file

import (
	"net/http"
	"strconv"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/indexer"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/search"
	"github.com/ValentinKolb/filegate/thumbnail"
	"github.com/ValentinKolb/filegate/uploader"
)

// FileHandler binds the file-operation services to the HTTP surface.
type FileHandler struct {
	fsvc *fileops.Service
	usvc *uploader.Manager
	ssvc *search.Service
	tsvc *thumbnail.Service
	ix   *indexer.Indexer
}

func NewFileHandler(fsvc *fileops.Service, usvc *uploader.Manager, ssvc *search.Service, tsvc *thumbnail.Service, ix *indexer.Indexer) *FileHandler {
	return &FileHandler{
		fsvc: fsvc,
		usvc: usvc,
		ssvc: ssvc,
		tsvc: tsvc,
		ix:   ix,
	}
}

// ownershipFromFields builds an optional ownership triple from request
// fields. Partial triples are rejected.
func ownershipFromFields(uid, gid *int, fileMode, dirMode string) (*ownership.Ownership, error) {
	if uid == nil && gid == nil && len(fileMode) == 0 && len(dirMode) == 0 {
		return nil, nil
	}
	if uid == nil || gid == nil || len(fileMode) == 0 {
		return nil, errs.New(http.StatusBadRequest, "incomplete ownership (ownerUid, ownerGid, fileMode)")
	}
	o, err := ownership.New(*uid, *gid, fileMode, dirMode)
	if err != nil {
		return nil, errs.New(http.StatusBadRequest, "%v", err)
	}
	return o, nil
}

// ownershipFromHeaders reads the X-Owner-UID / X-Owner-GID / X-File-Mode /
// X-Dir-Mode headers.
func ownershipFromHeaders(uidHdr, gidHdr, fileMode, dirMode string) (*ownership.Ownership, error) {
	var uid, gid *int
	if len(uidHdr) > 0 {
		v, err := strconv.Atoi(uidHdr)
		if err != nil {
			return nil, errs.New(http.StatusBadRequest, "invalid uid")
		}
		uid = &v
	}
	if len(gidHdr) > 0 {
		v, err := strconv.Atoi(gidHdr)
		if err != nil {
			return nil, errs.New(http.StatusBadRequest, "invalid gid")
		}
		gid = &v
	}
	return ownershipFromFields(uid, gid, fileMode, dirMode)
}
