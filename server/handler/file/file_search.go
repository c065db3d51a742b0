package file

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/search"
	"github.com/ValentinKolb/filegate/server/httpkit"
)

// Search handles GET /files/search.
func (h *FileHandler) Search(c *gin.Context) {
	ctx := c.Request.Context()
	paths := make([]string, 0, 4)
	for _, p := range strings.Split(c.Query("paths"), ",") {
		p = strings.TrimSpace(p)
		if len(p) > 0 {
			paths = append(paths, p)
		}
	}
	limit := 0
	if raw := c.Query("limit"); len(raw) > 0 {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("invalid limit"))
			return
		}
		limit = v
	}
	rsp, err := h.ssvc.Search(ctx, &search.Request{
		Paths:       paths,
		Pattern:     c.Query("pattern"),
		Limit:       limit,
		Files:       c.DefaultQuery("files", "true") == "true",
		Directories: httpkit.ParseBool(c.Query("directories")),
		ShowHidden:  httpkit.ParseBool(c.Query("showHidden")),
	})
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	proxyutil.Success(c, http.StatusOK, rsp)
}
