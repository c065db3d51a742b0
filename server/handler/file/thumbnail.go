package file

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/proxyutil"
	"github.com/ValentinKolb/filegate/thumbnail"
)

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if len(raw) == 0 {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

// Thumbnail handles GET /files/thumbnail/image.
func (h *FileHandler) Thumbnail(c *gin.Context) {
	ctx := c.Request.Context()
	path := c.Query("path")
	if len(path) == 0 {
		proxyutil.FailStatus(c, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	params := &thumbnail.Params{
		Fit:      c.Query("fit"),
		Position: c.Query("position"),
		Format:   c.Query("format"),
	}
	var err error
	if params.Width, err = intQuery(c, "width"); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, err)
		return
	}
	if params.Height, err = intQuery(c, "height"); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, err)
		return
	}
	if params.Quality, err = intQuery(c, "quality"); err != nil {
		proxyutil.FailStatus(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.tsvc.Render(ctx, path, params,
		c.GetHeader("If-None-Match"), c.GetHeader("If-Modified-Since"))
	if err != nil {
		proxyutil.Fail(c, err)
		return
	}
	c.Header("ETag", res.ETag)
	c.Header("Last-Modified", res.LastModified.Format(http.TimeFormat))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	if res.NotModified {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, res.ContentType, res.Data)
}
