package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ValentinKolb/filegate/server/docs"
	"github.com/ValentinKolb/filegate/server/handler/file"
	"github.com/ValentinKolb/filegate/server/middleware"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type Server struct {
	c      *config
	bind   string
	engine *gin.Engine
}

func New(bind string, opts ...Option) (*Server, error) {
	c := applyOpts(opts...)
	if len(c.token) == 0 {
		return nil, fmt.Errorf("no token configured")
	}
	if c.fsvc == nil || c.usvc == nil || c.ssvc == nil || c.tsvc == nil {
		return nil, fmt.Errorf("missing service wiring")
	}
	svr := &Server{c: c, bind: bind}
	svr.engine = gin.New()
	svr.engine.Use(gin.Recovery(), middleware.AccessLogMiddleware())
	svr.initAPI(svr.engine)
	return svr, nil
}

func (s *Server) initAPI(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	docsRouter := router.Group("/docs")
	{
		docsRouter.GET("/openapi.json", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", docs.OpenAPISpec)
		})
		docsRouter.GET("/api.md", func(c *gin.Context) {
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", docs.APIDigest)
		})
	}

	fileHandler := file.NewFileHandler(s.c.fsvc, s.c.usvc, s.c.ssvc, s.c.tsvc, s.c.ix)
	filesRouter := router.Group("/files", middleware.BearerAuthMiddleware(s.c.token))
	{
		filesRouter.GET("/info", fileHandler.GetFileInfo)
		filesRouter.GET("/content", fileHandler.FileDownload)
		filesRouter.PUT("/content", fileHandler.FileUpload)
		filesRouter.POST("/mkdir", fileHandler.Mkdir)
		filesRouter.DELETE("/delete", fileHandler.Delete)
		filesRouter.POST("/transfer", fileHandler.Transfer)
		filesRouter.GET("/search", fileHandler.Search)
		filesRouter.GET("/thumbnail/image", fileHandler.Thumbnail)
	}
	uploadRouter := filesRouter.Group("/upload")
	{
		uploadRouter.POST("/start", fileHandler.UploadStart)
		uploadRouter.POST("/chunk", fileHandler.UploadChunk)
	}
	indexRouter := filesRouter.Group("/index")
	{
		indexRouter.POST("/scan", fileHandler.IndexScan)
		indexRouter.GET("/stats", fileHandler.IndexStats)
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Run(s.bind)
}
