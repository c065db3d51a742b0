package search

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/pathgate"
)

const maxPatternLength = 500

// Request is a glob search over one or more validated roots.
type Request struct {
	Paths       []string
	Pattern     string
	Limit       int
	Files       bool
	Directories bool
	ShowHidden  bool
}

type Response struct {
	Results    []*fileops.FileInfo `json:"results"`
	TotalFiles int                 `json:"totalFiles"`
	HasMore    bool                `json:"hasMore"`
}

type Service struct {
	gate                  *pathgate.Gate
	fsvc                  *fileops.Service
	maxResults            int
	maxRecursiveWildcards int
}

func New(gate *pathgate.Gate, fsvc *fileops.Service, maxResults, maxRecursiveWildcards int) *Service {
	return &Service{
		gate:                  gate,
		fsvc:                  fsvc,
		maxResults:            maxResults,
		maxRecursiveWildcards: maxRecursiveWildcards,
	}
}

// errLimitReached stops a glob walk once the per-base cap is hit.
var errLimitReached = errors.New("limit reached")

// Search expands the pattern under every requested base in parallel.
func (s *Service) Search(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Paths) == 0 {
		return nil, errs.New(http.StatusBadRequest, "paths is required")
	}
	if len(req.Pattern) == 0 {
		return nil, errs.New(http.StatusBadRequest, "pattern is required")
	}
	if len(req.Pattern) > maxPatternLength {
		return nil, errs.New(http.StatusBadRequest, "pattern too long")
	}
	if strings.Count(req.Pattern, "**") > s.maxRecursiveWildcards {
		return nil, errs.New(http.StatusBadRequest, "too many recursive wildcards")
	}
	if !req.Files && !req.Directories {
		return nil, errs.New(http.StatusBadRequest, "files and directories cannot both be false")
	}
	if !doublestar.ValidatePattern(req.Pattern) {
		return nil, errs.New(http.StatusBadRequest, "invalid pattern")
	}
	limit := req.Limit
	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}

	type root struct {
		requestPath string
		basePath    string
		realPath    string
	}
	roots := make([]*root, 0, len(req.Paths))
	for _, p := range req.Paths {
		res, err := s.gate.Validate(ctx, p, &pathgate.ValidateOption{AllowBasePath: true})
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(res.RealPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errs.New(http.StatusNotFound, "path not found")
			}
			return nil, errs.New(http.StatusInternalServerError, "stat failed: %v", err)
		}
		if !fi.IsDir() {
			return nil, errs.New(http.StatusBadRequest, "search path must be a directory")
		}
		roots = append(roots, &root{requestPath: filepath.Clean(p), basePath: res.BasePath, realPath: res.RealPath})
	}

	var mu sync.Mutex
	rsp := &Response{Results: make([]*fileops.FileInfo, 0, limit)}
	eg, subctx := errgroup.WithContext(ctx)
	for _, r := range roots {
		eg.Go(func() error {
			items, hasMore, err := s.searchRoot(subctx, r.requestPath, r.basePath, r.realPath, req, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			rsp.Results = append(rsp.Results, items...)
			rsp.HasMore = rsp.HasMore || hasMore
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	rsp.TotalFiles = len(rsp.Results)
	return rsp, nil
}

func (s *Service) searchRoot(ctx context.Context, requestPath, basePath, realPath string, req *Request, limit int) ([]*fileops.FileInfo, bool, error) {
	items := make([]*fileops.FileInfo, 0, limit)
	hasMore := false
	err := doublestar.GlobWalk(os.DirFS(realPath), req.Pattern, func(p string, d fs.DirEntry) error {
		if !req.ShowHidden && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.IsDir() && !req.Directories {
			return nil
		}
		if !fi.IsDir() && !req.Files {
			return nil
		}
		if len(items) >= limit {
			hasMore = true
			return errLimitReached
		}
		entReal := filepath.Join(realPath, p)
		items = append(items, s.fsvc.BuildFileInfo(ctx, filepath.Join(requestPath, p), basePath, entReal, fi))
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return nil, false, errs.New(http.StatusInternalServerError, "glob walk failed: %v", err)
	}
	return items, hasMore, nil
}
