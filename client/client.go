package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ValentinKolb/filegate/entity"
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/search"
	"github.com/ValentinKolb/filegate/uploader"
)

var defaultHttpClient = &http.Client{
	Timeout: 10 * time.Minute,
	Transport: &http.Transport{
		IdleConnTimeout:     20 * time.Second,
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 4,
	},
}

type config struct {
	Schema string
	Host   string
	Token  string
	HTTP   *http.Client
}

type Option func(c *config)

func WithSchema(schema string) Option {
	return func(c *config) { c.Schema = schema }
}

func WithHost(host string) Option {
	return func(c *config) { c.Host = host }
}

func WithToken(token string) Option {
	return func(c *config) { c.Token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.HTTP = hc }
}

// Client is a typed wrapper over the Filegate HTTP surface.
type Client struct {
	c *config
}

func New(opts ...Option) (*Client, error) {
	c := &config{
		Schema: "https",
		HTTP:   defaultHttpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.Host) == 0 {
		return nil, fmt.Errorf("no host found")
	}
	return &Client{c: c}, nil
}

func (d *Client) buildUrl(api string, query url.Values) string {
	u := fmt.Sprintf("%s://%s%s", d.c.Schema, d.c.Host, api)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (d *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+d.c.Token)
	rsp, err := d.c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode >= http.StatusBadRequest {
		apiErr := &struct {
			Error string `json:"error"`
		}{}
		if err := json.NewDecoder(rsp.Body).Decode(apiErr); err == nil && len(apiErr.Error) > 0 {
			return fmt.Errorf("api error, code:%d, msg:%s", rsp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("status code not ok, code:%d", rsp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(rsp.Body).Decode(out)
}

func (d *Client) callJson(ctx context.Context, method, api string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.buildUrl(api, query), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return d.do(req, out)
}

// Info stats a file or lists a directory; both are decoded as DirInfo.
func (d *Client) Info(ctx context.Context, path string, showHidden, computeSizes bool) (*fileops.DirInfo, error) {
	q := url.Values{}
	q.Set("path", path)
	if showHidden {
		q.Set("showHidden", "true")
	}
	if computeSizes {
		q.Set("computeSizes", "true")
	}
	// DirInfo embeds FileInfo, so a plain file decodes with empty items
	rsp := &fileops.DirInfo{}
	if err := d.callJson(ctx, http.MethodGet, "/files/info", q, nil, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// Download streams the content of path into w.
func (d *Client) Download(ctx context.Context, path string, w io.Writer) error {
	q := url.Values{}
	q.Set("path", path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.buildUrl("/files/content", q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.c.Token)
	rsp, err := d.c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("status code not ok, code:%d", rsp.StatusCode)
	}
	_, err = io.Copy(w, rsp.Body)
	return err
}

// UploadFile performs the single-request upload.
func (d *Client) UploadFile(ctx context.Context, path, filename string, r io.Reader) (*fileops.FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.buildUrl("/files/content", nil), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-File-Path", path)
	req.Header.Set("X-File-Name", filename)
	rsp := &fileops.FileInfo{}
	if err := d.do(req, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

func (d *Client) Mkdir(ctx context.Context, path string) (*fileops.FileInfo, error) {
	rsp := &fileops.FileInfo{}
	if err := d.callJson(ctx, http.MethodPost, "/files/mkdir", nil, map[string]interface{}{"path": path}, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

func (d *Client) Delete(ctx context.Context, path string) error {
	q := url.Values{}
	q.Set("path", path)
	return d.callJson(ctx, http.MethodDelete, "/files/delete", q, nil, nil)
}

// Transfer moves or copies a path.
func (d *Client) Transfer(ctx context.Context, from, to, mode string, ensureUniqueName bool) (*fileops.FileInfo, error) {
	rsp := &fileops.FileInfo{}
	in := map[string]interface{}{
		"from": from, "to": to, "mode": mode, "ensureUniqueName": ensureUniqueName,
	}
	if err := d.callJson(ctx, http.MethodPost, "/files/transfer", nil, in, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

func (d *Client) Search(ctx context.Context, paths, pattern string, limit int) (*search.Response, error) {
	q := url.Values{}
	q.Set("paths", paths)
	q.Set("pattern", pattern)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	rsp := &search.Response{}
	if err := d.callJson(ctx, http.MethodGet, "/files/search", q, nil, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// UploadStart begins or resumes a chunk session.
func (d *Client) UploadStart(ctx context.Context, path, filename string, size int64, checksum string, chunkSize int64) (*uploader.StartResponse, error) {
	rsp := &uploader.StartResponse{}
	in := map[string]interface{}{
		"path": path, "filename": filename, "size": size,
		"checksum": checksum, "chunkSize": chunkSize,
	}
	if err := d.callJson(ctx, http.MethodPost, "/files/upload/start", nil, in, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// UploadChunk submits one raw chunk.
func (d *Client) UploadChunk(ctx context.Context, uploadId string, chunkIndex int64, checksum string, r io.Reader) (*uploader.ChunkResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.buildUrl("/files/upload/chunk", nil), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Upload-Id", uploadId)
	req.Header.Set("X-Chunk-Index", strconv.FormatInt(chunkIndex, 10))
	if len(checksum) > 0 {
		req.Header.Set("X-Chunk-Checksum", checksum)
	}
	rsp := &uploader.ChunkResponse{}
	if err := d.do(req, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// Scan triggers a full index scan.
func (d *Client) Scan(ctx context.Context) (*entity.ScanResult, error) {
	rsp := &entity.ScanResult{}
	if err := d.callJson(ctx, http.MethodPost, "/files/index/scan", nil, nil, rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}
