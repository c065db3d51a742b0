package server

import (
	"github.com/ValentinKolb/filegate/fileops"
	"github.com/ValentinKolb/filegate/indexer"
	"github.com/ValentinKolb/filegate/search"
	"github.com/ValentinKolb/filegate/thumbnail"
	"github.com/ValentinKolb/filegate/uploader"
)

type config struct {
	token string
	fsvc  *fileops.Service
	usvc  *uploader.Manager
	ssvc  *search.Service
	tsvc  *thumbnail.Service
	ix    *indexer.Indexer
}

type Option func(c *config)

func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

func WithFileService(fsvc *fileops.Service) Option {
	return func(c *config) {
		c.fsvc = fsvc
	}
}

func WithUploadManager(usvc *uploader.Manager) Option {
	return func(c *config) {
		c.usvc = usvc
	}
}

func WithSearchService(ssvc *search.Service) Option {
	return func(c *config) {
		c.ssvc = ssvc
	}
}

func WithThumbnailService(tsvc *thumbnail.Service) Option {
	return func(c *config) {
		c.tsvc = tsvc
	}
}

func WithIndexer(ix *indexer.Indexer) Option {
	return func(c *config) {
		c.ix = ix
	}
}

func applyOpts(opts ...Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
