// Package site provides the resources served by the shape-https binary:
// static files from a directory, a multipart/form-data upload endpoint that
// describes what it received, and paths that are permanently gone.
package site

import (
	"errors"
	"io/fs"
	"mime"
	"net/url"
	"path"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/shapestone/shape-https/pkg/http"
	"github.com/shapestone/shape-https/pkg/http/multipart"
)

const indexFile = "index.html"

// Config selects what the site serves.
type Config struct {
	// Gone lists paths answered with 410.
	Gone []string
	// UploadPath accepts multipart/form-data POSTs. Empty disables uploads.
	UploadPath string
	Multipart  multipart.Config
}

// Site resolves request targets to resources. It is safe for concurrent use.
type Site struct {
	fs        afero.Fs
	gone      map[string]bool
	upload    string
	multipart multipart.Config
	logger    *zap.Logger
}

// Option configures a Site.
type Option func(*Site)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Site) { s.logger = l }
}

// New returns a Site serving files from fsys.
func New(fsys afero.Fs, cfg Config, opts ...Option) *Site {
	s := &Site{
		fs:        afero.NewReadOnlyFs(fsys),
		gone:      make(map[string]bool, len(cfg.Gone)),
		upload:    cfg.UploadPath,
		multipart: cfg.Multipart,
		logger:    zap.NewNop(),
	}
	for _, p := range cfg.Gone {
		s.gone[p] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve implements http.Resolver.
func (s *Site) Resolve(target http.URI) (http.Resource, error) {
	p := target.Path()
	if p == "" {
		p = "/"
	}
	switch {
	case s.gone[p]:
		return nil, recoverable(http.KindGone, p)
	case s.upload != "" && p == s.upload:
		return uploadResource{s}, nil
	}
	return fileResource{site: s, name: p}, nil
}

// recoverable returns an error that leaves the connection open.
func recoverable(kind http.Kind, msg string) *http.Error {
	return &http.Error{Kind: kind, Message: msg}
}

// fileResource serves one file for GET and HEAD.
type fileResource struct {
	site *Site
	name string
}

func (f fileResource) Handle(req *http.Request, resp *http.Response) error {
	switch req.Method() {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		resp.Header.Set("allow", "GET, HEAD, OPTIONS")
		resp.Header.Set("content-length", "0")
		return nil
	default:
		return recoverable(http.KindMethodNotAllowed, string(req.Method()))
	}

	unescaped, err := url.PathUnescape(f.name)
	if err != nil {
		return recoverable(http.KindBadRequest, f.name)
	}
	name := path.Clean(unescaped)
	info, err := f.site.fs.Stat(name)
	if err == nil && info.IsDir() {
		name = path.Join(name, indexFile)
		info, err = f.site.fs.Stat(name)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return recoverable(http.KindNotFound, f.name)
		}
		return http.WrapError(http.KindInternalServerError, "stat "+name, err)
	}
	if info.IsDir() {
		return recoverable(http.KindNotFound, f.name)
	}

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	resp.Header.Set("content-type", ct)
	resp.Header.Set("content-length", strconv.FormatInt(info.Size(), 10))
	if req.Method() == http.MethodHead {
		return nil
	}

	file, err := f.site.fs.Open(name)
	if err != nil {
		return http.WrapError(http.KindInternalServerError, "open "+name, err)
	}
	resp.SetContent(file, info.Size())
	return nil
}
