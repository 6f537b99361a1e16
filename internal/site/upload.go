package site

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shapestone/shape-https/pkg/http"
	"github.com/shapestone/shape-https/pkg/http/multipart"
)

// uploadResource accepts multipart/form-data and answers with one line per
// part: name, filename, media type and size, separated by tabs. Parts of a
// multipart/mixed part follow it, indented by two spaces.
type uploadResource struct {
	site *Site
}

func (u uploadResource) Handle(req *http.Request, resp *http.Response) error {
	switch req.Method() {
	case http.MethodPost:
	case http.MethodOptions:
		resp.Header.Set("allow", "POST, OPTIONS")
		resp.Header.Set("content-length", "0")
		return nil
	default:
		return recoverable(http.KindMethodNotAllowed, string(req.Method()))
	}

	v, ok := req.HeaderValue("content-type")
	if !ok {
		return recoverable(http.KindBadRequest, "content-type required")
	}
	ct, err := http.ParseMIMEType(v)
	if err != nil || !ct.IsSameAs(http.MultipartForm) {
		return recoverable(http.KindBadRequest, "multipart/form-data required")
	}
	boundary, ok := ct.Param("boundary")
	if !ok {
		return recoverable(http.KindBadRequest, "boundary parameter missing")
	}
	content := req.Content()
	if content == nil {
		return recoverable(http.KindBadRequest, "no content")
	}

	mr, err := multipart.NewReader(content, boundary, u.site.multipart)
	if err != nil {
		return err
	}
	parts, err := mr.ReadForm()
	if err != nil {
		return err
	}
	defer func() {
		for _, p := range parts {
			p.Close()
		}
	}()

	var b strings.Builder
	describe(&b, parts, "")
	u.site.logger.Debug("upload received",
		zap.Stringer("target", req.Target()),
		zap.Int("parts", len(parts)))

	body := b.String()
	resp.Header.Set("content-type", "text/plain; charset=utf-8")
	resp.Header.Set("content-length", strconv.Itoa(len(body)))
	resp.SetBody([]byte(body))
	return nil
}

func describe(w io.Writer, parts []*multipart.FormPart, indent string) {
	for _, p := range parts {
		filename := "-"
		if p.HasFilename {
			filename = strconv.Quote(p.Filename)
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%d\n", indent, p.Name, filename, p.ContentType, p.Size)
		if nested, ok := p.Content.Right(); ok {
			describe(w, nested, indent+"  ")
		}
	}
}
