package multipart

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shapestone/shape-https/internal/tokenizer"
	"github.com/shapestone/shape-https/pkg/http"
)

// LazyPart is a part as found in the stream.
type LazyPart struct {
	Header *http.Fields
	Body   io.ReadCloser
	// Size is the number of body bytes.
	Size int64
}

// Close releases the body, removing any temporary file behind it.
func (p *LazyPart) Close() error {
	if p.Body == nil {
		return nil
	}
	return p.Body.Close()
}

// FormPart is a form-data part with its disposition and type interpreted.
//
// Content holds either the body (left) or, for multipart/mixed parts, the
// nested parts (right).
type FormPart struct {
	Name        string
	Filename    string
	HasFilename bool
	ContentType http.MIMEType
	// TransferEncoding is the Content-Transfer-Encoding value, if any.
	TransferEncoding string
	Header           *http.Fields
	Content          http.Either[io.ReadCloser, []*FormPart]
	// Size is the number of body bytes; zero for nested parts.
	Size int64
}

// Close releases the body or every nested part.
func (p *FormPart) Close() error {
	return http.Fold(p.Content,
		func(body io.ReadCloser) error {
			if body == nil {
				return nil
			}
			return body.Close()
		},
		closeParts,
	)
}

func closeParts(parts []*FormPart) error {
	var errs []error
	for _, p := range parts {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// NextFormPart returns the next part with its Content-Disposition and
// Content-Type interpreted. A multipart/mixed part is read recursively. It
// returns io.EOF after the last part.
func (r *Reader) NextFormPart() (*FormPart, error) {
	return r.nextFormPart(false)
}

// ReadForm reads every remaining part with NextFormPart.
func (r *Reader) ReadForm() ([]*FormPart, error) {
	return r.readForm(false)
}

func (r *Reader) readForm(nested bool) ([]*FormPart, error) {
	var parts []*FormPart
	for {
		part, err := r.nextFormPart(nested)
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			closeParts(parts)
			return nil, err
		}
		parts = append(parts, part)
	}
}

func (r *Reader) nextFormPart(nested bool) (*FormPart, error) {
	header, err := r.nextHeader()
	if err != nil {
		return nil, err
	}

	ct := http.TextPlain
	if v, ok := header.Get("content-type"); ok {
		if ct, err = http.ParseMIMEType(v); err != nil {
			return nil, http.WrapError(http.KindBadRequest, "multipart: invalid content-type", err)
		}
	}
	v, ok := header.Get("content-disposition")
	if !ok {
		return nil, http.NewError(http.KindBadRequest, "multipart: content-disposition required but missing")
	}
	cd, err := ParseContentDisposition(v)
	if err != nil {
		return nil, http.WrapError(http.KindBadRequest, "multipart: invalid content-disposition", err)
	}
	if err := cd.check(nested); err != nil {
		return nil, http.WrapError(http.KindBadRequest, "multipart: invalid content-disposition", err)
	}

	part := &FormPart{
		Name:        cd.Name,
		Filename:    cd.Filename,
		HasFilename: cd.HasFilename,
		ContentType: ct,
		Header:      header,
	}
	part.TransferEncoding, _ = header.Get("content-transfer-encoding")

	if ct.IsSameAs(http.MultipartMixed) {
		boundary, ok := ct.Param("boundary")
		if !ok {
			return nil, http.NewError(http.KindBadRequest, "multipart: boundary not found")
		}
		inner, err := NewReader(r.r, boundary, r.cfg)
		if err != nil {
			return nil, err
		}
		parts, err := inner.readForm(true)
		if err != nil {
			return nil, err
		}
		if err := r.expectDelimiter(); err != nil {
			closeParts(parts)
			return nil, err
		}
		part.Content = http.NewRight[io.ReadCloser](parts)
		return part, nil
	}

	body, size, err := r.readBody()
	if err != nil {
		return nil, err
	}
	part.Content = http.NewLeft[io.ReadCloser, []*FormPart](body)
	part.Size = size
	return part, nil
}

// ContentDisposition is a parsed Content-Disposition field value.
type ContentDisposition struct {
	// Type is the lower-cased disposition type, such as "form-data".
	Type        string
	Name        string
	HasName     bool
	Filename    string
	HasFilename bool
}

// ParseContentDisposition parses a Content-Disposition value. Only the name
// and filename attributes are recognized; any other attribute is an error.
func ParseContentDisposition(v string) (ContentDisposition, error) {
	head, params, err := tokenizer.ParseParams(v)
	if err != nil {
		return ContentDisposition{}, err
	}
	if head == "" {
		return ContentDisposition{}, errors.New("missing disposition type")
	}
	cd := ContentDisposition{Type: strings.ToLower(head)}
	for _, p := range params {
		switch p.Name {
		case "name":
			cd.Name, cd.HasName = p.Value, true
		case "filename":
			cd.Filename, cd.HasFilename = p.Value, true
		default:
			return ContentDisposition{}, fmt.Errorf("unknown attribute %q", p.Name)
		}
	}
	return cd, nil
}

// check applies the rules for form-data parts. Parts nested in a
// multipart/mixed part may also be "file" or "attachment" and need no name.
func (cd ContentDisposition) check(nested bool) error {
	if nested {
		switch cd.Type {
		case "form-data", "file", "attachment":
			return nil
		}
		return fmt.Errorf("disposition type %q", cd.Type)
	}
	if cd.Type != "form-data" {
		return fmt.Errorf("disposition type %q, want form-data", cd.Type)
	}
	if !cd.HasName {
		return errors.New("name attribute missing")
	}
	return nil
}
