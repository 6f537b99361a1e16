package http

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// BodyGenerator writes the content of a response after its header section.
type BodyGenerator interface {
	// TransferCodings returns the transfer codings the generator applies, in
	// the order they are listed in Transfer-Encoding. Empty means none.
	TransferCodings() []string
	// WriteBody writes resp's content to w.
	WriteBody(w io.Writer, resp *Response) error
}

// Generator writes responses in HTTP/1.1 wire format.
type Generator struct {
	defaultBody BodyGenerator
}

// NewGenerator returns a Generator using body for responses without their
// own BodyGenerator. Nil uses IdentityBodyGenerator.
func NewGenerator(body BodyGenerator) *Generator {
	if body == nil {
		body = IdentityBodyGenerator{}
	}
	return &Generator{defaultBody: body}
}

// Generate writes the status line, the header section and the content of
// resp to w, then flushes w if it is a *bufio.Writer.
//
// When the body generator applies transfer codings, Transfer-Encoding is set
// to them and Content-Length is removed.
func (g *Generator) Generate(w io.Writer, resp *Response) error {
	bg := resp.BodyGenerator
	if bg == nil {
		bg = g.defaultBody
	}
	if codings := bg.TransferCodings(); len(codings) > 0 {
		resp.Header.Del("content-length")
		resp.Header.Set("transfer-encoding", strings.Join(codings, ", "))
	}
	if err := validateFields(&resp.Header); err != nil {
		return err
	}
	if resp.Status < 100 || resp.Status > 999 {
		return errorf(KindInternalServerError, "invalid status code %d", resp.Status)
	}

	bp := bufPool.Get().(*[]byte)
	buf := (*bp)[:0]
	buf = appendStatusLine(buf, resp.Version, resp.Status)
	buf = appendFields(buf, &resp.Header)
	buf = appendCRLF(buf)
	_, err := w.Write(buf)
	*bp = buf
	bufPool.Put(bp)
	if err != nil {
		return WrapError(KindInternalServerError, "write header section", err)
	}

	if err := bg.WriteBody(w, resp); err != nil {
		return AsError(err)
	}
	if bw, ok := w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return WrapError(KindInternalServerError, "flush response", err)
		}
	}
	return nil
}

func validateFields(f *Fields) error {
	for name, value := range f.All() {
		if !httpguts.ValidHeaderFieldName(name) {
			return errorf(KindInternalServerError, "invalid response field name %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return errorf(KindInternalServerError, "invalid value for response field %q", name)
		}
	}
	return nil
}

// IdentityBodyGenerator copies the content as is.
type IdentityBodyGenerator struct{}

// TransferCodings implements BodyGenerator.
func (IdentityBodyGenerator) TransferCodings() []string { return nil }

// WriteBody implements BodyGenerator. A zero length writes nothing, a
// positive length copies exactly that many bytes and a negative length
// copies to EOF.
func (IdentityBodyGenerator) WriteBody(w io.Writer, resp *Response) error {
	switch {
	case resp.ContentLength == 0:
		return nil
	case resp.Content == nil:
		return errorf(KindInternalServerError, "content length %d without content", resp.ContentLength)
	case resp.ContentLength > 0:
		if _, err := io.CopyN(w, resp.Content, resp.ContentLength); err != nil {
			if errors.Is(err, io.EOF) {
				return WrapError(KindInternalServerError, "content shorter than declared length", io.ErrUnexpectedEOF)
			}
			return WrapError(KindInternalServerError, "write content", err)
		}
	default:
		if _, err := io.Copy(w, resp.Content); err != nil {
			return WrapError(KindInternalServerError, "write content", err)
		}
	}
	return nil
}

// ChunkedBodyGenerator applies the chunked transfer coding and sends the
// response trailer after the last chunk.
type ChunkedBodyGenerator struct {
	// ChunkSize is the maximum size of each chunk; zero uses 8 KiB.
	ChunkSize int
}

// TransferCodings implements BodyGenerator.
func (ChunkedBodyGenerator) TransferCodings() []string { return []string{"chunked"} }

// WriteBody implements BodyGenerator.
func (g ChunkedBodyGenerator) WriteBody(w io.Writer, resp *Response) error {
	size := g.ChunkSize
	if size <= 0 {
		size = 8 << 10
	}

	var src io.Reader
	switch {
	case resp.ContentLength == 0 || resp.Content == nil:
		src = eofReader{}
	case resp.ContentLength > 0:
		src = &exactReader{r: resp.Content, n: resp.ContentLength}
	default:
		src = resp.Content
	}

	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)
	data := make([]byte, size)
	for {
		n, rerr := io.ReadFull(src, data)
		if n > 0 {
			buf := appendChunkHeader((*bp)[:0], n)
			buf = append(buf, data[:n]...)
			buf = appendCRLF(buf)
			*bp = buf
			if _, err := w.Write(buf); err != nil {
				return WrapError(KindInternalServerError, "write chunk", err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return AsError(rerr)
		}
	}

	buf := appendChunkHeader((*bp)[:0], 0)
	if resp.Trailer != nil {
		buf = appendFields(buf, resp.Trailer)
	}
	buf = appendCRLF(buf)
	*bp = buf
	if _, err := w.Write(buf); err != nil {
		return WrapError(KindInternalServerError, "write last chunk", err)
	}
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// exactReader reads exactly n bytes from r and fails if r ends early.
type exactReader struct {
	r io.Reader
	n int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.n {
		p = p[:e.n]
	}
	n, err := e.r.Read(p)
	e.n -= int64(n)
	if err == io.EOF && e.n > 0 {
		return n, WrapError(KindInternalServerError, "content shorter than declared length", io.ErrUnexpectedEOF)
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}
