// Package http implements the HTTP/1.1 message framing of an origin server
// per RFC 9112.
//
// Raw request bytes are parsed into an immutable Request or a typed *Error;
// application code fills a mutable Response which the Generator writes back
// in wire format.
//
// # Parsing
//
// The Parser reads one request from a connection: the request line, the
// header section, the target URI (reconstructed and normalized per RFC 3986)
// and the message body framing. Chunked bodies are decoded eagerly and
// spill to a temporary file when they outgrow memory.
//
// # Thread Safety
//
// Parser, Generator and Processor instances belong to one connection. Config
// values and decoder registries are read-only once built and may be shared.
package http

import (
	"bytes"
	"io"
)

// Request is an HTTP request as received. It cannot be modified.
type Request struct {
	method        Method
	target        URI
	version       ProtocolVersion
	header        *Fields
	content       io.Reader
	contentLength int64
	trailer       *Fields
	rawHead       []byte
}

// Method returns the request method.
func (r *Request) Method() Method { return r.method }

// Target returns the normalized target URI.
func (r *Request) Target() URI { return r.target }

// Version returns the protocol version of the request line.
func (r *Request) Version() ProtocolVersion { return r.version }

// Header returns a copy of the header section.
func (r *Request) Header() *Fields { return r.header.Clone() }

// HeaderValue returns the value of the named header field.
func (r *Request) HeaderValue(name string) (string, bool) { return r.header.Get(name) }

// Content returns the content stream, or nil if the request has none.
func (r *Request) Content() io.Reader { return r.content }

// ContentLength returns the content length: positive for an exact length,
// zero for no content and negative when the content runs to end of stream.
func (r *Request) ContentLength() int64 { return r.contentLength }

// Trailer returns a copy of the trailer section, or nil if there was none.
func (r *Request) Trailer() *Fields {
	if r.trailer == nil {
		return nil
	}
	return r.trailer.Clone()
}

// RawHead returns the request line and header section as read from the
// wire, when recording was enabled in the Config.
func (r *Request) RawHead() []byte { return r.rawHead }

// Close releases the content stream, removing any temporary file behind it.
func (r *Request) Close() error {
	if c, ok := r.content.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// requestBuilder is the mutable form of a Request while it is parsed.
type requestBuilder struct {
	method        Method
	rawTarget     string
	target        URI
	version       ProtocolVersion
	header        *Fields
	content       io.Reader
	contentLength int64
	trailer       *Fields
	rawHead       []byte
}

func (b *requestBuilder) build() *Request {
	return &Request{
		method:        b.method,
		target:        b.target,
		version:       b.version,
		header:        b.header,
		content:       b.content,
		contentLength: b.contentLength,
		trailer:       b.trailer,
		rawHead:       b.rawHead,
	}
}

// Response is an HTTP response under construction. Handlers fill it in; the
// Generator writes it.
type Response struct {
	Status  int
	Version ProtocolVersion
	Header  Fields

	// Content is read according to ContentLength: positive reads exactly that
	// many bytes, zero writes no content and negative reads to EOF.
	Content       io.Reader
	ContentLength int64

	// Trailer is sent only by body generators that apply a transfer coding
	// permitting trailers.
	Trailer *Fields

	// BodyGenerator writes the content; nil uses the Generator's default.
	BodyGenerator BodyGenerator
}

// NewResponse returns a 200 response for HTTP/1.1 with an empty header section.
func NewResponse() *Response {
	return &Response{Status: 200, Version: HTTP11}
}

// SetBody uses b as the content.
func (r *Response) SetBody(b []byte) {
	r.Content = bytes.NewReader(b)
	r.ContentLength = int64(len(b))
}

// SetContent uses rd as the content with the given length.
func (r *Response) SetContent(rd io.Reader, length int64) {
	r.Content = rd
	r.ContentLength = length
}

// Close releases the content stream if it is closable.
func (r *Response) Close() error {
	if c, ok := r.Content.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
