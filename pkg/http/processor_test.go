package http

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shapestone/shape-https/internal/linereader"
)

func textHandler(text string) ErrorHandler {
	return func(err *Error, resp *Response) {
		resp.Header.Set("host", "localhost")
		if err.CloseConnection {
			resp.Header.Set("connection", "close")
		}
		resp.Header.Set("content-length", "9")
		resp.SetBody([]byte(text))
	}
}

func notFound(URI) (Resource, error) { return nil, NewError(KindNotFound, "no resource") }

func process(t *testing.T, p *Processor, raw string) (string, bool, error) {
	t.Helper()
	var out bytes.Buffer
	persist, err := p.Process(linereader.New(strings.NewReader(raw)), &out)
	return out.String(), persist, err
}

func TestProcess_NotFound(t *testing.T) {
	errs := NewErrorHandlers()
	errs.Register(KindNotFound, textHandler("not found"))
	p := NewProcessor(testConfig(t), ResolverFunc(notFound), errs)

	got, persist, err := process(t, p, "GET /test HTTP/1.1\r\nHost: localhost\r\nConnection: keep-alive\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404\r\nhost: localhost\r\nconnection: close\r\ncontent-length: 9\r\n\r\nnot found", got)
	assert.False(t, persist)
}

func TestProcess_Success(t *testing.T) {
	var seen *Request
	resolver := ResolverFunc(func(target URI) (Resource, error) {
		return ResourceFunc(func(req *Request, resp *Response) error {
			seen = req
			resp.Header.Set("content-length", "2")
			resp.SetBody([]byte("ok"))
			return nil
		}), nil
	})
	p := NewProcessor(testConfig(t), resolver, NewErrorHandlers())

	got, persist, err := process(t, p, "GET /a HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200\r\ncontent-length: 2\r\n\r\nok", got)
	assert.True(t, persist)
	require.NotNil(t, seen)
	assert.Equal(t, "/a", seen.Target().Path())
}

func TestProcess_HeadOmitsContent(t *testing.T) {
	resolver := ResolverFunc(func(target URI) (Resource, error) {
		if target.Path() == "/missing" {
			return nil, &Error{Kind: KindNotFound, Message: "no resource"}
		}
		return ResourceFunc(func(req *Request, resp *Response) error {
			resp.Header.Set("content-length", "2")
			resp.SetBody([]byte("ok"))
			return nil
		}), nil
	})
	errs := NewErrorHandlers()
	errs.Register(KindNotFound, textHandler("not found"))

	tests := []struct {
		name string
		body BodyGenerator
		raw  string
		want string
	}{
		{
			"found",
			nil,
			"HEAD /a HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-length: 2\r\n\r\n",
		},
		{
			"error",
			nil,
			"HEAD /missing HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 404\r\nhost: localhost\r\ncontent-length: 9\r\n\r\n",
		},
		{
			"chunked error",
			ChunkedBodyGenerator{},
			"HEAD /missing HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 404\r\nhost: localhost\r\ntransfer-encoding: chunked\r\n\r\n",
		},
		{
			"get error keeps content",
			nil,
			"GET /missing HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 404\r\nhost: localhost\r\ncontent-length: 9\r\n\r\nnot found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.ErrorBodyGenerator = tt.body
			p := NewProcessor(cfg, resolver, errs)
			got, persist, err := process(t, p, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, persist)
		})
	}
}

func TestProcess_Pipelined(t *testing.T) {
	var paths []string
	resolver := ResolverFunc(func(target URI) (Resource, error) {
		return ResourceFunc(func(req *Request, resp *Response) error {
			paths = append(paths, target.Path())
			resp.Header.Set("content-length", "0")
			return nil
		}), nil
	})
	p := NewProcessor(testConfig(t), resolver, nil)

	raw := "POST /one HTTP/1.1\r\nHost: localhost\r\nContent-Length: 5\r\n\r\nhello" +
		"GET /two HTTP/1.1\r\nHost: localhost\r\n\r\n"
	r := linereader.New(strings.NewReader(raw))
	var out bytes.Buffer

	// The unread content of the first request is drained.
	persist, err := p.Process(r, &out)
	require.NoError(t, err)
	assert.True(t, persist)
	persist, err = p.Process(r, &out)
	require.NoError(t, err)
	assert.True(t, persist)
	_, err = p.Process(r, &out)
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, []string{"/one", "/two"}, paths)
}

func TestProcess_ParseErrorWithoutHandler(t *testing.T) {
	p := NewProcessor(testConfig(t), ResolverFunc(notFound), NewErrorHandlers())
	got, persist, err := process(t, p, "PUT / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 405\r\ncontent-length: 0\r\nconnection: close\r\n\r\n", got)
	assert.False(t, persist)
}

func TestProcess_RecoverableError(t *testing.T) {
	resolver := ResolverFunc(func(URI) (Resource, error) {
		return nil, &Error{Kind: KindGone}
	})
	p := NewProcessor(testConfig(t), resolver, nil)
	got, persist, err := process(t, p, "GET /old HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 410\r\ncontent-length: 0\r\n\r\n", got)
	assert.True(t, persist)
}

func TestProcess_PanicBecomesInternalError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	resolver := ResolverFunc(func(URI) (Resource, error) {
		return ResourceFunc(func(*Request, *Response) error { panic("boom") }), nil
	})
	p := NewProcessor(testConfig(t), resolver, nil, WithLogger(zap.New(core)))

	got, persist, err := process(t, p, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 500\r\n"), got)
	assert.False(t, persist)
	assert.Equal(t, 1, logs.FilterMessage("resource panicked").Len())
}

func TestProcess_Observer(t *testing.T) {
	var seen []Exchange
	p := NewProcessor(testConfig(t), ResolverFunc(notFound), nil,
		WithObserver(func(x Exchange) { seen = append(seen, x) }))

	_, _, err := process(t, p, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, KindNotFound, seen[0].Err.Kind)
	assert.NotNil(t, seen[0].Request)
	assert.Equal(t, 404, seen[0].Response.Status)
}

func TestProcess_WriteFailureIsFatal(t *testing.T) {
	p := NewProcessor(testConfig(t), ResolverFunc(notFound), nil)
	_, err := p.Process(linereader.New(strings.NewReader("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")), failingWriter{})
	assert.Error(t, err)
}

func TestIsPersistent(t *testing.T) {
	tests := []struct {
		name    string
		version ProtocolVersion
		reqConn string
		resConn string
		want    bool
	}{
		{"http/1.1 default", HTTP11, "", "", true},
		{"http/1.1 response close", HTTP11, "", "close", false},
		{"http/1.1 request close", HTTP11, "Close", "", false},
		{"http/1.1 close among options", HTTP11, "", "upgrade, close", false},
		{"http/1.0 default", HTTP10, "", "", false},
		{"http/1.0 keep-alive", HTTP10, "keep-alive", "", true},
		{"http/1.0 keep-alive other case", HTTP10, "Keep-Alive", "", false},
		{"http/1.0 keep-alive then close", HTTP10, "keep-alive", "close", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := NewFields()
			if tt.reqConn != "" {
				header.Set("connection", tt.reqConn)
			}
			req := (&requestBuilder{version: tt.version, header: header}).build()
			resp := NewResponse()
			if tt.resConn != "" {
				resp.Header.Set("connection", tt.resConn)
			}
			assert.Equal(t, tt.want, IsPersistent(req, resp))
		})
	}
}
