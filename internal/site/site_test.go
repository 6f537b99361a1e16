package site

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapestone/shape-https/internal/linereader"
	"github.com/shapestone/shape-https/pkg/http"
	"github.com/shapestone/shape-https/pkg/http/multipart"
)

func testSite(t *testing.T) *Site {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/index.html", []byte("<h1>home</h1>"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/docs/readme.txt", []byte("read me"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/data.unknownext", []byte{1, 2, 3}, 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/my file.txt", []byte("spaced"), 0o644))
	require.NoError(t, fsys.MkdirAll("/empty", 0o755))

	mp := multipart.DefaultConfig()
	mp.TempDir = t.TempDir()
	return New(fsys, Config{
		Gone:       []string{"/old"},
		UploadPath: "/upload",
		Multipart:  mp,
	})
}

// serve runs one exchange and returns the raw response and persistence.
func serve(t *testing.T, s *Site, raw string) (string, bool) {
	t.Helper()
	cfg := http.DefaultConfig()
	cfg.Chunked.TempDir = t.TempDir()
	p := http.NewProcessor(cfg, s, ErrorHandlers())
	var out bytes.Buffer
	persist, err := p.Process(linereader.New(strings.NewReader(raw)), &out)
	require.NoError(t, err)
	return out.String(), persist
}

func TestSite_Files(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"file",
			"GET /docs/readme.txt HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-type: text/plain; charset=utf-8\r\ncontent-length: 7\r\n\r\nread me",
		},
		{
			"index",
			"GET / HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-type: text/html; charset=utf-8\r\ncontent-length: 13\r\n\r\n<h1>home</h1>",
		},
		{
			"head",
			"HEAD /docs/readme.txt HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-type: text/plain; charset=utf-8\r\ncontent-length: 7\r\n\r\n",
		},
		{
			"escaped name",
			"GET /my%20file.txt HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-type: text/plain; charset=utf-8\r\ncontent-length: 6\r\n\r\nspaced",
		},
		{
			"octet stream",
			"GET /data.unknownext HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\ncontent-type: application/octet-stream\r\ncontent-length: 3\r\n\r\n\x01\x02\x03",
		},
		{
			"options",
			"OPTIONS /docs/readme.txt HTTP/1.1\r\nHost: localhost\r\n\r\n",
			"HTTP/1.1 200\r\nallow: GET, HEAD, OPTIONS\r\ncontent-length: 0\r\n\r\n",
		},
	}
	s := testSite(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, persist := serve(t, s, tt.raw)
			assert.Equal(t, tt.want, got)
			assert.True(t, persist)
		})
	}
}

func TestSite_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status string
	}{
		{"missing", "GET /nope HTTP/1.1\r\nHost: localhost\r\n\r\n", "404 not found: /nope"},
		{"directory without index", "GET /empty HTTP/1.1\r\nHost: localhost\r\n\r\n", "404 not found: /empty"},
		{"gone", "GET /old HTTP/1.1\r\nHost: localhost\r\n\r\n", "410 gone: /old"},
		{"post to file", "POST /index.html HTTP/1.1\r\nHost: localhost\r\nContent-Length: 0\r\n\r\n", "405 method not allowed: POST"},
		{"get upload", "GET /upload HTTP/1.1\r\nHost: localhost\r\n\r\n", "405 method not allowed: GET"},
	}
	s := testSite(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, persist := serve(t, s, tt.raw)
			body := tt.status + "\n"
			want := fmt.Sprintf("HTTP/1.1 %s\r\ncontent-type: text/plain; charset=utf-8\r\ncontent-length: %d\r\n\r\n%s",
				tt.status[:3], len(body), body)
			assert.Equal(t, want, got)
			assert.True(t, persist, "recoverable errors keep the connection")
		})
	}
}

func TestSite_HeadErrorHasNoContent(t *testing.T) {
	got, persist := serve(t, testSite(t), "HEAD /missing HTTP/1.1\r\nHost: localhost\r\n\r\n")
	assert.Equal(t, "HTTP/1.1 404\r\ncontent-type: text/plain; charset=utf-8\r\ncontent-length: 24\r\n\r\n", got)
	assert.True(t, persist)
}

func TestErrorHandlers_Close(t *testing.T) {
	resp := http.NewResponse()
	ErrorHandlers().Handle(http.NewError(http.KindBadRequest, "bad field line"), resp)
	assert.Equal(t, 400, resp.Status)
	assert.Equal(t, "close", resp.Header.Value("connection"))
	assert.Equal(t, "32", resp.Header.Value("content-length"))

	resp = http.NewResponse()
	ErrorHandlers().Handle(http.NewError(http.KindInternalServerError, "secret detail"), resp)
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "26", resp.Header.Value("content-length"), "server errors omit the message")
}

func TestSite_ParseErrorClosesConnection(t *testing.T) {
	got, persist := serve(t, testSite(t), "GET / HTTP/1.1\r\nHost: localhost\r\nbad\r\n\r\n")
	assert.True(t, strings.HasPrefix(got, "HTTP/1.1 400\r\n"), got)
	assert.Contains(t, got, "connection: close\r\n")
	assert.False(t, persist)
}
