package multipart

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapestone/shape-https/pkg/http"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	return cfg
}

func newReader(t *testing.T, boundary, body string) *Reader {
	t.Helper()
	r, err := NewReader(strings.NewReader(body), boundary, testConfig(t))
	require.NoError(t, err)
	return r
}

func readAll(t *testing.T, rc io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

const simpleForm = "--AaB03x\r\n" +
	"Content-Disposition: form-data; name=\"field1\"\r\n" +
	"\r\n" +
	"Joe Blow\r\n" +
	"--AaB03x\r\n" +
	"Content-Disposition: form-data; name=\"pics\"; filename=\"file1.txt\"\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"line one\r\nline two\r\n" +
	"--AaB03x--\r\n"

func TestReader_NextPart(t *testing.T) {
	r := newReader(t, "AaB03x", simpleForm)

	p1, err := r.NextPart()
	require.NoError(t, err)
	defer p1.Close()
	assert.Equal(t, `form-data; name="field1"`, p1.Header.Value("content-disposition"))
	assert.Equal(t, "Joe Blow", readAll(t, p1.Body))
	assert.Equal(t, int64(8), p1.Size)

	p2, err := r.NextPart()
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, "text/plain", p2.Header.Value("content-type"))
	assert.Equal(t, "line one\r\nline two", readAll(t, p2.Body))

	_, err = r.NextPart()
	assert.Equal(t, io.EOF, err)
	_, err = r.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestReader_BodyContent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"lone cr", "a\rb"},
		{"cr before crlf", "a\r\r\nb"},
		{"trailing cr", "ab\r"},
		{"bare lf", "a\nb"},
		{"almost delimiter", "x\r\n--AaB03"},
		{"delimiter prefix", "x\r\n--AaB03xy"},
		{"delimiter mid-line", "x --AaB03x"},
		{"long line after crlf", "x\r\n" + strings.Repeat("-", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := "--AaB03x\r\nContent-Disposition: form-data; name=\"f\"\r\n\r\n" +
				tt.body + "\r\n--AaB03x--"
			r := newReader(t, "AaB03x", stream)
			p, err := r.NextPart()
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, tt.body, readAll(t, p.Body))
			assert.Equal(t, int64(len(tt.body)), p.Size)

			_, err = r.NextPart()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestReader_TransportPadding(t *testing.T) {
	r := newReader(t, "b", "--b\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--b \t\r\nContent-Disposition: form-data; name=\"c\"\r\n\r\n2\r\n--b--  \r\nepilogue")
	var got []string
	err := r.ForEach(func(p *LazyPart) error {
		got = append(got, readAll(t, p.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestReader_EOFEndsLastPart(t *testing.T) {
	r := newReader(t, "b", "--b\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\nunterminated")
	p, err := r.NextPart()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "unterminated", readAll(t, p.Body))
	_, err = r.NextPart()
	assert.Equal(t, io.EOF, err)
}

func TestReader_FirstLine(t *testing.T) {
	for _, body := range []string{
		"",
		"--other\r\n",
		"--AaB03x-\r\n",
		"preamble\r\n--AaB03x\r\n",
		"--AaB03x--\r\n",
	} {
		r := newReader(t, "AaB03x", body)
		_, err := r.NextPart()
		assert.ErrorIs(t, err, http.ErrBadRequest, "body %q", body)
	}
}

func TestNewReader_InvalidBoundary(t *testing.T) {
	for _, b := range []string{"", strings.Repeat("x", 71), "a\r\nb"} {
		_, err := NewReader(strings.NewReader(""), b, DefaultConfig())
		assert.ErrorIs(t, err, http.ErrBadRequest, "boundary %q", b)
	}
}

func TestReader_Spill(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryThreshold = 8
	data := strings.Repeat("0123456789", 20)
	r, err := NewReader(strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"f\"\r\n\r\n"+data+"\r\n--b--\r\n"), "b", cfg)
	require.NoError(t, err)
	p, err := r.NextPart()
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, data, readAll(t, p.Body))
}

func TestReader_PartTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.MemoryThreshold = 4
	cfg.MaxTempFileSize = 16
	r, err := NewReader(strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"f\"\r\n\r\n"+strings.Repeat("x", 17)+"\r\n--b--\r\n"), "b", cfg)
	require.NoError(t, err)
	_, err = r.NextPart()
	assert.ErrorIs(t, err, http.ErrContentTooLarge)
}

func TestReader_HeaderSectionLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxHeaderSection = 16
	r, err := NewReader(strings.NewReader("--b\r\nContent-Disposition: form-data; name=\"f\"\r\n\r\nx\r\n--b--"), "b", cfg)
	require.NoError(t, err)
	_, err = r.NextPart()
	assert.ErrorIs(t, err, http.ErrBadRequest)
}

func TestReader_ForEachStopsOnError(t *testing.T) {
	r := newReader(t, "AaB03x", simpleForm)
	stop := errors.New("stop")
	calls := 0
	err := r.ForEach(func(*LazyPart) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}
