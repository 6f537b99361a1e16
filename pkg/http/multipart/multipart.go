// Package multipart reads multipart/form-data request content (RFC 1867).
//
// A Reader walks the parts of one multipart stream. NextPart returns each
// part as its raw header section and body. NextFormPart additionally
// interprets Content-Disposition and Content-Type and reads nested
// multipart/mixed parts into a tree.
//
// Part bodies are held in memory up to Config.MemoryThreshold and spill to a
// temporary file past it. Callers must Close every part they receive.
package multipart

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/shapestone/shape-https/internal/linereader"
	"github.com/shapestone/shape-https/internal/spool"
	"github.com/shapestone/shape-https/pkg/http"
)

// maxPadding bounds the transport padding accepted after a delimiter.
const maxPadding = 16

// Config bounds the parsing of one multipart stream.
type Config struct {
	// MaxFieldLine and MaxHeaderSection bound each part's header section.
	MaxFieldLine     int
	MaxHeaderSection int
	// MemoryThreshold is the number of body bytes kept in memory per part.
	MemoryThreshold int64
	// MaxTempFileSize bounds the body of a single part.
	MaxTempFileSize int64
	// TempDir holds spill files; empty uses os.TempDir.
	TempDir string
}

// DefaultConfig returns the default multipart limits.
func DefaultConfig() Config {
	return Config{
		MaxFieldLine:     8 << 10,
		MaxHeaderSection: 16 << 10,
		MemoryThreshold:  64 << 10,
		MaxTempFileSize:  16 << 20,
	}
}

// Reader iterates over the parts of a multipart stream.
type Reader struct {
	r          *linereader.Reader
	cfg        Config
	delim      []byte // "--" boundary
	closeDelim []byte // "--" boundary "--"
	lineBuf    []byte
	started    bool
	done       bool
}

// NewReader returns a Reader for the parts of src separated by boundary.
// The boundary must be 1 to 70 characters without CR or LF.
func NewReader(src io.Reader, boundary string, cfg Config) (*Reader, error) {
	if len(boundary) == 0 || len(boundary) > 70 || strings.ContainsAny(boundary, "\r\n") {
		return nil, http.NewError(http.KindBadRequest, "multipart: invalid boundary")
	}
	delim := append([]byte("--"), boundary...)
	closeDelim := append(append([]byte(nil), delim...), '-', '-')
	return &Reader{
		r:          linereader.New(src),
		cfg:        cfg,
		delim:      delim,
		closeDelim: closeDelim,
		lineBuf:    make([]byte, len(closeDelim)+maxPadding),
	}, nil
}

// ReadFirstLine consumes the opening delimiter line, which must equal
// "--" boundary exactly. NextPart and NextFormPart call it when needed.
func (r *Reader) ReadFirstLine() error {
	if r.started {
		return nil
	}
	r.started = true
	line := make([]byte, len(r.delim))
	n, err := r.r.ReadLine(line)
	switch {
	case err == nil:
	case errors.Is(err, linereader.ErrCannotContain), err == io.EOF:
		return http.NewError(http.KindBadRequest, "multipart: unexpected boundary")
	default:
		return http.AsError(err)
	}
	if !bytes.Equal(line[:n], r.delim) {
		return http.NewError(http.KindBadRequest, "multipart: unexpected boundary")
	}
	return nil
}

// NextPart returns the next part with its header section and raw body. It
// returns io.EOF after the last part.
func (r *Reader) NextPart() (*LazyPart, error) {
	header, err := r.nextHeader()
	if err != nil {
		return nil, err
	}
	body, size, err := r.readBody()
	if err != nil {
		return nil, err
	}
	return &LazyPart{Header: header, Body: body, Size: size}, nil
}

// ForEach calls fn for every remaining part and closes the part when fn
// returns. It stops at the first error.
func (r *Reader) ForEach(fn func(*LazyPart) error) error {
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		err = fn(part)
		part.Close()
		if err != nil {
			return err
		}
	}
}

func (r *Reader) nextHeader() (*http.Fields, error) {
	if err := r.ReadFirstLine(); err != nil {
		return nil, err
	}
	if r.done {
		return nil, io.EOF
	}
	return http.ReadFields(r.r, r.cfg.MaxFieldLine, r.cfg.MaxHeaderSection)
}

// readBody stores the body of the current part, which ends at the next
// delimiter line or at end of stream.
func (r *Reader) readBody() (io.ReadCloser, int64, error) {
	store := spool.New(spool.Options{
		Threshold: r.cfg.MemoryThreshold,
		Max:       r.cfg.MaxTempFileSize,
		Dir:       r.cfg.TempDir,
		Pattern:   "part-*",
	})
	if err := r.scanBody(store); err != nil {
		store.Close()
		if errors.Is(err, spool.ErrTooLarge) {
			return nil, 0, http.WrapError(http.KindContentTooLarge, "multipart: part body exceeds limit", err)
		}
		return nil, 0, http.AsError(err)
	}
	body, err := store.Reader()
	if err != nil {
		return nil, 0, http.AsError(err)
	}
	return body, store.Len(), nil
}

func (r *Reader) scanBody(store *spool.Buffer) error {
	for {
		c, err := r.r.ReadByte()
		if err == io.EOF {
			r.done = true
			return nil
		}
		if err != nil {
			return err
		}
		if c != '\r' {
			if err := store.WriteByte(c); err != nil {
				return err
			}
			continue
		}

		r.r.Mark()
		c, err = r.r.ReadByte()
		if err != nil || c != '\n' {
			// Not CRLF; the byte after CR is scanned again.
			r.r.Reset()
			if err != nil && err != io.EOF {
				return err
			}
			if err := store.WriteByte('\r'); err != nil {
				return err
			}
			continue
		}
		r.r.Unmark()

		found, err := r.atDelimiter()
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		if _, err := store.Write([]byte{'\r', '\n'}); err != nil {
			return err
		}
	}
}

// atDelimiter reads the line at the current position and reports whether
// it is a delimiter. Any other line is pushed back.
func (r *Reader) atDelimiter() (bool, error) {
	r.r.Mark()
	n, err := r.r.ReadLine(r.lineBuf)
	if err != nil {
		r.r.Reset()
		if errors.Is(err, linereader.ErrCannotContain) || err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return r.matchDelimiter(r.lineBuf[:n])
}

// matchDelimiter consumes line if it is a delimiter and pushes it back
// otherwise. The close delimiter ends the stream.
func (r *Reader) matchDelimiter(line []byte) (bool, error) {
	line = bytes.TrimRight(line, " \t")
	switch {
	case bytes.Equal(line, r.delim):
		r.r.Unmark()
		return true, nil
	case bytes.Equal(line, r.closeDelim):
		r.r.Unmark()
		r.done = true
		return true, nil
	}
	return false, r.r.Reset()
}

// expectDelimiter reads the delimiter line that follows a nested multipart
// body.
func (r *Reader) expectDelimiter() error {
	r.r.Mark()
	n, err := r.r.ReadLine(r.lineBuf)
	switch {
	case err == io.EOF:
		r.r.Unmark()
		r.done = true
		return nil
	case errors.Is(err, linereader.ErrCannotContain):
		r.r.Unmark()
		return http.NewError(http.KindBadRequest, "multipart: expected delimiter after nested parts")
	case err != nil:
		r.r.Unmark()
		return http.AsError(err)
	}
	found, err := r.matchDelimiter(r.lineBuf[:n])
	if err != nil {
		return http.AsError(err)
	}
	if !found {
		return http.NewError(http.KindBadRequest, "multipart: expected delimiter after nested parts")
	}
	return nil
}
