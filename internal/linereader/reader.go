// Package linereader provides the byte reader used for HTTP/1.1 message framing.
//
// A Reader scans CRLF-terminated lines into caller-supplied buffers, folds bare
// CR into SP, supports mark/reset pushback for boundary probing, and can
// enforce a cumulative byte budget over a scope of reads (a header or trailer
// section, for example). Bytes consumed from the source may optionally be
// recorded for diagnostics.
//
// A Reader is not safe for concurrent use.
package linereader

import (
	"bufio"
	"errors"
	"io"
)

const (
	cr = '\r'
	lf = '\n'
	sp = ' '
)

var (
	// ErrCannotContain is returned by ReadLine when the line holds more
	// data bytes than the destination buffer.
	ErrCannotContain = errors.New("linereader: line cannot be contained in buffer")

	// ErrBudgetExceeded is returned when a read goes past the limit set by EnableLimit.
	ErrBudgetExceeded = errors.New("linereader: byte budget exceeded")

	// ErrMissingCRLF is returned by RequireCRLF when the next two bytes are not CR LF.
	ErrMissingCRLF = errors.New("linereader: expected CRLF")

	// ErrNotMarked is returned by Reset when no mark is set.
	ErrNotMarked = errors.New("linereader: reset without mark")
)

// Reader is a buffered byte reader with line scanning, pushback, an optional
// byte budget and optional recording.
type Reader struct {
	src *bufio.Reader

	// pending holds bytes pushed back by Reset; they are served before src.
	pending []byte

	marking bool
	mark    []byte

	limited   bool
	remaining int64

	recording bool
	record    []byte
}

// New returns a Reader reading from r. If r is already a *Reader it is returned as is.
func New(r io.Reader) *Reader {
	if lr, ok := r.(*Reader); ok {
		return lr
	}
	return &Reader{src: bufio.NewReader(r)}
}

// NewSize is like New but sets the size of the underlying read buffer.
func NewSize(r io.Reader, size int) *Reader {
	if lr, ok := r.(*Reader); ok {
		return lr
	}
	return &Reader{src: bufio.NewReaderSize(r, size)}
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	var c byte
	if len(r.pending) > 0 {
		c = r.pending[0]
		r.pending = r.pending[1:]
	} else {
		var err error
		c, err = r.src.ReadByte()
		if err != nil {
			return 0, err
		}
		if r.recording {
			r.record = append(r.record, c)
		}
		if r.limited {
			r.remaining--
			if r.remaining < 0 {
				return 0, ErrBudgetExceeded
			}
		}
	}
	if r.marking {
		r.mark = append(r.mark, c)
	}
	return c, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	if len(r.pending) > 0 {
		n = copy(p, r.pending)
		r.pending = r.pending[n:]
	} else {
		if r.limited && r.remaining < 0 {
			return 0, ErrBudgetExceeded
		}
		if r.limited && int64(len(p)) > r.remaining+1 {
			// Read at most one byte past the budget so the overrun is reported.
			p = p[:r.remaining+1]
		}
		var err error
		n, err = r.src.Read(p)
		if n > 0 {
			if berr := r.consumed(p[:n]); berr != nil {
				return n, berr
			}
		}
		if err != nil {
			if r.marking {
				r.mark = append(r.mark, p[:n]...)
			}
			return n, err
		}
	}
	if r.marking {
		r.mark = append(r.mark, p[:n]...)
	}
	return n, nil
}

// consumed accounts for bytes taken from the source.
func (r *Reader) consumed(b []byte) error {
	if r.recording {
		r.record = append(r.record, b...)
	}
	if r.limited {
		r.remaining -= int64(len(b))
		if r.remaining < 0 {
			return ErrBudgetExceeded
		}
	}
	return nil
}

// ReadLine reads one line into buf and returns the number of bytes stored.
//
// The terminating CRLF is consumed but never stored. A CR that is not followed
// by LF is stored as SP; an LF that is not preceded by CR is stored as data.
// A line ending at EOF is returned without error; EOF before any byte is read
// returns 0, io.EOF. If the line holds more data bytes than len(buf),
// ErrCannotContain is returned and the remainder of the line is left unread.
func (r *Reader) ReadLine(buf []byte) (int, error) {
	n := 0
	pendingCR := false
	read := false
	for {
		c, err := r.ReadByte()
		if err == io.EOF {
			if pendingCR {
				if n == len(buf) {
					return n, ErrCannotContain
				}
				buf[n] = sp
				n++
			}
			if !read {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != nil {
			return n, err
		}
		read = true

		if pendingCR {
			if c == lf {
				return n, nil
			}
			if n == len(buf) {
				return n, ErrCannotContain
			}
			buf[n] = sp
			n++
			pendingCR = false
		}
		if c == cr {
			pendingCR = true
			continue
		}
		if n == len(buf) {
			return n, ErrCannotContain
		}
		buf[n] = c
		n++
	}
}

// RequireCRLF consumes two bytes and fails unless they are CR LF.
func (r *Reader) RequireCRLF() error {
	for _, want := range [2]byte{cr, lf} {
		c, err := r.ReadByte()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if c != want {
			return ErrMissingCRLF
		}
	}
	return nil
}

// Mark starts remembering consumed bytes so that Reset can push them back.
// Calling Mark while a mark is set moves the mark to the current position.
func (r *Reader) Mark() {
	r.marking = true
	r.mark = r.mark[:0]
}

// Reset pushes every byte read since the last Mark back onto the reader and
// clears the mark.
func (r *Reader) Reset() error {
	if !r.marking {
		return ErrNotMarked
	}
	pending := make([]byte, 0, len(r.mark)+len(r.pending))
	pending = append(pending, r.mark...)
	r.pending = append(pending, r.pending...)
	r.Unmark()
	return nil
}

// Unmark clears the mark without pushing anything back.
func (r *Reader) Unmark() {
	r.marking = false
	r.mark = nil
}

// EnableLimit starts a budget scope allowing n further bytes from the source.
// It panics if a scope is already active.
func (r *Reader) EnableLimit(n int64) {
	if r.limited {
		panic("linereader: limit already enabled")
	}
	r.limited = true
	r.remaining = n
}

// DisableLimit ends the current budget scope. It panics if no scope is active.
func (r *Reader) DisableLimit() {
	if !r.limited {
		panic("linereader: limit not enabled")
	}
	r.limited = false
	r.remaining = 0
}

// Limited reports whether a budget scope is active.
func (r *Reader) Limited() bool { return r.limited }

// StartRecording begins capturing bytes consumed from the source.
func (r *Reader) StartRecording() {
	r.recording = true
	r.record = r.record[:0]
}

// StopRecording stops capturing and returns the captured bytes.
func (r *Reader) StopRecording() []byte {
	rec := r.record
	r.recording = false
	r.record = nil
	return rec
}
