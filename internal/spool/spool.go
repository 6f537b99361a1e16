// Package spool stores a byte stream in memory up to a threshold and spills
// it to a temporary file once the threshold is crossed.
package spool

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ErrTooLarge is returned by Write when the stored size would exceed Options.Max.
var ErrTooLarge = errors.New("spool: content exceeds maximum size")

// Options configures a Buffer.
type Options struct {
	// Threshold is the number of bytes kept in memory before spilling.
	Threshold int64
	// Max bounds the total number of stored bytes. Zero means no bound.
	Max int64
	// Dir is the directory for the temporary file; empty uses os.TempDir.
	Dir string
	// Pattern is passed to os.CreateTemp.
	Pattern string
}

// Buffer accumulates bytes for later reading.
type Buffer struct {
	opts Options
	mem  bytes.Buffer
	file *os.File
	size int64
}

// New returns an empty Buffer.
func New(opts Options) *Buffer {
	if opts.Pattern == "" {
		opts.Pattern = "shape-https-*"
	}
	return &Buffer{opts: opts}
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int64 { return b.size }

// Spilled reports whether the content has moved to a temporary file.
func (b *Buffer) Spilled() bool { return b.file != nil }

// Write appends p. Nothing is stored if the write would exceed the maximum.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.opts.Max > 0 && b.size+int64(len(p)) > b.opts.Max {
		return 0, ErrTooLarge
	}
	if b.file == nil && b.size+int64(len(p)) > b.opts.Threshold {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	var (
		n   int
		err error
	)
	if b.file != nil {
		n, err = b.file.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	return n, err
}

// WriteByte appends c.
func (b *Buffer) WriteByte(c byte) error {
	_, err := b.Write([]byte{c})
	return err
}

func (b *Buffer) spill() error {
	f, err := os.CreateTemp(b.opts.Dir, b.opts.Pattern)
	if err != nil {
		return err
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	b.mem = bytes.Buffer{}
	b.file = f
	return nil
}

// Reader hands the stored content over to the returned reader. Closing the
// reader releases the temporary file. The Buffer must not be used afterwards.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	if b.file == nil {
		return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
	}
	f := b.file
	b.file = nil
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &tempFile{f: f}, nil
}

// Close discards the content and removes any temporary file.
func (b *Buffer) Close() error {
	b.mem = bytes.Buffer{}
	if b.file == nil {
		return nil
	}
	f := b.file
	b.file = nil
	err := f.Close()
	if rerr := os.Remove(f.Name()); err == nil {
		err = rerr
	}
	return err
}

type tempFile struct {
	f *os.File
}

func (t *tempFile) Read(p []byte) (int, error) { return t.f.Read(p) }

func (t *tempFile) Close() error {
	err := t.f.Close()
	if rerr := os.Remove(t.f.Name()); err == nil {
		err = rerr
	}
	return err
}

// Name returns the path of the backing temporary file.
func (t *tempFile) Name() string { return t.f.Name() }
