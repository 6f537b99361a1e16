package http

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/shapestone/shape-https/internal/linereader"
	"github.com/shapestone/shape-https/internal/spool"
)

// ChunkedConfig bounds chunked decoding.
type ChunkedConfig struct {
	// MemoryThreshold is the number of decoded bytes held in memory before
	// the content spills to a temporary file.
	MemoryThreshold int64
	// MaxSize bounds the total decoded size.
	MaxSize int64
	// MaxChunkLine bounds a chunk-size line, excluding CRLF.
	MaxChunkLine int
	// MaxChunkSize bounds a single chunk.
	MaxChunkSize int64
	// MaxTrailerFieldLine and MaxTrailerSection bound the trailer section.
	MaxTrailerFieldLine int
	MaxTrailerSection   int
	// TempDir holds spill files; empty uses os.TempDir.
	TempDir string
}

// DefaultChunkedConfig returns the default chunked limits.
func DefaultChunkedConfig() ChunkedConfig {
	return ChunkedConfig{
		MemoryThreshold:     64 << 10,
		MaxSize:             16 << 20,
		MaxChunkLine:        1 << 10,
		MaxChunkSize:        16 << 20,
		MaxTrailerFieldLine: 8 << 10,
		MaxTrailerSection:   16 << 10,
	}
}

// ChunkedDecoder removes the chunked transfer coding.
//
// Format: hex-size [; ext] CRLF data CRLF ... 0 [; ext] CRLF [trailers] CRLF
// Chunk extensions are ignored.
type ChunkedDecoder struct {
	cfg ChunkedConfig
}

// NewChunkedDecoder returns a decoder using cfg.
func NewChunkedDecoder(cfg ChunkedConfig) *ChunkedDecoder {
	return &ChunkedDecoder{cfg: cfg}
}

// Coding implements TransferDecoder.
func (d *ChunkedDecoder) Coding() string { return "chunked" }

func (*ChunkedDecoder) transferDecoder() {}

// Decode implements TransferDecoder. Length is the sum of the chunk sizes.
// src should be the connection's *linereader.Reader so no bytes past the
// chunked body are consumed.
func (d *ChunkedDecoder) Decode(src io.Reader) (*Decoded, error) {
	r := linereader.New(src)
	store := spool.New(spool.Options{
		Threshold: d.cfg.MemoryThreshold,
		Max:       d.cfg.MaxSize,
		Dir:       d.cfg.TempDir,
		Pattern:   "chunked-*",
	})

	length, err := d.readChunks(r, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	trailer, err := ReadFields(r, d.cfg.MaxTrailerFieldLine, d.cfg.MaxTrailerSection)
	if err != nil {
		store.Close()
		return nil, err
	}
	body, err := store.Reader()
	if err != nil {
		return nil, ioError(err)
	}
	return &Decoded{Body: body, Length: length, Trailer: trailer}, nil
}

func (d *ChunkedDecoder) readChunks(r *linereader.Reader, store *spool.Buffer) (int64, error) {
	line := make([]byte, d.cfg.MaxChunkLine)
	var total int64
	for {
		n, err := r.ReadLine(line)
		switch {
		case err == nil:
		case errors.Is(err, linereader.ErrCannotContain):
			return 0, badRequest("length of chunk line exceeds limit")
		case err == io.EOF:
			return 0, WrapError(KindBadRequest, "chunked body truncated", io.ErrUnexpectedEOF)
		default:
			return 0, ioError(err)
		}

		size, err := parseChunkSize(line[:n], d.cfg.MaxChunkSize)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			return total, nil
		}

		if _, err := io.CopyN(store, r, size); err != nil {
			switch {
			case errors.Is(err, spool.ErrTooLarge):
				return 0, badRequest("chunked content exceeds %d bytes", d.cfg.MaxSize)
			case err == io.EOF:
				return 0, WrapError(KindBadRequest, "chunk data truncated", io.ErrUnexpectedEOF)
			}
			return 0, ioError(err)
		}
		if err := r.RequireCRLF(); err != nil {
			if errors.Is(err, linereader.ErrMissingCRLF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, WrapError(KindBadRequest, "missing CRLF after chunk data", err)
			}
			return 0, ioError(err)
		}
		total += size
	}
}

// parseChunkSize parses the chunk-size of a chunk line, ignoring any chunk
// extension and whitespace before it.
func parseChunkSize(line []byte, limit int64) (int64, error) {
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	line = bytes.TrimRight(line, " \t")
	size, err := parseHexSize(line, limit)
	if err != nil {
		return 0, WrapError(KindBadRequest, fmt.Sprintf("invalid chunk size %.32q", line), err)
	}
	return size, nil
}

var errChunkTooLarge = errors.New("chunk size exceeds limit")

// parseHexSize parses a non-empty run of hex digits no greater than limit.
func parseHexSize(s []byte, limit int64) (int64, error) {
	if len(s) == 0 {
		return 0, errors.New("empty hex string")
	}
	var n int64
	for _, c := range s {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, hex.InvalidByteError(c)
		}
		if n > limit>>4 {
			return 0, errChunkTooLarge
		}
		n = n<<4 | int64(v)
		if n > limit {
			return 0, errChunkTooLarge
		}
	}
	return n, nil
}
