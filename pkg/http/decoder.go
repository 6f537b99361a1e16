package http

import (
	"errors"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/shapestone/shape-https/internal/spool"
)

// Decoded is the output of a TransferDecoder.
type Decoded struct {
	// Body holds the decoded content. The caller must close it.
	Body io.ReadCloser
	// Length is the number of decoded bytes.
	Length int64
	// Trailer holds trailer fields, if the coding carries any.
	Trailer *Fields
}

// TransferDecoder removes one transfer coding from a byte stream.
//
// The set of implementations is closed: ChunkedDecoder, CompressDecoder,
// NullDecoder and ChainDecoder.
type TransferDecoder interface {
	// Coding returns the transfer-coding name the decoder removes.
	Coding() string
	// Decode consumes the encoded stream and returns the decoded content.
	Decode(src io.Reader) (*Decoded, error)

	transferDecoder()
}

// NullDecoder buffers its input unchanged and reports its length.
type NullDecoder struct {
	Name  string
	Spool spool.Options
}

// Coding implements TransferDecoder.
func (d *NullDecoder) Coding() string { return d.Name }

// Decode implements TransferDecoder.
func (d *NullDecoder) Decode(src io.Reader) (*Decoded, error) {
	return spoolAll(src, d.Spool)
}

func (*NullDecoder) transferDecoder() {}

// CompressKind selects the format handled by a CompressDecoder.
type CompressKind int

// Compression formats.
const (
	Gzip CompressKind = iota
	Deflate
	Brotli
)

// CompressDecoder removes the gzip, deflate (zlib) or brotli transfer coding.
// Output beyond Spool.Max is rejected as content-too-large.
type CompressDecoder struct {
	Name  string
	Kind  CompressKind
	Spool spool.Options
}

// Coding implements TransferDecoder.
func (d *CompressDecoder) Coding() string { return d.Name }

// Decode implements TransferDecoder.
func (d *CompressDecoder) Decode(src io.Reader) (*Decoded, error) {
	var (
		zr  io.ReadCloser
		err error
	)
	switch d.Kind {
	case Gzip:
		zr, err = gzip.NewReader(src)
	case Deflate:
		zr, err = zlib.NewReader(src)
	case Brotli:
		zr = io.NopCloser(corruptOnError{brotli.NewReader(src)})
	default:
		return nil, errorf(KindNotImplemented, "unsupported compression kind %d", d.Kind)
	}
	if err != nil {
		return nil, WrapError(KindBadRequest, "invalid "+d.Name+" coding", err)
	}
	defer zr.Close()
	return spoolAll(zr, d.Spool)
}

func (*CompressDecoder) transferDecoder() {}

// corruptOnError reports every read failure of a decompressor as a malformed
// coding. The brotli reader has no typed corruption errors.
type corruptOnError struct{ r io.Reader }

func (c corruptOnError) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = WrapError(KindBadRequest, "corrupt transfer coding", err)
	}
	return n, err
}

// spoolAll copies src into a spool buffer.
func spoolAll(src io.Reader, opts spool.Options) (*Decoded, error) {
	buf := spool.New(opts)
	n, err := io.Copy(buf, src)
	if err != nil {
		buf.Close()
		var corrupt flate.CorruptInputError
		switch {
		case errors.As(err, &corrupt):
			return nil, WrapError(KindBadRequest, "corrupt transfer coding", err)
		case errors.Is(err, spool.ErrTooLarge):
			return nil, WrapError(KindContentTooLarge, "decoded content exceeds limit", err)
		case errors.Is(err, gzip.ErrChecksum), errors.Is(err, gzip.ErrHeader),
			errors.Is(err, zlib.ErrChecksum), errors.Is(err, zlib.ErrHeader),
			errors.Is(err, io.ErrUnexpectedEOF):
			return nil, WrapError(KindBadRequest, "corrupt transfer coding", err)
		}
		return nil, AsError(err)
	}
	body, err := buf.Reader()
	if err != nil {
		return nil, ioError(err)
	}
	return &Decoded{Body: body, Length: n}, nil
}

// ChainDecoder applies a chunked decoder to the wire and then each further
// decoder in order. Intermediate streams are closed once the next stage has
// consumed them. Length and trailer come from the chunked stage's trailer and
// the final stage's length.
type ChainDecoder struct {
	Chunked *ChunkedDecoder
	Rest    []TransferDecoder
}

// Coding implements TransferDecoder. It returns the codings as they would be
// listed in a Transfer-Encoding field.
func (d *ChainDecoder) Coding() string {
	names := make([]string, 0, len(d.Rest)+1)
	for i := len(d.Rest) - 1; i >= 0; i-- {
		names = append(names, d.Rest[i].Coding())
	}
	names = append(names, d.Chunked.Coding())
	return strings.Join(names, ", ")
}

// Decode implements TransferDecoder.
func (d *ChainDecoder) Decode(src io.Reader) (*Decoded, error) {
	out, err := d.Chunked.Decode(src)
	if err != nil {
		return nil, err
	}
	trailer := out.Trailer
	for _, next := range d.Rest {
		stage, err := next.Decode(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, err
		}
		out = stage
	}
	out.Trailer = trailer
	return out, nil
}

func (*ChainDecoder) transferDecoder() {}

// DecoderRegistry maps transfer-coding names to decoders.
type DecoderRegistry struct {
	chunked  *ChunkedDecoder
	decoders map[string]TransferDecoder
}

// NewDecoderRegistry returns a registry holding only the chunked decoder.
func NewDecoderRegistry(chunked *ChunkedDecoder) *DecoderRegistry {
	return &DecoderRegistry{chunked: chunked, decoders: make(map[string]TransferDecoder)}
}

// DefaultDecoders returns a registry with chunked, gzip, x-gzip, deflate and
// identity. Decoded output of the compression codings is bounded by maxContent.
func DefaultDecoders(cfg ChunkedConfig, maxContent int64) *DecoderRegistry {
	r := NewDecoderRegistry(NewChunkedDecoder(cfg))
	r.Register(NewCompressDecoder("gzip", Gzip, cfg, maxContent))
	r.Register(NewCompressDecoder("x-gzip", Gzip, cfg, maxContent))
	r.Register(NewCompressDecoder("deflate", Deflate, cfg, maxContent))
	r.Register(&NullDecoder{Name: "identity", Spool: decodedSpool(cfg, maxContent)})
	return r
}

// NewCompressDecoder returns a decoder for the named coding. Its output spills
// like chunked content and is bounded by maxContent.
func NewCompressDecoder(name string, kind CompressKind, cfg ChunkedConfig, maxContent int64) *CompressDecoder {
	return &CompressDecoder{Name: name, Kind: kind, Spool: decodedSpool(cfg, maxContent)}
}

func decodedSpool(cfg ChunkedConfig, maxContent int64) spool.Options {
	return spool.Options{
		Threshold: cfg.MemoryThreshold,
		Max:       maxContent,
		Dir:       cfg.TempDir,
		Pattern:   "decoded-*",
	}
}

// Register adds d under its coding name, replacing any previous entry.
// A ChunkedDecoder replaces the registry's chunked stage.
func (r *DecoderRegistry) Register(d TransferDecoder) {
	if c, ok := d.(*ChunkedDecoder); ok {
		r.chunked = c
		return
	}
	r.decoders[strings.ToLower(d.Coding())] = d
}

// Lookup returns the decoder registered for coding.
func (r *DecoderRegistry) Lookup(coding string) (TransferDecoder, bool) {
	coding = strings.ToLower(coding)
	if coding == "chunked" {
		if r.chunked == nil {
			return nil, false
		}
		return r.chunked, true
	}
	d, ok := r.decoders[coding]
	return d, ok
}

// Chain builds the decoder for a Transfer-Encoding list whose final member
// is chunked. The remaining codings are applied in reverse of their listed
// order. An unknown coding is not-implemented.
func (r *DecoderRegistry) Chain(codings []string) (*ChainDecoder, error) {
	if len(codings) == 0 || !strings.EqualFold(codings[len(codings)-1], "chunked") {
		return nil, badRequest("final transfer coding is not chunked")
	}
	if r.chunked == nil {
		return nil, errorf(KindNotImplemented, "no chunked decoder registered")
	}
	chain := &ChainDecoder{Chunked: r.chunked}
	for i := len(codings) - 2; i >= 0; i-- {
		if strings.EqualFold(codings[i], "chunked") {
			return nil, badRequest("chunked applied more than once")
		}
		d, ok := r.Lookup(codings[i])
		if !ok {
			return nil, errorf(KindNotImplemented, "transfer coding %q", codings[i])
		}
		chain.Rest = append(chain.Rest, d)
	}
	return chain, nil
}
