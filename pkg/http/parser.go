package http

import (
	"errors"
	"io"
	"strings"

	"github.com/shapestone/shape-https/internal/linereader"
)

// Parser reads one request from a connection.
type Parser struct {
	cfg      *Config
	r        *linereader.Reader
	decoders *DecoderRegistry
}

// NewParser returns a Parser reading from r.
func NewParser(cfg *Config, r *linereader.Reader) *Parser {
	return &Parser{cfg: cfg, r: r, decoders: cfg.decoders()}
}

// Parse reads the request line, the header section and the body framing.
//
// It returns io.EOF if the connection ends before the request line starts.
// Any other failure is an *Error.
func (p *Parser) Parse() (*Request, error) {
	var b requestBuilder
	if p.cfg.RecordHead {
		p.r.StartRecording()
	}

	line, err := p.readRequestLine()
	if err != nil {
		p.stopRecording()
		return nil, err
	}
	if err := b.parseRequestLine(line); err != nil {
		p.stopRecording()
		return nil, err
	}

	header, err := ReadFields(p.r, p.cfg.MaxFieldLine, p.cfg.MaxHeaderSection)
	b.rawHead = p.stopRecording()
	if err != nil {
		return nil, err
	}
	b.header = header

	host, hasHost := header.Get("host")
	b.target, err = ReconstructTargetURI(b.rawTarget, host, hasHost)
	if err != nil {
		return nil, err
	}
	if !p.cfg.servesHost(b.target.Host()) || b.target.PortOr443() != p.cfg.Port {
		return nil, errorf(KindMisdirectedRequest, "not authoritative for %s", b.target)
	}

	framing, err := p.determineBody(header)
	if err != nil {
		return nil, err
	}
	b.content = framing.content
	b.contentLength = framing.length
	b.trailer = framing.trailer
	return b.build(), nil
}

func (p *Parser) stopRecording() []byte {
	if !p.cfg.RecordHead {
		return nil
	}
	return p.r.StopRecording()
}

// readRequestLine reads the request line, skipping one leading empty line.
func (p *Parser) readRequestLine() (string, error) {
	buf := make([]byte, p.cfg.MaxRequestLine)
	for attempt := 0; ; attempt++ {
		n, err := p.r.ReadLine(buf)
		switch {
		case err == nil:
		case err == io.EOF:
			return "", io.EOF
		case errors.Is(err, linereader.ErrCannotContain):
			return "", badRequest("length of request line exceeds limit")
		default:
			return "", ioError(err)
		}
		if n > 0 || attempt > 0 {
			return string(buf[:n]), nil
		}
	}
}

// parseRequestLine splits "method SP request-target SP HTTP-version".
func (b *requestBuilder) parseRequestLine(line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return WrapError(KindVersionNotSupported, "request line "+truncate(line), ErrMalformedRequestLine)
	}

	method, ok := lookupMethod(parts[0])
	if !ok {
		return WrapError(KindVersionNotSupported, "method "+truncate(parts[0]), ErrUnknownMethod)
	}
	if !method.Implemented() {
		return errorf(KindMethodNotAllowed, "method %s", method)
	}
	version, err := parseProtocolVersion(parts[2])
	if err != nil {
		return err
	}

	b.method = method
	b.rawTarget = parts[1]
	b.version = version
	return nil
}

func truncate(s string) string {
	const maxShown = 64
	if len(s) > maxShown {
		return `"` + s[:maxShown] + `..."`
	}
	return `"` + s + `"`
}
