package http

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/shapestone/shape-https/internal/linereader"
)

// Resource handles requests for one target.
type Resource interface {
	Handle(req *Request, resp *Response) error
}

// ResourceFunc adapts a function to Resource.
type ResourceFunc func(req *Request, resp *Response) error

// Handle implements Resource.
func (f ResourceFunc) Handle(req *Request, resp *Response) error { return f(req, resp) }

// Resolver maps a normalized target URI to a Resource. It may fail with
// not-found or gone errors.
type Resolver interface {
	Resolve(target URI) (Resource, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(target URI) (Resource, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(target URI) (Resource, error) { return f(target) }

// ErrorHandler fills resp for err.
type ErrorHandler func(err *Error, resp *Response)

// ErrorHandlers maps error kinds to handlers. Kinds without a handler get a
// bare response carrying the status code.
type ErrorHandlers struct {
	handlers map[Kind]ErrorHandler
}

// NewErrorHandlers returns an empty registry.
func NewErrorHandlers() *ErrorHandlers {
	return &ErrorHandlers{handlers: make(map[Kind]ErrorHandler)}
}

// Register sets the handler for kind.
func (h *ErrorHandlers) Register(kind Kind, fn ErrorHandler) {
	h.handlers[kind] = fn
}

// Handle fills resp for err.
func (h *ErrorHandlers) Handle(err *Error, resp *Response) {
	resp.Status = err.Kind.Status()
	if h != nil {
		if fn, ok := h.handlers[err.Kind]; ok {
			fn(err, resp)
			return
		}
	}
	resp.Header.Set("content-length", "0")
	if err.CloseConnection {
		resp.Header.Set("connection", "close")
	}
}

// Exchange describes one processed request for observers.
type Exchange struct {
	Request  *Request // nil if the request could not be parsed
	Response *Response
	Err      *Error // nil on success
	Persist  bool
}

// Processor runs request/response exchanges on one connection.
type Processor struct {
	cfg       *Config
	resolver  Resolver
	errors    *ErrorHandlers
	generator *Generator
	decoders  *DecoderRegistry
	logger    *zap.Logger
	observe   func(Exchange)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithObserver registers fn to be called after every exchange.
func WithObserver(fn func(Exchange)) ProcessorOption {
	return func(p *Processor) { p.observe = fn }
}

// NewProcessor returns a Processor. It may be shared by connections.
func NewProcessor(cfg *Config, resolver Resolver, errs *ErrorHandlers, opts ...ProcessorOption) *Processor {
	p := &Processor{
		cfg:       cfg,
		resolver:  resolver,
		errors:    errs,
		generator: NewGenerator(nil),
		decoders:  cfg.decoders(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process reads one request from r and writes its response to w. It returns
// whether the connection should carry another exchange.
//
// io.EOF is returned when the peer closed the connection before a request
// started. Any other error means the connection can no longer be used, for
// example because an error response could not be written.
func (p *Processor) Process(r *linereader.Reader, w io.Writer) (bool, error) {
	parser := &Parser{cfg: p.cfg, r: r, decoders: p.decoders}
	req, err := parser.Parse()
	if err == io.EOF {
		return false, io.EOF
	}
	var outcome Either[*Request, *Error]
	if err != nil {
		outcome = NewRight[*Request](AsError(err))
	} else {
		outcome = NewLeft[*Request, *Error](req)
	}

	return Fold(outcome,
		func(req *Request) (res processResult) {
			defer req.Close()
			res.persist, res.err = p.serve(req, w)
			return res
		},
		func(herr *Error) processResult {
			persist, err := p.fail(nil, herr, w)
			return processResult{persist, err}
		},
	).unpack()
}

type processResult struct {
	persist bool
	err     error
}

func (r processResult) unpack() (bool, error) { return r.persist, r.err }

func (p *Processor) serve(req *Request, w io.Writer) (bool, error) {
	resp := NewResponse()
	defer resp.Close()

	if err := p.handle(req, resp); err != nil {
		return p.fail(req, AsError(err), w)
	}
	if req.Method() == MethodHead {
		p.omitContent(resp)
	}
	if err := p.generator.Generate(w, resp); err != nil {
		p.logger.Warn("response generation failed",
			zap.Stringer("target", req.Target()),
			zap.Error(err))
		return false, err
	}
	if err := drain(req); err != nil {
		return false, err
	}
	persist := IsPersistent(req, resp)
	p.notify(Exchange{Request: req, Response: resp, Persist: persist})
	return persist, nil
}

// handle resolves the target and runs its resource, turning panics into
// internal-server-error.
func (p *Processor) handle(req *Request, resp *Response) (err error) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("resource panicked",
				zap.Stringer("target", req.Target()),
				zap.Any("panic", v))
			err = NewError(KindInternalServerError, fmt.Sprint("panic: ", v))
		}
	}()
	res, err := p.resolver.Resolve(req.Target())
	if err != nil {
		return err
	}
	return res.Handle(req, resp)
}

// fail writes the error response for herr. A failure to write it is fatal
// for the connection.
func (p *Processor) fail(req *Request, herr *Error, w io.Writer) (bool, error) {
	resp := NewResponse()
	defer resp.Close()
	resp.BodyGenerator = p.cfg.errorBodyGenerator()
	p.errors.Handle(herr, resp)
	if req != nil && req.Method() == MethodHead {
		p.omitContent(resp)
	}

	if err := p.generator.Generate(w, resp); err != nil {
		return false, fmt.Errorf("http: writing %d response: %w", herr.Kind.Status(), err)
	}

	persist := !herr.CloseConnection && !hasToken(&resp.Header, "close")
	if persist && req != nil {
		if err := drain(req); err != nil {
			persist = false
		}
		persist = persist && IsPersistent(req, resp)
	}
	p.notify(Exchange{Request: req, Response: resp, Err: herr, Persist: persist})
	return persist, nil
}

// omitContent keeps the header section resp would have, transfer coding
// included, and writes none of its content.
func (p *Processor) omitContent(resp *Response) {
	bg := resp.BodyGenerator
	if bg == nil {
		bg = p.generator.defaultBody
	}
	resp.BodyGenerator = headBody{bg}
}

type headBody struct{ BodyGenerator }

func (headBody) WriteBody(io.Writer, *Response) error { return nil }

func (p *Processor) notify(x Exchange) {
	if p.observe != nil {
		p.observe(x)
	}
}

// drain discards unread request content so the next request starts at the
// right place.
func drain(req *Request) error {
	if req.content == nil {
		return nil
	}
	if _, err := io.Copy(io.Discard, req.content); err != nil {
		var herr *Error
		if errors.As(err, &herr) {
			return herr
		}
		return ioError(err)
	}
	return nil
}

// IsPersistent reports whether the connection stays open after resp.
//
// A "close" connection option on either message ends the connection.
// Otherwise HTTP/1.1 persists and HTTP/1.0 persists only when the request
// Connection field is exactly "keep-alive".
func IsPersistent(req *Request, resp *Response) bool {
	if hasToken(&resp.Header, "close") || hasToken(req.header, "close") {
		return false
	}
	if req.version.AtLeast(HTTP11) {
		return true
	}
	v, _ := req.header.Get("connection")
	return v == "keep-alive"
}

func hasToken(f *Fields, token string) bool {
	v, ok := f.Get("connection")
	if !ok {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{v}, token)
}
