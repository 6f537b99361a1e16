// Package server runs the HTTP/1.1 exchange loop over TLS connections.
//
// Each accepted connection is served by its own goroutine which calls
// http.Processor.Process until the exchange is not persistent, the peer
// closes the connection, a deadline expires or the server shuts down.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/shapestone/shape-https/internal/linereader"
	"github.com/shapestone/shape-https/internal/snapshot"
	"github.com/shapestone/shape-https/pkg/http"
)

// Config configures the listener and connection deadlines.
type Config struct {
	Addr string
	// TLS secures accepted connections. Nil serves plain connections, which
	// is only meant for tests.
	TLS *tls.Config
	// ReadTimeout bounds each read from the connection, so an idle
	// connection is dropped after it.
	ReadTimeout time.Duration
	// WriteTimeout bounds each write to the connection.
	WriteTimeout time.Duration
	// MaxConnections bounds concurrently served connections; zero is unlimited.
	MaxConnections int
}

// Server accepts connections and serves exchanges on them.
type Server struct {
	cfg      Config
	http     *http.Config
	resolver http.Resolver
	errors   *http.ErrorHandlers
	logger   *zap.Logger

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New returns a Server answering requests through resolver.
func New(cfg Config, hc *http.Config, resolver http.Resolver, errs *http.ErrorHandlers, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		http:     hc,
		resolver: resolver,
		errors:   errs,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TLSConfig loads a certificate chain and key and returns a configuration
// accepting TLS 1.3 only.
func TLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("server: loading key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"http/1.1"},
	}, nil
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and every
// open connection and waits for their goroutines. It returns nil after a
// shutdown requested through ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.logger.Info("listening",
		zap.Stringer("addr", ln.Addr()),
		zap.Bool("tls", s.cfg.TLS != nil))

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	grp.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					s.logger.Warn("accept failed", zap.Error(err))
					continue
				}
				return fmt.Errorf("server: accept: %w", err)
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.ServeConn(ctx, conn)
			}()
		}
	})
	err := grp.Wait()
	s.wg.Wait()
	s.logger.Info("stopped", zap.Stringer("addr", ln.Addr()))
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServeConn serves exchanges on conn until the connection ends, then closes
// it. Cancelling ctx closes conn.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	logger := s.logger.With(
		zap.String("conn", uuid.NewString()),
		zap.Stringer("remote", conn.RemoteAddr()))
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()

	if tc, ok := conn.(*tls.Conn); ok {
		hctx, cancel := ctx, context.CancelFunc(func() {})
		if s.cfg.ReadTimeout > 0 {
			hctx, cancel = context.WithTimeout(ctx, s.cfg.ReadTimeout)
		}
		err := tc.HandshakeContext(hctx)
		cancel()
		if err != nil {
			logger.Debug("tls handshake failed", zap.Error(err))
			return
		}
	}

	proc := http.NewProcessor(s.http, s.resolver, s.errors,
		http.WithLogger(logger),
		http.WithObserver(exchangeLogger(logger)))
	tc := &timeoutConn{Conn: conn, read: s.cfg.ReadTimeout, write: s.cfg.WriteTimeout}
	r := linereader.New(tc)
	w := bufio.NewWriter(tc)

	logger.Debug("connection opened")
	for n := 0; ; n++ {
		persist, err := proc.Process(r, w)
		switch {
		case err == io.EOF:
			logger.Debug("connection closed by peer", zap.Int("exchanges", n))
			return
		case err != nil && ctx.Err() != nil:
			logger.Debug("connection closed on shutdown", zap.Int("exchanges", n))
			return
		case err != nil:
			logger.Warn("connection failed", zap.Int("exchanges", n), zap.Error(err))
			return
		case !persist:
			logger.Debug("connection closed", zap.Int("exchanges", n+1))
			return
		}
	}
}

// exchangeLogger returns an observer logging each exchange at debug level.
func exchangeLogger(logger *zap.Logger) func(http.Exchange) {
	return func(x http.Exchange) {
		if !logger.Core().Enabled(zap.DebugLevel) {
			return
		}
		fields := []zap.Field{
			zap.Int("status", x.Response.Status),
			zap.Bool("persist", x.Persist),
		}
		if x.Request != nil {
			fields = append(fields,
				zap.String("method", string(x.Request.Method())),
				zap.Stringer("target", x.Request.Target()))
			if head := x.Request.RawHead(); len(head) > 0 {
				fields = append(fields, zap.ByteString("head", head))
			}
		}
		if x.Err != nil {
			fields = append(fields, zap.Error(x.Err))
		}
		fields = append(fields, snapshot.Field("exchange", snapshot.Exchange(x)))
		logger.Debug("exchange", fields...)
	}
}

// timeoutConn extends the connection deadline before every read and write.
type timeoutConn struct {
	net.Conn
	read, write time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
