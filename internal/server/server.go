package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
	DefaultShutdownTimeout = 10 * time.Second

	// readHeaderTimeout limits how long a client may take to send request headers.
	readHeaderTimeout = 10 * time.Second
)

// Server runs a handler on a TCP listener, one goroutine per connection.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	handler         http.Handler
	addr            string
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	err        error
}

// NewServer creates a new HTTP [Server] listening on addr.
//
// The server is not started until [Server.Start] is called. A non-positive
// shutdownTimeout selects [DefaultShutdownTimeout].
func NewServer(handler http.Handler, addr string, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:         handler,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		done:            make(chan struct{}),
	}
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. When ctx is
// cancelled the server stops accepting connections, every request context is
// cancelled, and in-flight requests get up to the shutdown timeout to finish
// before their connections are closed.
//
// Returns an error if the server fails to bind or was already started.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("server already started")
	}

	// create listener first to verify port availability synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// which unwinds long-running log-tail streams.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	serveErr := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()

	go s.awaitShutdown(ctx, serveErr)

	return nil
}

// awaitShutdown stops the server when ctx ends, or records the error if
// serving stops on its own.
func (s *Server) awaitShutdown(ctx context.Context, serveErr <-chan error) {
	defer close(s.done)

	select {
	case err := <-serveErr:
		if err != nil {
			s.logger.Error("http server error", "error", err)
		}
		s.setErr(err)
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown incomplete, abandoning in-flight requests",
			"timeout", s.shutdownTimeout.String(),
			"error", err,
		)
		_ = s.httpServer.Close()
	}

	if err := <-serveErr; err != nil {
		s.setErr(err)
	}
}

func (s *Server) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Addr returns the bound listener address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Wait blocks until the server has stopped and returns the serve error, if
// any. Wait must only be called after a successful [Server.Start].
func (s *Server) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
