// Package stubserver is a minimal HackNet game server that speaks the
// client wire format. It backs the integration tests and `hnmp stub`,
// which lets the client be exercised without a real server.
package stubserver

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler serves one accepted connection. Handle owns conn and must close it.
type Handler interface {
	Handle(ctx context.Context, conn *net.TCPConn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *net.TCPConn)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, conn *net.TCPConn) { f(ctx, conn) }

// Server accepts client connections and hands each one to a Handler.
type Server struct {
	listener *net.TCPListener
	logger   *slog.Logger
	grace    time.Duration

	mu       sync.Mutex
	stopping bool
	closeNow chan struct{} // Close skips the remaining grace period
	sessions sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// LoggerOption sets the logger for the server.
func LoggerOption(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// ShutdownTimeoutOption sets how long Serve keeps accepting after its
// context is canceled. Default is 0 (immediate shutdown).
func ShutdownTimeoutOption(timeout time.Duration) Option {
	return func(s *Server) {
		s.grace = timeout
	}
}

// New creates a server bound to addr ("host:port"; port 0 picks a free one).
func New(addr string, opts ...Option) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}
	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	s := &Server{
		listener: listener,
		logger:   slog.Default(),
		closeNow: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve accepts connections until ctx is canceled or Close is called, then
// cancels every session context and waits for the handlers to return.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("stub server started", "addr", s.listener.Addr())

	sessionCtx, endSessions := context.WithCancel(ctx)
	defer func() {
		endSessions()
		s.sessions.Wait()
	}()

	go s.drainAfter(ctx)

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			if s.isStopping() {
				s.logger.Info("stub server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return errors.Wrap(err, "accept")
		}

		s.logger.Debug("session opened", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			handler.Handle(sessionCtx, conn)
		}()
	}
}

// drainAfter stops accepting once ctx is done and the grace period, if
// any, has run out.
func (s *Server) drainAfter(ctx context.Context) {
	<-ctx.Done()

	if s.grace > 0 {
		s.logger.Info("draining", "grace", s.grace)
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.closeNow:
			s.logger.Debug("grace period cut short by Close")
		}
	}

	s.setStopping()
	// wake the blocked AcceptTCP
	_ = s.listener.SetDeadline(time.Now())
}

func (s *Server) setStopping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Close stops accepting immediately, even during a grace period.
func (s *Server) Close() error {
	s.setStopping()

	select {
	case s.closeNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() *net.TCPAddr {
	return s.listener.Addr().(*net.TCPAddr)
}
