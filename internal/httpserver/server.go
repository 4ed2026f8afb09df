package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DefaultDrainTimeout bounds how long Run waits for in-flight requests.
const DefaultDrainTimeout = 10 * time.Second

// Server wraps http.Server with address validation, explicit socket binding
// and a Running -> Draining -> Stopped lifecycle.
type Server struct {
	server       *http.Server
	logger       *slog.Logger
	drainTimeout time.Duration

	mutex    sync.Mutex
	listener net.Listener
	state    atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithDrainTimeout sets how long in-flight requests may run after shutdown
// starts.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.drainTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a new HTTP server with the given address and handler.
// The address is validated before creating the server.
func New(addr string, handler http.Handler, opts ...Option) (*Server, error) {
	if err := validateHost(addr); err != nil {
		return nil, err
	}

	srv := &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:       slog.Default(),
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(srv)
	}

	return srv, nil
}

// Listen binds the listening socket. It must succeed before Run serves.
func (s *Server) Listen() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return &BindError{Addr: s.server.Addr, Err: err}
	}
	s.listener = ln

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State reports the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Run serves until ctx is cancelled, then stops accepting connections and
// waits up to the drain timeout for in-flight requests before returning.
// It binds the socket first if Listen has not been called.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	s.mutex.Lock()
	ln := s.listener
	s.mutex.Unlock()

	s.logger.Info("Server listening", slog.String("addr", ln.Addr().String()))

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-serveErrCh:
		s.state.Store(int32(StateStopped))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-ctx.Done():
	}

	s.state.Store(int32(StateDraining))
	s.logger.Info("Draining in-flight requests", slog.Duration("timeout", s.drainTimeout))

	err := s.Shutdown(context.Background())
	<-serveErrCh
	s.state.Store(int32(StateStopped))

	return err
}

// Shutdown gracefully shuts down the server, bounded by the drain timeout.
// Connections still active when the deadline passes are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("Drain timeout exceeded, closing remaining connections")
		return errors.Join(err, s.server.Close())
	}

	return err
}

func validateHost(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)

	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
