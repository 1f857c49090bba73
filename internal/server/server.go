// Package server wires together the socket layer, the work-stealing pool or
// reactor, the file handler, and per-IP admission control into the two
// runnable server modes: pool mode (blocking accept loop, one task per
// connection) and reactor mode (single-threaded, readiness-driven).
package server

import (
	"fmt"
	"sync/atomic"

	"github.com/nabbar/staticd/internal/admission"
	"github.com/nabbar/staticd/internal/filecache"
	"github.com/nabbar/staticd/internal/fileserve"
	"github.com/nabbar/staticd/internal/reactor"
	"github.com/nabbar/staticd/internal/sock"
	"github.com/nabbar/staticd/internal/wspool"
)

// Logger is the subset of logging this package needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Config describes how to build and run a Server.
type Config struct {
	Port       int
	Threads    int
	DocRoot    string
	CacheSize  int
	UseReactor bool
	Log        Logger
}

// Server is either a pool-mode (blocking accept + worker pool) or
// reactor-mode (single-threaded, non-blocking) static file server,
// selected once at construction time by Config.UseReactor.
type Server struct {
	cfg     Config
	handler *fileserve.Handler
	admit   *admission.Table
	running atomic.Bool

	ln   *sock.Listener
	pool *wspool.Pool

	reactorStop chan struct{}
	reactorDone chan error
}

// New builds a Server from cfg. It does not bind a socket yet; call Start
// for that.
func New(cfg Config) (*Server, error) {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1024
	}

	cache := filecache.New(cfg.CacheSize)
	handler, err := fileserve.New(cfg.DocRoot, cache)
	if err != nil {
		return nil, fmt.Errorf("server: building file handler: %w", err)
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		admit:   admission.New(),
	}, nil
}

// Start binds the listening socket and launches the selected server mode.
// It returns once the server is accepting connections. Errors encountered
// afterward are not logged: a failed accept is retried until Stop, and an
// error that ends the reactor loop is collected and dropped by Stop.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server: already running")
	}

	ln, err := sock.Listen(s.cfg.Port)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("server: listen: %w", err)
	}
	s.ln = ln

	if s.cfg.UseReactor {
		return s.startReactor()
	}
	return s.startPool()
}

func (s *Server) startPool() error {
	s.pool = wspool.New(s.cfg.Threads)
	s.logf("Server started on port %d (thread-pool mode, %d workers)", s.cfg.Port, s.cfg.Threads)

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			continue
		}
		c := conn
		if err := s.pool.Submit(func() { s.handleConnection(c) }); err != nil {
			c.Close()
		}
	}
}

func (s *Server) startReactor() error {
	rc, err := reactor.New(s.ln.TCPListener(), s.handler, s.admit, s.cfg.Log)
	if err != nil {
		return fmt.Errorf("server: building reactor: %w", err)
	}

	s.reactorStop = make(chan struct{})
	s.reactorDone = make(chan error, 1)
	s.logf("Server started on port %d (reactor mode)", s.cfg.Port)

	go func() {
		s.reactorDone <- rc.Run(s.reactorStop)
	}()
	return nil
}

// Stop shuts down whichever mode is running and waits for it to quiesce.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	if s.ln != nil {
		s.ln.Close()
	}
	if s.pool != nil {
		s.pool.Shutdown()
	}
	if s.reactorStop != nil {
		close(s.reactorStop)
		<-s.reactorDone
	}
	s.logf("Server stopped")
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.cfg.Log != nil {
		s.cfg.Log.Infof(format, args...)
	}
}
