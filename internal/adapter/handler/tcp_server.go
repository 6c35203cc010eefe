package handler

import (
	"context"
	"errors"
	"net"
	"sync"

	"pkt.systems/pslog"
)

// Server owns the TCP listener and spawns one goroutine per accepted
// connection. All connections share the single Handler (and through it the
// single inventory store constructed in cmd/server).
//
// Shutdown flow: close the listener so Serve stops accepting, wait for
// active connections up to the caller's deadline, then force-close any
// stragglers. A goroutine parked in WAIT holds its connection open until
// the force close.
type Server struct {
	addr    string
	handler *Handler
	logger  pslog.Logger

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	activeConns  sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

func NewServer(addr string, h *Handler, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Server{
		addr:     addr,
		handler:  h,
		logger:   logger,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Listen binds the TCP endpoint. Split from Serve so callers (and tests)
// can learn the bound address before serving starts.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown closes the listener. Accept
// failures are logged and do not stop the loop.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.track(conn)
		s.activeConns.Add(1)
		go func() {
			defer s.activeConns.Done()
			defer s.untrack(conn)
			s.handler.Handle(conn)
		}()
	}
}

// Shutdown stops accepting and waits for open connections until ctx
// expires, then force-closes the rest. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("listener close failed", "error", err)
			}
		}
	})

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n := s.closeAll()
		s.logger.Warn("force closed connections at shutdown", "count", n)
		return nil
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	return len(s.conns)
}
