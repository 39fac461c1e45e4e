// Package tcpserver provides a TCP accept loop that runs one session per
// connection in its own goroutine and keeps a registry of live sessions.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/minesweeper/idgenerator"
	"github.com/cyberinferno/minesweeper/logger"
	"github.com/cyberinferno/minesweeper/safemap"
)

// ErrAlreadyRunning is returned by Start when the server is already accepting connections.
var ErrAlreadyRunning = errors.New("server already running")

// NewSessionFunc creates the session for an accepted connection. It receives
// the assigned session ID and the connection, and returns the
// TCPServerSession that will own it.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// TCPServer accepts connections and delegates each one to a session created
// by its NewSessionFunc. A session is registered before its Handle starts
// and is removed and closed as soon as Handle returns.
type TCPServer struct {
	logger     logger.Logger
	name       string
	addr       string
	newSession NewSessionFunc
	ids        *idgenerator.IdGenerator
	sessions   *safemap.SafeMap[uint32, TCPServerSession]
	running    atomic.Bool

	mu        sync.Mutex
	listener  net.Listener
	acceptWg  sync.WaitGroup
	sessionWg sync.WaitGroup
}

// New creates a TCPServer that is not yet listening.
//
// Parameters:
//   - name: Server name used in log entries
//   - addr: Listen address, e.g. ":4444" or "127.0.0.1:0"
//   - log: Logger for lifecycle and accept errors
//   - newSession: Factory invoked for every accepted connection
//
// Returns:
//   - A new *TCPServer; call Start to begin accepting
func New(name, addr string, log logger.Logger, newSession NewSessionFunc) *TCPServer {
	return &TCPServer{
		logger:     log.With(logger.Field{Key: "server", Value: name}),
		name:       name,
		addr:       addr,
		newSession: newSession,
		ids:        idgenerator.NewIdGenerator(0),
		sessions:   safemap.NewSafeMap[uint32, TCPServerSession](),
	}
}

// Start binds to the configured address and runs the accept loop in a
// goroutine.
//
// Returns:
//   - An error wrapping ErrAlreadyRunning, or the listen error
func (s *TCPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%s: %w", s.name, ErrAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("server failed to start", logger.Field{Key: "error", Value: err})
		return fmt.Errorf("server %s failed to start: %w", s.name, err)
	}

	s.listener = ln
	s.running.Store(true)
	s.logger.Info("server started", logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.acceptWg.Add(1)
	go s.acceptLoop(ln)

	return nil
}

// Stop closes the listener, waits for the accept loop to exit, closes every
// live session and waits for their goroutines to finish. Safe to call when the
// server is not running.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}

	s.running.Store(false)
	_ = s.listener.Close()
	s.mu.Unlock()

	// No new sessions can be registered once the accept loop is gone.
	s.acceptWg.Wait()
	s.sessions.Range(func(_ uint32, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})

	s.sessionWg.Wait()
	s.logger.Info("server stopped", logger.Field{Key: "sessions_served", Value: s.ids.Last()})
}

// Addr returns the address the server is listening on, or nil before Start.
// Useful when the configured port is 0.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// SessionCount returns the number of sessions currently registered.
func (s *TCPServer) SessionCount() int {
	return s.sessions.Len()
}

// RangeSessions calls f for each live session until f returns false.
func (s *TCPServer) RangeSessions(f func(session TCPServerSession) bool) {
	s.sessions.Range(func(_ uint32, session TCPServerSession) bool {
		return f(session)
	})
}

// acceptLoop accepts connections until the listener is closed. Each
// connection gets an ID, a session registered under that ID, and a
// goroutine running serve.
func (s *TCPServer) acceptLoop(ln net.Listener) {
	defer s.acceptWg.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			delay = nextAcceptDelay(delay)
			s.logger.Error("accept error",
				logger.Field{Key: "error", Value: err},
				logger.Field{Key: "retry_in", Value: delay.String()},
			)
			time.Sleep(delay)
			continue
		}

		delay = 0
		id := s.ids.Id()
		session := s.newSession(id, conn)
		s.sessions.Store(id, session)

		s.sessionWg.Add(1)
		go s.serve(id, session)
	}
}

// serve runs the session and tears it down once Handle returns.
func (s *TCPServer) serve(id uint32, session TCPServerSession) {
	defer s.sessionWg.Done()
	defer func() {
		if _, ok := s.sessions.LoadAndDelete(id); ok {
			_ = session.Close()
		}
	}()

	session.Handle()
}

// nextAcceptDelay backs off between consecutive accept failures, from 5ms
// doubling up to one second.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}

	if next := prev * 2; next < time.Second {
		return next
	}

	return time.Second
}
