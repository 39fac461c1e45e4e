// Package minesweeper serves one shared Minesweeper board to many TCP
// clients speaking the line protocol defined in package protocol.
package minesweeper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cyberinferno/minesweeper/board"
	"github.com/cyberinferno/minesweeper/logger"
	"github.com/cyberinferno/minesweeper/tcpserver"
	"github.com/cyberinferno/minesweeper/viewcache"
)

// MaxLineLength is the longest command line a client may send. Longer
// lines end the session.
const MaxLineLength = 4096

// ServerConfig holds the server settings the bootstrap resolves.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":4444".
	Addr string
	// Debug keeps a session open after it detonates a bomb.
	Debug bool
	// WriteTimeout bounds each reply write; 0 means no timeout.
	WriteTimeout time.Duration
}

// Server owns the shared board and the TCP server whose sessions play on it.
type Server struct {
	cfg    ServerConfig
	board  *board.Board
	views  viewcache.ViewCache
	logger logger.Logger
	tcp    *tcpserver.TCPServer
}

// NewServer wires a board, a view cache and a logger into a server that is
// not yet listening.
//
// Parameters:
//   - cfg: Listen address, debug mode and write timeout
//   - b: The board shared by every session
//   - views: Cache for rendered views; nil disables caching
//   - log: Logger for server and session events
//
// Returns:
//   - A new *Server; call Start to accept clients
func NewServer(cfg ServerConfig, b *board.Board, views viewcache.ViewCache, log logger.Logger) *Server {
	if views == nil {
		views = viewcache.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		board:  b,
		views:  views,
		logger: log,
	}
	s.tcp = tcpserver.New("minesweeper", cfg.Addr, log, s.newSession)

	return s
}

// Start begins accepting clients.
func (s *Server) Start() error {
	w, h := s.board.Dimensions()
	s.logger.Info("board ready",
		logger.Field{Key: "width", Value: w},
		logger.Field{Key: "height", Value: h},
		logger.Field{Key: "debug", Value: s.cfg.Debug},
	)

	return s.tcp.Start()
}

// Stop disconnects every client and stops accepting new ones. The board
// itself is left as is.
func (s *Server) Stop() {
	s.tcp.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if n, err := s.views.Purge(ctx); err != nil {
		s.logger.Warn("failed to purge view cache", logger.Field{Key: "error", Value: err})
	} else if n > 0 {
		s.logger.Debug("purged view cache", logger.Field{Key: "entries", Value: n})
	}
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.tcp.Addr()
}

// Players returns the number of connected clients.
func (s *Server) Players() int {
	return s.tcp.SessionCount()
}

// SessionStates counts connected sessions by protocol state.
func (s *Server) SessionStates() map[SessionState]int {
	counts := make(map[SessionState]int, 3)
	s.tcp.RangeSessions(func(ts tcpserver.TCPServerSession) bool {
		if session, ok := ts.(*Session); ok {
			counts[session.State()]++
		}
		return true
	})

	return counts
}

// Board returns the shared board.
func (s *Server) Board() *board.Board {
	return s.board
}

// render returns the current board view. It asks the view cache for the
// current version and only lets the cache store text rendered at exactly
// that version; on any cache failure it renders directly.
func (s *Server) render(ctx context.Context) string {
	version := s.board.Version()

	text, err := s.views.View(ctx, version, func(ctx context.Context) (string, error) {
		text, at := s.board.Snapshot()
		if at != version {
			return "", fmt.Errorf("%w: want version %d, board at %d", viewcache.ErrStale, version, at)
		}

		return text, nil
	})
	if err != nil {
		if !errors.Is(err, viewcache.ErrStale) {
			s.logger.Warn("view cache unavailable", logger.Field{Key: "error", Value: err})
		}

		return s.board.Render()
	}

	return text
}

func (s *Server) newSession(id uint32, conn net.Conn) tcpserver.TCPServerSession {
	return newSession(id, conn, s)
}
