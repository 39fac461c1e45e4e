package minesweeper

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/minesweeper/board"
	"github.com/cyberinferno/minesweeper/logger"
	"github.com/cyberinferno/minesweeper/perfmonitor"
	"github.com/cyberinferno/minesweeper/protocol"
)

// SessionState is the protocol state of a connection.
type SessionState int32

const (
	Greeting SessionState = iota // Connected, welcome not yet sent
	Active                       // Reading commands
	Closing                      // Terminal: bye, detonation outside debug mode, or I/O failure
)

// String returns a human-readable name for the session state.
func (st SessionState) String() string {
	switch st {
	case Greeting:
		return "Greeting"
	case Active:
		return "Active"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Session is one client connection. It holds no board data of its own; it
// reads one command per line, applies it to the shared board and writes the
// reply before reading the next line.
type Session struct {
	id     uint32
	conn   net.Conn
	server *Server
	logger logger.Logger
	state  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newSession(id uint32, conn net.Conn, server *Server) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:     id,
		conn:   conn,
		server: server,
		logger: server.logger.With(
			logger.Field{Key: "session", Value: id},
			logger.Field{Key: "remote", Value: conn.RemoteAddr().String()},
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID implements tcpserver.TCPServerSession.
func (s *Session) ID() uint32 {
	return s.id
}

// State returns the session's current protocol state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Handle implements tcpserver.TCPServerSession. It greets the client and
// then serves commands until the session reaches Closing.
func (s *Session) Handle() {
	s.logger.Info("player connected", logger.Field{Key: "players", Value: s.server.Players()})
	defer s.logger.Info("player disconnected")
	defer s.state.Store(int32(Closing))

	w, h := s.server.board.Dimensions()
	if !s.reply(protocol.Welcome(s.server.Players(), w, h)) {
		return
	}

	s.state.Store(int32(Active))

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 256), MaxLineLength)
	for scanner.Scan() {
		if !s.handleLine(scanner.Text()) {
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.logger.Warn("line too long, closing session")
		} else {
			s.logger.Debug("read failed", logger.Field{Key: "error", Value: err})
		}
	}
}

// handleLine executes one command line and reports whether the session
// should keep reading.
func (s *Session) handleLine(line string) bool {
	cmd, err := protocol.Parse(line)
	if err != nil {
		s.logger.Debug("invalid input", logger.Field{Key: "error", Value: err})
		return s.reply(protocol.InvalidInputMessage)
	}

	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	defer func() {
		pm.Stop()
		s.logger.Debug("command executed",
			logger.Field{Key: "command", Value: cmd.String()},
			logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
		)
	}()

	b := s.server.board
	switch cmd.Kind {
	case protocol.Look:
		return s.reply(s.server.render(s.ctx))

	case protocol.Dig:
		if b.Dig(cmd.X, cmd.Y) != board.HitBomb {
			return s.reply(s.server.render(s.ctx))
		}

		s.logger.Info("bomb detonated",
			logger.Field{Key: "x", Value: cmd.X},
			logger.Field{Key: "y", Value: cmd.Y},
		)
		if !s.reply(protocol.BoomMessage) {
			return false
		}

		return s.server.cfg.Debug

	case protocol.Flag:
		b.Flag(cmd.X, cmd.Y)
		return s.reply(s.server.render(s.ctx))

	case protocol.Deflag:
		b.Deflag(cmd.X, cmd.Y)
		return s.reply(s.server.render(s.ctx))

	case protocol.Help:
		return s.reply(protocol.HelpText)

	case protocol.Bye:
		return false
	}

	return s.reply(protocol.InvalidInputMessage)
}

// reply sends msg as newline-terminated lines and reports whether the write
// succeeded.
func (s *Session) reply(msg string) bool {
	if err := s.Send(protocol.Frame(msg)); err != nil {
		s.logger.Debug("write failed", logger.Field{Key: "error", Value: err})
		return false
	}

	return true
}

// Send implements tcpserver.TCPServerSession.
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if timeout := s.server.cfg.WriteTimeout; timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	_, err := s.conn.Write(data)
	return err
}

// Close implements tcpserver.TCPServerSession. Only the first call closes
// the connection; later calls return the same result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		s.cancel()
		s.closeErr = s.conn.Close()
	})

	return s.closeErr
}
