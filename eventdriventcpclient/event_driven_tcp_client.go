// Package eventdriventcpclient provides an event-driven TCP client that notifies
// callers of connection state changes, received data, and errors via registered
// handlers. It supports newline-framed or raw chunk reads, optional
// auto-reconnect and configurable timeouts.
package eventdriventcpclient

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var (
	// ErrClientClosed is returned by Connect after Close.
	ErrClientClosed = errors.New("client is closed")
	// ErrAlreadyConnected is returned by Connect while connected or connecting.
	ErrAlreadyConnected = errors.New("already connected or connecting")
	// ErrNotConnected is returned by Send when there is no live connection.
	ErrNotConnected = errors.New("not connected")
)

// ConnectionState represents the current state of the TCP connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Connection attempt in progress
	Connected                           // Successfully connected
	Reconnecting                        // Disconnected and attempting to reconnect (when AutoReconnect is enabled)
	Closed                              // Client has been closed and will not reconnect
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Framing selects how the read loop splits the incoming byte stream into
// DataReceivedEvents.
type Framing int

const (
	RawFraming  Framing = iota // Whatever a single Read returned, up to ReadBufferSize bytes
	LineFraming                // One event per '\n'-terminated line, terminator and trailing '\r' removed
)

// ConnectionStateEvent is emitted when the connection state changes.
// It is passed to the handler registered with OnConnectionState.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The remote address (e.g. "host:port")
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the state change was due to an error
}

// DataReceivedEvent is emitted when data is read from the connection.
// It is passed to the handler registered with OnDataReceived.
type DataReceivedEvent struct {
	Data      []byte    // The received bytes; owned by the handler
	Length    int       // Length of Data (same as len(Data))
	Timestamp time.Time // When the data was received
}

// ErrorEvent is emitted when a read, write, or connection error occurs.
// It is passed to the handler registered with OnError.
type ErrorEvent struct {
	Error     error     // The error that occurred
	Timestamp time.Time // When the error occurred
}

// ConnectionStateHandler is called when the connection state changes.
// Handlers are invoked from goroutines; implementations must be safe for concurrent use.
type ConnectionStateHandler func(event ConnectionStateEvent)

// DataReceivedHandler is called when data is received from the connection.
// It runs on the read goroutine, so events arrive in stream order and the
// next read waits until the handler returns.
type DataReceivedHandler func(event DataReceivedEvent)

// ErrorHandler is called when a read, write, or connection error occurs.
// Handlers are invoked from goroutines; implementations must be safe for concurrent use.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the event-driven TCP client.
type Config struct {
	// Address is the "host:port" to connect to (e.g. "localhost:4444").
	Address string
	// AutoReconnect enables automatic reconnection when the connection is lost.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts when AutoReconnect is true.
	ReconnectInterval time.Duration
	// Framing selects raw chunk or line-based reads.
	Framing Framing
	// ReadBufferSize is the chunk size for RawFraming and the longest
	// accepted line for LineFraming.
	ReadBufferSize int
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout is the max duration to wait for read data; 0 means no timeout.
	ReadTimeout time.Duration
	// ConnectionTimeout is the max duration for establishing a new connection.
	ConnectionTimeout time.Duration
}

// DefaultEventDrivenTCPClientConfig returns a Config with default values for the given address.
// AutoReconnect is false; override fields as needed before passing to NewEventDrivenTCPClient.
//
// Parameters:
//   - address: The "host:port" to connect to
//
// Returns:
//   - A Config with defaults: ReconnectInterval 5s, LineFraming, ReadBufferSize 4096,
//     WriteTimeout 10s, ConnectionTimeout 10s, ReadTimeout 0.
func DefaultEventDrivenTCPClientConfig(address string) Config {
	return Config{
		Address:           address,
		AutoReconnect:     false,
		ReconnectInterval: 5 * time.Second,
		Framing:           LineFraming,
		ReadBufferSize:    4096,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       0,
		ConnectionTimeout: 10 * time.Second,
	}
}

// EventDrivenTCPClient is a TCP client that drives I/O and connection lifecycle
// via events. Register handlers with OnConnectionState, OnDataReceived, and OnError,
// then call Connect to start. It is safe for concurrent use.
type EventDrivenTCPClient struct {
	config Config
	conn   net.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onDataReceived    DataReceivedHandler
	onError           ErrorHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex
	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
	reconnectLoop bool
}

// NewEventDrivenTCPClient creates a new event-driven TCP client with the given config.
// The client starts in Disconnected state; call Connect to establish a connection.
//
// Parameters:
//   - config: Connection and behavior settings (e.g. from DefaultEventDrivenTCPClientConfig)
//
// Returns:
//   - A new *EventDrivenTCPClient ready to use; call Close when done to release resources.
func NewEventDrivenTCPClient(config Config) *EventDrivenTCPClient {
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	return &EventDrivenTCPClient{
		config:        config,
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Only one handler is active; repeated calls replace the previous handler.
func (c *EventDrivenTCPClient) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnDataReceived registers the handler for incoming data.
// Only one handler is active; repeated calls replace the previous handler.
func (c *EventDrivenTCPClient) OnDataReceived(handler DataReceivedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataReceived = handler
}

// OnError registers the handler for read, write, and connection errors.
// Only one handler is active; repeated calls replace the previous handler.
func (c *EventDrivenTCPClient) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect establishes a TCP connection to the configured address and starts
// the read goroutine.
//
// Returns:
//   - nil on success; ErrClientClosed, ErrAlreadyConnected or the dial error otherwise
func (c *EventDrivenTCPClient) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	return c.connect()
}

// Disconnect closes the current connection and moves to Disconnected state.
// It does not set the client to Closed; Connect may be called again.
func (c *EventDrivenTCPClient) Disconnect() error {
	c.mu.Lock()
	if c.state == Disconnected || c.state == Closed {
		c.mu.Unlock()
		return nil
	}

	err := c.disconnectLocked()
	c.mu.Unlock()

	c.emitConnectionState(Disconnected, nil)
	return err
}

// disconnectLocked closes the connection; caller must hold c.mu.
func (c *EventDrivenTCPClient) disconnectLocked() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.state = Disconnected

	return err
}

// Close shuts down the client, closes the connection, and stops all goroutines.
// After Close, the client is in Closed state and must not be used further.
// Calling Close more than once is a no-op.
func (c *EventDrivenTCPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.setState(Closed, nil)

	return nil
}

// Send writes data to the connection. When WriteTimeout is set, each write is
// limited to that duration. On write error the error handler is invoked and a
// reconnect may be triggered.
//
// Parameters:
//   - data: Bytes to send; not modified
//
// Returns:
//   - nil on success; ErrNotConnected or the write error otherwise
func (c *EventDrivenTCPClient) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	_, err := conn.Write(data)
	if err != nil {
		c.emitError(err)
		c.triggerReconnect()
	}

	return err
}

// SendLine writes line followed by a newline.
func (c *EventDrivenTCPClient) SendLine(line string) error {
	return c.Send(append([]byte(line), '\n'))
}

// GetState returns the current connection state.
func (c *EventDrivenTCPClient) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *EventDrivenTCPClient) IsConnected() bool {
	return c.GetState() == Connected
}

func (c *EventDrivenTCPClient) connect() error {
	c.setState(Connecting, nil)

	dialer := net.Dialer{
		Timeout: c.config.ConnectionTimeout,
	}

	conn, err := dialer.Dial("tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	startReconnectLoop := c.config.AutoReconnect && !c.reconnectLoop
	if startReconnectLoop {
		c.reconnectLoop = true
		c.wg.Add(1)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.setState(Connected, nil)

	go c.readLoop(conn)

	if startReconnectLoop {
		go c.reconnectHandler()
	}

	return nil
}

// readLoop reads from conn until it fails, emitting one event per frame.
func (c *EventDrivenTCPClient) readLoop(conn net.Conn) {
	defer c.wg.Done()

	var err error
	if c.config.Framing == LineFraming {
		err = c.readLines(conn)
	} else {
		err = c.readChunks(conn)
	}

	if c.isClosed() {
		return
	}

	c.mu.Lock()
	current := c.conn == conn
	if current {
		_ = c.disconnectLocked()
	}
	c.mu.Unlock()

	if !current {
		return
	}

	c.emitConnectionState(Disconnected, err)
	if err != nil {
		c.emitError(err)
	}
	c.triggerReconnect()
}

// readLines emits every complete line. A clean EOF returns nil.
func (c *EventDrivenTCPClient) readLines(conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), c.config.ReadBufferSize)

	for {
		if err := c.armReadDeadline(conn); err != nil {
			return err
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := bytes.TrimSuffix(scanner.Bytes(), []byte{'\r'})
		data := make([]byte, len(line))
		copy(data, line)
		c.emitDataReceived(data)
	}
}

// readChunks emits whatever each Read returns. A clean EOF returns nil.
func (c *EventDrivenTCPClient) readChunks(conn net.Conn) error {
	buffer := make([]byte, c.config.ReadBufferSize)

	for {
		if err := c.armReadDeadline(conn); err != nil {
			return err
		}

		n, err := conn.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])
			c.emitDataReceived(data)
		}

		if err != nil {
			if isEOF(err) {
				return nil
			}
			return err
		}
	}
}

func (c *EventDrivenTCPClient) armReadDeadline(conn net.Conn) error {
	if c.config.ReadTimeout > 0 {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	return conn.SetReadDeadline(time.Time{})
}

func (c *EventDrivenTCPClient) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
			c.mu.Lock()
			if c.reconnecting {
				c.mu.Unlock()
				continue
			}
			c.reconnecting = true
			c.mu.Unlock()

			c.setState(Reconnecting, nil)

			select {
			case <-c.stopChan:
				return
			case <-time.After(c.config.ReconnectInterval):
			}

			err := c.connect()

			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()

			if err != nil && !errors.Is(err, ErrClientClosed) {
				c.triggerReconnect()
			}
		}
	}
}

func (c *EventDrivenTCPClient) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *EventDrivenTCPClient) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.emitConnectionState(state, err)
}

func (c *EventDrivenTCPClient) emitConnectionState(state ConnectionState, err error) {
	c.mu.RLock()
	handler := c.onConnectionState
	c.mu.RUnlock()

	if handler != nil {
		event := ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		}

		go handler(event)
	}
}

func (c *EventDrivenTCPClient) emitDataReceived(data []byte) {
	c.mu.RLock()
	handler := c.onDataReceived
	c.mu.RUnlock()

	if handler != nil {
		handler(DataReceivedEvent{
			Data:      data,
			Length:    len(data),
			Timestamp: time.Now(),
		})
	}
}

func (c *EventDrivenTCPClient) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		event := ErrorEvent{
			Error:     err,
			Timestamp: time.Now(),
		}

		go handler(event)
	}
}

func (c *EventDrivenTCPClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// String describes the client for logs.
func (c *EventDrivenTCPClient) String() string {
	return fmt.Sprintf("tcp client %s (%s)", c.config.Address, c.GetState())
}
