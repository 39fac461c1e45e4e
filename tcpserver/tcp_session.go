package tcpserver

// TCPServerSession is implemented by each connection session. The server
// creates one per connection and runs Handle in its own goroutine; once
// Handle returns the server removes the session and calls Close.
type TCPServerSession interface {
	// ID returns the session's identifier assigned by the server.
	ID() uint32

	// Handle runs the session's read loop until the peer leaves, an I/O
	// error occurs or the session decides to end.
	Handle()

	// Close closes the connection. It must be safe to call multiple times
	// and concurrently with Handle and Send.
	//
	// Returns:
	//   - An error if closing failed
	Close() error

	// Send writes data to the connection. Implementations must be safe for
	// concurrent use.
	//
	// Parameters:
	//   - data: The bytes to send
	//
	// Returns:
	//   - An error if the write failed
	Send(data []byte) error
}
