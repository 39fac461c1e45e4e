// Command minesweeper-client is an interactive terminal client: every line
// typed is sent to the server and every line the server sends is printed.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/minesweeper/eventdriventcpclient"
)

// defaultMaxLine fits rows of boards up to 512Ki columns.
const defaultMaxLine = 1 << 20

var errServerClosed = errors.New("server closed the connection")

func main() {
	addr := flag.String("addr", "localhost:4444", "server address")
	timeout := flag.Duration("timeout", 10*time.Second, "connect and write timeout")
	maxLine := flag.Int("max-line", defaultMaxLine, "longest server line accepted, in bytes; a board row takes 2*columns-1")
	flag.Parse()

	if err := run(*addr, *timeout, *maxLine); err != nil && !errors.Is(err, errServerClosed) && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr string, timeout time.Duration, maxLine int) error {
	cfg := eventdriventcpclient.DefaultEventDrivenTCPClientConfig(addr)
	cfg.ConnectionTimeout = timeout
	cfg.WriteTimeout = timeout
	cfg.ReadBufferSize = maxLine

	client := eventdriventcpclient.NewEventDrivenTCPClient(cfg)
	defer func() { _ = client.Close() }()

	out := bufio.NewWriter(os.Stdout)
	client.OnDataReceived(func(event eventdriventcpclient.DataReceivedEvent) {
		_, _ = out.Write(event.Data)
		_ = out.WriteByte('\n')
		_ = out.Flush()
	})

	hangup := make(chan error, 1)
	client.OnConnectionState(func(event eventdriventcpclient.ConnectionStateEvent) {
		if event.State == eventdriventcpclient.Disconnected {
			select {
			case hangup <- event.Error:
			default:
			}
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-hangup:
			if err != nil {
				return err
			}
			return errServerClosed
		}
	})
	g.Go(func() error {
		return forwardLines(ctx, os.Stdin, client.SendLine)
	})

	return g.Wait()
}

// forwardLines sends each line read from r. At end of input it sends bye so
// the server ends the session.
func forwardLines(ctx context.Context, r io.Reader, send func(line string) error) error {
	lines, readErr, _ := readLines(ctx, r)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return err
			}
			return send("bye")
		case line := <-lines:
			if err := send(line); err != nil {
				return err
			}
		}
	}
}

// readLines scans r on its own goroutine. The goroutine stops at end of
// input, on a read error or once ctx is done; done is closed when it exits.
func readLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error, <-chan struct{}) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr, done
}
