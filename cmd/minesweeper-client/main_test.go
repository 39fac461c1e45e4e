package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardLines(t *testing.T) {
	t.Run("sends every line then bye", func(t *testing.T) {
		var sent []string
		err := forwardLines(context.Background(), strings.NewReader("look\ndig 1 2\n"), func(line string) error {
			sent = append(sent, line)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"look", "dig 1 2", "bye"}, sent)
	})

	t.Run("send error stops forwarding", func(t *testing.T) {
		boom := errors.New("write failed")
		err := forwardLines(context.Background(), strings.NewReader("look\nlook\n"), func(string) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("cancelled context returns", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pw.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, forwardLines(ctx, pr, func(string) error { return nil }))
	})
}

func TestReadLines_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody receives from lines, so the reader must notice ctx instead of
	// blocking on the first send.
	_, _, done := readLines(ctx, strings.NewReader("look\nlook\n"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine still running after cancellation")
	}
}

func TestReadLines_EndOfInput(t *testing.T) {
	lines, readErr, done := readLines(context.Background(), strings.NewReader("help\n"))

	assert.Equal(t, "help", <-lines)
	assert.NoError(t, <-readErr)
	<-done
}
