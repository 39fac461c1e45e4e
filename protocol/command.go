// Package protocol defines the Minesweeper text protocol: the commands a
// client may send, one per line, and the fixed replies the server writes back.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCommand is returned by Parse for any line that is not a well-formed command.
var ErrInvalidCommand = errors.New("invalid command")

// Kind identifies a protocol command.
type Kind int

const (
	Look Kind = iota
	Dig
	Flag
	Deflag
	Help
	Bye
)

// String returns the command verb as it appears on the wire.
func (k Kind) String() string {
	switch k {
	case Look:
		return "look"
	case Dig:
		return "dig"
	case Flag:
		return "flag"
	case Deflag:
		return "deflag"
	case Help:
		return "help"
	case Bye:
		return "bye"
	default:
		return "unknown"
	}
}

// Command is a parsed client request. X and Y are only meaningful for Dig,
// Flag and Deflag.
type Command struct {
	Kind Kind
	X    int
	Y    int
}

// String formats the command as the line that would produce it.
func (c Command) String() string {
	if c.Kind.takesCoordinates() {
		return fmt.Sprintf("%s %d %d", c.Kind, c.X, c.Y)
	}

	return c.Kind.String()
}

var verbs = map[string]Kind{
	"look":   Look,
	"dig":    Dig,
	"flag":   Flag,
	"deflag": Deflag,
	"help":   Help,
	"bye":    Bye,
}

func (k Kind) takesCoordinates() bool {
	return k == Dig || k == Flag || k == Deflag
}

// Parse interprets one line of client input. Surrounding whitespace and the
// line terminator are ignored; verbs are case-sensitive. Coordinate
// commands take exactly two non-negative base-10 integers, X (column) then
// Y (row).
//
// Parameters:
//   - line: A single line received from the client
//
// Returns:
//   - The parsed Command, or an error wrapping ErrInvalidCommand
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	kind, ok := verbs[fields[0]]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, fields[0])
	}

	if !kind.takesCoordinates() {
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%w: %s takes no arguments", ErrInvalidCommand, kind)
		}

		return Command{Kind: kind}, nil
	}

	if len(fields) != 3 {
		return Command{}, fmt.Errorf("%w: %s takes two coordinates", ErrInvalidCommand, kind)
	}

	x, err := parseCoordinate(fields[1])
	if err != nil {
		return Command{}, err
	}

	y, err := parseCoordinate(fields[2])
	if err != nil {
		return Command{}, err
	}

	return Command{Kind: kind, X: x, Y: y}, nil
}

func parseCoordinate(s string) (int, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: coordinate %q is not a non-negative integer", ErrInvalidCommand, s)
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q: %v", ErrInvalidCommand, s, err)
	}

	return n, nil
}
