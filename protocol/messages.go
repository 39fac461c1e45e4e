package protocol

import (
	"fmt"

	"github.com/cyberinferno/minesweeper/utils"
)

const (
	// BoomMessage is sent when a dig detonates a bomb.
	BoomMessage = "BOOM!"
	// InvalidInputMessage is sent for any line Parse rejects.
	InvalidInputMessage = "Invalid input"
	// WelcomePrefix starts every greeting.
	WelcomePrefix = "Welcome"
)

// HelpText lists the accepted commands.
const HelpText = "Commands: look | dig X Y | flag X Y | deflag X Y | help | bye. " +
	"X is the column and Y the row, both counted from 0 at the top-left corner."

// Welcome returns the greeting sent once when a client connects.
//
// Parameters:
//   - players: Number of connected players, including the new one
//   - width: Board columns
//   - height: Board rows
//
// Returns:
//   - The greeting line, without a trailing newline
func Welcome(players, width, height int) string {
	return fmt.Sprintf("%s to Minesweeper. Players: %d including you. Board: %d columns by %d rows. Type 'help' for help.",
		WelcomePrefix, players, width, height)
}

// Frame terminates every line of msg with a newline so it can be written to
// the connection as is. A multi-line board render becomes one wire line per row.
func Frame(msg string) []byte {
	return utils.JoinBytes([]byte(msg), newline)
}

var newline = []byte{'\n'}
