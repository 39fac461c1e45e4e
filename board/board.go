// Package board implements the shared Minesweeper grid. A Board is safe for
// concurrent use: every exported method holds the board's single mutex for
// its full duration, so callers never observe a partially applied dig, flag
// or flood-fill reveal.
package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrInvalidDimensions is returned by New when width or height is not positive.
	ErrInvalidDimensions = errors.New("board dimensions must be positive")
	// ErrMineCount is returned by New when the mine grid does not hold width*height cells.
	ErrMineCount = errors.New("mine grid size does not match board dimensions")
)

// DigResult is the outcome of a Dig call.
type DigResult int

const (
	Ignored DigResult = iota // Out of bounds, already dug or flagged; nothing changed
	NoBomb                   // Cell dug safely
	HitBomb                  // Cell held a bomb; the bomb is consumed
)

// String returns a human-readable name for the dig result.
func (r DigResult) String() string {
	switch r {
	case Ignored:
		return "Ignored"
	case NoBomb:
		return "NoBomb"
	case HitBomb:
		return "HitBomb"
	default:
		return "Unknown"
	}
}

// CellState is the visible state of a cell.
type CellState uint8

const (
	Untouched CellState = iota
	Dug
	Flagged
)

type cell struct {
	mined bool
	state CellState
}

// Board is a fixed-size width x height Minesweeper grid. Cells are stored
// row-major in a flat slice indexed by y*width+x.
//
// Board must not be copied after first use.
type Board struct {
	mu      sync.Mutex
	width   int
	height  int
	cells   []cell
	version uint64
}

// New creates a board from an already resolved mine grid. The grid is read
// row-major: mines[y*width+x] reports whether the cell at column x, row y
// holds a bomb. All cells start Untouched.
//
// Parameters:
//   - width: Number of columns (must be > 0)
//   - height: Number of rows (must be > 0)
//   - mines: Row-major mine markers, exactly width*height long
//
// Returns:
//   - The new Board, or an error wrapping ErrInvalidDimensions or ErrMineCount
func New(width, height int, mines []bool) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}

	if len(mines) != width*height {
		return nil, fmt.Errorf("%w: got %d cells for %dx%d", ErrMineCount, len(mines), width, height)
	}

	cells := make([]cell, len(mines))
	for i, mined := range mines {
		cells[i].mined = mined
	}

	return &Board{
		width:  width,
		height: height,
		cells:  cells,
	}, nil
}

// Dimensions returns the board width (columns) and height (rows). They never
// change after construction.
func (b *Board) Dimensions() (width, height int) {
	return b.width, b.height
}

// Version returns a counter that increases every time a Dig, Flag or Deflag
// changes the board. Calls that turn out to be no-ops leave it unchanged.
func (b *Board) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Dig reveals the cell at column x, row y.
//
// An untouched cell becomes Dug. If it held a bomb the bomb is removed and
// HitBomb is returned; otherwise NoBomb. In both cases a flood-fill reveal
// starts from the cell. Out-of-bounds, already dug and flagged cells are
// left alone and Ignored is returned.
//
// Parameters:
//   - x: Column, zero-based from the left
//   - y: Row, zero-based from the top
//
// Returns:
//   - The DigResult describing what happened
func (b *Board) Dig(x, y int) DigResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inBounds(x, y) {
		return Ignored
	}

	c := &b.cells[b.index(x, y)]
	if c.state != Untouched {
		return Ignored
	}

	result := NoBomb
	if c.mined {
		c.mined = false
		result = HitBomb
	}

	c.state = Dug
	b.reveal(x, y)
	b.version++

	return result
}

// Flag marks an untouched cell as Flagged. Any other cell, or coordinates
// outside the board, are left unchanged.
func (b *Board) Flag(x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inBounds(x, y) {
		return
	}

	c := &b.cells[b.index(x, y)]
	if c.state == Untouched {
		c.state = Flagged
		b.version++
	}
}

// Deflag returns a Flagged cell to Untouched. Any other cell, or coordinates
// outside the board, are left unchanged.
func (b *Board) Deflag(x, y int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inBounds(x, y) {
		return
	}

	c := &b.cells[b.index(x, y)]
	if c.state == Flagged {
		c.state = Untouched
		b.version++
	}
}

// State returns the visible state of the cell at column x, row y and whether
// the coordinates are on the board.
func (b *Board) State(x, y int) (CellState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.inBounds(x, y) {
		return Untouched, false
	}

	return b.cells[b.index(x, y)].state, true
}

// Render returns the current view of the board: one line per row, tokens
// separated by a single space and no trailing newline. Tokens are "F" for a
// flagged cell, "-" for an untouched cell, " " for a dug cell without mined
// neighbors and the neighbor mine count (1-8) for any other dug cell.
func (b *Board) Render() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.render()
}

// Look is the protocol name for Render.
func (b *Board) Look() string {
	return b.Render()
}

// Snapshot returns the rendered board together with the version it reflects.
// Both are read under the same lock.
//
// Returns:
//   - The render text, as produced by Render
//   - The board version at the time of rendering
func (b *Board) Snapshot() (string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.render(), b.version
}

// render builds the board view; caller must hold b.mu.
func (b *Board) render() string {
	var sb strings.Builder
	sb.Grow(b.width * b.height * 2)

	for y := 0; y < b.height; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}

		for x := 0; x < b.width; x++ {
			if x > 0 {
				sb.WriteByte(' ')
			}

			switch c := b.cells[b.index(x, y)]; c.state {
			case Flagged:
				sb.WriteByte('F')
			case Untouched:
				sb.WriteByte('-')
			default:
				if n := b.minedNeighbors(x, y); n > 0 {
					sb.WriteString(strconv.Itoa(n))
				} else {
					sb.WriteByte(' ')
				}
			}
		}
	}

	return sb.String()
}

// reveal opens every untouched, unmined cell reachable from (x, y) through
// cells with no mined neighbors. It uses an explicit stack instead of
// recursion; caller must hold b.mu and (x, y) must already be Dug.
func (b *Board) reveal(x, y int) {
	stack := [][2]int{{x, y}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cx, cy := top[0], top[1]
		if b.minedNeighbors(cx, cy) != 0 {
			continue
		}

		b.forEachNeighbor(cx, cy, func(nx, ny int) {
			n := &b.cells[b.index(nx, ny)]
			if n.state == Untouched && !n.mined {
				n.state = Dug
				stack = append(stack, [2]int{nx, ny})
			}
		})
	}
}

// minedNeighbors counts mined cells around (x, y), whatever their visible
// state; caller must hold b.mu.
func (b *Board) minedNeighbors(x, y int) int {
	count := 0
	b.forEachNeighbor(x, y, func(nx, ny int) {
		if b.cells[b.index(nx, ny)].mined {
			count++
		}
	})

	return count
}

// forEachNeighbor calls f for each in-bounds cell adjacent to (x, y).
func (b *Board) forEachNeighbor(x, y int, f func(nx, ny int)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}

			if nx, ny := x+dx, y+dy; b.inBounds(nx, ny) {
				f(nx, ny)
			}
		}
	}
}

func (b *Board) inBounds(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

func (b *Board) index(x, y int) int {
	return y*b.width + x
}
