// Package layout builds the mine grids that a board is constructed from,
// either randomly or from a board description file.
//
// A board description starts with a "<width> <height>" header line followed
// by height rows of exactly width 0/1 digits, optionally separated by
// spaces. A 1 marks a mined cell.
package layout

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// DefaultMineProbability is the chance that any one cell of a random layout is mined.
const DefaultMineProbability = 0.25

// MaxCells bounds width*height for both random and parsed layouts.
const MaxCells = 1 << 24

var (
	// ErrBadHeader is returned when the header line is not "<width> <height>".
	ErrBadHeader = errors.New("invalid board header")
	// ErrBadRow is returned when a row has the wrong length or a character other than 0/1.
	ErrBadRow = errors.New("invalid board row")
	// ErrRowCount is returned when the number of rows does not match the header.
	ErrRowCount = errors.New("row count does not match board height")
	// ErrInvalidSize is returned for non-positive or too large dimensions, or an
	// out-of-range probability.
	ErrInvalidSize = errors.New("invalid layout size")
)

// Layout is a resolved width x height mine grid stored row-major.
type Layout struct {
	Width  int
	Height int
	Mines  []bool
}

// At reports whether the cell at column x, row y is mined. Coordinates
// outside the layout report false.
func (l Layout) At(x, y int) bool {
	if x < 0 || x >= l.Width || y < 0 || y >= l.Height {
		return false
	}

	return l.Mines[y*l.Width+x]
}

// MineCount returns the number of mined cells.
func (l Layout) MineCount() int {
	n := 0
	for _, m := range l.Mines {
		if m {
			n++
		}
	}

	return n
}

// FitsCells reports whether a width x height grid of positive dimensions
// stays within MaxCells. It does not overflow for any int inputs.
func FitsCells(width, height int) bool {
	return width > 0 && height > 0 && width <= MaxCells/height
}

// Random generates a layout where each cell is independently mined with the
// given probability.
//
// Parameters:
//   - width: Number of columns (must be > 0)
//   - height: Number of rows (must be > 0)
//   - probability: Chance in [0, 1] that a cell is mined
//   - r: Source of randomness; nil uses a time-seeded source
//
// Returns:
//   - The generated Layout, or an error wrapping ErrInvalidSize
func Random(width, height int, probability float64, r *rand.Rand) (Layout, error) {
	if width <= 0 || height <= 0 || !FitsCells(width, height) {
		return Layout{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	if probability < 0 || probability > 1 {
		return Layout{}, fmt.Errorf("%w: mine probability %v", ErrInvalidSize, probability)
	}

	float := rand.Float64
	if r != nil {
		float = r.Float64
	}

	mines := make([]bool, width*height)
	for i := range mines {
		mines[i] = float() < probability
	}

	return Layout{Width: width, Height: height, Mines: mines}, nil
}

// Parse reads a board description. Trailing blank lines and carriage
// returns are tolerated; anything else that does not match the header or
// row grammar is an error.
//
// Parameters:
//   - r: Reader positioned at the start of the description
//
// Returns:
//   - The parsed Layout, or an error wrapping ErrBadHeader, ErrBadRow or ErrRowCount
func Parse(r io.Reader) (Layout, error) {
	scanner := bufio.NewScanner(r)
	// A row may carry up to MaxCells digits, each followed by a separator.
	scanner.Buffer(nil, 2*MaxCells+2)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Layout{}, fmt.Errorf("read header: %w", err)
		}

		return Layout{}, fmt.Errorf("%w: empty input", ErrBadHeader)
	}

	width, height, err := parseHeader(scanner.Text())
	if err != nil {
		return Layout{}, err
	}

	l := Layout{Width: width, Height: height}
	rows, blank := 0, 0
	for lineNo := 2; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			blank++
			continue
		}

		if blank > 0 {
			return Layout{}, fmt.Errorf("%w: line %d follows a blank line", ErrBadRow, lineNo)
		}

		if rows == height {
			return Layout{}, fmt.Errorf("%w: more than %d rows", ErrRowCount, height)
		}

		row, err := parseRow(line, width)
		if err != nil {
			return Layout{}, fmt.Errorf("line %d: %w", lineNo, err)
		}

		l.Mines = append(l.Mines, row...)
		rows++
	}

	if err := scanner.Err(); err != nil {
		return Layout{}, fmt.Errorf("read rows: %w", err)
	}

	if rows != height {
		return Layout{}, fmt.Errorf("%w: got %d, want %d", ErrRowCount, rows, height)
	}

	return l, nil
}

// LoadFile opens path and parses it with Parse.
func LoadFile(path string) (Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, fmt.Errorf("open board file: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	l, err := Parse(f)
	if err != nil {
		return Layout{}, fmt.Errorf("parse board file %s: %w", path, err)
	}

	return l, nil
}

// Write emits l in the canonical description form: the header line, then
// one line per row with digits separated by single spaces.
func Write(w io.Writer, l Layout) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d\n", l.Width, l.Height); err != nil {
		return err
	}

	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			if x > 0 {
				_ = bw.WriteByte(' ')
			}

			if l.At(x, y) {
				_ = bw.WriteByte('1')
			} else {
				_ = bw.WriteByte('0')
			}
		}

		_ = bw.WriteByte('\n')
	}

	return bw.Flush()
}

func parseHeader(line string) (int, int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadHeader, line)
	}

	width, err := strconv.Atoi(fields[0])
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("%w: bad width %q", ErrBadHeader, fields[0])
	}

	height, err := strconv.Atoi(fields[1])
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("%w: bad height %q", ErrBadHeader, fields[1])
	}

	if !FitsCells(width, height) {
		return 0, 0, fmt.Errorf("%w: %dx%d exceeds %d cells", ErrBadHeader, width, height, MaxCells)
	}

	return width, height, nil
}

func parseRow(line string, width int) ([]bool, error) {
	var row []bool
	for _, c := range line {
		switch c {
		case ' ', '\t':
			continue
		case '0', '1':
			if len(row) == width {
				return nil, fmt.Errorf("%w: more than %d cells", ErrBadRow, width)
			}

			row = append(row, c == '1')
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrBadRow, c)
		}
	}

	if len(row) != width {
		return nil, fmt.Errorf("%w: got %d cells, want %d", ErrBadRow, len(row), width)
	}

	return row, nil
}
