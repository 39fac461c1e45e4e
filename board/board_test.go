package board

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBoard builds a board from rows of '0'/'1' characters.
func newTestBoard(t *testing.T, rows ...string) *Board {
	t.Helper()
	require.NotEmpty(t, rows)

	width := len(rows[0])
	mines := make([]bool, 0, width*len(rows))
	for _, row := range rows {
		require.Len(t, row, width)
		for _, c := range row {
			mines = append(mines, c == '1')
		}
	}

	b, err := New(width, len(rows), mines)
	require.NoError(t, err)
	return b
}

// sevenBySeven has a mine at row 1, column 4 and another at row 6, column 0.
func sevenBySeven(t *testing.T) *Board {
	return newTestBoard(t,
		"0000000",
		"0000100",
		"0000000",
		"0000000",
		"0000000",
		"0000000",
		"1000000",
	)
}

func TestNew(t *testing.T) {
	t.Run("rejects non-positive dimensions", func(t *testing.T) {
		_, err := New(0, 3, nil)
		assert.ErrorIs(t, err, ErrInvalidDimensions)

		_, err = New(3, -1, nil)
		assert.ErrorIs(t, err, ErrInvalidDimensions)
	})

	t.Run("rejects mismatched mine grid", func(t *testing.T) {
		_, err := New(2, 2, make([]bool, 3))
		assert.ErrorIs(t, err, ErrMineCount)
	})

	t.Run("reports dimensions", func(t *testing.T) {
		b, err := New(4, 2, make([]bool, 8))
		require.NoError(t, err)
		w, h := b.Dimensions()
		assert.Equal(t, 4, w)
		assert.Equal(t, 2, h)
	})

	t.Run("all cells start untouched", func(t *testing.T) {
		b, err := New(3, 2, []bool{true, false, true, false, true, false})
		require.NoError(t, err)
		assert.Equal(t, "- - -\n- - -", b.Render())
		assert.Equal(t, b.Render(), b.Look())
		assert.Equal(t, uint64(0), b.Version())
	})
}

func TestBoard_Render_Shape(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {7, 7}, {3, 9}, {12, 2}} {
		w, h := size[0], size[1]
		t.Run(fmt.Sprintf("%dx%d", w, h), func(t *testing.T) {
			mines := make([]bool, w*h)
			for i := range mines {
				mines[i] = i%3 == 0
			}
			b, err := New(w, h, mines)
			require.NoError(t, err)
			b.Dig(0, 0)
			b.Flag(w-1, h-1)

			out := b.Render()
			assert.False(t, strings.HasSuffix(out, "\n"))
			lines := strings.Split(out, "\n")
			require.Len(t, lines, h)
			for _, line := range lines {
				require.Len(t, line, 2*w-1)
				for i := 1; i < len(line); i += 2 {
					assert.Equal(t, byte(' '), line[i], "separator in %q", line)
				}
			}
		})
	}
}

func TestBoard_Dig(t *testing.T) {
	t.Run("reveals neighbor count", func(t *testing.T) {
		b := sevenBySeven(t)
		assert.Equal(t, NoBomb, b.Dig(3, 1))
		lines := strings.Split(b.Render(), "\n")
		assert.Equal(t, "- - - - - - -", lines[0])
		assert.Equal(t, "- - - 1 - - -", lines[1])
	})

	t.Run("hit bomb consumes it and cascades", func(t *testing.T) {
		b := sevenBySeven(t)
		require.Equal(t, NoBomb, b.Dig(3, 1))
		assert.Equal(t, HitBomb, b.Dig(4, 1))

		blank := "             "
		expected := strings.Join([]string{
			blank, blank, blank, blank, blank,
			"1 1          ",
			"- 1          ",
		}, "\n")
		assert.Equal(t, expected, b.Render())
	})

	t.Run("digging a detonated cell again is ignored", func(t *testing.T) {
		b := newTestBoard(t, "010", "000")
		require.Equal(t, HitBomb, b.Dig(1, 0))
		before, version := b.Snapshot()

		assert.Equal(t, Ignored, b.Dig(1, 0))
		after, afterVersion := b.Snapshot()
		assert.Equal(t, before, after)
		assert.Equal(t, version, afterVersion)
	})

	t.Run("digging a flagged cell is ignored", func(t *testing.T) {
		b := newTestBoard(t, "10", "00")
		b.Flag(0, 0)
		assert.Equal(t, Ignored, b.Dig(0, 0))
		state, ok := b.State(0, 0)
		require.True(t, ok)
		assert.Equal(t, Flagged, state)

		b.Deflag(0, 0)
		assert.Equal(t, HitBomb, b.Dig(0, 0), "bomb must survive flag round trip")
	})

	t.Run("out of bounds leaves render unchanged", func(t *testing.T) {
		b := sevenBySeven(t)
		b.Dig(3, 1)
		before := b.Render()
		for _, p := range [][2]int{{-1, 0}, {0, -1}, {7, 0}, {0, 7}, {100, 100}} {
			assert.Equal(t, Ignored, b.Dig(p[0], p[1]))
			b.Flag(p[0], p[1])
			b.Deflag(p[0], p[1])
		}
		assert.Equal(t, before, b.Render())
	})

	t.Run("flood fill stops at flags and mines", func(t *testing.T) {
		b := newTestBoard(t,
			"00000",
			"00000",
			"00000",
			"00001",
		)
		b.Flag(0, 0)
		require.Equal(t, NoBomb, b.Dig(0, 3))

		expected := strings.Join([]string{
			"F        ",
			"         ",
			"      1 1",
			"      1 -",
		}, "\n")
		assert.Equal(t, expected, b.Render())

		state, _ := b.State(4, 3)
		assert.Equal(t, Untouched, state)
	})

	t.Run("non-zero cell does not cascade", func(t *testing.T) {
		b := newTestBoard(t, "100", "000", "000")
		require.Equal(t, NoBomb, b.Dig(1, 1))
		assert.Equal(t, "- - -\n- 1 -\n- - -", b.Render())
	})
}

func TestBoard_FlagDeflag(t *testing.T) {
	t.Run("flag then deflag restores the cell", func(t *testing.T) {
		b := newTestBoard(t, "01", "00")
		before := b.Render()

		b.Flag(1, 0)
		assert.Equal(t, "- F\n- -", b.Render())
		b.Deflag(1, 0)
		assert.Equal(t, before, b.Render())

		b.Dig(0, 0)
		assert.Equal(t, "1 -\n- -", b.Render())
		assert.Equal(t, HitBomb, b.Dig(1, 0))
	})

	t.Run("flag is idempotent", func(t *testing.T) {
		b := newTestBoard(t, "00")
		b.Flag(0, 0)
		v := b.Version()
		b.Flag(0, 0)
		assert.Equal(t, v, b.Version())
		assert.Equal(t, "F -", b.Render())
	})

	t.Run("flagging a dug cell is a no-op", func(t *testing.T) {
		b := newTestBoard(t, "01")
		b.Dig(0, 0)
		b.Flag(0, 0)
		state, _ := b.State(0, 0)
		assert.Equal(t, Dug, state)
	})

	t.Run("deflag only affects flagged cells", func(t *testing.T) {
		b := newTestBoard(t, "01")
		b.Dig(0, 0)
		v := b.Version()
		b.Deflag(0, 0)
		b.Deflag(1, 0)
		assert.Equal(t, v, b.Version())
		assert.Equal(t, "1 -", b.Render())
	})
}

func TestBoard_Version(t *testing.T) {
	b := newTestBoard(t, "000", "001")
	assert.Equal(t, uint64(0), b.Version())

	b.Flag(2, 1)
	assert.Equal(t, uint64(1), b.Version())

	b.Dig(0, 0)
	assert.Equal(t, uint64(2), b.Version())

	b.Dig(0, 0)
	assert.Equal(t, uint64(2), b.Version())
}

func TestDigResult_String(t *testing.T) {
	assert.Equal(t, "Ignored", Ignored.String())
	assert.Equal(t, "NoBomb", NoBomb.String())
	assert.Equal(t, "HitBomb", HitBomb.String())
	assert.Equal(t, "Unknown", DigResult(42).String())
}

func TestBoard_Concurrent(t *testing.T) {
	t.Run("concurrent digs on disjoint cells are all applied", func(t *testing.T) {
		const size = 20
		mines := make([]bool, size*size)
		for i := range mines {
			mines[i] = i%2 == 0
		}
		b, err := New(size, size, mines)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				wg.Add(1)
				go func(x, y int) {
					defer wg.Done()
					b.Dig(x, y)
					_ = b.Render()
				}(x, y)
			}
		}
		wg.Wait()

		assert.NotContains(t, b.Render(), "-")
	})

	t.Run("same cell detonates exactly once", func(t *testing.T) {
		b := newTestBoard(t, "1")
		const n = 50
		results := make([]DigResult, n)

		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(idx int) {
				defer wg.Done()
				results[idx] = b.Dig(0, 0)
			}(i)
		}
		wg.Wait()

		hits := 0
		for _, r := range results {
			if r == HitBomb {
				hits++
			} else {
				assert.Equal(t, Ignored, r)
			}
		}
		assert.Equal(t, 1, hits)
	})
}
