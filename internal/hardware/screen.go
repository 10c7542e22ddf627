package hardware

import (
	"fmt"
	"strings"
)

// Default character display geometry (16x2 HD44780).
const (
	DefaultRows = 2
	DefaultCols = 16
)

// Screen is an in-memory character grid with HD44780 cursor semantics:
// text past the last column is dropped and a newline moves to the start
// of the next row. Screen is not safe for concurrent use.
type Screen struct {
	rows, cols int
	cells      [][]rune
	row, col   int
}

// NewScreen returns a blank screen. Non-positive dimensions fall back to 16x2.
func NewScreen(rows, cols int) *Screen {
	if rows <= 0 {
		rows = DefaultRows
	}
	if cols <= 0 {
		cols = DefaultCols
	}
	s := &Screen{rows: rows, cols: cols}
	s.Clear()
	return s
}

// Rows returns the number of rows.
func (s *Screen) Rows() int { return s.rows }

// Cols returns the number of columns.
func (s *Screen) Cols() int { return s.cols }

// Cursor returns the current cursor position.
func (s *Screen) Cursor() (row, col int) { return s.row, s.col }

// Write places text at the cursor.
func (s *Screen) Write(text string) {
	for _, r := range text {
		if r == '\n' {
			s.row++
			s.col = 0
			continue
		}
		if s.row >= s.rows || s.col >= s.cols {
			continue
		}
		s.cells[s.row][s.col] = r
		s.col++
	}
}

// Clear blanks the grid and homes the cursor.
func (s *Screen) Clear() {
	s.cells = make([][]rune, s.rows)
	for i := range s.cells {
		s.cells[i] = []rune(strings.Repeat(" ", s.cols))
	}
	s.row, s.col = 0, 0
}

// SetCursor moves the cursor to row, col.
func (s *Screen) SetCursor(row, col int) error {
	if row < 0 || col < 0 || row >= s.rows || col >= s.cols {
		return fmt.Errorf("%w: (%d, %d) on %dx%d", ErrOutOfBounds, row, col, s.rows, s.cols)
	}
	s.row, s.col = row, col
	return nil
}

// Lines returns each row with trailing spaces removed.
func (s *Screen) Lines() []string {
	lines := make([]string, s.rows)
	for i, row := range s.cells {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return lines
}

// Text returns the visible content, rows joined by newlines, trailing blank rows dropped.
func (s *Screen) Text() string {
	lines := s.Lines()
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
