package model

import (
	"fmt"
	"strings"
)

// Table is a rectangular grid: every row has exactly Cols cells.
type Table struct {
	Rows  int
	Cols  int
	Cells [][]Cell
}

// Cell represents a table cell
type Cell struct {
	Row          int      `json:"row"`
	Col          int      `json:"col"`
	Text         string   `json:"text"`
	OriginalText *string  `json:"original_text,omitempty"` // captured at first edit, never overwritten
	FontSize     *float64 `json:"font_size,omitempty"`
	Bold         *bool    `json:"bold,omitempty"`
	Italic       *bool    `json:"italic,omitempty"`
	Merged       bool     `json:"merged,omitempty"`    // continuation of a spanned cell
	Synthetic    bool     `json:"synthetic,omitempty"` // padding for a ragged row; never written back
	Locator      string   `json:"-"`                   // structural path of a:tc within the slide part
}

// NewTable creates a new table with given dimensions
func NewTable(rows, cols int) *Table {
	t := &Table{}
	t.Resize(rows, cols)
	return t
}

// Cell returns the cell at the given row and column (0-indexed)
func (t *Table) Cell(row, col int) *Cell {
	if row < 0 || row >= len(t.Cells) {
		return nil
	}
	if col < 0 || col >= len(t.Cells[row]) {
		return nil
	}
	return &t.Cells[row][col]
}

// SetText sets the text of an existing cell.
func (t *Table) SetText(row, col int, text string) error {
	c := t.Cell(row, col)
	if c == nil {
		return fmt.Errorf("cell (%d,%d) out of bounds for %dx%d table", row, col, t.Rows, t.Cols)
	}
	c.Text = text
	return nil
}

// Resize pads or truncates the grid to rows x cols. New cells are empty and
// synthetic.
func (t *Table) Resize(rows, cols int) {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	grid := make([][]Cell, rows)
	for r := 0; r < rows; r++ {
		grid[r] = make([]Cell, cols)
		for c := 0; c < cols; c++ {
			if r < len(t.Cells) && c < len(t.Cells[r]) {
				grid[r][c] = t.Cells[r][c]
				continue
			}
			grid[r][c] = Cell{Row: r, Col: c, Synthetic: true}
		}
	}
	t.Cells = grid
	t.Rows = rows
	t.Cols = cols
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Rows: t.Rows, Cols: t.Cols, Cells: make([][]Cell, len(t.Cells))}
	for i, row := range t.Cells {
		out.Cells[i] = append([]Cell(nil), row...)
	}
	return out
}

// GetText returns the grid as tab-separated lines.
func (t *Table) GetText() string {
	var sb strings.Builder
	for _, row := range t.Cells {
		for j, cell := range row {
			sb.WriteString(cell.Text)
			if j < len(row)-1 {
				sb.WriteString("\t")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// CellKey returns the overlay key for a cell position.
func CellKey(row, col int) string {
	return fmt.Sprintf("row%d_col%d", row, col)
}

// ParseCellKey is the inverse of CellKey.
func ParseCellKey(key string) (row, col int, err error) {
	if _, err := fmt.Sscanf(key, "row%d_col%d", &row, &col); err != nil {
		return 0, 0, fmt.Errorf("invalid cell key %q: %w", key, err)
	}
	return row, col, nil
}
