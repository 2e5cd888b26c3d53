package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// maxCell is the largest cell value that still concatenates unambiguously.
const maxCell = 9

// FlattenBoard turns a board payload into the engine's row-major digit string:
// [[0,0],[0,1]] becomes "0001". The payload may be the nested array itself or
// a JSON string containing the array's text; both go through the same JSON
// decoder.
func FlattenBoard(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty board", ErrInvalidBoard)
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidBoard, err)
		}
		raw = bytes.TrimSpace([]byte(text))
	}

	var grid [][]int
	if err := json.Unmarshal(raw, &grid); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBoard, err)
	}
	return FlattenGrid(grid)
}

// FlattenGrid concatenates every cell of a rectangular grid in row-major order.
func FlattenGrid(grid [][]int) (string, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return "", fmt.Errorf("%w: empty board", ErrInvalidBoard)
	}

	width := len(grid[0])
	var b strings.Builder
	b.Grow(len(grid) * width)
	for r, row := range grid {
		if len(row) != width {
			return "", fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidBoard, r, len(row), width)
		}
		for c, cell := range row {
			if cell < 0 || cell > maxCell {
				return "", fmt.Errorf("%w: cell (%d,%d) = %d out of range", ErrInvalidBoard, r, c, cell)
			}
			b.WriteByte(byte('0' + cell))
		}
	}
	return b.String(), nil
}
