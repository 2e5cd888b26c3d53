package main

import (
	"fmt"
	"math"
)

// Cell values on the flattened board.
const (
	empty = 0
	black = 1
	white = 2
)

var directions = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

type board struct {
	size  int
	cells []int
}

type move struct {
	row, col int
	flips    int
}

// parseBoard reads a row-major digit string describing a square board.
func parseBoard(flat string) (board, error) {
	n := int(math.Sqrt(float64(len(flat))))
	if n == 0 || n*n != len(flat) {
		return board{}, fmt.Errorf("board has %d cells, want a square count", len(flat))
	}

	cells := make([]int, len(flat))
	for i, c := range flat {
		v := int(c - '0')
		if v != empty && v != black && v != white {
			return board{}, fmt.Errorf("cell %d = %q, want 0, 1 or 2", i, c)
		}
		cells[i] = v
	}
	return board{size: n, cells: cells}, nil
}

func (b board) at(r, c int) int {
	return b.cells[r*b.size+c]
}

func (b board) inside(r, c int) bool {
	return r >= 0 && r < b.size && c >= 0 && c < b.size
}

// legalMoves returns every placement for player that flips at least one disc.
func (b board) legalMoves(player int) []move {
	opponent := black + white - player
	var moves []move
	for r := range b.size {
		for c := range b.size {
			if b.at(r, c) != empty {
				continue
			}
			flips := 0
			for _, d := range directions {
				run := 0
				rr, cc := r+d[0], c+d[1]
				for b.inside(rr, cc) && b.at(rr, cc) == opponent {
					run++
					rr, cc = rr+d[0], cc+d[1]
				}
				if run > 0 && b.inside(rr, cc) && b.at(rr, cc) == player {
					flips += run
				}
			}
			if flips > 0 {
				moves = append(moves, move{row: r, col: c, flips: flips})
			}
		}
	}
	return moves
}

func (b board) isCorner(m move) bool {
	last := b.size - 1
	return (m.row == 0 || m.row == last) && (m.col == 0 || m.col == last)
}
