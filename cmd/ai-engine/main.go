// Command ai-engine is the reference compute engine. It takes the flattened
// board, the side to move, a difficulty and an optional exploration constant
// as positional arguments and prints one line, "<row>,<col>|LEGAL:<n>", or
// "pass|LEGAL:0" when no move exists. Diagnostics go to stderr.
package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))))
}

func run(args []string, stdout, stderr io.Writer, rng *rand.Rand) int {
	if len(args) < 3 {
		fmt.Fprintln(stderr, "usage: ai-engine <board> <turn> <difficulty> [exploration] [extra...]")
		return 1
	}

	b, err := parseBoard(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "invalid board: %v\n", err)
		return 1
	}

	player, err := strconv.Atoi(args[1])
	if err != nil || (player != black && player != white) {
		fmt.Fprintf(stderr, "invalid turn %q: want 1 or 2\n", args[1])
		return 1
	}

	difficulty := args[2]
	exploration := 1.414
	if len(args) > 3 {
		exploration, err = strconv.ParseFloat(args[3], 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid exploration %q: %v\n", args[3], err)
			return 1
		}
	}
	fmt.Fprintf(stderr, "size=%d turn=%d difficulty=%s exploration=%g\n", b.size, player, difficulty, exploration)

	moves := b.legalMoves(player)
	if len(moves) == 0 {
		fmt.Fprintln(stdout, "pass|LEGAL:0")
		return 0
	}

	m := choose(b, moves, difficulty, rng)
	fmt.Fprintf(stdout, "%d,%d|LEGAL:%d\n", m.row, m.col, len(moves))
	return 0
}

// choose picks a move: easy plays at random, medium takes the largest
// capture and hard prefers corners before the largest capture. Ties are
// broken at random.
func choose(b board, moves []move, difficulty string, rng *rand.Rand) move {
	if difficulty == "easy" {
		return moves[rng.IntN(len(moves))]
	}

	score := func(m move) int {
		s := m.flips
		if difficulty == "hard" && b.isCorner(m) {
			s += b.size * b.size
		}
		return s
	}

	best := []move{moves[0]}
	for _, m := range moves[1:] {
		switch s, top := score(m), score(best[0]); {
		case s > top:
			best = []move{m}
		case s == top:
			best = append(best, m)
		}
	}
	return best[rng.IntN(len(best))]
}
