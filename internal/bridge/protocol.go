package bridge

import (
	"strconv"
	"strings"
)

// EncodeArgs builds the positional argument list for req.
func EncodeArgs(req Request) ([]string, error) {
	board, err := FlattenBoard(req.Board)
	if err != nil {
		return nil, err
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = DefaultDifficulty
	}

	args := make([]string, 0, 4+len(req.Extra))
	args = append(args, board, strconv.Itoa(req.Turn), difficulty, FormatExploration(req.Exploration))
	args = append(args, req.Extra...)
	return args, nil
}

// FormatExploration renders the exploration constant in its canonical text
// form, the shortest decimal that round-trips.
func FormatExploration(c *float64) string {
	if c == nil {
		return DefaultExploration
	}
	return strconv.FormatFloat(*c, 'f', -1, 64)
}

// DecodeResult parses one engine result line. The line is split at the first
// Separator only; anything after it is the secondary payload.
func DecodeResult(line string) (Result, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}, ErrEmptyOutput
	}

	primary, secondary, _ := strings.Cut(line, Separator)
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return Result{}, ErrEmptyOutput
	}
	return Result{Primary: primary, Secondary: secondary}, nil
}
