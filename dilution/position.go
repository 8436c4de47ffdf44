package dilution

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a 1-indexed (row, column) coordinate inside a container.
// Positions are plain values; two positions are equal iff row and column match.
type Position struct {
	Row int
	Col int
}

// ContainerSize is the height (rows) and width (columns) of a container.
type ContainerSize struct {
	Height int
	Width  int
}

// Capacity returns the number of wells in a container of this size.
func (s ContainerSize) Capacity() int {
	return s.Height * s.Width
}

// Contains reports whether pos lies inside the container.
func (s ContainerSize) Contains(pos Position) bool {
	return pos.Row >= 1 && pos.Row <= s.Height && pos.Col >= 1 && pos.Col <= s.Width
}

// Traversal selects the order in which a robot enumerates wells.
type Traversal string

const (
	// TraversalDownFirst walks column by column (A1, B1, ..., H1, A2, ...).
	TraversalDownFirst Traversal = "down-first"
	// TraversalRightFirst walks row by row (A1, A2, ..., A12, B1, ...).
	TraversalRightFirst Traversal = "right-first"
)

// ValidTraversals is the set of recognized traversal names.
var ValidTraversals = map[Traversal]bool{"": true, TraversalDownFirst: true, TraversalRightFirst: true}

// RowLetter returns the row as a letter: 1 -> "A", 2 -> "B".
func (p Position) RowLetter() string {
	if p.Row < 1 || p.Row > 26 {
		return strconv.Itoa(p.Row)
	}
	return string(rune('A' + p.Row - 1))
}

// IndexDownFirst returns the 1-based column-major index of p within size.
func (p Position) IndexDownFirst(size ContainerSize) int {
	return (p.Col-1)*size.Height + p.Row
}

// IndexRightFirst returns the 1-based row-major index of p within size.
func (p Position) IndexRightFirst(size ContainerSize) int {
	return (p.Row-1)*size.Width + p.Col
}

// Index returns the 1-based index of p within size using traversal t.
// The empty traversal defaults to down-first.
func (p Position) Index(size ContainerSize, t Traversal) int {
	if t == TraversalRightFirst {
		return p.IndexRightFirst(size)
	}
	return p.IndexDownFirst(size)
}

// String renders the position as "B:3".
func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.RowLetter(), p.Col)
}

// ParsePosition parses "B:3" or "B3" into a Position.
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if len(s) < 2 {
		return Position{}, fmt.Errorf("invalid well position %q", s)
	}
	letter := s[0]
	if letter < 'A' || letter > 'Z' {
		return Position{}, fmt.Errorf("invalid well position %q: row must be a letter", s)
	}
	rest := strings.TrimPrefix(s[1:], ":")
	col, err := strconv.Atoi(rest)
	if err != nil || col < 1 {
		return Position{}, fmt.Errorf("invalid well position %q: bad column", s)
	}
	return Position{Row: int(letter-'A') + 1, Col: col}, nil
}

// PositionFromIndexDownFirst is the inverse of IndexDownFirst.
func PositionFromIndexDownFirst(index int, size ContainerSize) Position {
	zero := index - 1
	return Position{Row: zero%size.Height + 1, Col: zero/size.Height + 1}
}
