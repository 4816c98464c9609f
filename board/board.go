// Package board implements the packed playfield. Each column is a 64-bit
// vector, bit y set meaning row y (counted from the bottom) is filled.
package board

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/domino14/stackbot/piece"
)

const (
	MaxWidth  = 16
	MaxHeight = 64
)

var ErrDimensions = errors.New("board dimensions out of range")

// Board is a value type: copying it is cheap and Lock never modifies the
// receiver.
type Board struct {
	cols   [MaxWidth]uint64
	width  uint8
	height uint8
}

// ClearResult describes the rows removed by a lock.
type ClearResult struct {
	Lines int
	// Mask has the cleared rows set, in pre-clear coordinates.
	Mask uint64
}

func New(width, height int) (Board, error) {
	if width < 4 || width > MaxWidth || height < 4 || height > MaxHeight {
		return Board{}, fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	return Board{width: uint8(width), height: uint8(height)}, nil
}

// FromColumns builds a board from column bit-vectors. It does not check
// that the columns fit the height; see Validate.
func FromColumns(height int, cols []uint64) (Board, error) {
	b, err := New(len(cols), height)
	if err != nil {
		return b, err
	}
	copy(b.cols[:], cols)
	return b, nil
}

// Parse builds a board from text rows given top row first. The rows fill
// the bottom of the board. '#', 'x', 'X' and any piece letter are filled;
// '.', ' ' and '_' are empty.
func Parse(width, height int, rows ...string) (Board, error) {
	b, err := New(width, height)
	if err != nil {
		return b, err
	}
	if len(rows) > height {
		return b, fmt.Errorf("%w: %d rows on a board of height %d", ErrDimensions, len(rows), height)
	}
	for i, row := range rows {
		y := len(rows) - 1 - i
		if len(row) > width {
			return b, fmt.Errorf("%w: row %q is wider than %d", ErrDimensions, row, width)
		}
		for x, c := range row {
			switch c {
			case '.', ' ', '_':
			default:
				b.cols[x] |= 1 << uint(y)
			}
		}
	}
	return b, nil
}

func (b Board) Width() int  { return int(b.width) }
func (b Board) Height() int { return int(b.height) }

func (b Board) heightMask() uint64 {
	if b.height >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << b.height) - 1
}

// Column returns the bit-vector of column x.
func (b Board) Column(x int) uint64 {
	return b.cols[x]
}

// Columns returns a copy of the used columns.
func (b Board) Columns() []uint64 {
	out := make([]uint64, b.width)
	copy(out, b.cols[:b.width])
	return out
}

// Occupied reports whether a cell is filled. Cells outside the board count
// as filled.
func (b Board) Occupied(x, y int) bool {
	if x < 0 || x >= int(b.width) || y < 0 || y >= int(b.height) {
		return true
	}
	return b.cols[x]&(1<<uint(y)) != 0
}

// ColumnHeight is the number of rows up to and including the highest
// filled cell in column x.
func (b Board) ColumnHeight(x int) int {
	return bits.Len64(b.cols[x])
}

func (b Board) MaxHeight() int {
	h := 0
	for x := 0; x < int(b.width); x++ {
		h = max(h, bits.Len64(b.cols[x]))
	}
	return h
}

// Holes counts empty cells that have a filled cell somewhere above them.
func (b Board) Holes() int {
	n := 0
	for x := 0; x < int(b.width); x++ {
		c := b.cols[x]
		n += bits.Len64(c) - bits.OnesCount64(c)
	}
	return n
}

func (b Board) CellCount() int {
	n := 0
	for x := 0; x < int(b.width); x++ {
		n += bits.OnesCount64(b.cols[x])
	}
	return n
}

func (b Board) IsEmpty() bool {
	for x := 0; x < int(b.width); x++ {
		if b.cols[x] != 0 {
			return false
		}
	}
	return true
}

// Validate checks the dimensions and that no cell is set outside them.
func (b Board) Validate() error {
	if b.width < 4 || b.width > MaxWidth || b.height < 4 || b.height > MaxHeight {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, b.width, b.height)
	}
	hm := b.heightMask()
	for x := 0; x < MaxWidth; x++ {
		if x >= int(b.width) && b.cols[x] != 0 {
			return fmt.Errorf("%w: cells set in column %d", ErrDimensions, x)
		}
		if b.cols[x]&^hm != 0 {
			return fmt.Errorf("%w: cells set above row %d in column %d", ErrDimensions, b.height, x)
		}
	}
	return nil
}

// Collides reports whether piece k in rotation r centred at (x, y)
// overlaps a filled cell or leaves the board.
func (b Board) Collides(k piece.Kind, r piece.Rotation, x, y int) bool {
	for _, cm := range piece.Columns(k, r) {
		cx := x + cm.DX
		if cx < 0 || cx >= int(b.width) {
			return true
		}
		ry := y + cm.DY
		if ry < 0 || ry+bits.Len64(cm.Mask) > int(b.height) {
			return true
		}
		if b.cols[cx]&(cm.Mask<<uint(ry)) != 0 {
			return true
		}
	}
	return false
}

// DropDistance returns how many rows the piece can fall before resting.
// The piece must not already collide.
func (b Board) DropDistance(k piece.Kind, r piece.Rotation, x, y int) int {
	dist := y + 64
	for _, cm := range piece.Columns(k, r) {
		bottom := y + cm.DY
		below := b.cols[x+cm.DX] & ((uint64(1) << uint(bottom)) - 1)
		dist = min(dist, bottom-bits.Len64(below))
	}
	return dist
}

// Lock places the piece and removes any full rows. The piece must fit.
func (b Board) Lock(k piece.Kind, r piece.Rotation, x, y int) (Board, ClearResult) {
	for _, cm := range piece.Columns(k, r) {
		b.cols[x+cm.DX] |= cm.Mask << uint(y+cm.DY)
	}
	full := b.heightMask()
	for cx := 0; cx < int(b.width); cx++ {
		full &= b.cols[cx]
	}
	if full == 0 {
		return b, ClearResult{}
	}
	res := ClearResult{Lines: bits.OnesCount64(full), Mask: full}
	for cx := 0; cx < int(b.width); cx++ {
		b.cols[cx] = removeRows(b.cols[cx], full)
	}
	return b, res
}

// removeRows deletes the rows in mask from col, shifting the rows above
// each one down. Rows are visited from the top so lower indices stay valid.
func removeRows(col, mask uint64) uint64 {
	for mask != 0 {
		row := 63 - bits.LeadingZeros64(mask)
		mask &^= 1 << uint(row)
		low := (uint64(1) << uint(row)) - 1
		col = (col & low) | ((col >> uint(row+1)) << uint(row))
	}
	return col
}

// String renders the board from the highest non-empty row downwards.
func (b Board) String() string {
	var sb strings.Builder
	top := min(b.MaxHeight()+1, int(b.height))
	for y := top - 1; y >= 0; y-- {
		fmt.Fprintf(&sb, "%2d |", y)
		for x := 0; x < int(b.width); x++ {
			if b.cols[x]&(1<<uint(y)) != 0 {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}
	sb.WriteString("   +")
	sb.WriteString(strings.Repeat("-", int(b.width)))
	sb.WriteString("+\n")
	return sb.String()
}
