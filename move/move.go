// Package move defines placements: where a piece comes to rest, how it got
// there and what it cost.
package move

import (
	"fmt"
	"strings"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/piece"
)

type Spin uint8

const (
	NoSpin Spin = iota
	MiniSpin
	FullSpin
)

func (s Spin) String() string {
	switch s {
	case MiniSpin:
		return "mini"
	case FullSpin:
		return "full"
	}
	return "none"
}

func ParseSpin(s string) (Spin, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoSpin, nil
	case "mini":
		return MiniSpin, nil
	case "full":
		return FullSpin, nil
	}
	return NoSpin, fmt.Errorf("unknown spin %q", s)
}

// Location is a piece at a position and rotation.
type Location struct {
	Piece    piece.Kind
	Rotation piece.Rotation
	X        int8
	Y        int8
}

func (l Location) Cells() [4]piece.Cell {
	cells := piece.Cells(l.Piece, l.Rotation)
	for i := range cells {
		cells[i].X += int(l.X)
		cells[i].Y += int(l.Y)
	}
	return cells
}

func (l Location) Collides(b board.Board) bool {
	return b.Collides(l.Piece, l.Rotation, int(l.X), int(l.Y))
}

// Resting reports whether the piece cannot move down.
func (l Location) Resting(b board.Board) bool {
	return b.Collides(l.Piece, l.Rotation, int(l.X), int(l.Y)-1)
}

// Canonical maps symmetric orientations of I, O, S and Z onto a single
// representative with the same footprint.
func (l Location) Canonical() Location {
	rot, dx, dy := piece.Canonical(l.Piece, l.Rotation)
	return Location{
		Piece:    l.Piece,
		Rotation: rot,
		X:        l.X + int8(dx),
		Y:        l.Y + int8(dy),
	}
}

func (l Location) String() string {
	return fmt.Sprintf("%v-%v@%d,%d", l.Piece, l.Rotation, l.X, l.Y)
}

// Placement is a final resting location together with the metadata the
// evaluator and the frontend need.
type Placement struct {
	Location
	Spin Spin
	// Hold is set when the placement is made with the piece obtained by
	// swapping with the hold slot.
	Hold bool
	// Cost is the number of inputs on the cheapest path found.
	Cost uint16
	// SoftDrop is the soft-drop distance that cannot be replaced by a hard
	// drop.
	SoftDrop uint8
}

// SameMove reports whether two placements are the same game move: same
// footprint and same use of hold.
func SameMove(a, b Placement) bool {
	return a.Hold == b.Hold && a.Location.Canonical() == b.Location.Canonical()
}

func (p Placement) ShortDescription() string {
	var sb strings.Builder
	sb.WriteString(p.Location.String())
	switch p.Spin {
	case FullSpin:
		sb.WriteString(" spin")
	case MiniSpin:
		sb.WriteString(" mini")
	}
	if p.Hold {
		sb.WriteString(" hold")
	}
	return sb.String()
}

func (p Placement) String() string {
	return fmt.Sprintf("<%s cost:%d sd:%d>", p.ShortDescription(), p.Cost, p.SoftDrop)
}
