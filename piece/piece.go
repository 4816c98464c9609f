// Package piece holds the static geometry of the seven tetrominoes: their
// cells in each rotation, the per-column bit patterns used for collision
// detection, symmetric (canonical) rotations, and rotation systems.
package piece

import (
	"fmt"
	"strings"
)

// Kind identifies a tetromino. None is used for an empty hold slot.
type Kind uint8

const (
	None Kind = iota
	I
	O
	T
	L
	J
	S
	Z
)

// NumKinds counts the playable kinds plus None.
const NumKinds = 8

// All lists the playable kinds in a stable order.
var All = [7]Kind{I, O, T, L, J, S, Z}

var kindNames = [NumKinds]string{"-", "I", "O", "T", "L", "J", "S", "Z"}

func (k Kind) Valid() bool {
	return k >= I && k <= Z
}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", k)
	}
	return kindNames[k]
}

// ParseKind parses a single-letter piece name, case insensitive.
func ParseKind(s string) (Kind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, n := range kindNames {
		if i != 0 && n == s {
			return Kind(i), nil
		}
	}
	return None, fmt.Errorf("unknown piece %q", s)
}

// ParseKinds parses a string like "IOTL" into kinds.
func ParseKinds(s string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(s))
	for _, r := range s {
		if r == ' ' || r == ',' {
			continue
		}
		k, err := ParseKind(string(r))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Rotation is one of the four orientations, clockwise from spawn.
type Rotation uint8

const (
	North Rotation = iota
	East
	South
	West
)

var rotationNames = [4]string{"north", "east", "south", "west"}

func (r Rotation) CW() Rotation  { return (r + 1) & 3 }
func (r Rotation) CCW() Rotation { return (r + 3) & 3 }
func (r Rotation) Flip() Rotation {
	return (r + 2) & 3
}

func (r Rotation) String() string {
	return rotationNames[r&3]
}

func ParseRotation(s string) (Rotation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range rotationNames {
		if n == s || (len(s) == 1 && n[0] == s[0]) {
			return Rotation(i), nil
		}
	}
	return North, fmt.Errorf("unknown rotation %q", s)
}

// RotateCell rotates a cell offset from the North frame into r.
func (r Rotation) RotateCell(x, y int) (int, int) {
	switch r & 3 {
	case East:
		return y, -x
	case South:
		return -x, -y
	case West:
		return -y, x
	}
	return x, y
}

// Cell is an offset from the rotation centre, y pointing up.
type Cell struct {
	X, Y int
}

// ColumnMask is the part of a piece that falls in one column: dx from the
// piece centre, the lowest row offset dy, and the bits occupied from there.
type ColumnMask struct {
	DX   int
	DY   int
	Mask uint64
}

type shape struct {
	cells   [4]Cell
	columns []ColumnMask
	minX    int
	maxX    int
	minY    int
	maxY    int
}

var northCells = [NumKinds][4]Cell{
	I: {{-1, 0}, {0, 0}, {1, 0}, {2, 0}},
	O: {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	T: {{-1, 0}, {0, 0}, {1, 0}, {0, 1}},
	L: {{-1, 0}, {0, 0}, {1, 0}, {1, 1}},
	J: {{-1, 0}, {0, 0}, {1, 0}, {-1, 1}},
	S: {{-1, 0}, {0, 0}, {0, 1}, {1, 1}},
	Z: {{-1, 1}, {0, 1}, {0, 0}, {1, 0}},
}

var shapes [NumKinds][4]shape

type canonicalForm struct {
	rot    Rotation
	dx, dy int
}

var canonical [NumKinds][4]canonicalForm

func init() {
	for _, k := range All {
		for r := North; r <= West; r++ {
			var s shape
			s.minX, s.minY = 100, 100
			s.maxX, s.maxY = -100, -100
			for i, c := range northCells[k] {
				x, y := r.RotateCell(c.X, c.Y)
				s.cells[i] = Cell{x, y}
				s.minX, s.maxX = min(s.minX, x), max(s.maxX, x)
				s.minY, s.maxY = min(s.minY, y), max(s.maxY, y)
			}
			for dx := s.minX; dx <= s.maxX; dx++ {
				cm := ColumnMask{DX: dx, DY: 100}
				for _, c := range s.cells {
					if c.X == dx {
						cm.DY = min(cm.DY, c.Y)
					}
				}
				for _, c := range s.cells {
					if c.X == dx {
						cm.Mask |= 1 << uint(c.Y-cm.DY)
					}
				}
				s.columns = append(s.columns, cm)
			}
			shapes[k][r] = s
		}
		for r := North; r <= West; r++ {
			canonical[k][r] = canonicalForm{rot: r}
			for r2 := North; r2 < r; r2++ {
				if dx, dy, ok := sameFootprint(shapes[k][r].cells, shapes[k][r2].cells); ok {
					canonical[k][r] = canonicalForm{rot: r2, dx: dx, dy: dy}
					break
				}
			}
		}
	}
}

// sameFootprint reports whether b is a translation of a, returning the
// translation to apply to a centre in frame a to get the centre in frame b.
func sameFootprint(a, b [4]Cell) (int, int, bool) {
	minA, minB := a[0], b[0]
	for i := 1; i < 4; i++ {
		if a[i].X < minA.X || (a[i].X == minA.X && a[i].Y < minA.Y) {
			minA = a[i]
		}
		if b[i].X < minB.X || (b[i].X == minB.X && b[i].Y < minB.Y) {
			minB = b[i]
		}
	}
	dx, dy := minA.X-minB.X, minA.Y-minB.Y
	for _, ca := range a {
		found := false
		for _, cb := range b {
			if cb.X+dx == ca.X && cb.Y+dy == ca.Y {
				found = true
				break
			}
		}
		if !found {
			return 0, 0, false
		}
	}
	return dx, dy, true
}

// Cells returns the four cells of k in rotation r.
func Cells(k Kind, r Rotation) [4]Cell {
	return shapes[k][r&3].cells
}

// Columns returns the per-column occupancy of k in rotation r.
func Columns(k Kind, r Rotation) []ColumnMask {
	return shapes[k][r&3].columns
}

// Extent returns the bounding box of k in rotation r, relative to its centre.
func Extent(k Kind, r Rotation) (minX, maxX, minY, maxY int) {
	s := &shapes[k][r&3]
	return s.minX, s.maxX, s.minY, s.maxY
}

// Canonical returns the lowest rotation with the same footprint as (k, r)
// and the offset to add to the centre to reach it.
func Canonical(k Kind, r Rotation) (Rotation, int, int) {
	c := canonical[k][r&3]
	return c.rot, c.dx, c.dy
}
