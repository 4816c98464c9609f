// Package movegen finds every distinct resting placement of a piece by a
// breadth-first search over (rotation, x, y) from the spawn location.
package movegen

import (
	"errors"
	"fmt"
	"slices"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
)

// DefaultOrder is the order actions are tried from each state.
var DefaultOrder = []move.Input{move.Left, move.Right, move.CW, move.CCW, move.SoftDrop}

var ErrNoPath = errors.New("no path to placement")

type Generator struct {
	rules game.Rules
	order []move.Input
}

func NewGenerator(rules game.Rules) *Generator {
	return &Generator{rules: rules, order: DefaultOrder}
}

func (g *Generator) Rules() game.Rules {
	return g.rules
}

// SetActionOrder changes the exploration order. The set of placements
// found does not depend on it.
func (g *Generator) SetActionOrder(order []move.Input) error {
	if len(order) != len(DefaultOrder) {
		return fmt.Errorf("action order needs %d inputs, got %d", len(DefaultOrder), len(order))
	}
	for _, in := range DefaultOrder {
		if !slices.Contains(order, in) {
			return fmt.Errorf("action order is missing %v", in)
		}
	}
	g.order = slices.Clone(order)
	return nil
}

// GenerateState returns the placements of the piece in play followed by
// those of the piece reachable through hold. A dead state has none.
func (g *Generator) GenerateState(s *game.State) []move.Placement {
	active := s.Active()
	if active == piece.None || s.Dead(g.rules) {
		return nil
	}
	plays := g.Generate(s.Board, active)
	swap, ok := s.SwapPiece(g.rules)
	// Swapping a piece for one of the same kind out of a full hold slot
	// leads to exactly the same states.
	if !ok || (s.Hold != piece.None && swap == active) {
		return plays
	}
	for _, p := range g.Generate(s.Board, swap) {
		p.Hold = true
		if p.Cost < 0xffff {
			p.Cost++
		}
		plays = append(plays, p)
	}
	return plays
}

// Generate returns every distinct resting placement of k on b, at most one
// per footprint, sorted by rotation, column and row.
func (g *Generator) Generate(b board.Board, k piece.Kind) []move.Placement {
	spawn, ok := g.rules.Spawn(b, k)
	if !ok {
		return nil
	}
	ex := newExplorer(b, k, &g.rules, g.order)
	found := make(map[move.Location]move.Placement, 64)
	offer := func(loc move.Location, spin move.Spin, cost int, softDrop int) {
		if g.rules.TopOutRow > 0 && aboveTopOut(loc, g.rules.TopOutRow) {
			return
		}
		p := move.Placement{
			Location: loc.Canonical(),
			Spin:     spin,
			Cost:     uint16(min(cost, 0xffff)),
			SoftDrop: uint8(min(max(softDrop, 0), 0xff)),
		}
		if old, seen := found[p.Location]; seen && !better(p, old) {
			return
		}
		found[p.Location] = p
	}

	ex.run(spawn, func(s cursor, cost int, resting bool) bool {
		// hard drop from here
		if !resting {
			offer(s.location(k, -b.DropDistance(k, s.rot, s.x, s.y)), move.NoSpin, cost, 0)
		} else if cost == 0 {
			offer(s.location(k, 0), move.NoSpin, 0, 0)
		}
		return false
	}, func(from cursor, in move.Input, kick int, to cursor, cost int) bool {
		if to.resting(b, k) {
			spin := move.NoSpin
			if in == move.CW || in == move.CCW {
				spin = tSpin(b, k, to, kick)
			}
			offer(to.location(k, 0), spin, cost, g.rules.SpawnY-to.y)
		}
		return false
	})

	plays := make([]move.Placement, 0, len(found))
	for _, p := range found {
		plays = append(plays, p)
	}
	slices.SortFunc(plays, func(a, b move.Placement) int {
		if a.Rotation != b.Rotation {
			return int(a.Rotation) - int(b.Rotation)
		}
		if a.X != b.X {
			return int(a.X) - int(b.X)
		}
		return int(a.Y) - int(b.Y)
	})
	return plays
}

// better prefers fewer inputs, then the stronger spin, then less soft drop.
func better(p, old move.Placement) bool {
	if p.Cost != old.Cost {
		return p.Cost < old.Cost
	}
	if p.Spin != old.Spin {
		return p.Spin > old.Spin
	}
	return p.SoftDrop < old.SoftDrop
}

func aboveTopOut(loc move.Location, row int) bool {
	for _, c := range loc.Cells() {
		if c.Y < row {
			return false
		}
	}
	return true
}

// tSpin applies the three corner rule to a T that just rotated into place.
func tSpin(b board.Board, k piece.Kind, c cursor, kick int) move.Spin {
	if k != piece.T {
		return move.NoSpin
	}
	corners := 0
	for _, d := range [4][2]int{{-1, 1}, {1, 1}, {-1, -1}, {1, -1}} {
		if b.Occupied(c.x+d[0], c.y+d[1]) {
			corners++
		}
	}
	if corners < 3 {
		return move.NoSpin
	}
	// the corners on either side of the T's point
	fx1, fy1 := c.rot.RotateCell(-1, 1)
	fx2, fy2 := c.rot.RotateCell(1, 1)
	if kick == 4 || (b.Occupied(c.x+fx1, c.y+fy1) && b.Occupied(c.x+fx2, c.y+fy2)) {
		return move.FullSpin
	}
	return move.MiniSpin
}

// Path reconstructs the inputs that bring a freshly spawned piece to
// target, ending with a hard drop.
func (g *Generator) Path(b board.Board, target move.Placement) (move.Path, error) {
	k := target.Piece
	spawn, ok := g.rules.Spawn(b, k)
	if !ok {
		return nil, fmt.Errorf("%w: %v cannot spawn", ErrNoPath, k)
	}
	want := target.Location.Canonical()
	ex := newExplorer(b, k, &g.rules, g.order)
	var path move.Path
	found := false
	ex.run(spawn, func(s cursor, cost int, resting bool) bool {
		if target.Spin != move.NoSpin {
			return false
		}
		d := b.DropDistance(k, s.rot, s.x, s.y)
		if s.location(k, -d).Canonical() == want {
			path = append(ex.pathTo(s), move.HardDrop)
			found = true
		}
		return found
	}, func(from cursor, in move.Input, kick int, to cursor, cost int) bool {
		if target.Spin == move.NoSpin || !to.resting(b, k) {
			return false
		}
		if (in == move.CW || in == move.CCW) && to.location(k, 0).Canonical() == want &&
			tSpin(b, k, to, kick) == target.Spin {
			path = append(ex.pathTo(from), in, move.HardDrop)
			found = true
		}
		return found
	})
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrNoPath, target)
	}
	if target.Hold {
		path = append(move.Path{move.Hold}, path...)
	}
	return path, nil
}
