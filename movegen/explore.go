package movegen

import (
	"slices"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
)

// cursor is a piece position during the search. Every piece has a cell at
// its centre, so a non-colliding cursor always lies on the board.
type cursor struct {
	rot  piece.Rotation
	x, y int
}

func (c cursor) location(k piece.Kind, dy int) move.Location {
	return move.Location{Piece: k, Rotation: c.rot, X: int8(c.x), Y: int8(c.y + dy)}
}

func (c cursor) resting(b board.Board, k piece.Kind) bool {
	return b.Collides(k, c.rot, c.x, c.y-1)
}

type explorer struct {
	b     board.Board
	k     piece.Kind
	rules *game.Rules
	order []move.Input
	w, h  int

	cost  []int32
	prev  []int32
	via   []move.Input
	queue []int32
}

func newExplorer(b board.Board, k piece.Kind, rules *game.Rules, order []move.Input) *explorer {
	w, h := b.Width(), b.Height()
	n := 4 * w * h
	ex := &explorer{
		b: b, k: k, rules: rules, order: order, w: w, h: h,
		cost:  make([]int32, n),
		prev:  make([]int32, n),
		via:   make([]move.Input, n),
		queue: make([]int32, 0, 256),
	}
	for i := range ex.cost {
		ex.cost[i] = -1
	}
	return ex
}

func (ex *explorer) index(c cursor) int32 {
	return int32((int(c.rot)*ex.w+c.x)*ex.h + c.y)
}

func (ex *explorer) cursorAt(i int32) cursor {
	y := int(i) % ex.h
	rest := int(i) / ex.h
	return cursor{rot: piece.Rotation(rest / ex.w), x: rest % ex.w, y: y}
}

// step applies one input. kick is the index of the kick used by a
// rotation, or -1.
func (ex *explorer) step(c cursor, in move.Input) (cursor, int, bool) {
	switch in {
	case move.Left, move.Right, move.SoftDrop:
		n := c
		switch in {
		case move.Left:
			n.x--
		case move.Right:
			n.x++
		default:
			n.y--
		}
		if ex.b.Collides(ex.k, n.rot, n.x, n.y) {
			return c, -1, false
		}
		return n, -1, true
	case move.CW, move.CCW:
		if !ex.rules.Kicks.CanRotate(ex.k) {
			return c, -1, false
		}
		to := c.rot.CW()
		if in == move.CCW {
			to = c.rot.CCW()
		}
		for i, kick := range ex.rules.Kicks.Kicks(ex.k, c.rot, to) {
			n := cursor{rot: to, x: c.x + kick.X, y: c.y + kick.Y}
			if !ex.b.Collides(ex.k, n.rot, n.x, n.y) {
				return n, i, true
			}
		}
	}
	return c, -1, false
}

// run explores breadth first from spawn. onPop sees each state once, in
// order of input count; onArrive sees every successful transition,
// including ones into states already visited. Either callback can stop
// the search by returning true.
func (ex *explorer) run(spawn move.Location,
	onPop func(s cursor, cost int, resting bool) bool,
	onArrive func(from cursor, in move.Input, kick int, to cursor, cost int) bool) {

	start := cursor{rot: spawn.Rotation, x: int(spawn.X), y: int(spawn.Y)}
	si := ex.index(start)
	ex.cost[si] = 0
	ex.prev[si] = -1
	ex.queue = append(ex.queue, si)
	visited := 1
	limit := ex.rules.MaxMovegenStates
	if limit <= 0 {
		limit = len(ex.cost)
	}

	for head := 0; head < len(ex.queue); head++ {
		ci := ex.queue[head]
		c := ex.cursorAt(ci)
		cost := int(ex.cost[ci])
		if onPop(c, cost, c.resting(ex.b, ex.k)) {
			return
		}
		for _, in := range ex.order {
			n, kick, ok := ex.step(c, in)
			if !ok {
				continue
			}
			ni := ex.index(n)
			if ex.cost[ni] < 0 && visited < limit {
				ex.cost[ni] = int32(cost + 1)
				ex.prev[ni] = ci
				ex.via[ni] = in
				ex.queue = append(ex.queue, ni)
				visited++
			}
			if onArrive(c, in, kick, n, cost+1) {
				return
			}
		}
	}
}

// pathTo follows predecessors back to spawn.
func (ex *explorer) pathTo(c cursor) move.Path {
	var path move.Path
	for i := ex.index(c); ex.prev[i] >= 0; i = ex.prev[i] {
		path = append(path, ex.via[i])
	}
	slices.Reverse(path)
	return path
}
