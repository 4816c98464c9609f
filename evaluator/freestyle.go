package evaluator

import (
	"math/bits"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
)

// Freestyle plays for attack without any particular opener. The board is
// judged by how buried its holes are and how ragged its rows are;
// clears, spins and chains are paid as rewards on the placement.
type Freestyle struct {
	w *Weights
}

func NewFreestyle(w *Weights) *Freestyle {
	return &Freestyle{w: w}
}

func (f *Freestyle) Weights() *Weights {
	return f.w
}

func (f *Freestyle) Evaluate(s *game.State) float64 {
	w := f.w
	b := s.Board
	eval := 0.0
	if s.BackToBack {
		eval += w.HasBackToBack
	}
	eval += w.CellCoveredness * float64(coveredness(b, w.MaxCellCoveredHeight))
	eval += w.RowTransitions * float64(rowTransitions(b))

	if w.Holes != 0 {
		eval += w.Holes * float64(b.Holes())
	}
	if w.Height != 0 {
		eval += w.Height * float64(b.MaxHeight())
	}
	if w.Bumpiness != 0 || w.Wells != 0 {
		bump, well := surface(b)
		eval += w.Bumpiness*float64(bump) + w.Wells*float64(well)
	}
	return eval
}

func (f *Freestyle) Reward(parent *game.State, info game.PlacementInfo) float64 {
	w := f.w
	reward := 0.0
	p := info.Placement
	if info.PerfectClear {
		reward += w.PerfectClear
	}
	if !info.PerfectClear || !w.PerfectClearOverride {
		if info.BackToBack {
			reward += w.BackToBackClear
		}
		lines := info.LinesCleared
		switch p.Spin {
		case move.FullSpin:
			reward += lookup(w.SpinClears, lines)
		case move.MiniSpin:
			reward += lookup(w.MiniSpinClears, lines)
		default:
			reward += lookup(w.NormalClears, lines)
		}
		if info.Combo > 1 {
			reward += w.ComboAttack * float64((info.Combo-1)/2)
		}
	}
	if p.Piece == piece.T && p.Spin != move.FullSpin {
		reward += w.WastedT
	}
	reward += w.SoftDrop * float64(p.SoftDrop)
	return reward
}

// Prior ranks a child by the one-ply value of reaching it.
func (f *Freestyle) Prior(parent *game.State, info game.PlacementInfo, child *game.State) float64 {
	return f.Reward(parent, info) + f.Evaluate(child)
}

func lookup(table []float64, i int) float64 {
	if i < 0 || i >= len(table) {
		if len(table) == 0 {
			return 0
		}
		return table[len(table)-1]
	}
	return table[i]
}

// coveredness sums, over every hole, how many filled rows sit above it,
// each hole counting at most maxHeight.
func coveredness(b board.Board, maxHeight int) int {
	total := 0
	for x := 0; x < b.Width(); x++ {
		c := b.Column(x)
		height := bits.Len64(c)
		underneath := uint64(1)<<uint(height) - 1
		holes := ^c & underneath
		for holes != 0 {
			y := bits.TrailingZeros64(holes)
			total += min(height-y, maxHeight)
			holes &= holes - 1
		}
	}
	return total
}

// rowTransitions counts filled/empty boundaries between horizontally
// adjacent cells, the walls counting as filled.
func rowTransitions(b board.Board) int {
	rows := uint64(1)<<uint(b.Height()) - 1
	w := b.Width()
	n := bits.OnesCount64(^b.Column(0)&rows) + bits.OnesCount64(^b.Column(w-1)&rows)
	for x := 1; x < w; x++ {
		n += bits.OnesCount64(b.Column(x-1) ^ b.Column(x))
	}
	return n
}

// surface returns the bumpiness of the column heights and the summed depth
// of one-wide wells.
func surface(b board.Board) (bump, wells int) {
	w := b.Width()
	heights := make([]int, w)
	for x := range heights {
		heights[x] = b.ColumnHeight(x)
	}
	for x := 1; x < w; x++ {
		d := heights[x] - heights[x-1]
		if d < 0 {
			d = -d
		}
		bump += d
	}
	for x := 0; x < w; x++ {
		left, right := 64, 64
		if x > 0 {
			left = heights[x-1]
		}
		if x < w-1 {
			right = heights[x+1]
		}
		if d := min(left, right) - heights[x]; d > 0 {
			wells += d
		}
	}
	return bump, wells
}
