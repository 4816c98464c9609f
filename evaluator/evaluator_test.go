package evaluator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
)

func stateOf(t *testing.T, rows ...string) *game.State {
	b, err := board.Parse(10, 20, rows...)
	if err != nil {
		t.Fatal(err)
	}
	s := game.NewState(b, piece.None, piece.T)
	return &s
}

func TestCoveredness(t *testing.T) {
	is := is.New(t)
	s := stateOf(t,
		"#.........",
		"#.........",
		".#........",
	)
	// column 0: one hole at the bottom of a three high column
	is.Equal(coveredness(s.Board, 6), 3)
	is.Equal(coveredness(s.Board, 1), 1)
}

func TestRowTransitions(t *testing.T) {
	is := is.New(t)
	empty := stateOf(t)
	// every row has one boundary at each wall
	is.Equal(rowTransitions(empty.Board), 40)

	s := stateOf(t, "##########")
	is.Equal(rowTransitions(s.Board), 38)
}

func TestSurface(t *testing.T) {
	is := is.New(t)
	s := stateOf(t,
		"#.#.......",
		"#.#.......",
	)
	bump, wells := surface(s.Board)
	is.Equal(bump, 6)
	// column 1 is a two deep well; column 3 onwards sit lower than column
	// 2 but are not one wide.
	is.Equal(wells, 2)
}

func TestFreestyleRewards(t *testing.T) {
	f := NewFreestyle(DefaultWeights())
	parent := stateOf(t)
	tsd := game.PlacementInfo{
		Placement:    move.Placement{Location: move.Location{Piece: piece.T}, Spin: move.FullSpin},
		LinesCleared: 2,
	}
	assert.InDelta(t, 4.0, f.Reward(parent, tsd), 1e-9)

	tsd.BackToBack = true
	tsd.Combo = 3
	assert.InDelta(t, 4.0+1.0+1.5, f.Reward(parent, tsd), 1e-9)

	wasted := game.PlacementInfo{Placement: move.Placement{Location: move.Location{Piece: piece.T}}}
	assert.InDelta(t, -1.5, f.Reward(parent, wasted), 1e-9)

	pc := game.PlacementInfo{
		Placement:    move.Placement{Location: move.Location{Piece: piece.I}},
		LinesCleared: 1,
		PerfectClear: true,
		BackToBack:   true,
	}
	assert.InDelta(t, 15.0, f.Reward(parent, pc), 1e-9)

	soft := game.PlacementInfo{Placement: move.Placement{Location: move.Location{Piece: piece.O}, SoftDrop: 3}}
	assert.InDelta(t, -0.3, f.Reward(parent, soft), 1e-9)
}

func TestFreestylePrefersFewerHoles(t *testing.T) {
	is := is.New(t)
	f := NewFreestyle(DefaultWeights())
	clean := stateOf(t, "####......")
	holey := stateOf(t,
		"####......",
		"#.##......",
	)
	is.True(f.Evaluate(clean) > f.Evaluate(holey))

	h := &Heights{}
	is.True(h.Evaluate(clean) > h.Evaluate(holey))
}

func TestWeightsFile(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	is.NoErr(os.WriteFile(path, []byte("holes: -2\nspin_clears: [0, 2, 5, 7]\n"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigWeightsFile, path)
	w, err := LoadWeights(cfg)
	is.NoErr(err)
	is.Equal(w.Holes, -2.0)
	is.Equal(w.SpinClears, []float64{0, 2, 5, 7})
	// untouched weights keep their defaults
	is.Equal(w.CellCoveredness, -0.2)

	ev, err := FromConfig(cfg)
	is.NoErr(err)
	_, ok := ev.(Prioritizer)
	is.True(ok)

	out, err := w.Marshal()
	is.NoErr(err)
	back, err := ParseWeights(out)
	is.NoErr(err)
	is.Equal(back, w)

	_, err = ParseWeights([]byte("normal_clears: []\n"))
	is.True(err != nil)
	_, err = ByName("neural", nil)
	is.True(err != nil)
}
