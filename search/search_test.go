package search

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/evaluator"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/movegen"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/testhelpers"
	"github.com/domino14/stackbot/tree"
	"github.com/domino14/stackbot/zobrist"
)

type fixture struct {
	rules game.Rules
	tree  *tree.Tree
	s     *Searcher
}

func newFixture(t *testing.T, hold bool, ev evaluator.Evaluator, capacity int, cfg Config, b board.Board, queue ...piece.Kind) *fixture {
	rules := game.NewRules(10, 20)
	rules.HoldEnabled = hold
	z := &zobrist.Zobrist{}
	z.InitializeSeeded(7)
	tr := tree.New(movegen.NewGenerator(rules), ev, z, tree.NewTable(capacity), tree.DefaultOptions())
	if err := tr.SetRoot(game.NewState(b, piece.None, queue...)); err != nil {
		t.Fatal(err)
	}
	return &fixture{rules: rules, tree: tr, s: NewSearcher(tr, cfg)}
}

func emptyBoard() board.Board {
	return game.NewRules(10, 20).NewBoard()
}

func wellBoard(t *testing.T) board.Board {
	return testhelpers.Board(t, 10, 20, testhelpers.Well...)
}

func visitSum(res *Result) int64 {
	var n int64
	for _, c := range res.Children {
		n += c.Visits
	}
	return n
}

func TestOPieceSingleIteration(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.ExpandBatch = 0
	f := newFixture(t, false, evaluator.NewFreestyle(evaluator.DefaultWeights()), 1000, cfg, emptyBoard(), piece.O)

	plays := f.tree.Generator().GenerateState(f.tree.Root().State())
	is.Equal(len(plays), 9)

	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 1})
	is.NoErr(err)
	is.True(!res.NoMove)
	is.True(!res.Fallback)
	is.Equal(res.Iterations, uint64(1))
	is.Equal(len(res.Children), 9)
	is.Equal(visitSum(res), int64(1))
	is.True(!math.IsInf(res.BestKnownValue, 0) && !math.IsNaN(res.BestKnownValue))
	found := false
	for _, p := range plays {
		if move.SameMove(p, res.Best) {
			found = true
		}
	}
	is.True(found)
	is.Equal(res.Best.Piece, piece.O)
	is.Equal(res.Best.Y, int8(0))
}

func TestFillsTheWell(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.Exploration = 0.5
	cfg.ExpandBatch = 0
	f := newFixture(t, false, &evaluator.Heights{}, 1000, cfg, wellBoard(t), piece.I)

	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 300})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(300))
	next, info, err := f.tree.Root().State().Advance(f.rules, res.Best)
	is.NoErr(err)
	is.Equal(info.LinesCleared, 0)
	is.Equal(next.Board.Holes(), 0)
	// the I stands upright in the well, next to the stack
	is.Equal(next.Board.ColumnHeight(8), 4)
	is.Equal(next.Board.ColumnHeight(9), 0)
	is.Equal(next.Board.MaxHeight(), 4)
}

func TestConvergesOnSingleWorker(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.Exploration = 0.5
	f := newFixture(t, false, &evaluator.Heights{}, 10000, cfg, wellBoard(t), piece.I)

	last := math.Inf(-1)
	lastMean := math.Inf(-1)
	var lastBest move.Placement
	for i, budget := range []uint64{50, 100, 200, 400, 800} {
		res, err := f.s.Search(context.Background(), Budget{MaxIterations: budget})
		is.NoErr(err)
		is.Equal(res.Iterations, budget)
		// the best value ever backed up only grows as the tree does
		is.True(res.BestKnownValue >= last)
		last = res.BestKnownValue
		chosen := res.Children[0]
		is.True(move.SameMove(chosen.Placement, res.Best))
		if i < 2 {
			// children are still being added in batches
			continue
		}
		next, _, err := f.tree.Root().State().Advance(f.rules, res.Best)
		is.NoErr(err)
		is.Equal(next.Board.ColumnHeight(8), 4)
		is.Equal(next.Board.Holes(), 0)
		// a bigger budget keeps the same move and never values it lower
		if i > 2 {
			is.True(move.SameMove(chosen.Placement, lastBest))
			is.True(chosen.Mean >= lastMean-1e-9)
		}
		lastBest, lastMean = chosen.Placement, chosen.Mean
	}
}

func TestDeterministicSingleWorker(t *testing.T) {
	cfg := DefaultConfig()
	run := func() *Result {
		f := newFixture(t, true, evaluator.NewFreestyle(evaluator.DefaultWeights()), 10000, cfg,
			emptyBoard(), piece.T, piece.S, piece.Z, piece.L)
		res, err := f.s.Search(context.Background(), Budget{MaxIterations: 400})
		assert.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Best, b.Best)
	assert.Equal(t, len(a.Children), len(b.Children))
	for i := range a.Children {
		assert.Equal(t, a.Children[i].Placement, b.Children[i].Placement)
		assert.Equal(t, a.Children[i].Visits, b.Children[i].Visits)
		assert.InDelta(t, a.Children[i].Mean, b.Children[i].Mean, 1e-9)
	}
}

func TestDeadBoardHasNoMove(t *testing.T) {
	is := is.New(t)
	rows := make([]string, 20)
	for i := range rows {
		rows[i] = "#########."
	}
	b, err := board.Parse(10, 20, rows...)
	is.NoErr(err)
	f := newFixture(t, true, &evaluator.Heights{}, 100, DefaultConfig(), b, piece.T, piece.I)
	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 100})
	is.NoErr(err)
	is.True(res.NoMove)
	is.Equal(res.Iterations, uint64(0))
	is.Equal(len(res.Children), 0)
	is.Equal(f.tree.Root().Visits(), int64(0))
}

func TestRootVisitsMatchIterations(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.Threads = 8
	f := newFixture(t, true, evaluator.NewFreestyle(evaluator.DefaultWeights()), 100000, cfg,
		emptyBoard(), piece.T, piece.I, piece.O, piece.L, piece.J)

	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 3000})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(3000))
	is.Equal(visitSum(res), int64(3000))
	is.Equal(f.tree.Root().Visits(), int64(3000))
	for _, e := range f.tree.Root().Edges() {
		c := f.tree.Table().Get(e.Child)
		is.True(c != nil)
		is.Equal(c.VirtualLoss(), int32(0))
	}

	// a second search on the same tree adds to the same counters
	res, err = f.s.Search(context.Background(), Budget{MaxIterations: 1000})
	is.NoErr(err)
	is.Equal(visitSum(res), int64(4000))
}

func TestFallbackWhenOutOfTime(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, true, evaluator.NewFreestyle(evaluator.DefaultWeights()), 1000, DefaultConfig(),
		wellBoard(t), piece.I, piece.T)
	res, err := f.s.Search(context.Background(), Budget{Deadline: time.Now().Add(-time.Second)})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(0))
	is.True(res.Fallback)
	is.True(!res.NoMove)
	_, _, err = f.tree.Root().State().Advance(f.rules, res.Best)
	is.NoErr(err)
}

func TestDegradesWhenTableIsFull(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, true, evaluator.NewFreestyle(evaluator.DefaultWeights()), 5, DefaultConfig(),
		emptyBoard(), piece.T, piece.I, piece.O)
	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 50})
	is.True(errors.Is(err, tree.ErrTableFull))
	is.True(res != nil)
	is.True(res.Degraded)
	is.Equal(res.Iterations, uint64(50))
	is.Equal(len(res.Children), 4)
	is.True(res.TableSize <= 5)
	_, _, err = f.tree.Root().State().Advance(f.rules, res.Best)
	is.NoErr(err)
}

func TestStopEndsSearch(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.Threads = 2
	f := newFixture(t, true, evaluator.NewFreestyle(evaluator.DefaultWeights()), 100000, cfg,
		emptyBoard(), piece.T, piece.I, piece.O, piece.L, piece.J, piece.S, piece.Z)
	go func() {
		for f.s.Iterations() == 0 {
			time.Sleep(time.Millisecond)
		}
		f.s.Stop()
	}()
	res, err := f.s.Search(context.Background(), Budget{})
	is.NoErr(err)
	is.True(res.Iterations > 0)
	is.Equal(visitSum(res), int64(res.Iterations))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err = f.s.Search(ctx, Budget{})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(0))
	// earlier visits still pick the move
	is.True(!res.Fallback)
}

func TestNoRoot(t *testing.T) {
	is := is.New(t)
	rules := game.NewRules(10, 20)
	z := &zobrist.Zobrist{}
	z.Initialize()
	tr := tree.New(movegen.NewGenerator(rules), &evaluator.Heights{}, z, tree.NewTable(10), tree.DefaultOptions())
	_, err := NewSearcher(tr, DefaultConfig()).Search(context.Background(), Budget{MaxIterations: 1})
	is.True(errors.Is(err, tree.ErrNoRoot))
}

func TestConfigFromSettings(t *testing.T) {
	is := is.New(t)
	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigPolicy, "puct")
	cfg.Set(config.ConfigThreads, 3)
	sc, err := ConfigFromSettings(cfg)
	is.NoErr(err)
	is.Equal(sc.Threads, 3)
	is.Equal(sc.Policy.Name(), "puct")
	is.Equal(sc.DeadValue, -1000.0)

	cfg.Set(config.ConfigPolicy, "random")
	_, err = ConfigFromSettings(cfg)
	is.True(err != nil)
}

func TestPolicies(t *testing.T) {
	is := is.New(t)
	// fewer visits earn a larger bonus
	for _, pol := range []Policy{UCT{}, PUCT{}} {
		is.True(pol.Score(0, 100, 1, 0.5, 1) > pol.Score(0, 100, 50, 0.5, 1))
		is.Equal(pol.Score(2, 100, 10, 0.5, 0), 2.0)
	}
	// PUCT prefers the child the prior likes
	is.True(PUCT{}.Score(0, 10, 0, 0.9, 1) > PUCT{}.Score(0, 10, 0, 0.1, 1))

	is.Equal(SingleAgent{}.Combine(1, 2, 0), 3.0)
	is.Equal(Negamax{}.Combine(1, 2, 0), -1.0)
}

func TestVirtualLossSpreadsSelection(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.ExpandBatch = 0
	f := newFixture(t, false, evaluator.NewFreestyle(evaluator.DefaultWeights()), 1000, cfg, emptyBoard(), piece.O, piece.T)
	_, err := f.s.Search(context.Background(), Budget{MaxIterations: 200})
	is.NoErr(err)

	root := f.tree.Root()
	edges := root.Edges()
	first := f.s.selectEdge(root, edges)
	child := f.tree.Table().Get(first.Child)
	is.True(child != nil)
	// values here are negative; a pending visit must still count against
	// the edge
	q0, n0 := f.s.edgeValue(first)
	child.AddVirtualLoss(1)
	q1, n1 := f.s.edgeValue(first)
	is.True(q1 < q0)
	is.Equal(n1, n0+1)
	child.AddVirtualLoss(-1)

	picked := map[uint64]bool{}
	var loaded []*tree.Node
	for i := 0; i < 8; i++ {
		e := f.s.selectEdge(root, edges)
		picked[e.Child] = true
		c := f.tree.Table().Get(e.Child)
		c.AddVirtualLoss(1)
		loaded = append(loaded, c)
	}
	is.True(len(picked) > 1)
	for _, c := range loaded {
		c.AddVirtualLoss(-1)
	}
	for _, e := range edges {
		is.Equal(f.tree.Table().Get(e.Child).VirtualLoss(), int32(0))
	}
}

func TestStopBeforeSearch(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, false, &evaluator.Heights{}, 1000, DefaultConfig(), emptyBoard(), piece.T, piece.O)
	f.s.Stop()
	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 50})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(0))
	is.True(res.Fallback)
	is.True(!res.NoMove)

	// the stop was used up by that search
	res, err = f.s.Search(context.Background(), Budget{MaxIterations: 50})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(50))

	f.s.Stop()
	f.s.ClearStop()
	res, err = f.s.Search(context.Background(), Budget{MaxIterations: 10})
	is.NoErr(err)
	is.Equal(res.Iterations, uint64(10))
}

func TestResultString(t *testing.T) {
	is := is.New(t)
	f := newFixture(t, false, &evaluator.Heights{}, 1000, DefaultConfig(), emptyBoard(), piece.O)
	res, err := f.s.Search(context.Background(), Budget{MaxIterations: 20})
	is.NoErr(err)
	out := res.String()
	is.True(len(out) > 0)
	assert.Contains(t, out, "Iterations: 20")
	assert.Contains(t, out, res.Best.ShortDescription())
	is.Equal((&Result{NoMove: true}).String(), "No legal move.\n")
}
