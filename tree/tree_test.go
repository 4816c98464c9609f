package tree

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/evaluator"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/movegen"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/zobrist"
)

func newTestTree(capacity int, opts Options) *Tree {
	rules := game.NewRules(10, 20)
	z := &zobrist.Zobrist{}
	z.InitializeSeeded(42)
	return New(movegen.NewGenerator(rules), evaluator.NewFreestyle(evaluator.DefaultWeights()),
		z, NewTable(capacity), opts)
}

func emptyState(t *Tree, queue ...piece.Kind) game.State {
	return game.NewState(t.Rules().NewBoard(), piece.None, queue...)
}

func placementAt(t *testing.T, plays []move.Placement, k piece.Kind, x int, hold bool) move.Placement {
	for _, p := range plays {
		if p.Piece == k && int(p.X) == x && p.Hold == hold && p.Rotation == piece.North {
			return p
		}
	}
	t.Fatalf("no %v placement at x=%d", k, x)
	return move.Placement{}
}

func expandAll(t *testing.T, tr *Tree, n *Node) {
	for n.Expandable() {
		_, err := tr.Expand(n)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestTranspositionsShareNodes(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, DefaultOptions())
	s := emptyState(tr, piece.O, piece.O, piece.T)
	plays := tr.Generator().Generate(s.Board, piece.O)
	left := placementAt(t, plays, piece.O, 0, false)
	right := placementAt(t, plays, piece.O, 4, false)

	a, _, err := s.Advance(tr.Rules(), left)
	is.NoErr(err)
	a, _, err = a.Advance(tr.Rules(), right)
	is.NoErr(err)
	b, _, err := s.Advance(tr.Rules(), right)
	is.NoErr(err)
	b, _, err = b.Advance(tr.Rules(), left)
	is.NoErr(err)

	na, created, err := tr.node(a)
	is.NoErr(err)
	is.True(created)
	nb, created, err := tr.node(b)
	is.NoErr(err)
	is.True(!created)
	is.True(na == nb)
	is.Equal(tr.Table().Len(), 1)
}

func TestExpandInBatches(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{ExpandBatch: 5, WideningVisits: 1})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T, piece.I)))
	root := tr.Root()
	is.Equal(root.Status(), Unexpanded)

	added, err := tr.Expand(root)
	is.NoErr(err)
	is.Equal(len(added), 5)
	is.Equal(root.Status(), Partial)
	// T has 34 placements and holding it brings in I with 17 more
	is.Equal(root.Pending(), 46)

	expandAll(t, tr, root)
	is.Equal(root.Status(), Expanded)
	edges := root.Edges()
	is.Equal(len(edges), 51)

	keys := map[uint64]bool{}
	for i, e := range edges {
		is.True(!keys[e.Child])
		keys[e.Child] = true
		if i > 0 {
			is.True(edges[i-1].Prior >= e.Prior)
		}
		c := tr.Table().Get(e.Child)
		is.True(c != nil)
		is.Equal(c.Key(), c.State().Key(tr.z))
	}
	added, err = tr.Expand(root)
	is.NoErr(err)
	is.Equal(len(added), 0)
}

func TestEdgeSharesFollowPriors(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{ExpandBatch: 5, WideningVisits: 1})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T, piece.I)))
	root := tr.Root()
	for root.Expandable() {
		_, err := tr.Expand(root)
		is.NoErr(err)
		edges := root.Edges()
		sum := 0.0
		for i, e := range edges {
			is.True(e.Share >= 0 && e.Share <= 1)
			sum += e.Share
			if i > 0 {
				is.True(edges[i-1].Share >= e.Share)
			}
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}

	same := []Edge{{Prior: 3}, {Prior: 3}, {Prior: 3}, {Prior: 3}}
	normalizeShares(same)
	for _, e := range same {
		assert.InDelta(t, 0.25, e.Share, 1e-12)
	}
	lopsided := []Edge{{Prior: 1000}, {Prior: 0}}
	normalizeShares(lopsided)
	assert.InDelta(t, 1.0, lopsided[0].Share, 1e-12)
}

func TestDeadRoot(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(100, DefaultOptions())
	rows := make([]string, 20)
	for i := range rows {
		rows[i] = "#########."
	}
	b, err := board.Parse(10, 20, rows...)
	is.NoErr(err)
	is.NoErr(tr.SetRoot(game.NewState(b, piece.None, piece.T)))
	is.Equal(tr.Root().Status(), Terminal)
	is.True(!tr.Root().Expandable())
	_, _, ok := tr.Greedy(tr.Root())
	is.True(!ok)
}

func TestSetRootRejectsBadState(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(100, DefaultOptions())
	b, err := board.New(8, 20)
	is.NoErr(err)
	err = tr.SetRoot(game.NewState(b, piece.None, piece.T))
	is.True(errors.Is(err, game.ErrInvalidInput))
	is.True(tr.Root() == nil)
	is.True(errors.Is(tr.Advance(move.Placement{}), ErrNoRoot))
}

func TestAdvanceKeepsSubtree(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.O, piece.O, piece.T)))
	root := tr.Root()
	expandAll(t, tr, root)

	e := root.Edges()[0]
	child, err := tr.Child(root, e)
	is.NoErr(err)
	child.Update(3)
	expandAll(t, tr, child)
	grandchildren := len(child.Edges())

	// the caller may describe the placement without cost or spin details
	played := move.Placement{Location: e.Placement.Location, Hold: e.Placement.Hold}
	is.NoErr(tr.Advance(played))
	is.True(tr.Root() == child)
	is.Equal(tr.Root().Visits(), int64(1))
	is.Equal(len(tr.Root().Edges()), grandchildren)
	// the old root is not reachable any more but stays until space is needed
	is.True(tr.Table().Get(root.Key()) != nil)
}

func TestAdvanceIllegal(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(100, DefaultOptions())
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T)))
	floating := move.Placement{Location: move.Location{Piece: piece.T, Rotation: piece.North, X: 4, Y: 10}}
	err := tr.Advance(floating)
	is.True(errors.Is(err, ErrIllegalPlacement))
	is.True(errors.Is(err, game.ErrInvalidInput))

	wrongPiece := move.Placement{Location: move.Location{Piece: piece.I, Rotation: piece.North, X: 4, Y: 0}}
	is.True(errors.Is(tr.Advance(wrongPiece), ErrIllegalPlacement))
}

func TestRevealRekeysTree(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.O)))
	root := tr.Root()
	expandAll(t, tr, root)
	is.Equal(len(root.Edges()), 9)
	for _, e := range root.Edges() {
		is.Equal(tr.Table().Get(e.Child).Status(), Exhausted)
	}

	is.NoErr(tr.Reveal(piece.T))
	is.Equal(root.State().Queue.Len(), 2)
	is.Equal(root.Key(), root.State().Key(tr.z))
	is.True(tr.Table().Get(root.Key()) == root)
	for _, e := range root.Edges() {
		c := tr.Table().Get(e.Child)
		is.True(c != nil)
		is.Equal(c.Key(), c.State().Key(tr.z))
		is.Equal(c.State().Active(), piece.T)
		is.Equal(c.Status(), Unexpanded)
	}

	// the T can now be reached through hold
	is.Equal(root.Status(), Partial)
	expandAll(t, tr, root)
	is.Equal(len(root.Edges()), 9+34)
	holds := 0
	for _, e := range root.Edges() {
		if e.Placement.Hold {
			holds++
		}
	}
	is.Equal(holds, 34)
}

func TestRevealRekeysPendingHoldChildren(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{ExpandBatch: 1})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T, piece.I)))
	root := tr.Root()
	_, err := tr.Expand(root)
	is.NoErr(err)
	is.NoErr(tr.Reveal(piece.S))
	expandAll(t, tr, root)
	for _, e := range root.Edges() {
		c := tr.Table().Get(e.Child)
		is.True(c != nil)
		is.Equal(c.Key(), c.State().Key(tr.z))
		want := []piece.Kind{piece.I, piece.S}
		if e.Placement.Hold {
			want = []piece.Kind{piece.S}
		}
		is.Equal(c.State().Queue.Pieces(), want)
	}
	is.True(errors.Is(tr.Reveal(piece.None), game.ErrInvalidInput))
}

func TestRevealAfterAdvanceWithFullQueue(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{})
	queue := make([]piece.Kind, zobrist.MaxQueue)
	for i := range queue {
		queue[i] = piece.O
	}
	is.NoErr(tr.SetRoot(emptyState(tr, queue...)))
	oldRoot := tr.Root()
	expandAll(t, tr, oldRoot)
	is.NoErr(tr.Advance(oldRoot.Edges()[0].Placement))
	is.Equal(tr.Root().State().Queue.Len(), zobrist.MaxQueue-1)

	is.NoErr(tr.Reveal(piece.T))
	root := tr.Root()
	is.Equal(root.State().Queue.Len(), zobrist.MaxQueue)
	is.Equal(root.State().Queue.At(zobrist.MaxQueue-1), piece.T)
	is.True(tr.Table().Get(root.Key()) == root)
	// the earlier root cannot take the piece and is gone
	is.True(tr.Table().Get(oldRoot.Key()) == nil)
	is.Equal(oldRoot.State().Queue.Len(), zobrist.MaxQueue)
	is.Equal(tr.Table().Len(), 1)

	is.True(errors.Is(tr.Reveal(piece.T), game.ErrInvalidQueue))
}

func TestTableFull(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(3, Options{})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.O, piece.T)))
	added, err := tr.Expand(tr.Root())
	is.True(errors.Is(err, ErrTableFull))
	is.Equal(len(added), 2)
	is.Equal(tr.Table().Len(), 3)
	is.Equal(tr.Root().Status(), Partial)
}

func TestReclaimEvictsStaleNodes(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(19, Options{})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.O, piece.O)))
	root := tr.Root()
	expandAll(t, tr, root)
	// nine drops of the O, and nine more after holding it
	is.Equal(tr.Table().Len(), 19)

	var next Edge
	for _, e := range root.Edges() {
		if !e.Placement.Hold {
			next = e
			break
		}
	}
	is.NoErr(tr.Advance(next.Placement))
	expandAll(t, tr, tr.Root())
	is.Equal(len(tr.Root().Edges()), 9)
	is.True(tr.Table().Len() <= 19)
	is.True(tr.Table().Stats().Evictions >= 9)
}

func TestSetRootPrunes(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(1000, Options{})
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T, piece.I)))
	expandAll(t, tr, tr.Root())
	is.Equal(tr.Table().Len(), 52)

	// same position again: everything is still reachable
	is.NoErr(tr.SetRoot(emptyState(tr, piece.T, piece.I)))
	is.Equal(tr.Table().Len(), 52)
	is.Equal(len(tr.Root().Edges()), 51)

	is.NoErr(tr.SetRoot(emptyState(tr, piece.Z)))
	is.Equal(tr.Table().Len(), 1)
}

func TestConcurrentGetOrInsert(t *testing.T) {
	is := is.New(t)
	tr := newTestTree(100, DefaultOptions())
	s := emptyState(tr, piece.S, piece.Z)
	nodes := make([]*Node, 16)
	var wg sync.WaitGroup
	for i := range nodes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, _, err := tr.node(s)
			if err != nil {
				t.Error(err)
				return
			}
			nodes[i] = n
		}(i)
	}
	wg.Wait()
	for _, n := range nodes {
		is.True(n == nodes[0])
	}
	is.Equal(tr.Table().Len(), 1)
	is.Equal(tr.Table().Stats().Created, uint64(1))
}

func TestGreedyPrefersFlatPlacement(t *testing.T) {
	tr := newTestTree(1000, Options{ExpandBatch: 3})
	b, err := board.Parse(10, 20,
		"########..",
		"########..",
	)
	assert.NoError(t, err)
	assert.NoError(t, tr.SetRoot(game.NewState(b, piece.None, piece.O)))
	_, err = tr.Expand(tr.Root())
	assert.NoError(t, err)
	// some children are still pending; they count too
	p, _, ok := tr.Greedy(tr.Root())
	assert.True(t, ok)
	assert.Equal(t, int8(8), p.X)
	assert.False(t, p.Hold)
}

func TestNodeStatistics(t *testing.T) {
	is := is.New(t)
	n := newNode(1, 1, &game.State{}, 2.5, Unexpanded)
	is.Equal(n.Mean(), 2.5)
	is.Equal(n.Best(), 2.5)
	n.Update(1)
	n.Update(5)
	n.Update(3)
	is.Equal(n.Visits(), int64(3))
	is.Equal(n.Mean(), 3.0)
	is.Equal(n.Best(), 5.0)

	is.True(n.TryClaim())
	is.True(!n.TryClaim())
	n.Release()
	is.True(n.TryClaim())

	names := []string{}
	for _, s := range []Status{Unexpanded, Partial, Expanded, Terminal, Exhausted} {
		names = append(names, s.String())
	}
	is.True(!slices.Contains(names, "unknown"))
}
