// Package tree holds the search graph: nodes keyed by canonical state in a
// bounded transposition table, with edges for placements.
package tree

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/evaluator"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/movegen"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/zobrist"
)

var (
	ErrNoRoot           = fmt.Errorf("%w: no position has been set", game.ErrInvalidInput)
	ErrIllegalPlacement = fmt.Errorf("%w: placement is not legal in the current position", game.ErrInvalidInput)
)

const (
	defaultExpandBatch    = 8
	defaultWideningVisits = 4
)

type Options struct {
	// ExpandBatch is how many children one expansion materializes. Zero or
	// less materializes all of them at once.
	ExpandBatch int
	// WideningVisits is how many visits per materialized child a partial
	// node needs before the next batch is added.
	WideningVisits int
}

func DefaultOptions() Options {
	return Options{ExpandBatch: defaultExpandBatch, WideningVisits: defaultWideningVisits}
}

// Tree is the search graph rooted at the current position. SetRoot,
// Advance and Reveal must not run while a search is using the tree;
// everything else is safe for concurrent use.
type Tree struct {
	rules game.Rules
	gen   *movegen.Generator
	ev    evaluator.Evaluator
	prio  evaluator.Prioritizer
	z     *zobrist.Zobrist
	table *Table
	opts  Options

	root *Node
}

func New(gen *movegen.Generator, ev evaluator.Evaluator, z *zobrist.Zobrist, table *Table, opts Options) *Tree {
	t := &Tree{
		rules: gen.Rules(),
		gen:   gen,
		ev:    ev,
		z:     z,
		table: table,
		opts:  opts,
	}
	if p, ok := ev.(evaluator.Prioritizer); ok {
		t.prio = p
	}
	return t
}

func (t *Tree) Rules() game.Rules              { return t.rules }
func (t *Tree) Table() *Table                  { return t.table }
func (t *Tree) Generator() *movegen.Generator  { return t.gen }
func (t *Tree) Evaluator() evaluator.Evaluator { return t.ev }
func (t *Tree) Root() *Node                    { return t.root }
func (t *Tree) Options() Options               { return t.opts }
func (t *Tree) SetOptions(opts Options)        { t.opts = opts }

func (t *Tree) statusOf(s *game.State) Status {
	switch {
	case s.Exhausted():
		return Exhausted
	case s.Dead(t.rules):
		return Terminal
	}
	return Unexpanded
}

// node looks up or creates the node for s.
func (t *Tree) node(s game.State) (*Node, bool, error) {
	key := s.Key(t.z)
	check := s.Check()
	return t.table.GetOrInsert(key, check, func() *Node {
		st := s
		return newNode(key, check, &st, t.ev.Evaluate(&st), t.statusOf(&st))
	})
}

// SetRoot makes s the root, reusing its node if the table has one, and
// drops every node that is not reachable from it.
func (t *Tree) SetRoot(s game.State) error {
	if err := s.Validate(t.rules); err != nil {
		return err
	}
	n, _, err := t.node(s)
	if errors.Is(err, ErrTableFull) {
		t.table.Clear()
		n, _, err = t.node(s)
	}
	if err != nil {
		return err
	}
	t.root = n
	pinned := t.table.Pin(n)
	pruned := t.table.Prune()
	log.Debug().Int("pinned", pinned).Int("pruned", pruned).Msg("set-root")
	return nil
}

// Advance moves the root along the given placement. The placement does not
// have to be one the search suggested, but it must be legal. Nodes that are
// no longer reachable stay in the table until space is needed.
func (t *Tree) Advance(p move.Placement) error {
	root := t.root
	if root == nil {
		return ErrNoRoot
	}
	played, ok := t.findPlacement(root, p)
	if !ok {
		return fmt.Errorf("%w: %v", ErrIllegalPlacement, p)
	}
	next, _, err := root.state.Advance(t.rules, played)
	if err != nil {
		return err
	}
	n, _, err := t.node(next)
	if err != nil {
		return err
	}
	t.root = n
	pinned := t.table.Pin(n)
	log.Debug().Int("pinned", pinned).Str("placement", played.ShortDescription()).Msg("advanced-root")
	return nil
}

func (t *Tree) findPlacement(n *Node, p move.Placement) (move.Placement, bool) {
	for _, e := range n.Edges() {
		if move.SameMove(e.Placement, p) {
			return e.Placement, true
		}
	}
	for _, c := range n.pending {
		if move.SameMove(c.placement, p) {
			return c.placement, true
		}
	}
	plays := t.gen.GenerateState(n.state)
	idx := slices.IndexFunc(plays, func(q move.Placement) bool { return move.SameMove(q, p) })
	if idx < 0 {
		return p, false
	}
	return plays[idx], true
}

// Reveal appends a newly known piece to the queue of every state reachable
// from the root. Keys, edges and pending children are updated in place so
// no search work is lost, and nodes whose queue had run out can be expanded
// again. Nodes left over from earlier roots are dropped first; the piece
// does not follow their queues.
func (t *Tree) Reveal(k piece.Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%w: cannot reveal %v", game.ErrInvalidPiece, k)
	}
	if t.root != nil && t.root.state.Queue.Len() >= zobrist.MaxQueue {
		return fmt.Errorf("%w: queue is full", game.ErrInvalidQueue)
	}
	if t.root != nil {
		t.table.Pin(t.root)
		if pruned := t.table.Prune(); pruned > 0 {
			log.Debug().Int("pruned", pruned).Msg("reveal-dropped-stale-nodes")
		}
	}
	t.table.rekey(func(n *Node) (uint64, bool) {
		old := n.state
		slot := old.Queue.Len()
		if slot >= zobrist.MaxQueue {
			return 0, false
		}
		ns := *old
		ns.Queue = old.Queue.Append(k)
		n.state = &ns
		n.check = ns.Check()

		childKey := func(key uint64, p move.Placement) uint64 {
			used := 1
			if p.Hold && old.Hold == piece.None {
				used = 2
			}
			if slot-used < 0 {
				return key
			}
			return t.z.AppendPiece(key, slot-used, k)
		}
		if edges := n.Edges(); len(edges) > 0 {
			updated := make([]Edge, len(edges))
			for i, e := range edges {
				e.Child = childKey(e.Child, e.Placement)
				updated[i] = e
			}
			n.edges.Store(&updated)
		}
		for i := range n.pending {
			c := &n.pending[i]
			c.key = childKey(c.key, c.placement)
			c.state.Queue = c.state.Queue.Append(k)
		}

		switch n.Status() {
		case Exhausted:
			n.status.Store(uint32(t.statusOf(&ns)))
		case Partial, Expanded:
			// with one piece left and an empty hold slot there was nothing
			// to swap in; now there is
			if t.rules.HoldEnabled && old.Hold == piece.None && slot == 1 {
				n.refresh = true
				n.status.Store(uint32(Partial))
			}
		}
		return t.z.AppendPiece(n.key, slot, k), true
	})
	return nil
}

// Child returns the node at the end of e, recreating it if it was evicted.
func (t *Tree) Child(n *Node, e Edge) (*Node, error) {
	if c := t.table.Get(e.Child); c != nil {
		return c, nil
	}
	next, _, err := n.state.Advance(t.rules, e.Placement)
	if err != nil {
		return nil, err
	}
	c, _, err := t.node(next)
	return c, err
}

// WideningDue reports whether a partial node has been visited enough to
// deserve more children.
func (t *Tree) WideningDue(n *Node) bool {
	switch n.Status() {
	case Unexpanded:
		return true
	case Partial:
		w := int64(max(t.opts.WideningVisits, 1))
		return n.Visits() >= w*int64(len(n.Edges()))
	}
	return false
}

// Expand materializes the next batch of n's children and returns the
// edges it added. The caller must hold n's claim. A node without legal
// placements becomes Terminal; it and nodes with nothing left to add give
// no edges.
func (t *Tree) Expand(n *Node) ([]Edge, error) {
	st := n.Status()
	if st != Unexpanded && st != Partial {
		return nil, nil
	}
	if st == Unexpanded || n.refresh {
		t.generate(n)
		if len(n.pending) == 0 && len(n.Edges()) == 0 {
			n.status.Store(uint32(Terminal))
			return nil, nil
		}
	}
	batch := len(n.pending)
	if t.opts.ExpandBatch > 0 {
		batch = min(batch, t.opts.ExpandBatch)
	}
	added := make([]Edge, 0, batch)
	var err error
	taken := 0
	for _, c := range n.pending[:batch] {
		var child *Node
		child, _, err = t.node(c.state)
		if err != nil {
			break
		}
		taken++
		added = append(added, Edge{
			Placement: c.placement,
			Reward:    c.reward,
			Prior:     c.prior,
			Child:     child.key,
		})
	}
	n.pending = n.pending[taken:]
	if len(added) > 0 {
		edges := append(slices.Clone(n.Edges()), added...)
		normalizeShares(edges)
		n.edges.Store(&edges)
	}
	if len(n.pending) > 0 {
		n.status.Store(uint32(Partial))
	} else {
		n.status.Store(uint32(Expanded))
		n.pending = nil
	}
	if len(added) == 0 && err != nil {
		return nil, err
	}
	return added, err
}

// generate computes every child of n that is not already an edge, ordered
// by prior.
func (t *Tree) generate(n *Node) {
	plays := t.gen.GenerateState(n.state)
	existing := n.Edges()
	seen := make(map[uint64]int, len(plays))
	for _, e := range existing {
		seen[e.Child] = -1
	}
	cands := make([]candidate, 0, len(plays))
	for _, p := range plays {
		next, info, err := n.state.Advance(t.rules, p)
		if err != nil {
			log.Error().Err(err).Str("placement", p.String()).Msg("generated-placement-rejected")
			continue
		}
		key := next.Key(t.z)
		// two placements reaching the same state are one move; keep the
		// cheaper one
		if idx, ok := seen[key]; ok {
			if idx >= 0 && p.Cost < cands[idx].placement.Cost {
				cands[idx].placement = p
			}
			continue
		}
		c := candidate{
			placement: p,
			state:     next,
			reward:    t.ev.Reward(n.state, info),
			key:       key,
		}
		if t.prio != nil {
			c.prior = t.prio.Prior(n.state, info, &next)
		}
		seen[key] = len(cands)
		cands = append(cands, c)
	}
	if t.prio != nil {
		slices.SortStableFunc(cands, func(a, b candidate) int {
			switch {
			case a.prior > b.prior:
				return -1
			case a.prior < b.prior:
				return 1
			}
			return 0
		})
	}
	n.pending = cands
	n.refresh = false
}

// Greedy picks the placement with the best one-ply value among every child
// of n, materialized or not. It must not run during a search.
func (t *Tree) Greedy(n *Node) (move.Placement, float64, bool) {
	best := math.Inf(-1)
	var bestP move.Placement
	found := false
	consider := func(p move.Placement, v float64) {
		if v > best || (v == best && p.Cost < bestP.Cost) {
			best, bestP, found = v, p, true
		}
	}
	for _, e := range n.Edges() {
		v := e.Reward
		if c := t.table.Get(e.Child); c != nil {
			v += c.Eval()
		} else if next, _, err := n.state.Advance(t.rules, e.Placement); err == nil {
			v += t.ev.Evaluate(&next)
		}
		consider(e.Placement, v)
	}
	for i := range n.pending {
		c := &n.pending[i]
		consider(c.placement, c.reward+t.ev.Evaluate(&c.state))
	}
	return bestP, best, found
}
