package tree

import (
	"math"
	"sync/atomic"

	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
)

type Status uint32

const (
	// Unexpanded nodes have been evaluated but have no children yet.
	Unexpanded Status = iota
	// Partial nodes have some children; more are pending.
	Partial
	Expanded
	// Terminal nodes are dead: the piece in play cannot spawn.
	Terminal
	// Exhausted nodes have no piece left in the known queue. Revealing a
	// piece turns them back into Unexpanded nodes.
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Unexpanded:
		return "unexpanded"
	case Partial:
		return "partial"
	case Expanded:
		return "expanded"
	case Terminal:
		return "terminal"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Edge leads from a node to the child reached by a placement. The child is
// referenced by key, so a child shared by several parents is stored once.
type Edge struct {
	Placement move.Placement
	Reward    float64
	Prior     float64
	// Share is the softmax of Prior over the node's edges at the time the
	// last batch was added.
	Share float64
	Child uint64
}

// normalizeShares sets Share on every edge. Equal priors come out uniform.
func normalizeShares(edges []Edge) {
	if len(edges) == 0 {
		return
	}
	hi := math.Inf(-1)
	for _, e := range edges {
		hi = max(hi, e.Prior)
	}
	sum := 0.0
	for i := range edges {
		edges[i].Share = math.Exp(edges[i].Prior - hi)
		sum += edges[i].Share
	}
	for i := range edges {
		edges[i].Share /= sum
	}
}

type candidate struct {
	placement move.Placement
	state     game.State
	reward    float64
	prior     float64
	key       uint64
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

func (f *atomicFloat) Add(d float64) {
	for {
		old := f.bits.Load()
		nv := math.Float64bits(math.Float64frombits(old) + d)
		if f.bits.CompareAndSwap(old, nv) {
			return
		}
	}
}

func (f *atomicFloat) Max(v float64) {
	for {
		old := f.bits.Load()
		if math.Float64frombits(old) >= v {
			return
		}
		if f.bits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// Node is a search tree node, shared by every path that reaches its state.
// The statistics are updated with atomics so workers never lock a node.
// Only the worker holding the expansion claim may touch pending and
// replace the edge slice.
type Node struct {
	key   uint64
	check uint64
	state *game.State
	eval  float64

	status    atomic.Uint32
	visits    atomic.Int64
	valueSum  atomicFloat
	best      atomicFloat
	vloss     atomic.Int32
	lastVisit atomic.Uint64
	epoch     atomic.Uint32
	claimed   atomic.Bool

	edges   atomic.Pointer[[]Edge]
	pending []candidate
	refresh bool
}

func newNode(key, check uint64, s *game.State, eval float64, status Status) *Node {
	n := &Node{key: key, check: check, state: s, eval: eval}
	n.status.Store(uint32(status))
	n.best.Store(math.Inf(-1))
	return n
}

func (n *Node) Key() uint64            { return n.key }
func (n *Node) State() *game.State     { return n.state }
func (n *Node) Eval() float64          { return n.eval }
func (n *Node) Status() Status         { return Status(n.status.Load()) }
func (n *Node) Visits() int64          { return n.visits.Load() }
func (n *Node) VirtualLoss() int32     { return n.vloss.Load() }
func (n *Node) AddVirtualLoss(d int32) { n.vloss.Add(d) }

// Mean is the average backed-up value, or the static evaluation before the
// first visit.
func (n *Node) Mean() float64 {
	v := n.visits.Load()
	if v == 0 {
		return n.eval
	}
	return n.valueSum.Load() / float64(v)
}

// Best is the highest value ever backed up through this node. It never
// decreases.
func (n *Node) Best() float64 {
	if n.visits.Load() == 0 {
		return n.eval
	}
	return n.best.Load()
}

// Update records one backed-up sample.
func (n *Node) Update(sample float64) {
	n.valueSum.Add(sample)
	n.best.Max(sample)
	n.visits.Add(1)
}

// Edges returns the current children. The slice must not be modified.
func (n *Node) Edges() []Edge {
	e := n.edges.Load()
	if e == nil {
		return nil
	}
	return *e
}

// Pending is the number of known children not materialized yet. Only
// meaningful to the claim holder or when no search is running.
func (n *Node) Pending() int {
	return len(n.pending)
}

// TryClaim grants the caller the right to expand the node. It never
// blocks; a false return means another worker is expanding it.
func (n *Node) TryClaim() bool {
	return n.claimed.CompareAndSwap(false, true)
}

func (n *Node) Release() {
	n.claimed.Store(false)
}

// Expandable reports whether the node has children left to add.
func (n *Node) Expandable() bool {
	switch n.Status() {
	case Unexpanded:
		return true
	case Partial:
		return true
	}
	return false
}
