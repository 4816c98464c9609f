package search

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/tree"
)

// ChildStats describes one root move after a search.
type ChildStats struct {
	Placement move.Placement
	Visits    int64
	// Mean and Best are seen from the root: the placement's reward plus the
	// child's backed-up value.
	Mean   float64
	Best   float64
	Reward float64
	Prior  float64
}

type Result struct {
	Best move.Placement
	// NoMove is set when the piece in play cannot spawn or there is no piece
	// to play. Best is meaningless then.
	NoMove bool
	// Fallback is set when no root move had been visited and Best was picked
	// by one-ply value instead.
	Fallback       bool
	Iterations     uint64
	Nodes          uint64
	Elapsed        time.Duration
	Children       []ChildStats
	BestKnownValue float64
	TableSize      int
	Degraded       bool
}

// NodesPerSecond counts nodes added to the tree by the search.
func (r *Result) NodesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Nodes) / r.Elapsed.Seconds()
}

func (r *Result) String() string {
	var ss strings.Builder
	if r.NoMove {
		ss.WriteString("No legal move.\n")
		return ss.String()
	}
	fmt.Fprintf(&ss, "%-28s%-9s%-8s%-10s%-10s%-10s\n", "Placement", "Visits", "Cost", "Mean", "Best", "Reward")
	for _, c := range r.Children {
		marker := ""
		if move.SameMove(c.Placement, r.Best) {
			marker = " *"
		}
		fmt.Fprintf(&ss, "%-28s%-9d%-8d%-10.3f%-10.3f%-10.3f%s\n",
			c.Placement.ShortDescription(), c.Visits, c.Placement.Cost, c.Mean, c.Best, c.Reward, marker)
	}
	fmt.Fprintf(&ss, "Iterations: %d, nodes: %d, table size: %d, elapsed: %v\n",
		r.Iterations, r.Nodes, r.TableSize, r.Elapsed.Round(time.Millisecond))
	if r.Fallback {
		ss.WriteString("No move was visited; picked by static value.\n")
	}
	if r.Degraded {
		ss.WriteString("The transposition table filled up; the search stopped expanding.\n")
	}
	return ss.String()
}

// robustOrder sorts by visits, then mean, then lowest input cost.
func robustOrder(a, b ChildStats) int {
	switch {
	case a.Visits != b.Visits:
		if a.Visits > b.Visits {
			return -1
		}
		return 1
	case a.Mean != b.Mean:
		if a.Mean > b.Mean {
			return -1
		}
		return 1
	case a.Placement.Cost != b.Placement.Cost:
		if a.Placement.Cost < b.Placement.Cost {
			return -1
		}
		return 1
	}
	return 0
}

func (s *Searcher) childStats(root *tree.Node) []ChildStats {
	return lo.Map(root.Edges(), func(e tree.Edge, _ int) ChildStats {
		cs := ChildStats{Placement: e.Placement, Reward: e.Reward, Prior: e.Prior}
		if c := s.tree.Table().Get(e.Child); c != nil {
			cs.Visits = c.Visits()
			cs.Mean = s.cfg.Backup.Combine(e.Reward, c.Mean(), 0)
			cs.Best = s.cfg.Backup.Combine(e.Reward, c.Best(), 0)
		} else {
			cs.Mean, cs.Best = e.Reward, e.Reward
		}
		return cs
	})
}

func (s *Searcher) result(root *tree.Node) *Result {
	res := &Result{
		Iterations:     s.iterations.Load(),
		Nodes:          s.nodes.Load(),
		TableSize:      s.tree.Table().Len(),
		Degraded:       s.degraded.Load(),
		BestKnownValue: root.Best(),
	}
	res.Children = s.childStats(root)
	slices.SortStableFunc(res.Children, robustOrder)
	visited := lo.SumBy(res.Children, func(c ChildStats) int64 { return c.Visits })
	if visited > 0 {
		res.Best = res.Children[0].Placement
		return res
	}
	p, v, ok := s.tree.Greedy(root)
	if !ok {
		res.NoMove = true
		return res
	}
	res.Best = p
	res.Fallback = true
	res.BestKnownValue = max(res.BestKnownValue, v)
	return res
}
