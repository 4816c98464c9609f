// Package search grows the tree from its root with a pool of workers, each
// repeating select, expand, evaluate and backpropagate until the budget
// runs out, then picks the most visited root move.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/tree"
)

type Config struct {
	Threads     int
	Exploration float64
	// VirtualLoss is subtracted from a child's value for every worker
	// currently below it.
	VirtualLoss float64
	// DeadValue is the value of a position whose next piece cannot spawn.
	DeadValue      float64
	ExpandBatch    int
	WideningVisits int
	Policy         Policy
	Backup         Backup
}

func DefaultConfig() Config {
	return Config{
		Threads:        1,
		Exploration:    1.4,
		VirtualLoss:    1,
		DeadValue:      -1000,
		ExpandBatch:    8,
		WideningVisits: 4,
		Policy:         UCT{},
		Backup:         SingleAgent{},
	}
}

func ConfigFromSettings(cfg *config.Config) (Config, error) {
	p, err := PolicyByName(cfg.GetString(config.ConfigPolicy))
	if err != nil {
		return Config{}, err
	}
	return Config{
		Threads:        max(cfg.GetInt(config.ConfigThreads), 1),
		Exploration:    cfg.GetFloat64(config.ConfigExploration),
		VirtualLoss:    cfg.GetFloat64(config.ConfigVirtualLoss),
		DeadValue:      cfg.GetFloat64(config.ConfigDeadValue),
		ExpandBatch:    cfg.GetInt(config.ConfigExpandBatch),
		WideningVisits: cfg.GetInt(config.ConfigWideningVisits),
		Policy:         p,
		Backup:         SingleAgent{},
	}, nil
}

// Budget bounds a search. Zero fields are unlimited; a search with no
// bound at all runs until it is stopped or its context is done.
type Budget struct {
	Duration      time.Duration
	Deadline      time.Time
	MaxNodes      uint64
	MaxIterations uint64
}

// Searcher runs searches over a tree. Only one search may run at a time;
// Stop may be called from any goroutine.
type Searcher struct {
	tree *tree.Tree
	cfg  Config

	stopped    atomic.Bool
	started    atomic.Uint64
	iterations atomic.Uint64
	nodes      atomic.Uint64
	degraded   atomic.Bool
	budget     Budget
}

func NewSearcher(t *tree.Tree, cfg Config) *Searcher {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.Policy == nil {
		cfg.Policy = UCT{}
	}
	if cfg.Backup == nil {
		cfg.Backup = SingleAgent{}
	}
	t.SetOptions(tree.Options{ExpandBatch: cfg.ExpandBatch, WideningVisits: cfg.WideningVisits})
	return &Searcher{tree: t, cfg: cfg}
}

func (s *Searcher) Tree() *tree.Tree { return s.tree }
func (s *Searcher) Config() Config   { return s.cfg }

// Stop asks a running search to finish. Iterations already under way
// complete; no new ones start. A Stop that arrives between searches ends
// the next one as soon as its root is expanded, unless ClearStop runs
// first.
func (s *Searcher) Stop() {
	s.stopped.Store(true)
}

// ClearStop forgets a Stop that no search has consumed yet.
func (s *Searcher) ClearStop() {
	s.stopped.Store(false)
}

func (s *Searcher) Iterations() uint64 {
	return s.iterations.Load()
}

// Search grows the tree within the budget and returns the chosen move. A
// dead root gives a result with NoMove set and no error. When the
// transposition table fills up the search carries on without expanding,
// and the result comes back together with an error wrapping
// tree.ErrTableFull.
func (s *Searcher) Search(ctx context.Context, budget Budget) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	root := s.tree.Root()
	if root == nil {
		return nil, tree.ErrNoRoot
	}
	tstart := time.Now()
	defer s.ClearStop()
	s.started.Store(0)
	s.iterations.Store(0)
	s.nodes.Store(0)
	s.degraded.Store(false)
	s.budget = budget

	if err := s.expandRoot(root); err != nil {
		return nil, err
	}
	if st := root.Status(); st == tree.Terminal || st == tree.Exhausted {
		logger.Info().Str("status", st.String()).Msg("search-no-move")
		return &Result{NoMove: true, TableSize: s.tree.Table().Len(), Elapsed: time.Since(tstart)}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if budget.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, budget.Duration)
		defer cancel()
	}
	if !budget.Deadline.IsZero() {
		ctx, cancel = context.WithDeadline(ctx, budget.Deadline)
		defer cancel()
	}

	ticker := errgroup.Group{}
	done := make(chan struct{})
	ticker.Go(func() error {
		t := time.NewTicker(1 * time.Second)
		defer t.Stop()
		var lastNodes uint64
		for {
			select {
			case <-done:
				return nil
			case <-t.C:
				nodes := s.nodes.Load()
				logger.Debug().Uint64("nps", nodes-lastNodes).
					Uint64("iterations", s.iterations.Load()).Msg("nodes-per-second")
				lastNodes = nodes
			}
		}
	})

	g := errgroup.Group{}
	for t := 0; t < s.cfg.Threads; t++ {
		t := t
		g.Go(func() error {
			path := make([]step, 0, 32)
			for s.more(ctx) {
				var err error
				path, err = s.iterate(path[:0])
				if err != nil {
					logger.Err(err).Int("thread", t).Msg("search-iteration-failed")
					cancel()
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()
	close(done)
	ticker.Wait()

	res := s.result(root)
	res.Elapsed = time.Since(tstart)
	logger.Info().
		Uint64("iterations", res.Iterations).
		Uint64("nodes", res.Nodes).
		Int("table-size", res.TableSize).
		Float64("best-known-value", res.BestKnownValue).
		Bool("fallback", res.Fallback).
		Str("best", res.Best.ShortDescription()).
		Float64("time-elapsed-sec", res.Elapsed.Seconds()).
		Msg("search-ended")
	if err != nil {
		return res, err
	}
	if res.Degraded {
		return res, fmt.Errorf("search ran out of table space: %w", tree.ErrTableFull)
	}
	return res, nil
}

// expandRoot makes sure the root has children before any worker starts, so
// that every iteration crosses exactly one root edge.
func (s *Searcher) expandRoot(root *tree.Node) error {
	for len(root.Edges()) == 0 && root.Expandable() {
		if !root.TryClaim() {
			return errors.New("root is being expanded by another search")
		}
		added, err := s.tree.Expand(root)
		root.Release()
		s.nodes.Add(uint64(len(added)))
		if errors.Is(err, tree.ErrTableFull) {
			s.degraded.Store(true)
			if len(added) == 0 {
				return nil
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// more reports whether another iteration may start and reserves it.
func (s *Searcher) more(ctx context.Context) bool {
	if s.stopped.Load() || ctx.Err() != nil {
		return false
	}
	if s.budget.MaxNodes > 0 && s.nodes.Load() >= s.budget.MaxNodes {
		return false
	}
	if len(s.tree.Root().Edges()) == 0 {
		// the table filled up before the root had a single child
		return false
	}
	n := s.started.Add(1)
	return s.budget.MaxIterations == 0 || n <= s.budget.MaxIterations
}

type step struct {
	node   *tree.Node
	reward float64
}

// iterate runs one iteration and returns the path buffer for reuse.
func (s *Searcher) iterate(path []step) ([]step, error) {
	t := s.tree
	t.Table().Tick()
	root := t.Root()
	n := root
	for len(path) < 64 {
		t.Table().Touch(n)
		st := n.Status()
		if st == tree.Terminal || st == tree.Exhausted {
			break
		}
		if t.WideningDue(n) && !s.degraded.Load() {
			if n.TryClaim() {
				added, err := t.Expand(n)
				n.Release()
				s.nodes.Add(uint64(len(added)))
				if errors.Is(err, tree.ErrTableFull) {
					s.degraded.Store(true)
				} else if err != nil {
					s.unwind(path)
					return path, err
				}
				if len(added) > 0 {
					e := s.bestNew(added)
					child, err := t.Child(n, e)
					if err != nil {
						s.unwind(path)
						return path, err
					}
					child.AddVirtualLoss(1)
					path = append(path, step{child, e.Reward})
					n = child
					break
				}
			}
		}
		edges := n.Edges()
		if len(edges) == 0 {
			// another worker holds the claim, or nothing could be added
			break
		}
		e := s.selectEdge(n, edges)
		child, err := t.Child(n, e)
		if errors.Is(err, tree.ErrTableFull) {
			s.degraded.Store(true)
			break
		} else if err != nil {
			s.unwind(path)
			return path, err
		}
		child.AddVirtualLoss(1)
		path = append(path, step{child, e.Reward})
		n = child
	}

	var v float64
	if n.Status() == tree.Terminal {
		v = s.cfg.DeadValue
	} else {
		v = n.Mean()
	}
	for i := len(path) - 1; i >= 0; i-- {
		path[i].node.Update(v)
		path[i].node.AddVirtualLoss(-1)
		v = s.cfg.Backup.Combine(path[i].reward, v, i)
	}
	root.Update(v)
	s.iterations.Add(1)
	return path, nil
}

func (s *Searcher) unwind(path []step) {
	for _, st := range path {
		st.node.AddVirtualLoss(-1)
	}
}

// bestNew picks the freshly added edge with the best one-ply value.
func (s *Searcher) bestNew(added []tree.Edge) tree.Edge {
	best := added[0]
	bestV := math.Inf(-1)
	for _, e := range added {
		v := e.Reward
		if c := s.tree.Table().Get(e.Child); c != nil {
			v = s.cfg.Backup.Combine(e.Reward, c.Eval(), 0)
		}
		if v > bestV {
			best, bestV = e, v
		}
	}
	return best
}

// edgeValue is the value of following e as seen from its parent, with the
// pending visits of other workers counted as losses, and the visit count the
// policy should use.
func (s *Searcher) edgeValue(e tree.Edge) (float64, int64) {
	c := s.tree.Table().Get(e.Child)
	if c == nil {
		return e.Reward, 0
	}
	q := s.cfg.Backup.Combine(e.Reward, c.Mean(), 0)
	visits := c.Visits()
	if vl := int64(c.VirtualLoss()); vl > 0 {
		q -= float64(vl) * s.cfg.VirtualLoss
		visits += vl
	}
	return q, visits
}

func (s *Searcher) selectEdge(n *tree.Node, edges []tree.Edge) tree.Edge {
	parentVisits := n.Visits()
	best := 0
	bestScore := math.Inf(-1)
	for i, e := range edges {
		q, visits := s.edgeValue(e)
		score := s.cfg.Policy.Score(q, parentVisits, visits, e.Share, s.cfg.Exploration)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return edges[best]
}
