package search

import (
	"fmt"
	"math"
)

// Policy scores a child during selection. q is the child's value seen from
// the parent, with virtual loss already applied; prior is the child's share
// of the parent's prior mass, in [0, 1].
type Policy interface {
	Name() string
	Score(q float64, parentVisits, childVisits int64, prior, exploration float64) float64
}

// UCT is UCB1 applied to trees. Unvisited children count as visited once
// at their static value, so the bonus stays finite and the prior order
// breaks ties.
type UCT struct{}

func (UCT) Name() string { return "uct" }

func (UCT) Score(q float64, parentVisits, childVisits int64, prior, exploration float64) float64 {
	return q + exploration*math.Sqrt(math.Log(float64(parentVisits)+1)/float64(childVisits+1))
}

// PUCT scales the exploration bonus by the child's prior, as in AlphaZero.
type PUCT struct{}

func (PUCT) Name() string { return "puct" }

func (PUCT) Score(q float64, parentVisits, childVisits int64, prior, exploration float64) float64 {
	return q + exploration*prior*math.Sqrt(float64(parentVisits)+1)/float64(childVisits+1)
}

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "uct":
		return UCT{}, nil
	case "puct":
		return PUCT{}, nil
	}
	return nil, fmt.Errorf("unknown selection policy %q", name)
}

// Backup turns the value of a child into the value of its parent. depth is
// the parent's distance from the root.
type Backup interface {
	Combine(reward, child float64, depth int) float64
}

// SingleAgent adds up rewards along the path: every placement is made by
// the same player.
type SingleAgent struct{}

func (SingleAgent) Combine(reward, child float64, depth int) float64 {
	return reward + child
}

// Negamax alternates the point of view every ply, for games where the
// players take turns on a shared position.
type Negamax struct{}

func (Negamax) Combine(reward, child float64, depth int) float64 {
	return reward - child
}
