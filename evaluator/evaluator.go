// Package evaluator scores positions and transitions for the search. An
// Evaluator is a pure function: it must be safe to call from many
// goroutines at once.
package evaluator

import (
	"fmt"

	"github.com/domino14/stackbot/game"
)

// Evaluator gives a static value to a state and a reward to the placement
// that led to it. Higher is better for the player to move.
type Evaluator interface {
	Evaluate(s *game.State) float64
	Reward(parent *game.State, info game.PlacementInfo) float64
}

// Prioritizer is implemented by evaluators that can rank the children of
// a node before they are searched. Children with a higher prior are
// expanded first.
type Prioritizer interface {
	Prior(parent *game.State, info game.PlacementInfo, child *game.State) float64
}

const (
	FreestyleName = "freestyle"
	HeightsName   = "heights"
)

// ByName builds one of the built-in evaluators.
func ByName(name string, w *Weights) (Evaluator, error) {
	switch name {
	case "", FreestyleName:
		if w == nil {
			w = DefaultWeights()
		}
		return NewFreestyle(w), nil
	case HeightsName:
		return &Heights{}, nil
	}
	return nil, fmt.Errorf("unknown evaluator %q", name)
}
