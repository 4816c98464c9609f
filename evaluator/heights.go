package evaluator

import "github.com/domino14/stackbot/game"

// Heights keeps the stack low and flat and rewards nothing else. It is a
// baseline for testing the search.
type Heights struct{}

func (h *Heights) Evaluate(s *game.State) float64 {
	b := s.Board
	bump, _ := surface(b)
	return -4*float64(b.Holes()) - 0.5*float64(b.MaxHeight()) - 0.25*float64(bump)
}

func (h *Heights) Reward(parent *game.State, info game.PlacementInfo) float64 {
	return float64(info.LinesCleared)
}
