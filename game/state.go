// Package game holds the rules and the immutable game state the search
// works on: board, queue, hold slot and the scoring flags.
package game

import (
	"fmt"
	"strings"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/zobrist"
)

// State is a position. Advance returns a new State and never modifies the
// receiver, so States can be shared freely between goroutines.
type State struct {
	Board      board.Board
	Queue      Queue
	Hold       piece.Kind
	BackToBack bool
	Combo      uint8
}

// PlacementInfo describes what happened when a placement was made.
type PlacementInfo struct {
	Placement    move.Placement
	LinesCleared int
	PerfectClear bool
	// BackToBack is set when this clear continued a back-to-back chain.
	BackToBack bool
	Combo      uint8
}

func NewState(b board.Board, hold piece.Kind, queue ...piece.Kind) State {
	return State{Board: b, Hold: hold, Queue: NewQueue(queue...)}
}

// Active is the piece in play, or None when the queue has run out.
func (s *State) Active() piece.Kind {
	return s.Queue.Active()
}

// Exhausted reports whether there is no piece left to play.
func (s *State) Exhausted() bool {
	return s.Queue.Len() == 0
}

// Dead reports whether the piece in play cannot spawn.
func (s *State) Dead(r Rules) bool {
	if s.Exhausted() {
		return false
	}
	_, ok := r.Spawn(s.Board, s.Active())
	return !ok
}

// SwapPiece is the piece that would be played after using hold, if any.
func (s *State) SwapPiece(r Rules) (piece.Kind, bool) {
	if !r.HoldEnabled || s.Exhausted() {
		return piece.None, false
	}
	if s.Hold != piece.None {
		return s.Hold, true
	}
	if s.Queue.Len() >= 2 {
		return s.Queue.At(1), true
	}
	return piece.None, false
}

func (s *State) Key(z *zobrist.Zobrist) uint64 {
	return z.Hash(s.Board, s.Queue.pieces, s.Hold, s.BackToBack, s.Combo)
}

func (s *State) Check() uint64 {
	return zobrist.Check(s.Board, s.Queue.pieces, s.Hold, s.BackToBack, s.Combo)
}

func (s *State) Validate(r Rules) error {
	if err := s.Board.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBoard, err)
	}
	if s.Board.Width() != r.Width || s.Board.Height() != r.Height {
		return fmt.Errorf("%w: board is %dx%d, rules are %dx%d", ErrInvalidBoard,
			s.Board.Width(), s.Board.Height(), r.Width, r.Height)
	}
	if err := s.Queue.Validate(); err != nil {
		return err
	}
	if s.Hold != piece.None && !s.Hold.Valid() {
		return fmt.Errorf("%w: hold holds %v", ErrInvalidPiece, s.Hold)
	}
	return nil
}

// Advance plays p and returns the resulting state. p must be a resting,
// non-colliding location of the piece that is in play (or of the swap
// piece when p.Hold is set).
func (s State) Advance(r Rules, p move.Placement) (State, PlacementInfo, error) {
	active := s.Active()
	if active == piece.None {
		return s, PlacementInfo{}, fmt.Errorf("%w: no piece in play", ErrInvalidQueue)
	}
	next := s
	played := active
	if p.Hold {
		swap, ok := s.SwapPiece(r)
		if !ok {
			return s, PlacementInfo{}, fmt.Errorf("%w: hold is not available", ErrInvalidPlacement)
		}
		played = swap
		next.Hold = active
		if s.Hold == piece.None {
			next.Queue = s.Queue.Drop(2)
		} else {
			next.Queue = s.Queue.Drop(1)
		}
	} else {
		next.Queue = s.Queue.Drop(1)
	}
	if p.Piece != played {
		return s, PlacementInfo{}, fmt.Errorf("%w: %v placed but %v is in play", ErrInvalidPlacement, p.Piece, played)
	}
	if p.Collides(s.Board) || !p.Resting(s.Board) {
		return s, PlacementInfo{}, fmt.Errorf("%w: %v does not rest on the board", ErrInvalidPlacement, p.Location)
	}
	if p.Piece != piece.T {
		p.Spin = move.NoSpin
	}

	var res board.ClearResult
	next.Board, res = s.Board.Lock(p.Piece, p.Rotation, int(p.X), int(p.Y))
	info := PlacementInfo{Placement: p, LinesCleared: res.Lines}
	if res.Lines > 0 {
		difficult := res.Lines >= 4 || p.Spin != move.NoSpin
		info.BackToBack = difficult && s.BackToBack
		next.BackToBack = difficult
		if s.Combo < 255 {
			next.Combo = s.Combo + 1
		}
		info.PerfectClear = next.Board.IsEmpty()
	} else {
		next.Combo = 0
	}
	info.Combo = next.Combo
	return next, info, nil
}

func (s *State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "hold: %v  queue: %v  b2b: %v  combo: %d\n", s.Hold, s.Queue, s.BackToBack, s.Combo)
	sb.WriteString(s.Board.String())
	return sb.String()
}
