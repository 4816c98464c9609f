package game

import (
	"errors"
	"fmt"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
)

var (
	// ErrInvalidInput is wrapped by every error caused by a malformed
	// board, queue, piece or move coming from the caller.
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidBoard     = fmt.Errorf("%w: board", ErrInvalidInput)
	ErrInvalidQueue     = fmt.Errorf("%w: queue", ErrInvalidInput)
	ErrInvalidPiece     = fmt.Errorf("%w: piece", ErrInvalidInput)
	ErrInvalidPlacement = fmt.Errorf("%w: placement", ErrInvalidInput)
	ErrInvalidRules     = fmt.Errorf("%w: rules", ErrInvalidInput)
)

// Rules are fixed for a whole game.
type Rules struct {
	Width  int
	Height int
	// SpawnX, SpawnY is where a new piece's centre appears, facing north.
	// If that spot is obstructed the piece spawns one row higher.
	SpawnX      int
	SpawnY      int
	HoldEnabled bool
	// Placements whose every cell is at or above TopOutRow are discarded.
	// Zero disables the check.
	TopOutRow int
	Kicks     piece.RotationSystem
	// MaxMovegenStates caps the (rotation, x, y) states one placement
	// search may visit.
	MaxMovegenStates int
}

// DefaultRules is a 10 wide field with 20 visible rows and a 20 row buffer.
func DefaultRules() Rules {
	return NewRules(10, 40)
}

func NewRules(width, height int) Rules {
	r := Rules{
		Width:            width,
		Height:           height,
		SpawnX:           (width - 1) / 2,
		HoldEnabled:      true,
		Kicks:            piece.SRS,
		MaxMovegenStates: 4 * board.MaxWidth * board.MaxHeight,
	}
	if height >= 22 {
		r.SpawnY = 19
	} else {
		r.SpawnY = height - 2
	}
	return r
}

func (r Rules) Validate() error {
	if r.Width < 4 || r.Width > board.MaxWidth || r.Height < 4 || r.Height > board.MaxHeight {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidRules, r.Width, r.Height)
	}
	if r.SpawnX < 1 || r.SpawnX > r.Width-3 || r.SpawnY < 1 || r.SpawnY > r.Height-2 {
		return fmt.Errorf("%w: spawn (%d, %d)", ErrInvalidRules, r.SpawnX, r.SpawnY)
	}
	if r.Kicks == nil {
		return fmt.Errorf("%w: no rotation system", ErrInvalidRules)
	}
	return nil
}

// NewBoard returns an empty board of the rules' size.
func (r Rules) NewBoard() board.Board {
	b, err := board.New(r.Width, r.Height)
	if err != nil {
		panic(err)
	}
	return b
}

// Spawn returns where k appears on b. ok is false when both the spawn
// location and the one above it are obstructed, i.e. the game is over.
func (r Rules) Spawn(b board.Board, k piece.Kind) (loc move.Location, ok bool) {
	loc = move.Location{Piece: k, Rotation: piece.North, X: int8(r.SpawnX), Y: int8(r.SpawnY)}
	if !loc.Collides(b) {
		return loc, true
	}
	loc.Y++
	if !loc.Collides(b) {
		return loc, true
	}
	return loc, false
}
