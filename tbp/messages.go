// Package tbp speaks the bot protocol: one JSON message per line in each
// direction.
package tbp

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/search"
)

const (
	msgRules      = "rules"
	msgStart      = "start"
	msgPlay       = "play"
	msgNewPiece   = "new_piece"
	msgSuggest    = "suggest"
	msgStop       = "stop"
	msgQuit       = "quit"
	msgInfo       = "info"
	msgReady      = "ready"
	msgSuggestion = "suggestion"
	msgError      = "error"
)

// frontendMessage holds the fields of every frontend message; Type says
// which are set.
type frontendMessage struct {
	Type string `json:"type"`

	Board      [][]*string `json:"board,omitempty"`
	Queue      []string    `json:"queue,omitempty"`
	Hold       *string     `json:"hold,omitempty"`
	Combo      int         `json:"combo,omitempty"`
	BackToBack bool        `json:"back_to_back,omitempty"`
	Randomizer *randomizer `json:"randomizer,omitempty"`

	Move *Move `json:"move,omitempty"`

	Piece string `json:"piece,omitempty"`
}

type randomizer struct {
	Type     string   `json:"type"`
	BagState []string `json:"bag_state,omitempty"`
}

type Location struct {
	Type        string `json:"type"`
	Orientation string `json:"orientation"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
}

type Move struct {
	Location Location `json:"location"`
	Spin     string   `json:"spin"`
}

type infoMessage struct {
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Author   string   `json:"author"`
	Features []string `json:"features"`
}

type typeOnly struct {
	Type string `json:"type"`
}

type MoveInfo struct {
	Nodes uint64  `json:"nodes"`
	NPS   float64 `json:"nps"`
	Extra string  `json:"extra"`
}

type suggestionMessage struct {
	Type     string   `json:"type"`
	Moves    []Move   `json:"moves"`
	MoveInfo MoveInfo `json:"move_info"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func FromPlacement(p move.Placement) Move {
	return Move{
		Location: Location{
			Type:        p.Piece.String(),
			Orientation: p.Rotation.String(),
			X:           int(p.X),
			Y:           int(p.Y),
		},
		Spin: p.Spin.String(),
	}
}

// Placement converts a protocol move. hold says whether the piece came
// out of the hold slot; the protocol leaves that to be worked out from the
// piece type.
func (m Move) Placement(hold bool) (move.Placement, error) {
	k, err := piece.ParseKind(m.Location.Type)
	if err != nil {
		return move.Placement{}, fmt.Errorf("%w: %w", game.ErrInvalidPiece, err)
	}
	r, err := piece.ParseRotation(m.Location.Orientation)
	if err != nil {
		return move.Placement{}, fmt.Errorf("%w: %w", game.ErrInvalidPlacement, err)
	}
	sp, err := move.ParseSpin(m.Spin)
	if err != nil {
		return move.Placement{}, fmt.Errorf("%w: %w", game.ErrInvalidPlacement, err)
	}
	if m.Location.X < -128 || m.Location.X > 127 || m.Location.Y < -128 || m.Location.Y > 127 {
		return move.Placement{}, fmt.Errorf("%w: location (%d, %d) out of range", game.ErrInvalidPlacement,
			m.Location.X, m.Location.Y)
	}
	return move.Placement{
		Location: move.Location{Piece: k, Rotation: r, X: int8(m.Location.X), Y: int8(m.Location.Y)},
		Spin:     sp,
		Hold:     hold,
	}, nil
}

// parseBoard reads rows bottom first; any non-null cell is filled.
func parseBoard(rows [][]*string, width, height int) (board.Board, error) {
	if len(rows) > height {
		return board.Board{}, fmt.Errorf("%w: %d rows, the board has %d", game.ErrInvalidBoard, len(rows), height)
	}
	cols := make([]uint64, width)
	for y, row := range rows {
		if len(row) != width {
			return board.Board{}, fmt.Errorf("%w: row %d has %d cells, want %d", game.ErrInvalidBoard, y, len(row), width)
		}
		for x, c := range row {
			if c != nil {
				cols[x] |= 1 << uint(y)
			}
		}
	}
	b, err := board.FromColumns(height, cols)
	if err != nil {
		return b, fmt.Errorf("%w: %w", game.ErrInvalidBoard, err)
	}
	return b, nil
}

func parsePieces(names []string) ([]piece.Kind, error) {
	kinds := make([]piece.Kind, 0, len(names))
	for _, n := range names {
		k, err := piece.ParseKind(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", game.ErrInvalidPiece, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// suggestion lists the best move first and then the other root moves in
// search order.
func suggestion(res *search.Result) suggestionMessage {
	msg := suggestionMessage{Type: msgSuggestion, Moves: []Move{}}
	if res == nil || res.NoMove {
		return msg
	}
	rest := lo.Filter(res.Children, func(c search.ChildStats, _ int) bool {
		return !move.SameMove(c.Placement, res.Best)
	})
	msg.Moves = append(msg.Moves, FromPlacement(res.Best))
	msg.Moves = append(msg.Moves, lo.Map(rest, func(c search.ChildStats, _ int) Move {
		return FromPlacement(c.Placement)
	})...)
	msg.MoveInfo = MoveInfo{
		Nodes: res.Nodes,
		NPS:   res.NodesPerSecond(),
		Extra: fmt.Sprintf("iterations=%d table=%d value=%.3f", res.Iterations, res.TableSize, res.BestKnownValue),
	}
	return msg
}
