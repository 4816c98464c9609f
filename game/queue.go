package game

import (
	"fmt"
	"strings"

	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/zobrist"
)

// Queue is the known sequence of upcoming pieces. The first piece is the
// one in play. A Queue is never modified after it is built; Drop and
// Append return new values.
type Queue struct {
	pieces []piece.Kind
}

func NewQueue(kinds ...piece.Kind) Queue {
	p := make([]piece.Kind, len(kinds))
	copy(p, kinds)
	return Queue{pieces: p}
}

// Active is the piece in play, or None.
func (q Queue) Active() piece.Kind {
	if len(q.pieces) == 0 {
		return piece.None
	}
	return q.pieces[0]
}

func (q Queue) Len() int { return len(q.pieces) }

func (q Queue) At(i int) piece.Kind {
	if i < 0 || i >= len(q.pieces) {
		return piece.None
	}
	return q.pieces[i]
}

// Pieces returns a copy of the queue contents.
func (q Queue) Pieces() []piece.Kind {
	return append([]piece.Kind(nil), q.pieces...)
}

func (q Queue) Drop(n int) Queue {
	if n >= len(q.pieces) {
		return Queue{}
	}
	return Queue{pieces: q.pieces[n:]}
}

func (q Queue) Append(k piece.Kind) Queue {
	p := make([]piece.Kind, len(q.pieces), len(q.pieces)+1)
	copy(p, q.pieces)
	return Queue{pieces: append(p, k)}
}

func (q Queue) Validate() error {
	if len(q.pieces) > zobrist.MaxQueue {
		return fmt.Errorf("%w: %d pieces, at most %d allowed", ErrInvalidQueue, len(q.pieces), zobrist.MaxQueue)
	}
	for i, k := range q.pieces {
		if !k.Valid() {
			return fmt.Errorf("%w: slot %d holds %v", ErrInvalidQueue, i, k)
		}
	}
	return nil
}

func (q Queue) String() string {
	var sb strings.Builder
	for _, k := range q.pieces {
		sb.WriteString(k.String())
	}
	return sb.String()
}
