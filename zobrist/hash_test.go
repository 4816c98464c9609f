package zobrist

import (
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/piece"
)

func TestHashDistinguishesPositions(t *testing.T) {
	is := is.New(t)
	z := &Zobrist{}
	z.Initialize()

	b, err := board.Parse(10, 20, "##..######")
	is.NoErr(err)
	queue := []piece.Kind{piece.T, piece.I, piece.O}

	k := z.Hash(b, queue, piece.None, false, 0)
	is.Equal(k, z.Hash(b, queue, piece.None, false, 0))
	is.True(k != z.Hash(b, queue, piece.L, false, 0))
	is.True(k != z.Hash(b, queue, piece.None, true, 0))
	is.True(k != z.Hash(b, queue, piece.None, false, 1))
	is.True(z.Hash(b, queue, piece.None, false, 1) != z.Hash(b, queue, piece.None, false, 2))
	is.True(k != z.Hash(b, []piece.Kind{piece.I, piece.T, piece.O}, piece.None, false, 0))

	b2, _ := board.Parse(10, 20, "###.######")
	is.True(k != z.Hash(b2, queue, piece.None, false, 0))
}

func TestAppendPiece(t *testing.T) {
	is := is.New(t)
	z := &Zobrist{}
	z.Initialize()
	b, _ := board.New(10, 40)
	queue := []piece.Kind{piece.S, piece.Z}
	k := z.Hash(b, queue, piece.J, true, 3)
	extended := z.Hash(b, append(queue, piece.T), piece.J, true, 3)
	is.Equal(z.AppendPiece(k, 2, piece.T), extended)
}

func TestSeededIsDeterministic(t *testing.T) {
	is := is.New(t)
	z1, z2 := &Zobrist{}, &Zobrist{}
	z1.InitializeSeeded(99)
	z2.InitializeSeeded(99)
	b, _ := board.Parse(10, 20, "#.#.#.#.#.")
	q := []piece.Kind{piece.O}
	is.Equal(z1.Hash(b, q, piece.I, false, 0), z2.Hash(b, q, piece.I, false, 0))
}

func TestCheck(t *testing.T) {
	is := is.New(t)
	b, _ := board.Parse(10, 20, "#.#.#.#.#.")
	q := []piece.Kind{piece.O, piece.T}
	is.Equal(Check(b, q, piece.I, false, 0), Check(b, q, piece.I, false, 0))
	is.True(Check(b, q, piece.I, false, 0) != Check(b, q, piece.I, true, 0))
	is.True(Check(b, q, piece.I, false, 0) != Check(b, q[:1], piece.I, false, 0))
}
