package zobrist

import (
	"encoding/binary"
	"math/bits"

	"github.com/cespare/xxhash"
	"lukechampine.com/frand"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/piece"
)

const bignum = 1<<63 - 2

// MaxQueue is the longest lookahead queue that can be hashed.
const MaxQueue = 32

// generate a zobrist hash for a stacker position: board cells, every queue
// slot, the hold slot and the scoring flags.
// https://en.wikipedia.org/wiki/Zobrist_hashing
type Zobrist struct {
	cellTable  [board.MaxWidth][board.MaxHeight]uint64
	queueTable [MaxQueue][piece.NumKinds]uint64
	holdTable  [piece.NumKinds]uint64
	backToBack uint64
	comboSalt  uint64
}

type source interface {
	Uint64n(n uint64) uint64
}

type globalSource struct{}

func (globalSource) Uint64n(n uint64) uint64 { return frand.Uint64n(n) }

// Initialize fills the tables from the system entropy source.
func (z *Zobrist) Initialize() {
	z.fill(globalSource{})
}

// InitializeSeeded fills the tables deterministically from seed.
func (z *Zobrist) InitializeSeeded(seed uint64) {
	key := make([]byte, 32)
	binary.LittleEndian.PutUint64(key, seed)
	z.fill(frand.NewCustom(key, 1024, 12))
}

func (z *Zobrist) fill(rng source) {
	for x := range z.cellTable {
		for y := range z.cellTable[x] {
			z.cellTable[x][y] = rng.Uint64n(bignum) + 1
		}
	}
	for i := range z.queueTable {
		// None never appears in a queue; leave it zero.
		for k := 1; k < piece.NumKinds; k++ {
			z.queueTable[i][k] = rng.Uint64n(bignum) + 1
		}
	}
	for k := 1; k < piece.NumKinds; k++ {
		z.holdTable[k] = rng.Uint64n(bignum) + 1
	}
	z.backToBack = rng.Uint64n(bignum) + 1
	z.comboSalt = rng.Uint64n(bignum) + 1
}

// https://stackoverflow.com/a/12996028/1737333
func hashUint64(x uint64) uint64 {
	x = (x ^ (x >> 30)) * uint64(0xbf58476d1ce4e5b9)
	x = (x ^ (x >> 27)) * uint64(0x94d049bb133111eb)
	x = x ^ (x >> 31)
	return x
}

func (z *Zobrist) Hash(b board.Board, queue []piece.Kind, hold piece.Kind, b2b bool, combo uint8) uint64 {
	key := uint64(0)
	for x := 0; x < b.Width(); x++ {
		col := b.Column(x)
		for col != 0 {
			y := bits.TrailingZeros64(col)
			key ^= z.cellTable[x][y]
			col &= col - 1
		}
	}
	for i, k := range queue {
		key ^= z.queueTable[i][k]
	}
	key ^= z.holdTable[hold]
	if b2b {
		key ^= z.backToBack
	}
	if combo > 0 {
		key ^= hashUint64(z.comboSalt + uint64(combo))
	}
	return key
}

// AppendPiece updates a key for a piece revealed at the given queue slot.
func (z *Zobrist) AppendPiece(key uint64, slot int, k piece.Kind) uint64 {
	return key ^ z.queueTable[slot][k]
}

// Check returns an independent fingerprint of the same position, used to
// detect two positions sharing a zobrist key.
func Check(b board.Board, queue []piece.Kind, hold piece.Kind, b2b bool, combo uint8) uint64 {
	buf := make([]byte, 0, 8*b.Width()+len(queue)+8)
	for x := 0; x < b.Width(); x++ {
		buf = binary.LittleEndian.AppendUint64(buf, b.Column(x))
	}
	for _, k := range queue {
		buf = append(buf, byte(k))
	}
	flags := byte(0)
	if b2b {
		flags = 1
	}
	buf = append(buf, byte(hold), flags, combo, byte(b.Width()), byte(b.Height()))
	return xxhash.Sum64(buf)
}
