package automatic

import (
	"lukechampine.com/frand"

	"github.com/domino14/stackbot/piece"
)

// Bag is the seven-bag randomizer: each run of seven pieces is a shuffle
// of all seven kinds.
type Bag struct {
	rng  *frand.RNG
	left []piece.Kind
}

func NewBag(seed Seed) *Bag {
	return &Bag{rng: frand.NewCustom(seed[:], 1024, 12)}
}

func (b *Bag) Next() piece.Kind {
	if len(b.left) == 0 {
		b.left = append(b.left, piece.All[:]...)
		b.rng.Shuffle(len(b.left), func(i, j int) {
			b.left[i], b.left[j] = b.left[j], b.left[i]
		})
	}
	k := b.left[0]
	b.left = b.left[1:]
	return k
}

func (b *Bag) Take(n int) []piece.Kind {
	kinds := make([]piece.Kind, n)
	for i := range kinds {
		kinds[i] = b.Next()
	}
	return kinds
}
