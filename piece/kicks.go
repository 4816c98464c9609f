package piece

import (
	"fmt"
	"strings"
)

// Offset is a kick translation applied after rotating.
type Offset struct {
	X, Y int
}

// A RotationSystem decides which kicks are tried, in priority order, when a
// piece rotates. The first offset that does not collide wins.
type RotationSystem interface {
	Name() string
	CanRotate(k Kind) bool
	Kicks(k Kind, from, to Rotation) []Offset
}

type offsetTable [4][5]Offset

var jlstzOffsets = offsetTable{
	North: {{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}},
	East:  {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	South: {{0, 0}, {0, 0}, {0, 0}, {0, 0}, {0, 0}},
	West:  {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
}

var iOffsets = offsetTable{
	North: {{0, 0}, {-1, 0}, {2, 0}, {-1, 0}, {2, 0}},
	East:  {{-1, 0}, {0, 0}, {0, 0}, {0, 1}, {0, -2}},
	South: {{-1, 1}, {1, 1}, {-2, 1}, {1, 0}, {-2, 0}},
	West:  {{0, 1}, {0, 1}, {0, 1}, {0, -1}, {0, 2}},
}

// kickTable is indexed by kind, from and to rotation.
type kickTable [NumKinds][4][4][]Offset

func buildKicks(offsets func(k Kind) *offsetTable) *kickTable {
	kt := &kickTable{}
	for _, k := range All {
		tbl := offsets(k)
		if tbl == nil {
			continue
		}
		for from := North; from <= West; from++ {
			for to := North; to <= West; to++ {
				if from == to {
					continue
				}
				kicks := make([]Offset, 0, 5)
				for i := 0; i < 5; i++ {
					o := Offset{
						X: tbl[from][i].X - tbl[to][i].X,
						Y: tbl[from][i].Y - tbl[to][i].Y,
					}
					kicks = append(kicks, o)
				}
				kt[k][from][to] = kicks
			}
		}
	}
	return kt
}

type srs struct {
	kicks *kickTable
}

// SRS is the guideline super rotation system. Kicks are derived from the
// per-rotation offset tables. O pieces do not rotate, since every rotation
// of an O has the same footprint.
var SRS RotationSystem = &srs{kicks: buildKicks(func(k Kind) *offsetTable {
	switch k {
	case I:
		return &iOffsets
	case O:
		return nil
	}
	return &jlstzOffsets
})}

func (s *srs) Name() string          { return "srs" }
func (s *srs) CanRotate(k Kind) bool { return k != O }
func (s *srs) Kicks(k Kind, from, to Rotation) []Offset {
	return s.kicks[k][from&3][to&3]
}

type noKicks struct{}

var zeroKick = []Offset{{0, 0}}

// NoKicks only allows rotation in place.
var NoKicks RotationSystem = noKicks{}

func (noKicks) Name() string                          { return "none" }
func (noKicks) CanRotate(k Kind) bool                 { return k != O }
func (noKicks) Kicks(k Kind, from, to Rotation) []Offset { return zeroKick }

// RotationSystemByName looks up a rotation system by its config name.
func RotationSystemByName(name string) (RotationSystem, error) {
	switch strings.ToLower(name) {
	case "", "srs":
		return SRS, nil
	case "none", "nokicks":
		return NoKicks, nil
	}
	return nil, fmt.Errorf("unknown rotation system %q", name)
}
