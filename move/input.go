package move

import "strings"

// Input is a single frontend action.
type Input uint8

const (
	Left Input = iota
	Right
	CW
	CCW
	SoftDrop
	Hold
	HardDrop
)

var inputNames = [...]string{"left", "right", "cw", "ccw", "softdrop", "hold", "harddrop"}

func (i Input) String() string {
	if int(i) < len(inputNames) {
		return inputNames[i]
	}
	return "?"
}

// Path is the sequence of inputs that moves a freshly spawned piece to its
// placement.
type Path []Input

func (p Path) String() string {
	names := make([]string, len(p))
	for i, in := range p {
		names[i] = in.String()
	}
	return strings.Join(names, " ")
}
