package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestRunCharStringSquare(t *testing.T) {
	// rmoveto(0,0); hlineto(100,100,-100,-100); endchar — a 100x100 square
	// traced counter-clockwise (y up) back to its start, with no width
	// prefix present.
	cs := []byte{139, 139, 21, 239, 239, 39, 39, 6, 14}
	empty := &cffIndex{offsets: []uint32{0}}

	cmds, width, err := runCharString(cs, empty, empty, 500, 0, false, nil)
	test.Error(t, err)
	test.T(t, width, float64(500))
	test.T(t, len(cmds), 5)
	test.T(t, cmds[0], pathCommand{op: "m", args: []float64{0, 0}})
	test.T(t, cmds[1], pathCommand{op: "l", args: []float64{100, 0}})
	test.T(t, cmds[2], pathCommand{op: "l", args: []float64{100, 100}})
	test.T(t, cmds[3], pathCommand{op: "l", args: []float64{0, 100}})
	test.T(t, cmds[4], pathCommand{op: "l", args: []float64{0, 0}})
}

func TestRunCharStringWidthPrefix(t *testing.T) {
	// A leading odd operand before rmoveto's 2 arguments is the glyph's
	// width, expressed as nominalWidthX + operand.
	cs := []byte{139, 139, 139, 21, 14} // width=0, dx=0, dy=0, rmoveto, endchar
	empty := &cffIndex{offsets: []uint32{0}}

	_, width, err := runCharString(cs, empty, empty, 500, 300, false, nil)
	test.Error(t, err)
	test.T(t, width, float64(300))
}

func TestSubrBias(t *testing.T) {
	test.T(t, subrBias(10), 107)
	test.T(t, subrBias(2000), 1131)
	test.T(t, subrBias(40000), 32768)
}
