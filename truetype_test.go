package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestRingToCommandsAllOnCurve(t *testing.T) {
	ring := []ringPoint{
		{x: 0, y: 0, onCurve: true},
		{x: 100, y: 0, onCurve: true},
		{x: 50, y: 100, onCurve: true},
	}
	cmds := ringToCommands(ring)
	// An all-on-curve contour closes implicitly: no trailing line back
	// to the start point.
	test.T(t, len(cmds), 3)
	test.T(t, cmds[0], pathCommand{op: "m", args: []float64{0, 0}})
	test.T(t, cmds[2], pathCommand{op: "l", args: []float64{50, 100}})
}

func TestRingToCommandsImpliedMidpoint(t *testing.T) {
	// Two consecutive off-curve points imply an on-curve point halfway
	// between them.
	ring := []ringPoint{
		{x: 0, y: 0, onCurve: true},
		{x: 50, y: 100, onCurve: false},
		{x: 100, y: 100, onCurve: false},
		{x: 150, y: 0, onCurve: true},
	}
	cmds := ringToCommands(ring)
	// m 0,0 ; q(50,100 -> mid 75,100) ; q(100,100 -> 150,0) ; last point
	// is on-curve, so the contour closes implicitly with no trailing q.
	test.T(t, len(cmds), 3)
	test.That(t, cmds[0].op == "m")
	test.That(t, cmds[1].op == "q")
	test.T(t, cmds[1].args[0], float64(50))
	test.T(t, cmds[1].args[1], float64(100))
	test.T(t, cmds[1].args[2], float64(75))
	test.T(t, cmds[1].args[3], float64(100))
}

func TestRingToCommandsAllOffCurve(t *testing.T) {
	// A ring with no on-curve points synthesizes a start from the
	// midpoint of the last and first off-curve points.
	ring := []ringPoint{
		{x: 0, y: 100, onCurve: false},
		{x: 100, y: 100, onCurve: false},
		{x: 100, y: 0, onCurve: false},
		{x: 0, y: 0, onCurve: false},
	}
	cmds := ringToCommands(ring)
	test.T(t, cmds[0].op, "m")
	test.T(t, cmds[0].args[0], float64(0))
	test.T(t, cmds[0].args[1], float64(50))
}

func TestF2Dot14(t *testing.T) {
	// 1.0 in F2Dot14 is 0x4000 (16384); at 6 fraction bits that's 1<<6 = 64.
	test.T(t, int32(f2dot14(0x4000)), int32(64))
}
