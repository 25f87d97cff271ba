package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestBuildShapeSquare(t *testing.T) {
	subs, err := BuildShape("m 0 0 l 10 0 l 10 10 l 0 10", ShapeOptions{CurveSegments: 4})
	test.Error(t, err)
	test.T(t, len(subs), 1)
	test.That(t, !subs[0].Hole)
	test.T(t, subs[0].Points[0], Point2D{X: 0, Y: 0})
}

func TestBuildShapeQuadCurveFlattens(t *testing.T) {
	subs, err := BuildShape("m 0 0 q 50 100 100 0", ShapeOptions{CurveSegments: 4})
	test.Error(t, err)
	test.T(t, len(subs), 1)
	// m contributes 1 point, the curve contributes `segments` more.
	test.T(t, len(subs[0].Points), 5)
	last := subs[0].Points[len(subs[0].Points)-1]
	test.T(t, last, Point2D{X: 100, Y: 0})
}

func TestParseCommandStringRejectsUnknownOp(t *testing.T) {
	_, err := parseCommandString("z 1 2")
	test.That(t, err != nil)
}

func TestSignedAreaSquareIsPositive(t *testing.T) {
	ring := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	test.That(t, signedArea(ring) > 0)
}

func TestPointInPolygon(t *testing.T) {
	ring := []Point2D{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	test.That(t, pointInPolygon(Point2D{5, 5}, ring))
	test.That(t, !pointInPolygon(Point2D{50, 50}, ring))
}
