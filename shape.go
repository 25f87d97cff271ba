package typeface

import (
	"math"
	"strconv"
	"strings"
)

// Point2D is one flattened 2D vertex of a tessellated glyph outline.
type Point2D struct {
	X, Y float64
}

// Subpath is one closed ring of flattened points, classified as an
// outer contour or a hole by its signed area and containment.
type Subpath struct {
	Points []Point2D
	Hole   bool
}

// ShapeOptions controls how command strings are flattened into
// polygons for downstream 3D extrusion.
type ShapeOptions struct {
	// CurveSegments is the fixed number of line segments each Bézier
	// curve (quadratic or cubic) is split into. Zero defaults to 12,
	// the common facetype.js-style default.
	CurveSegments int
	// ReverseWinding flips every subpath's point order, for renderers
	// that expect the opposite winding convention.
	ReverseWinding bool
}

func (o ShapeOptions) segments() int {
	if o.CurveSegments > 0 {
		return o.CurveSegments
	}
	return 12
}

// BuildShape parses a glyph's `o` command string into classified,
// flattened subpaths suitable for triangulation and extrusion. Outer
// contours and holes are distinguished by the sign of the largest-area
// subpath: whichever winding direction that subpath uses is taken as
// "outer" (TrueType and CFF/CFF2 glyphs disagree on which winding means
// outer, so the sign can't be hardcoded), and every other subpath whose
// area has the opposite sign is a hole, subject to the containment
// check in assignHoles.
func BuildShape(commands string, opts ShapeOptions) ([]Subpath, error) {
	cmds, err := parseCommandString(commands)
	if err != nil {
		return nil, err
	}
	raw := flattenCommands(cmds, opts.segments())

	areas := make([]float64, len(raw))
	outerSign := 1.0
	largest := 0.0
	for i, ring := range raw {
		areas[i] = signedArea(ring)
		if abs := math.Abs(areas[i]); abs > largest {
			largest = abs
			if areas[i] < 0 {
				outerSign = -1
			} else {
				outerSign = 1
			}
		}
	}

	subs := make([]Subpath, len(raw))
	for i, ring := range raw {
		sign := 1.0
		if areas[i] < 0 {
			sign = -1
		}
		subs[i] = Subpath{Points: ring, Hole: sign != outerSign}
	}
	assignHoles(subs)

	if opts.ReverseWinding {
		for i := range subs {
			reversePoints(subs[i].Points)
		}
	}
	return subs, nil
}

func parseCommandString(s string) ([]pathCommand, error) {
	fields := strings.Fields(s)
	var cmds []pathCommand
	i := 0
	for i < len(fields) {
		op := fields[i]
		i++
		var arity int
		switch op {
		case "m", "l":
			arity = 2
		case "q":
			arity = 4
		case "b":
			arity = 6
		default:
			return nil, newError(ErrCorruptContainer, "shape: unknown command token %q", op)
		}
		if i+arity > len(fields) {
			return nil, newError(ErrCorruptContainer, "shape: command %q missing arguments", op)
		}
		args := make([]float64, arity)
		for j := 0; j < arity; j++ {
			v, err := strconv.ParseFloat(fields[i+j], 64)
			if err != nil {
				return nil, newError(ErrCorruptContainer, "shape: malformed numeric argument %q", fields[i+j])
			}
			args[j] = v
		}
		i += arity
		cmds = append(cmds, pathCommand{op: op, args: args})
	}
	return cmds, nil
}

// flattenCommands walks the command list, starting a new ring at each
// `m` and flattening `q`/`b` curves via fixed-step De Casteljau
// subdivision (rather than golang-image's adaptive-error scheme, since
// every curve here gets the same segment count regardless of size).
func flattenCommands(cmds []pathCommand, segments int) [][]Point2D {
	var rings [][]Point2D
	var cur []Point2D
	var curX, curY float64

	flush := func() {
		if len(cur) > 1 {
			rings = append(rings, cur)
		}
		cur = nil
	}

	for _, c := range cmds {
		switch c.op {
		case "m":
			flush()
			curX, curY = c.args[0], c.args[1]
			cur = append(cur, Point2D{curX, curY})
		case "l":
			curX, curY = c.args[0], c.args[1]
			cur = append(cur, Point2D{curX, curY})
		case "q":
			cx, cy, ex, ey := c.args[0], c.args[1], c.args[2], c.args[3]
			for s := 1; s <= segments; s++ {
				t := float64(s) / float64(segments)
				cur = append(cur, quadAt(curX, curY, cx, cy, ex, ey, t))
			}
			curX, curY = ex, ey
		case "b":
			c1x, c1y, c2x, c2y, ex, ey := c.args[0], c.args[1], c.args[2], c.args[3], c.args[4], c.args[5]
			for s := 1; s <= segments; s++ {
				t := float64(s) / float64(segments)
				cur = append(cur, cubicAt(curX, curY, c1x, c1y, c2x, c2y, ex, ey, t))
			}
			curX, curY = ex, ey
		}
	}
	flush()
	return rings
}

func lerp(ax, ay, bx, by, t float64) (float64, float64) {
	return ax + (bx-ax)*t, ay + (by-ay)*t
}

func quadAt(x0, y0, cx, cy, x1, y1, t float64) Point2D {
	ax, ay := lerp(x0, y0, cx, cy, t)
	bx, by := lerp(cx, cy, x1, y1, t)
	px, py := lerp(ax, ay, bx, by, t)
	return Point2D{px, py}
}

func cubicAt(x0, y0, c1x, c1y, c2x, c2y, x1, y1, t float64) Point2D {
	ax, ay := lerp(x0, y0, c1x, c1y, t)
	bx, by := lerp(c1x, c1y, c2x, c2y, t)
	cx, cy := lerp(c2x, c2y, x1, y1, t)
	dx, dy := lerp(ax, ay, bx, by, t)
	ex, ey := lerp(bx, by, cx, cy, t)
	px, py := lerp(dx, dy, ex, ey, t)
	return Point2D{px, py}
}

// signedArea computes the polygon's signed area via the shoelace
// formula; BuildShape uses both its sign and its magnitude.
func signedArea(ring []Point2D) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return sum / 2
}

// pointInPolygon reports whether p lies inside ring, via the standard
// crossing-number test.
func pointInPolygon(p Point2D, ring []Point2D) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xIntersect := (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if p.X < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// assignHoles refines Subpath.Hole, which is already set from signed
// area: a "hole" whose first point lies inside no outer contour is
// reclassified as an outer contour (a font with unconventional winding
// shouldn't lose a whole subpath to misclassification). It does not
// record which outer contour contains a hole.
func assignHoles(subs []Subpath) {
	for i := range subs {
		if !subs[i].Hole || len(subs[i].Points) == 0 {
			continue
		}
		contained := false
		for j := range subs {
			if i == j || subs[j].Hole {
				continue
			}
			if pointInPolygon(subs[i].Points[0], subs[j].Points) {
				contained = true
				break
			}
		}
		if !contained {
			subs[i].Hole = false
		}
	}
}

func reversePoints(pts []Point2D) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// Advance computes the total horizontal extent of s rendered at the
// given font size (in the same units as Resolution), applying kerning
// between consecutive characters when record carries a kerning map.
func Advance(record *TypefaceRecord, s string, fontSize float64) float64 {
	if record == nil || record.Resolution == 0 {
		return 0
	}
	scale := fontSize / float64(record.Resolution)
	runes := []rune(s)
	var total float64
	for i, r := range runes {
		g, ok := record.Glyphs[string(r)]
		if !ok {
			continue
		}
		total += float64(g.HA) * scale
		if i+1 < len(runes) && record.Kerning != nil {
			if row, ok := record.Kerning[string(r)]; ok {
				if k, ok := row[string(runes[i+1])]; ok {
					total += float64(k) * scale
				}
			}
		}
	}
	return math.Round(total*1000) / 1000
}
