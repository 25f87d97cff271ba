package typeface

const (
	csMaxStackDepth = 513  // Type 2 operand stack limit
	csMaxCallDepth  = 10   // Type 2 subroutine nesting limit
	csMaxOps        = 1 << 20 // runaway-program backstop; no real font approaches this
)

// csFrame is one level of the CharString call stack: a byte slice plus
// the read cursor into it. Each run call owns one frame; callsubr and
// callgsubr recurse into run with a fresh frame for the subroutine, and
// every frame shares the interpreter's one operand stack — this is how
// a Type 2 interpreter's operand stack survives callsubr/callgsubr.
type csFrame struct {
	code []byte
	pos  int
}

// charStringInterp executes one glyph's (or subroutine's) Type 2
// CharString program and lowers it directly to path commands, rather
// than threading through a separate path-builder interface.
type charStringInterp struct {
	globalSubrs, localSubrs *cffIndex
	globalBias, localBias   int
	nominalWidthX           int
	isCFF2                  bool
	vsIndex                 int
	varStore                *cff2ItemVariationStore // nil if the font has none

	stack      []float64
	x, y       float64
	nStems     int
	haveWidth  bool
	width      float64
	open       bool // a `m` has been emitted and not yet implicitly closed
	cmds       []pathCommand
	ops        int
}

func subrBias(n int) int {
	switch {
	case n < 1240:
		return 107
	case n < 33900:
		return 1131
	default:
		return 32768
	}
}

// runCharString interprets charstring (a glyph's top-level CharString)
// and returns its lowered path commands plus the glyph's advance width
// (defaultWidthX if the program never supplies one explicitly).
func runCharString(charstring []byte, globalSubrs, localSubrs *cffIndex, defaultWidthX, nominalWidthX int, isCFF2 bool, vstore *cff2ItemVariationStore) ([]pathCommand, float64, error) {
	interp := &charStringInterp{
		globalSubrs:   globalSubrs,
		localSubrs:    localSubrs,
		globalBias:    subrBias(globalSubrs.Len()),
		localBias:     subrBias(localSubrs.Len()),
		nominalWidthX: nominalWidthX,
		isCFF2:        isCFF2,
		varStore:      vstore,
		width:         float64(defaultWidthX),
	}
	if isCFF2 {
		// CFF2 CharStrings never carry a width prefix; width comes
		// entirely from hmtx. haveWidth starts true so the first
		// stem/moveto does not misread an operand as a width.
		interp.haveWidth = true
		interp.width = 0
	}
	if err := interp.run(charstring, 0); err != nil {
		return nil, 0, err
	}
	if interp.open {
		// Implicit close: no explicit closepath operator exists in
		// Type 2; record.go's consumer treats consecutive `m` as an
		// implicit close of the previous subpath.
	}
	return interp.cmds, interp.width, nil
}

func (c *charStringInterp) run(code []byte, depth int) error {
	if depth > csMaxCallDepth {
		return newError(ErrCharStringOverflow, "charstring: call stack depth exceeded")
	}
	frame := &csFrame{code: code}
	for frame.pos < len(frame.code) {
		c.ops++
		if c.ops > csMaxOps {
			return newError(ErrCharStringOverflow, "charstring: instruction budget exceeded")
		}
		b0 := frame.code[frame.pos]
		frame.pos++

		switch {
		case b0 >= 32 || b0 == 28:
			v, n := readCharStringNumber(frame.code[frame.pos-1:])
			frame.pos += n - 1
			if len(c.stack) >= csMaxStackDepth {
				return newError(ErrCharStringOverflow, "charstring: operand stack overflow")
			}
			c.stack = append(c.stack, v)
			continue
		}

		switch b0 {
		case 1, 3, 18, 23: // hstem, vstem, hstemhm, vstemhm
			c.takeWidthIfOdd(len(c.stack) % 2)
			c.nStems += len(c.stack) / 2
			c.stack = c.stack[:0]

		case 19, 20: // hintmask, cntrmask
			c.takeWidthIfOdd(len(c.stack) % 2)
			c.nStems += len(c.stack) / 2
			c.stack = c.stack[:0]
			maskBytes := (c.nStems + 7) / 8
			if frame.pos+maskBytes > len(frame.code) {
				return newError(ErrCharStringOverflow, "charstring: hintmask runs past end of program")
			}
			frame.pos += maskBytes

		case 21: // rmoveto
			c.takeWidthIfOdd(len(c.stack) - 2)
			c.closeIfOpen()
			if len(c.stack) < 2 {
				return newError(ErrCharStringOverflow, "charstring: rmoveto needs 2 operands")
			}
			c.x += c.stack[0]
			c.y += c.stack[1]
			c.moveTo()
			c.stack = c.stack[:0]

		case 22: // hmoveto
			c.takeWidthIfOdd(len(c.stack) - 1)
			c.closeIfOpen()
			if len(c.stack) < 1 {
				return newError(ErrCharStringOverflow, "charstring: hmoveto needs 1 operand")
			}
			c.x += c.stack[0]
			c.moveTo()
			c.stack = c.stack[:0]

		case 4: // vmoveto
			c.takeWidthIfOdd(len(c.stack) - 1)
			c.closeIfOpen()
			if len(c.stack) < 1 {
				return newError(ErrCharStringOverflow, "charstring: vmoveto needs 1 operand")
			}
			c.y += c.stack[0]
			c.moveTo()
			c.stack = c.stack[:0]

		case 5: // rlineto
			for i := 0; i+1 < len(c.stack); i += 2 {
				c.x += c.stack[i]
				c.y += c.stack[i+1]
				c.lineTo()
			}
			c.stack = c.stack[:0]

		case 6: // hlineto
			c.alternatingLineTo(true)
			c.stack = c.stack[:0]

		case 7: // vlineto
			c.alternatingLineTo(false)
			c.stack = c.stack[:0]

		case 8: // rrcurveto
			for i := 0; i+5 < len(c.stack); i += 6 {
				c.curveTo(c.stack[i], c.stack[i+1], c.stack[i+2], c.stack[i+3], c.stack[i+4], c.stack[i+5])
			}
			c.stack = c.stack[:0]

		case 24: // rcurveline
			i := 0
			for ; i+5 < len(c.stack)-2; i += 6 {
				c.curveTo(c.stack[i], c.stack[i+1], c.stack[i+2], c.stack[i+3], c.stack[i+4], c.stack[i+5])
			}
			if i+1 < len(c.stack) {
				c.x += c.stack[i]
				c.y += c.stack[i+1]
				c.lineTo()
			}
			c.stack = c.stack[:0]

		case 25: // rlinecurve
			i := 0
			for ; i+1 < len(c.stack)-6; i += 2 {
				c.x += c.stack[i]
				c.y += c.stack[i+1]
				c.lineTo()
			}
			if i+5 < len(c.stack) {
				c.curveTo(c.stack[i], c.stack[i+1], c.stack[i+2], c.stack[i+3], c.stack[i+4], c.stack[i+5])
			}
			c.stack = c.stack[:0]

		case 26: // vvcurveto
			i := 0
			dx1 := 0.0
			if len(c.stack)%4 == 1 {
				dx1 = c.stack[0]
				i = 1
			}
			for ; i+3 < len(c.stack); i += 4 {
				c.curveTo(dx1, c.stack[i], c.stack[i+1], c.stack[i+2], 0, c.stack[i+3])
				dx1 = 0
			}
			c.stack = c.stack[:0]

		case 27: // hhcurveto
			i := 0
			dy1 := 0.0
			if len(c.stack)%4 == 1 {
				dy1 = c.stack[0]
				i = 1
			}
			for ; i+3 < len(c.stack); i += 4 {
				c.curveTo(c.stack[i], dy1, c.stack[i+1], c.stack[i+2], c.stack[i+3], 0)
				dy1 = 0
			}
			c.stack = c.stack[:0]

		case 30, 31: // vhcurveto, hvcurveto
			horiz := b0 == 31
			i := 0
			for i+3 < len(c.stack) {
				last := i+4 >= len(c.stack)-1
				var extra float64
				if last && (len(c.stack)-i) == 5 {
					extra = c.stack[i+4]
				}
				if horiz {
					c.curveTo(c.stack[i], 0, c.stack[i+1], c.stack[i+2], extra, c.stack[i+3])
				} else {
					c.curveTo(0, c.stack[i], c.stack[i+1], c.stack[i+2], c.stack[i+3], extra)
				}
				horiz = !horiz
				i += 4
			}
			c.stack = c.stack[:0]

		case 10: // callsubr
			if len(c.stack) == 0 {
				return newError(ErrCharStringOverflow, "charstring: callsubr with empty stack")
			}
			idx := int(c.stack[len(c.stack)-1]) + c.localBias
			c.stack = c.stack[:len(c.stack)-1]
			sub := c.localSubrs.Get(idx)
			if sub == nil {
				return newError(ErrCharStringOverflow, "charstring: local subroutine %d out of range", idx)
			}
			if err := c.run(sub, depth+1); err != nil {
				return err
			}

		case 29: // callgsubr
			if len(c.stack) == 0 {
				return newError(ErrCharStringOverflow, "charstring: callgsubr with empty stack")
			}
			idx := int(c.stack[len(c.stack)-1]) + c.globalBias
			c.stack = c.stack[:len(c.stack)-1]
			sub := c.globalSubrs.Get(idx)
			if sub == nil {
				return newError(ErrCharStringOverflow, "charstring: global subroutine %d out of range", idx)
			}
			if err := c.run(sub, depth+1); err != nil {
				return err
			}

		case 11: // return
			return nil

		case 14: // endchar
			c.takeWidthIfOdd(len(c.stack))
			// Deprecated seac-like 4-argument endchar (accent composition)
			// is not expanded; spec treats it as an unsupported per-glyph
			// feature and leaves the base glyph outline as emitted so far.
			c.closeIfOpen()
			return nil

		case 12: // escape: two-byte operators
			if frame.pos >= len(frame.code) {
				return newError(ErrCharStringOverflow, "charstring: truncated escape operator")
			}
			b1 := frame.code[frame.pos]
			frame.pos++
			if err := c.runEscape(b1); err != nil {
				return err
			}

		case 15: // vsindex (CFF2)
			if len(c.stack) == 0 {
				return newError(ErrCharStringOverflow, "charstring: vsindex with empty stack")
			}
			c.vsIndex = int(c.stack[len(c.stack)-1])
			c.stack = c.stack[:0]

		case 16: // blend (CFF2)
			if err := c.runBlend(); err != nil {
				return err
			}

		default:
			// Unknown operator: drop accumulated operands and continue,
			// matching Type 2's tolerant-parser convention for operators
			// a reader doesn't implement.
			c.stack = c.stack[:0]
		}
	}
	return nil
}

// takeWidthIfOdd consumes a leading width operand the first time the
// interpreter sees a stem or moveto operator, when the operand count
// for that operator is one more than its normal arity (oddCount > 0
// signals "one extra operand present").
func (c *charStringInterp) takeWidthIfOdd(oddCount int) {
	if c.haveWidth {
		return
	}
	c.haveWidth = true
	if oddCount > 0 && len(c.stack) > 0 {
		c.width = float64(c.nominalWidthX) + c.stack[0]
		c.stack = c.stack[1:]
	}
}

func (c *charStringInterp) moveTo() {
	c.cmds = append(c.cmds, pathCommand{op: "m", args: []float64{c.x, c.y}})
	c.open = true
}

func (c *charStringInterp) lineTo() {
	c.cmds = append(c.cmds, pathCommand{op: "l", args: []float64{c.x, c.y}})
}

func (c *charStringInterp) curveTo(dx1, dy1, dx2, dy2, dx3, dy3 float64) {
	c1x, c1y := c.x+dx1, c.y+dy1
	c2x, c2y := c1x+dx2, c1y+dy2
	c.x, c.y = c2x+dx3, c2y+dy3
	c.cmds = append(c.cmds, pathCommand{op: "b", args: []float64{c1x, c1y, c2x, c2y, c.x, c.y}})
}

func (c *charStringInterp) closeIfOpen() {
	// Type 2 has no explicit close operator: a new moveto (or endchar)
	// implicitly closes the previous subpath back to its start. record.go
	// relies on consecutive `m` tokens (or end of glyph) to mark closure,
	// so there is nothing to emit here beyond leaving c.open as a marker.
}

func (c *charStringInterp) alternatingLineTo(startHoriz bool) {
	horiz := startHoriz
	for _, v := range c.stack {
		if horiz {
			c.x += v
		} else {
			c.y += v
		}
		c.lineTo()
		horiz = !horiz
	}
}

// runEscape dispatches two-byte (12 x) operators: the flex family and
// the Type 2 arithmetic/stack-manipulation operators.
func (c *charStringInterp) runEscape(op byte) error {
	s := c.stack
	switch op {
	case 35: // flex
		if len(s) < 13 {
			return newError(ErrCharStringOverflow, "charstring: flex needs 13 operands")
		}
		c.curveTo(s[0], s[1], s[2], s[3], s[4], s[5])
		c.curveTo(s[6], s[7], s[8], s[9], s[10], s[11])
	case 34: // hflex
		if len(s) < 7 {
			return newError(ErrCharStringOverflow, "charstring: hflex needs 7 operands")
		}
		y0 := c.y
		c.curveTo(s[0], 0, s[1], s[2], s[3], 0)
		c.curveTo(s[4], 0, s[5], y0-c.y, s[6], 0)
	case 36: // hflex1
		if len(s) < 9 {
			return newError(ErrCharStringOverflow, "charstring: hflex1 needs 9 operands")
		}
		y0 := c.y
		c.curveTo(s[0], s[1], s[2], s[3], s[4], 0)
		c.curveTo(s[5], 0, s[6], s[7], s[8], y0-c.y-s[7])
	case 37: // flex1
		if len(s) < 11 {
			return newError(ErrCharStringOverflow, "charstring: flex1 needs 11 operands")
		}
		x0, y0 := c.x, c.y
		c.curveTo(s[0], s[1], s[2], s[3], s[4], s[5])
		dx := s[0] + s[2] + s[4] + s[6] + s[8]
		dy := s[1] + s[3] + s[5] + s[7] + s[9]
		if abs64(dx) > abs64(dy) {
			c.curveTo(s[6], s[7], s[8], s[9], s[10], y0-c.y-s[7]-s[9])
		} else {
			c.curveTo(s[6], s[7], s[8], s[9], x0-c.x-s[6]-s[8], s[10])
		}
	case 3: // and
		c.binaryBool(func(a, b bool) bool { return a && b })
	case 4: // or
		c.binaryBool(func(a, b bool) bool { return a || b })
	case 5: // not
		if len(s) >= 1 {
			c.stack[len(s)-1] = boolToNum(s[len(s)-1] == 0)
		}
	case 9: // abs
		if len(s) >= 1 {
			c.stack[len(s)-1] = abs64(s[len(s)-1])
		}
	case 10: // add
		c.binaryNum(func(a, b float64) float64 { return a + b })
	case 11: // sub
		c.binaryNum(func(a, b float64) float64 { return a - b })
	case 12: // div
		c.binaryNum(func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		})
	case 14: // neg
		if len(s) >= 1 {
			c.stack[len(s)-1] = -s[len(s)-1]
		}
	case 15: // eq
		c.binaryBool(func(a, b bool) bool { return a == b })
	case 18: // drop
		if len(s) >= 1 {
			c.stack = s[:len(s)-1]
		}
	case 20: // put (storage no-op; no diagnostic is recorded)
		if len(s) >= 2 {
			c.stack = s[:len(s)-2]
		}
	case 21: // get (storage no-op: always yields 0)
		if len(s) >= 1 {
			c.stack[len(s)-1] = 0
		}
	case 22: // ifelse
		c.opIfelse()
	case 23: // random
		c.stack = append(c.stack, 0.5) // deterministic stand-in; hinting-only operator
	case 24: // mul
		c.binaryNum(func(a, b float64) float64 { return a * b })
	case 26: // sqrt
		if len(s) >= 1 {
			v := s[len(s)-1]
			if v < 0 {
				v = 0
			}
			c.stack[len(s)-1] = sqrt64(v)
		}
	case 27: // dup
		if len(s) >= 1 {
			c.stack = append(c.stack, s[len(s)-1])
		}
	case 28: // exch
		if len(s) >= 2 {
			c.stack[len(s)-1], c.stack[len(s)-2] = c.stack[len(s)-2], c.stack[len(s)-1]
		}
	case 29: // index
		c.opIndex()
	case 30: // roll
		c.opRoll()
	}
	return nil
}

func (c *charStringInterp) binaryNum(f func(a, b float64) float64) {
	n := len(c.stack)
	if n < 2 {
		return
	}
	c.stack[n-2] = f(c.stack[n-2], c.stack[n-1])
	c.stack = c.stack[:n-1]
}

func (c *charStringInterp) binaryBool(f func(a, b bool) bool) {
	n := len(c.stack)
	if n < 2 {
		return
	}
	c.stack[n-2] = boolToNum(f(c.stack[n-2] != 0, c.stack[n-1] != 0))
	c.stack = c.stack[:n-1]
}

func (c *charStringInterp) opIndex() {
	n := len(c.stack)
	if n < 1 {
		return
	}
	i := int(c.stack[n-1])
	c.stack = c.stack[:n-1]
	if i < 0 {
		i = 0
	}
	if i >= len(c.stack) {
		return
	}
	c.stack = append(c.stack, c.stack[len(c.stack)-1-i])
}

func (c *charStringInterp) opIfelse() {
	n := len(c.stack)
	if n < 4 {
		return
	}
	s1, s2, v1, v2 := c.stack[n-4], c.stack[n-3], c.stack[n-2], c.stack[n-1]
	result := s1
	if v1 > v2 {
		result = s2
	}
	c.stack[n-4] = result
	c.stack = c.stack[:n-3]
}

func (c *charStringInterp) opRoll() {
	n := len(c.stack)
	if n < 2 {
		return
	}
	j := int(c.stack[n-1])
	num := int(c.stack[n-2])
	c.stack = c.stack[:n-2]
	if num <= 0 || num > len(c.stack) {
		return
	}
	top := c.stack[len(c.stack)-num:]
	j = ((j % num) + num) % num
	rolled := append(append([]float64{}, top[num-j:]...), top[:num-j]...)
	copy(top, rolled)
}

func boolToNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrt64(v float64) float64 {
	if v == 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}

// readCharStringNumber decodes one numeric operand starting at b[0],
// returning its value and the number of bytes consumed. Covers the
// five Type 2 operand encodings: 32-bit fixed (255), three-byte int
// (28), and the three single/double-byte ranges.
func readCharStringNumber(b []byte) (float64, int) {
	b0 := b[0]
	switch {
	case b0 == 28:
		v := int16(b[1])<<8 | int16(b[2])
		return float64(v), 3
	case b0 == 255:
		v := int32(b[1])<<24 | int32(b[2])<<16 | int32(b[3])<<8 | int32(b[4])
		return float64(v) / 65536, 5
	case b0 >= 32 && b0 <= 246:
		return float64(int(b0) - 139), 1
	case b0 >= 247 && b0 <= 250:
		return float64((int(b0)-247)*256 + int(b[1]) + 108), 2
	case b0 >= 251 && b0 <= 254:
		return float64(-(int(b0)-251)*256 - int(b[1]) - 108), 2
	}
	return 0, 1
}

// cff2ItemVariationStore is a minimal stand-in for CFF2's region data:
// this reader only ever operates on the default instance (no variation
// axes applied), so blend's region deltas are always zero and vsindex
// selection is tracked but otherwise inert.
type cff2ItemVariationStore struct {
	regionCount int
}

// runBlend implements CFF2's blend operator for the default font
// instance: it drops the N region-delta operands supplied per blended
// value and leaves only the N default values on the stack, since a
// typeface record always represents the font's default instance.
func (c *charStringInterp) runBlend() error {
	n := len(c.stack)
	if n < 1 {
		return newError(ErrCharStringOverflow, "charstring: blend with empty stack")
	}
	numBlends := int(c.stack[n-1])
	regionCount := 0
	if c.varStore != nil {
		regionCount = c.varStore.regionCount
	}
	total := numBlends * (1 + regionCount)
	if numBlends < 0 || total+1 > n {
		return newError(ErrCharStringOverflow, "charstring: blend operand count mismatch")
	}
	defaults := append([]float64{}, c.stack[n-1-total:n-1-total+numBlends]...)
	c.stack = append(c.stack[:n-1-total], defaults...)
	return nil
}
