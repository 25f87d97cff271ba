package typeface

import "github.com/tdewolff/parse/v2"

// kernPair is one resolved (left, right) glyph-pair horizontal
// adjustment, in font units.
type kernPair struct {
	left, right uint16
	xAdvance    int16
}

// parseKerning extracts kerning pairs, preferring GPOS PairPos lookups
// over the legacy `kern` table when both are present (GPOS is the
// OpenType-native, more expressive source; `kern` is TrueType legacy).
func parseKerning(gpos, kern []byte) ([]kernPair, error) {
	if gpos != nil {
		pairs, err := parseGPOSKerning(gpos)
		if err == nil && len(pairs) > 0 {
			return pairs, nil
		}
	}
	if kern != nil {
		return parseLegacyKern(kern)
	}
	return nil, nil
}

// parseLegacyKern decodes a classic-format `kern` table, format 0
// subtables only (the only widely deployed legacy format).
func parseLegacyKern(b []byte) ([]kernPair, error) {
	if len(b) < 4 {
		return nil, nil
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // version
	numTables := r.ReadUint16()

	var pairs []kernPair
	for i := uint16(0); i < numTables; i++ {
		if r.Len() < 6 {
			break
		}
		_ = r.ReadUint16() // subtable version
		length := r.ReadUint16()
		coverage := r.ReadUint16()
		format := coverage >> 8
		if format != 0 {
			if r.Len() < uint32(length)-6 {
				break
			}
			_ = r.ReadBytes(uint32(length) - 6)
			continue
		}
		if r.Len() < 8 {
			break
		}
		nPairs := r.ReadUint16()
		_ = r.ReadUint16() // searchRange
		_ = r.ReadUint16() // entrySelector
		_ = r.ReadUint16() // rangeShift
		if r.Len() < 6*uint32(nPairs) {
			break
		}
		for j := uint16(0); j < nPairs; j++ {
			left := r.ReadUint16()
			right := r.ReadUint16()
			value := r.ReadInt16()
			pairs = append(pairs, kernPair{left: left, right: right, xAdvance: value})
		}
	}
	return pairs, nil
}

// --- GPOS PairPos (lookup type 2) ---

type coverageTable struct {
	glyphs map[uint16]int // glyphID -> coverage index
}

func parseCoverageTable(b []byte) (*coverageTable, error) {
	if len(b) < 4 {
		return nil, newError(ErrInputTooSmall, "Coverage table truncated")
	}
	r := parse.NewBinaryReader(b)
	format := r.ReadUint16()
	t := &coverageTable{glyphs: make(map[uint16]int)}
	switch format {
	case 1:
		count := r.ReadUint16()
		if r.Len() < 2*uint32(count) {
			return nil, newError(ErrInputTooSmall, "Coverage format 1 truncated")
		}
		for i := uint16(0); i < count; i++ {
			t.glyphs[r.ReadUint16()] = int(i)
		}
	case 2:
		rangeCount := r.ReadUint16()
		if r.Len() < 6*uint32(rangeCount) {
			return nil, newError(ErrInputTooSmall, "Coverage format 2 truncated")
		}
		for i := uint16(0); i < rangeCount; i++ {
			start := r.ReadUint16()
			end := r.ReadUint16()
			startCoverageIndex := r.ReadUint16()
			for g := start; g <= end; g++ {
				t.glyphs[g] = int(startCoverageIndex) + int(g-start)
				if g == 0xFFFF {
					break
				}
			}
		}
	default:
		return nil, newError(ErrCorruptContainer, "Coverage: unsupported format %d", format)
	}
	return t, nil
}

type classDefTable struct {
	classes map[uint16]uint16
}

func (c *classDefTable) classOf(gid uint16) uint16 {
	return c.classes[gid] // zero value (class 0) for glyphs not listed
}

func parseClassDefTable(b []byte) (*classDefTable, error) {
	if len(b) < 4 {
		return nil, newError(ErrInputTooSmall, "ClassDef table truncated")
	}
	r := parse.NewBinaryReader(b)
	format := r.ReadUint16()
	t := &classDefTable{classes: make(map[uint16]uint16)}
	switch format {
	case 1:
		startGlyph := r.ReadUint16()
		count := r.ReadUint16()
		if r.Len() < 2*uint32(count) {
			return nil, newError(ErrInputTooSmall, "ClassDef format 1 truncated")
		}
		for i := uint16(0); i < count; i++ {
			t.classes[startGlyph+i] = r.ReadUint16()
		}
	case 2:
		rangeCount := r.ReadUint16()
		if r.Len() < 6*uint32(rangeCount) {
			return nil, newError(ErrInputTooSmall, "ClassDef format 2 truncated")
		}
		for i := uint16(0); i < rangeCount; i++ {
			start := r.ReadUint16()
			end := r.ReadUint16()
			class := r.ReadUint16()
			for g := start; g <= end; g++ {
				t.classes[g] = class
				if g == 0xFFFF {
					break
				}
			}
		}
	default:
		return nil, newError(ErrCorruptContainer, "ClassDef: unsupported format %d", format)
	}
	return t, nil
}

// valueRecord carries the subset of the 8 possible ValueRecord fields
// this reader cares about (x-advance is what a kerning pair needs).
type valueRecord struct {
	xPlacement, yPlacement int16
	xAdvance, yAdvance     int16
}

const (
	vrXPlacement = 0x0001
	vrYPlacement = 0x0002
	vrXAdvance   = 0x0004
	vrYAdvance   = 0x0008
	vrXPlaDevice = 0x0010
	vrYPlaDevice = 0x0020
	vrXAdvDevice = 0x0040
	vrYAdvDevice = 0x0080
)

// parseValueRecord reads every field present in valueFormat, in bit
// order, independently of any other field — the ValueRecord's size is
// exactly 2*popcount(valueFormat) bytes. A chained if/else here would
// silently stop after the first present field; each bit is read on its
// own instead.
func parseValueRecord(r *parse.BinaryReader, valueFormat uint16) valueRecord {
	var v valueRecord
	if valueFormat&vrXPlacement != 0 {
		v.xPlacement = r.ReadInt16()
	}
	if valueFormat&vrYPlacement != 0 {
		v.yPlacement = r.ReadInt16()
	}
	if valueFormat&vrXAdvance != 0 {
		v.xAdvance = r.ReadInt16()
	}
	if valueFormat&vrYAdvance != 0 {
		v.yAdvance = r.ReadInt16()
	}
	if valueFormat&vrXPlaDevice != 0 {
		_ = r.ReadUint16() // device/variation-index offset, not resolved
	}
	if valueFormat&vrYPlaDevice != 0 {
		_ = r.ReadUint16()
	}
	if valueFormat&vrXAdvDevice != 0 {
		_ = r.ReadUint16()
	}
	if valueFormat&vrYAdvDevice != 0 {
		_ = r.ReadUint16()
	}
	return v
}

func valueRecordSize(valueFormat uint16) uint32 {
	n := 0
	for valueFormat != 0 {
		n += int(valueFormat & 1)
		valueFormat >>= 1
	}
	return uint32(2 * n)
}

// parseGPOSKerning walks every Lookup in a GPOS table's LookupList,
// whether or not any feature references it, and extracts every pair it
// can from the type 2 (PairAdjustment) lookups. ScriptList and
// FeatureList are not consulted. Lookups of other types, and extension
// (type 9) wrappers around non-pair lookups, are skipped.
func parseGPOSKerning(b []byte) ([]kernPair, error) {
	if len(b) < 10 {
		return nil, newError(ErrInputTooSmall, "GPOS header truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint32() // version
	_ = r.ReadUint16() // scriptListOffset (we scan every lookup unconditionally)
	_ = r.ReadUint16() // featureListOffset
	lookupListOffset := r.ReadUint16()

	if int(lookupListOffset) >= len(b) {
		return nil, newError(ErrCorruptContainer, "GPOS: lookupListOffset out of range")
	}
	lr := parse.NewBinaryReader(b[lookupListOffset:])
	if lr.Len() < 2 {
		return nil, newError(ErrInputTooSmall, "GPOS LookupList truncated")
	}
	lookupCount := lr.ReadUint16()
	if lr.Len() < 2*uint32(lookupCount) {
		return nil, newError(ErrInputTooSmall, "GPOS LookupList offsets truncated")
	}
	lookupOffsets := make([]uint16, lookupCount)
	for i := range lookupOffsets {
		lookupOffsets[i] = lr.ReadUint16()
	}

	var pairs []kernPair
	lookupListBase := b[lookupListOffset:]
	for _, off := range lookupOffsets {
		if int(off) >= len(lookupListBase) {
			continue
		}
		p, err := parseGPOSLookup(lookupListBase[off:])
		if err != nil {
			continue // one malformed lookup never fails the whole extraction
		}
		pairs = append(pairs, p...)
	}
	return pairs, nil
}

func parseGPOSLookup(b []byte) ([]kernPair, error) {
	if len(b) < 6 {
		return nil, newError(ErrInputTooSmall, "Lookup truncated")
	}
	r := parse.NewBinaryReader(b)
	lookupType := r.ReadUint16()
	_ = r.ReadUint16() // lookupFlag
	subtableCount := r.ReadUint16()
	if r.Len() < 2*uint32(subtableCount) {
		return nil, newError(ErrInputTooSmall, "Lookup subtable offsets truncated")
	}
	offsets := make([]uint16, subtableCount)
	for i := range offsets {
		offsets[i] = r.ReadUint16()
	}

	var pairs []kernPair
	for _, off := range offsets {
		if int(off) >= len(b) {
			continue
		}
		sub := b[off:]
		switch lookupType {
		case 2:
			p, err := parsePairPosSubtable(sub)
			if err == nil {
				pairs = append(pairs, p...)
			}
		case 9: // extension positioning: one more indirection to the real type
			if len(sub) < 8 {
				continue
			}
			er := parse.NewBinaryReader(sub)
			_ = er.ReadUint16() // format
			extType := er.ReadUint16()
			extOffset := er.ReadUint32()
			if extType != 2 || int(extOffset) >= len(sub) {
				continue
			}
			p, err := parsePairPosSubtable(sub[extOffset:])
			if err == nil {
				pairs = append(pairs, p...)
			}
		}
	}
	return pairs, nil
}

func parsePairPosSubtable(b []byte) ([]kernPair, error) {
	if len(b) < 8 {
		return nil, newError(ErrInputTooSmall, "PairPos subtable truncated")
	}
	r := parse.NewBinaryReader(b)
	format := r.ReadUint16()
	coverageOffset := r.ReadUint16()
	valueFormat1 := r.ReadUint16()
	valueFormat2 := r.ReadUint16()

	if int(coverageOffset) >= len(b) {
		return nil, newError(ErrCorruptContainer, "PairPos: coverage offset out of range")
	}
	coverage, err := parseCoverageTable(b[coverageOffset:])
	if err != nil {
		return nil, err
	}

	switch format {
	case 1:
		return parsePairPosFormat1(r, b, coverage, valueFormat1, valueFormat2)
	case 2:
		return parsePairPosFormat2(r, b, coverage, valueFormat1, valueFormat2)
	}
	return nil, newError(ErrCorruptContainer, "PairPos: unsupported format %d", format)
}

func parsePairPosFormat1(r *parse.BinaryReader, b []byte, coverage *coverageTable, vf1, vf2 uint16) ([]kernPair, error) {
	if r.Len() < 2 {
		return nil, newError(ErrInputTooSmall, "PairPos format 1 truncated")
	}
	pairSetCount := r.ReadUint16()
	if r.Len() < 2*uint32(pairSetCount) {
		return nil, newError(ErrInputTooSmall, "PairPos format 1 pairSet offsets truncated")
	}
	pairSetOffsets := make([]uint16, pairSetCount)
	for i := range pairSetOffsets {
		pairSetOffsets[i] = r.ReadUint16()
	}

	left := make([]uint16, len(coverage.glyphs))
	for g, idx := range coverage.glyphs {
		if idx >= 0 && idx < len(left) {
			left[idx] = g
		}
	}

	var pairs []kernPair
	for i, off := range pairSetOffsets {
		if i >= len(left) || int(off) >= len(b) {
			continue
		}
		pr := parse.NewBinaryReader(b[off:])
		if pr.Len() < 2 {
			continue
		}
		pairValueCount := pr.ReadUint16()
		for j := uint16(0); j < pairValueCount; j++ {
			if pr.Len() < 2 {
				break
			}
			right := pr.ReadUint16()
			v1 := parseValueRecord(pr, vf1)
			_ = parseValueRecord(pr, vf2) // second glyph's record, unused for simple kerning
			pairs = append(pairs, kernPair{left: left[i], right: right, xAdvance: v1.xAdvance})
		}
	}
	return pairs, nil
}

func parsePairPosFormat2(r *parse.BinaryReader, b []byte, coverage *coverageTable, vf1, vf2 uint16) ([]kernPair, error) {
	if r.Len() < 8 {
		return nil, newError(ErrInputTooSmall, "PairPos format 2 truncated")
	}
	classDef1Offset := r.ReadUint16()
	classDef2Offset := r.ReadUint16()
	class1Count := r.ReadUint16()
	class2Count := r.ReadUint16()

	if int(classDef1Offset) >= len(b) || int(classDef2Offset) >= len(b) {
		return nil, newError(ErrCorruptContainer, "PairPos format 2: ClassDef offset out of range")
	}
	classDef1, err := parseClassDefTable(b[classDef1Offset:])
	if err != nil {
		return nil, err
	}
	classDef2, err := parseClassDefTable(b[classDef2Offset:])
	if err != nil {
		return nil, err
	}

	recordSize := valueRecordSize(vf1) + valueRecordSize(vf2)
	matrix := make([][]valueRecord, class1Count)
	for i := range matrix {
		matrix[i] = make([]valueRecord, class2Count)
		for j := range matrix[i] {
			if r.Len() < recordSize {
				return nil, newError(ErrInputTooSmall, "PairPos format 2: class matrix truncated")
			}
			matrix[i][j] = parseValueRecord(r, vf1)
			_ = parseValueRecord(r, vf2)
		}
	}

	// For every covered left glyph, look up its class1 index (class 0 if
	// classDef1 does not list it), and pair it with every glyph listed in
	// classDef2. Second glyphs absent from classDef2 (implicit class 0)
	// produce no pairs, even where the matrix's class-0 column is nonzero.
	var pairs []kernPair
	for leftGlyph := range coverage.glyphs {
		c1 := classDef1.classOf(leftGlyph)
		if int(c1) >= len(matrix) {
			continue
		}
		for rightGlyph, c2 := range classDef2.classes {
			if int(c2) >= len(matrix[c1]) {
				continue
			}
			v := matrix[c1][c2]
			if v.xAdvance != 0 {
				pairs = append(pairs, kernPair{left: leftGlyph, right: rightGlyph, xAdvance: v.xAdvance})
			}
		}
	}
	return pairs, nil
}
