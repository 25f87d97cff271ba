package typeface

import "github.com/tdewolff/parse/v2"

// cmapSubtable maps runes to glyph IDs. All four formats this module
// supports (0, 4, 6, 12) implement it.
type cmapSubtable interface {
	lookup(r rune) (uint16, bool)
	runes() []rune // every rune with a non-notdef mapping, for reverse iteration
}

// cmapEncoding names one encoding record's platform/encoding pair, used
// only for preference scoring during subtable selection.
type cmapEncoding struct {
	platformID, encodingID uint16
}

// cmapPreference ranks encoding records from most to least preferred.
// Unlike the teacher, which walks subtables in file order and keeps the
// first one it can decode, this orders by platform/encoding suitability
// for Unicode text first: full Unicode BMP+supplementary (3,10), then
// Unicode full repertoire (0,6), then a broad Unicode plane 0 (0,4),
// then Windows BMP (3,1), then the Macintosh/Unicode legacy encodings.
var cmapPreference = []cmapEncoding{
	{3, 10},
	{0, 6},
	{0, 4},
	{3, 1},
	{0, 3},
	{0, 2},
	{0, 1},
	{0, 0},
	{1, 0},
}

func cmapPreferenceRank(platformID, encodingID uint16) int {
	for i, p := range cmapPreference {
		if p.platformID == platformID && p.encodingID == encodingID {
			return i
		}
	}
	return len(cmapPreference)
}

// parseCmap selects the best encoding record from the `cmap` table and
// decodes its subtable. It returns ErrUnsupportedCmap if every record's
// format is outside {0,4,6,12}.
func parseCmap(b []byte) (cmapSubtable, error) {
	if len(b) < 4 {
		return nil, newError(ErrInputTooSmall, "cmap table truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // version
	numTables := r.ReadUint16()
	if r.Len() < 8*uint32(numTables) {
		return nil, newError(ErrInputTooSmall, "cmap encoding record array truncated")
	}

	type record struct {
		platformID, encodingID uint16
		offset                 uint32
	}
	records := make([]record, numTables)
	for i := range records {
		records[i] = record{
			platformID: r.ReadUint16(),
			encodingID: r.ReadUint16(),
			offset:     r.ReadUint32(),
		}
	}

	best := -1
	bestRank := len(cmapPreference) + 1
	for i, rec := range records {
		if rec.offset >= uint32(len(b)) {
			continue
		}
		format := parse.NewBinaryReader(b[rec.offset:]).ReadUint16()
		switch format {
		case 0, 4, 6, 12:
		default:
			continue
		}
		rank := cmapPreferenceRank(rec.platformID, rec.encodingID)
		if rank < bestRank {
			bestRank = rank
			best = i
		}
	}
	if best < 0 {
		return nil, newError(ErrUnsupportedCmap, "no cmap subtable in a supported format (0,4,6,12)")
	}
	sub := b[records[best].offset:]
	sr := parse.NewBinaryReader(sub)
	format := sr.ReadUint16()
	switch format {
	case 0:
		return parseCmapFormat0(sub)
	case 4:
		return parseCmapFormat4(sub)
	case 6:
		return parseCmapFormat6(sub)
	case 12:
		return parseCmapFormat12(sub)
	}
	return nil, newError(ErrUnsupportedCmap, "unreachable cmap format %d", format)
}

// cmapFormat0 is the byte-encoding table: 256 single-byte code points.
type cmapFormat0 struct {
	glyphIDs [256]byte
}

func parseCmapFormat0(b []byte) (*cmapFormat0, error) {
	if len(b) < 6+256 {
		return nil, newError(ErrInputTooSmall, "cmap format 0 truncated")
	}
	t := &cmapFormat0{}
	copy(t.glyphIDs[:], b[6:6+256])
	return t, nil
}

func (t *cmapFormat0) lookup(r rune) (uint16, bool) {
	if r < 0 || r > 255 {
		return 0, false
	}
	gid := t.glyphIDs[r]
	return uint16(gid), gid != 0
}

func (t *cmapFormat0) runes() []rune {
	var out []rune
	for i, gid := range t.glyphIDs {
		if gid != 0 {
			out = append(out, rune(i))
		}
	}
	return out
}

// cmapFormat4 is the segment-mapping table used by the majority of
// Windows-targeted BMP-only fonts.
type cmapFormat4 struct {
	endCode, startCode   []uint16
	idDelta              []int16
	idRangeOffset        []uint16
	idRangeOffsetBase    []int // byte offset within glyphIDArray block, per segment
	glyphIDArray         []uint16
}

func parseCmapFormat4(b []byte) (*cmapFormat4, error) {
	if len(b) < 14 {
		return nil, newError(ErrInputTooSmall, "cmap format 4 truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // format
	_ = r.ReadUint16() // length
	_ = r.ReadUint16() // language
	segCountX2 := r.ReadUint16()
	segCount := int(segCountX2 / 2)
	_ = r.ReadUint16() // searchRange
	_ = r.ReadUint16() // entrySelector
	_ = r.ReadUint16() // rangeShift

	if r.Len() < uint32(segCount)*2 {
		return nil, newError(ErrInputTooSmall, "cmap format 4 endCode truncated")
	}
	t := &cmapFormat4{
		endCode:           make([]uint16, segCount),
		startCode:         make([]uint16, segCount),
		idDelta:           make([]int16, segCount),
		idRangeOffset:     make([]uint16, segCount),
		idRangeOffsetBase: make([]int, segCount),
	}
	for i := range t.endCode {
		t.endCode[i] = r.ReadUint16()
	}
	_ = r.ReadUint16() // reservedPad
	if r.Len() < uint32(segCount)*2 {
		return nil, newError(ErrInputTooSmall, "cmap format 4 startCode truncated")
	}
	for i := range t.startCode {
		t.startCode[i] = r.ReadUint16()
	}
	if r.Len() < uint32(segCount)*2 {
		return nil, newError(ErrInputTooSmall, "cmap format 4 idDelta truncated")
	}
	for i := range t.idDelta {
		t.idDelta[i] = r.ReadInt16()
	}
	idRangeOffsetPos := r.Pos()
	if r.Len() < uint32(segCount)*2 {
		return nil, newError(ErrInputTooSmall, "cmap format 4 idRangeOffset truncated")
	}
	for i := range t.idRangeOffset {
		t.idRangeOffsetBase[i] = int(idRangeOffsetPos) + i*2
		t.idRangeOffset[i] = r.ReadUint16()
	}
	rest := b[r.Pos():]
	t.glyphIDArray = make([]uint16, len(rest)/2)
	rr := parse.NewBinaryReader(rest)
	for i := range t.glyphIDArray {
		t.glyphIDArray[i] = rr.ReadUint16()
	}
	return t, nil
}

func (t *cmapFormat4) lookup(r rune) (uint16, bool) {
	if r < 0 || r > 0xFFFF {
		return 0, false
	}
	c := uint16(r)
	for i, end := range t.endCode {
		if c > end {
			continue
		}
		if c < t.startCode[i] {
			return 0, false
		}
		if t.idRangeOffset[i] == 0 {
			gid := uint16(int32(c) + int32(t.idDelta[i]))
			if gid == 0 {
				return 0, false
			}
			return gid, true
		}
		// glyphIndexAddress = idRangeOffsetBase[i] + idRangeOffset[i] + 2*(c - startCode[i])
		glyphArrayByteOffset := t.idRangeOffsetBase[i] + int(t.idRangeOffset[i]) + 2*int(c-t.startCode[i])
		idx := (glyphArrayByteOffset - (t.idRangeOffsetBase[len(t.idRangeOffsetBase)-1] + 2)) / 2
		if idx < 0 || idx >= len(t.glyphIDArray) {
			return 0, false
		}
		gid := t.glyphIDArray[idx]
		if gid == 0 {
			return 0, false
		}
		return uint16(int32(gid) + int32(t.idDelta[i])), true
	}
	return 0, false
}

func (t *cmapFormat4) runes() []rune {
	var out []rune
	for i := range t.startCode {
		for c := uint32(t.startCode[i]); c <= uint32(t.endCode[i]) && c <= 0xFFFF; c++ {
			if _, ok := t.lookup(rune(c)); ok {
				out = append(out, rune(c))
			}
			if c == 0xFFFF {
				break
			}
		}
	}
	return out
}

// cmapFormat6 is the trimmed table mapping, a contiguous range of codes.
type cmapFormat6 struct {
	firstCode uint16
	glyphIDs  []uint16
}

func parseCmapFormat6(b []byte) (*cmapFormat6, error) {
	if len(b) < 10 {
		return nil, newError(ErrInputTooSmall, "cmap format 6 truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // format
	_ = r.ReadUint16() // length
	_ = r.ReadUint16() // language
	firstCode := r.ReadUint16()
	entryCount := r.ReadUint16()
	if r.Len() < 2*uint32(entryCount) {
		return nil, newError(ErrInputTooSmall, "cmap format 6 glyphIdArray truncated")
	}
	ids := make([]uint16, entryCount)
	for i := range ids {
		ids[i] = r.ReadUint16()
	}
	return &cmapFormat6{firstCode: firstCode, glyphIDs: ids}, nil
}

func (t *cmapFormat6) lookup(r rune) (uint16, bool) {
	if r < rune(t.firstCode) {
		return 0, false
	}
	idx := int(r) - int(t.firstCode)
	if idx < 0 || idx >= len(t.glyphIDs) {
		return 0, false
	}
	gid := t.glyphIDs[idx]
	return gid, gid != 0
}

func (t *cmapFormat6) runes() []rune {
	var out []rune
	for i, gid := range t.glyphIDs {
		if gid != 0 {
			out = append(out, rune(int(t.firstCode)+i))
		}
	}
	return out
}

// cmapFormat12 is the segmented coverage table, the only format able to
// express supplementary-plane (astral) code points.
type cmapFormat12 struct {
	groups []cmapGroup12
}

type cmapGroup12 struct {
	startCharCode, endCharCode uint32
	startGlyphID               uint32
}

func parseCmapFormat12(b []byte) (*cmapFormat12, error) {
	if len(b) < 16 {
		return nil, newError(ErrInputTooSmall, "cmap format 12 truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // format
	_ = r.ReadUint16() // reserved
	_ = r.ReadUint32() // length
	_ = r.ReadUint32() // language
	numGroups := r.ReadUint32()
	if r.Len() < 12*numGroups {
		return nil, newError(ErrInputTooSmall, "cmap format 12 group array truncated")
	}
	groups := make([]cmapGroup12, numGroups)
	for i := range groups {
		groups[i] = cmapGroup12{
			startCharCode: r.ReadUint32(),
			endCharCode:   r.ReadUint32(),
			startGlyphID:  r.ReadUint32(),
		}
	}
	return &cmapFormat12{groups: groups}, nil
}

func (t *cmapFormat12) lookup(r rune) (uint16, bool) {
	c := uint32(r)
	for _, g := range t.groups {
		if c >= g.startCharCode && c <= g.endCharCode {
			gid := uint16(g.startGlyphID + (c - g.startCharCode))
			return gid, gid != 0
		}
	}
	return 0, false
}

func (t *cmapFormat12) runes() []rune {
	var out []rune
	for _, g := range t.groups {
		for c := g.startCharCode; c <= g.endCharCode; c++ {
			if uint16(g.startGlyphID+(c-g.startCharCode)) != 0 {
				out = append(out, rune(c))
			}
			if c == g.endCharCode {
				break
			}
		}
	}
	return out
}
