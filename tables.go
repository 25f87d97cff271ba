package typeface

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/tdewolff/parse/v2"
)

// headTable is the decoded `head` table (font-wide scaling and bbox info).
// Underline metrics live in `post`, not `head`; see postTable.
type headTable struct {
	UnitsPerEm        uint16
	XMin, YMin        int16
	XMax, YMax        int16
	MacStyle          uint16
	LowestRecPPEM     uint16
	FontDirectionHint int16
	IndexToLocFormat  int16 // 0 = short (uint16/2), 1 = long (uint32)
}

func parseHead(b []byte) (*headTable, error) {
	r := parse.NewBinaryReader(b)
	if err := requireLen(r, 54, "head table"); err != nil {
		return nil, err
	}
	_ = r.ReadUint32() // version
	_ = r.ReadUint32() // fontRevision
	_ = r.ReadUint32() // checksumAdjustment
	_ = r.ReadUint32() // magicNumber
	_ = r.ReadUint16() // flags
	unitsPerEm := r.ReadUint16()
	_ = r.ReadBytes(8) // created (LONGDATETIME)
	_ = r.ReadBytes(8) // modified (LONGDATETIME)
	xMin := r.ReadInt16()
	yMin := r.ReadInt16()
	xMax := r.ReadInt16()
	yMax := r.ReadInt16()
	macStyle := r.ReadUint16()
	lowestRecPPEM := r.ReadUint16()
	fontDirectionHint := r.ReadInt16()
	indexToLocFormat := r.ReadInt16()
	_ = r.ReadInt16() // glyphDataFormat
	if unitsPerEm == 0 {
		return nil, newError(ErrCorruptContainer, "head: unitsPerEm is zero")
	}
	return &headTable{
		UnitsPerEm:        unitsPerEm,
		XMin:              xMin,
		YMin:              yMin,
		XMax:              xMax,
		YMax:              yMax,
		MacStyle:          macStyle,
		LowestRecPPEM:     lowestRecPPEM,
		FontDirectionHint: fontDirectionHint,
		IndexToLocFormat:  indexToLocFormat,
	}, nil
}

// maxpTable carries the glyph count, shared by TrueType and CFF-flavored fonts.
type maxpTable struct {
	NumGlyphs uint16
}

func parseMaxp(b []byte) (*maxpTable, error) {
	r := parse.NewBinaryReader(b)
	if err := requireLen(r, 6, "maxp table"); err != nil {
		return nil, err
	}
	_ = r.ReadUint32() // version
	numGlyphs := r.ReadUint16()
	return &maxpTable{NumGlyphs: numGlyphs}, nil
}

// hheaTable carries horizontal metrics shared across all glyphs.
type hheaTable struct {
	Ascender     int16
	Descender    int16
	LineGap      int16
	NumHMetrics  uint16
}

func parseHhea(b []byte) (*hheaTable, error) {
	r := parse.NewBinaryReader(b)
	if err := requireLen(r, 36, "hhea table"); err != nil {
		return nil, err
	}
	_ = r.ReadUint32() // version
	ascender := r.ReadInt16()
	descender := r.ReadInt16()
	lineGap := r.ReadInt16()
	_ = r.ReadUint16() // advanceWidthMax
	_ = r.ReadInt16()  // minLeftSideBearing
	_ = r.ReadInt16()  // minRightSideBearing
	_ = r.ReadInt16()  // xMaxExtent
	_ = r.ReadInt16()  // caretSlopeRise
	_ = r.ReadInt16()  // caretSlopeRun
	_ = r.ReadInt16()  // caretOffset
	for i := 0; i < 4; i++ {
		_ = r.ReadInt16() // reserved
	}
	_ = r.ReadInt16() // metricDataFormat
	numHMetrics := r.ReadUint16()
	return &hheaTable{Ascender: ascender, Descender: descender, LineGap: lineGap, NumHMetrics: numHMetrics}, nil
}

// hmtxTable carries per-glyph advance width + left side bearing, with the
// last hMetrics entry implicitly repeated for glyph IDs beyond NumHMetrics
// (per OpenType's monospace-tail convention).
type hmtxTable struct {
	advances []uint16
	lsbs     []int16
	extraLSB []int16
}

func parseHmtx(b []byte, numHMetrics, numGlyphs uint16) (*hmtxTable, error) {
	need := 4*int(numHMetrics) + 2*int(numGlyphs-numHMetrics)
	if numGlyphs < numHMetrics {
		return nil, newError(ErrCorruptContainer, "hmtx: numHMetrics %d exceeds numGlyphs %d", numHMetrics, numGlyphs)
	}
	if len(b) < need {
		return nil, newError(ErrInputTooSmall, "hmtx table truncated")
	}
	r := parse.NewBinaryReader(b)
	t := &hmtxTable{advances: make([]uint16, numHMetrics), lsbs: make([]int16, numHMetrics)}
	for i := range t.advances {
		t.advances[i] = r.ReadUint16()
		t.lsbs[i] = r.ReadInt16()
	}
	t.extraLSB = make([]int16, numGlyphs-numHMetrics)
	for i := range t.extraLSB {
		t.extraLSB[i] = r.ReadInt16()
	}
	return t, nil
}

func (t *hmtxTable) Advance(gid uint16) uint16 {
	if len(t.advances) == 0 {
		return 0
	}
	if int(gid) < len(t.advances) {
		return t.advances[gid]
	}
	return t.advances[len(t.advances)-1]
}

// nameTable carries the decoded `name` records we care about (family
// name and similar human-readable strings), platform-decoded to UTF-8.
type nameTable struct {
	records map[uint16]string // nameID -> first decoded value found
}

func parseName(b []byte) (*nameTable, error) {
	if len(b) < 6 {
		return nil, newError(ErrInputTooSmall, "name table truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint16() // format
	count := r.ReadUint16()
	storageOffset := r.ReadUint16()
	if r.Len() < 12*uint32(count) {
		return nil, newError(ErrInputTooSmall, "name record array truncated")
	}

	type rec struct {
		platformID, encodingID, languageID, nameID uint16
		offset, length                             uint16
	}
	recs := make([]rec, count)
	for i := range recs {
		recs[i] = rec{
			platformID: r.ReadUint16(),
			encodingID: r.ReadUint16(),
			languageID: r.ReadUint16(),
			nameID:     r.ReadUint16(),
			length:     r.ReadUint16(),
			offset:     0,
		}
		recs[i].offset = r.ReadUint16()
	}

	t := &nameTable{records: make(map[uint16]string)}
	for _, rc := range recs {
		start := int(storageOffset) + int(rc.offset)
		end := start + int(rc.length)
		if start < 0 || end > len(b) || start > end {
			continue
		}
		raw := b[start:end]
		s, ok := decodeNameString(rc.platformID, rc.encodingID, raw)
		if !ok {
			continue
		}
		if _, exists := t.records[rc.nameID]; !exists {
			t.records[rc.nameID] = s
		}
	}
	return t, nil
}

func decodeNameString(platformID, encodingID uint16, raw []byte) (string, bool) {
	switch platformID {
	case platformUnicode, platformWindows:
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(out), true
	case platformMacintosh:
		if encodingID == 0 {
			dec := charmap.Macintosh.NewDecoder()
			out, err := dec.Bytes(raw)
			if err != nil {
				return "", false
			}
			return string(out), true
		}
		return string(raw), true
	default:
		return string(raw), true
	}
}

const (
	platformUnicode   = 0
	platformMacintosh = 1
	platformWindows   = 3
)

const (
	nameIDCopyright     = 0
	nameIDFontFamily    = 1
	nameIDFontSubfamily = 2
	nameIDFullName      = 4
	nameIDVersion       = 5
	nameIDPostScript    = 6
	nameIDDesigner      = 9
)

// postTable carries the underline metrics shared by all `post`
// versions. Format 2.0's per-glyph PostScript name table isn't decoded:
// the typeface record is keyed by character, not glyph name, and no
// component ever needs a name for a gid.
type postTable struct {
	UnderlinePosition  int16
	UnderlineThickness int16
	isFixedPitch       bool
}

func parsePost(b []byte) (*postTable, error) {
	if len(b) < 32 {
		return nil, newError(ErrInputTooSmall, "post table truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadUint32() // version
	_ = r.ReadUint32() // italicAngle
	underlinePosition := r.ReadInt16()
	underlineThickness := r.ReadInt16()
	isFixedPitch := r.ReadUint32() != 0

	return &postTable{UnderlinePosition: underlinePosition, UnderlineThickness: underlineThickness, isFixedPitch: isFixedPitch}, nil
}

// os2Table carries the subset of OS/2 fields the typeface record needs:
// typographic ascender/descender selection and weight/width class.
type os2Table struct {
	STypoAscender, STypoDescender, STypoLineGap int16
	UsWinAscent, UsWinDescent                   uint16
	FsSelection                                 uint16
	UsWeightClass, UsWidthClass                 uint16
	present                                     bool
}

const fsSelectionUseTypoMetrics = 0x0080

func parseOS2(b []byte) (*os2Table, error) {
	if len(b) < 2 {
		return nil, newError(ErrInputTooSmall, "OS/2 table truncated")
	}
	r := parse.NewBinaryReader(b)
	version := r.ReadUint16()
	if r.Len() < 2 {
		return nil, newError(ErrInputTooSmall, "OS/2 table truncated")
	}
	_ = r.ReadInt16() // xAvgCharWidth
	if r.Len() < 2 {
		return nil, newError(ErrInputTooSmall, "OS/2 table truncated")
	}
	usWeightClass := r.ReadUint16()
	usWidthClass := r.ReadUint16()
	_ = r.ReadUint16() // fsType
	for i := 0; i < 10; i++ {
		_ = r.ReadInt16() // ySubscript*/ySuperscript*/yStrikeout* metrics
	}
	_ = r.ReadInt16()   // sFamilyClass
	_ = r.ReadBytes(10) // panose
	for i := 0; i < 4; i++ {
		_ = r.ReadUint32() // ulUnicodeRange1-4
	}
	_ = r.ReadString(4) // achVendID
	fsSelection := r.ReadUint16()
	_ = r.ReadUint16() // usFirstCharIndex
	_ = r.ReadUint16() // usLastCharIndex
	sTypoAscender := r.ReadInt16()
	sTypoDescender := r.ReadInt16()
	sTypoLineGap := r.ReadInt16()
	usWinAscent := r.ReadUint16()
	usWinDescent := r.ReadUint16()
	_ = version // fields beyond usWinDescent (v1+) are not needed by the typeface record
	return &os2Table{
		STypoAscender: sTypoAscender, STypoDescender: sTypoDescender, STypoLineGap: sTypoLineGap,
		UsWinAscent: usWinAscent, UsWinDescent: usWinDescent, FsSelection: fsSelection,
		UsWeightClass: usWeightClass, UsWidthClass: usWidthClass, present: true,
	}, nil
}

// estimateOS2 synthesizes the ascender/descender fields from hhea when a
// font lacks an OS/2 table entirely (permitted for bare TrueType/CFF fonts
// outside the Windows-oriented OpenType profile).
func estimateOS2(hhea *hheaTable) *os2Table {
	return &os2Table{
		STypoAscender:  hhea.Ascender,
		STypoDescender: hhea.Descender,
		STypoLineGap:   hhea.LineGap,
		UsWinAscent:    uint16(hhea.Ascender),
		UsWinDescent:   uint16(-hhea.Descender),
		present:        false,
	}
}

// verticalMetrics resolves the ascender/descender the typeface record
// reports: OS/2's typo metrics when USE_TYPO_METRICS is set, otherwise
// OS/2's win metrics (with a line gap of 0) when an OS/2 table was
// parsed, and hhea only when there is no parsed OS/2 table.
func verticalMetrics(os2 *os2Table, hhea *hheaTable) (ascender, descender, lineGap int16) {
	if os2 != nil && os2.present && os2.FsSelection&fsSelectionUseTypoMetrics != 0 {
		return os2.STypoAscender, os2.STypoDescender, os2.STypoLineGap
	}
	if os2 != nil && os2.present {
		return int16(os2.UsWinAscent), -int16(os2.UsWinDescent), 0
	}
	return hhea.Ascender, hhea.Descender, hhea.LineGap
}

// vheaTable and vmtxTable are passthrough vertical-metrics tables kept
// for completeness; the typeface record surfaces them but no Non-goal
// bars vertical layout data from being captured.
type vheaTable struct {
	VertTypoAscender, VertTypoDescender int16
	NumVMetrics                         uint16
}

func parseVhea(b []byte) (*vheaTable, error) {
	r := parse.NewBinaryReader(b)
	if err := requireLen(r, 36, "vhea table"); err != nil {
		return nil, err
	}
	_ = r.ReadUint32() // version
	ascender := r.ReadInt16()
	descender := r.ReadInt16()
	_ = r.ReadInt16() // lineGap
	for i := 0; i < 8; i++ {
		_ = r.ReadInt16()
	}
	for i := 0; i < 4; i++ {
		_ = r.ReadInt16()
	}
	numVMetrics := r.ReadUint16()
	return &vheaTable{VertTypoAscender: ascender, VertTypoDescender: descender, NumVMetrics: numVMetrics}, nil
}

type vmtxTable struct {
	advances []uint16
}

func parseVmtx(b []byte, numVMetrics uint16) (*vmtxTable, error) {
	if len(b) < 4*int(numVMetrics) {
		return nil, newError(ErrInputTooSmall, "vmtx table truncated")
	}
	r := parse.NewBinaryReader(b)
	t := &vmtxTable{advances: make([]uint16, numVMetrics)}
	for i := range t.advances {
		t.advances[i] = r.ReadUint16()
		_ = r.ReadInt16() // topSideBearing
	}
	return t, nil
}
