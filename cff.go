package typeface

import (
	"strconv"

	"github.com/tdewolff/parse/v2"
)

// cffIndex is a CFF INDEX structure: a count-prefixed, 1-based offset
// array followed by packed variable-length objects.
type cffIndex struct {
	data    []byte
	offsets []uint32 // len() == count+1, offsets[i]..offsets[i+1] bounds object i
}

func (idx *cffIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.offsets) - 1
}

func (idx *cffIndex) Get(i int) []byte {
	if idx == nil || i < 0 || i >= idx.Len() {
		return nil
	}
	return idx.data[idx.offsets[i]-1 : idx.offsets[i+1]-1]
}

// parseIndex decodes a CFF1-style INDEX (16-bit count, 8-bit offSize)
// starting at the current reader position, and returns the reader
// positioned just after it.
func parseIndex(r *parse.BinaryReader) (*cffIndex, error) {
	if r.Len() < 2 {
		return nil, newError(ErrInputTooSmall, "CFF INDEX count truncated")
	}
	count := r.ReadUint16()
	if count == 0 {
		return &cffIndex{offsets: []uint32{0}}, nil
	}
	if r.Len() < 1 {
		return nil, newError(ErrInputTooSmall, "CFF INDEX offSize truncated")
	}
	offSize := r.ReadUint8()
	if offSize < 1 || offSize > 4 {
		return nil, newError(ErrCorruptContainer, "CFF INDEX: invalid offSize %d", offSize)
	}
	n := int(count) + 1
	if r.Len() < uint32(offSize)*uint32(n) {
		return nil, newError(ErrInputTooSmall, "CFF INDEX offset array truncated")
	}
	offsets := make([]uint32, n)
	for i := range offsets {
		var v uint32
		for j := 0; j < int(offSize); j++ {
			v = v<<8 | uint32(r.ReadUint8())
		}
		offsets[i] = v
	}
	dataLen := offsets[n-1] - 1
	if r.Len() < dataLen {
		return nil, newError(ErrInputTooSmall, "CFF INDEX payload truncated")
	}
	data := r.ReadBytes(dataLen)
	return &cffIndex{data: data, offsets: offsets}, nil
}

// parseIndex2 decodes a CFF2-style INDEX (32-bit count instead of 16-bit;
// otherwise identical).
func parseIndex2(r *parse.BinaryReader) (*cffIndex, error) {
	if r.Len() < 4 {
		return nil, newError(ErrInputTooSmall, "CFF2 INDEX count truncated")
	}
	count := r.ReadUint32()
	if count == 0 {
		return &cffIndex{offsets: []uint32{0}}, nil
	}
	if r.Len() < 1 {
		return nil, newError(ErrInputTooSmall, "CFF2 INDEX offSize truncated")
	}
	offSize := r.ReadUint8()
	if offSize < 1 || offSize > 4 {
		return nil, newError(ErrCorruptContainer, "CFF2 INDEX: invalid offSize %d", offSize)
	}
	n := int(count) + 1
	if r.Len() < uint32(offSize)*uint32(n) {
		return nil, newError(ErrInputTooSmall, "CFF2 INDEX offset array truncated")
	}
	offsets := make([]uint32, n)
	for i := range offsets {
		var v uint32
		for j := 0; j < int(offSize); j++ {
			v = v<<8 | uint32(r.ReadUint8())
		}
		offsets[i] = v
	}
	dataLen := offsets[n-1] - 1
	if r.Len() < dataLen {
		return nil, newError(ErrInputTooSmall, "CFF2 INDEX payload truncated")
	}
	data := r.ReadBytes(dataLen)
	return &cffIndex{data: data, offsets: offsets}, nil
}

// cffDict is a decoded Top/Private/Font DICT: operator -> operand list.
type cffDict map[int][]float64

const (
	dictCharset        = 15
	dictEncoding       = 16
	dictCharStrings    = 17
	dictPrivate        = 18
	dictSubrs          = 19 // private-local, relative to Private DICT's own offset
	dictROS            = 0xc1e // escape 30: CID ROS
	dictFDArray        = 0xc24 // escape 36
	dictFDSelect       = 0xc25 // escape 37
	dictFontMatrix     = 0xc07 // escape 7
	dictVstore         = 24    // CFF2 only: ItemVariationStore offset
)

// parseDict decodes a DICT's operator/operand stream. Two-byte escape
// operators (12 x) are folded into a single int key 0xc00|x so callers
// can switch on one integer space.
func parseDict(b []byte) (cffDict, error) {
	d := make(cffDict)
	var operands []float64
	i := 0
	for i < len(b) {
		b0 := b[i]
		switch {
		case b0 <= 21 || b0 == 24 || b0 == 25:
			op := int(b0)
			i++
			if b0 == 12 {
				if i >= len(b) {
					return nil, newError(ErrCorruptContainer, "CFF DICT: truncated escape operator")
				}
				op = 0xc00 | int(b[i])
				i++
			}
			d[op] = operands
			operands = nil
		case b0 == 28:
			if i+3 > len(b) {
				return nil, newError(ErrCorruptContainer, "CFF DICT: truncated int16 operand")
			}
			v := int16(b[i+1])<<8 | int16(b[i+2])
			operands = append(operands, float64(v))
			i += 3
		case b0 == 29:
			if i+5 > len(b) {
				return nil, newError(ErrCorruptContainer, "CFF DICT: truncated int32 operand")
			}
			v := int32(b[i+1])<<24 | int32(b[i+2])<<16 | int32(b[i+3])<<8 | int32(b[i+4])
			operands = append(operands, float64(v))
			i += 5
		case b0 == 30:
			v, n, err := parseDictReal(b[i+1:])
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
			i += 1 + n
		case b0 >= 32 && b0 <= 246:
			operands = append(operands, float64(int(b0)-139))
			i++
		case b0 >= 247 && b0 <= 250:
			if i+2 > len(b) {
				return nil, newError(ErrCorruptContainer, "CFF DICT: truncated operand")
			}
			operands = append(operands, float64((int(b0)-247)*256+int(b[i+1])+108))
			i += 2
		case b0 >= 251 && b0 <= 254:
			if i+2 > len(b) {
				return nil, newError(ErrCorruptContainer, "CFF DICT: truncated operand")
			}
			operands = append(operands, float64(-(int(b0)-251)*256-int(b[i+1])-108))
			i += 2
		default:
			return nil, newError(ErrCorruptContainer, "CFF DICT: reserved byte 0x%02X", b0)
		}
	}
	return d, nil
}

// parseDictReal decodes a packed BCD real number (operand type 30): two
// nibbles per byte, terminated by nibble 0xf.
func parseDictReal(b []byte) (float64, int, error) {
	s := ""
	for i := 0; i < len(b); i++ {
		for _, nibble := range []byte{b[i] >> 4, b[i] & 0xf} {
			switch {
			case nibble <= 9:
				s += string('0' + nibble)
			case nibble == 0xa:
				s += "."
			case nibble == 0xb:
				s += "E"
			case nibble == 0xc:
				s += "E-"
			case nibble == 0xe:
				s += "-"
			case nibble == 0xf:
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return 0, i + 1, nil // malformed real: treat as 0 rather than fail the whole parse
				}
				return v, i + 1, nil
			}
		}
	}
	return 0, len(b), newError(ErrCorruptContainer, "CFF DICT: real number never terminated")
}

func dictInt(d cffDict, op int, def int) int {
	if v, ok := d[op]; ok && len(v) > 0 {
		return int(v[0])
	}
	return def
}

// cffFont is the fully decoded representation of a CFF1 or CFF2 table:
// the CharStrings INDEX, subroutine indices (global + per-glyph local),
// and enough of Top/Private/FDArray to resolve them.
type cffFont struct {
	isCFF2       bool
	charStrings  *cffIndex
	globalSubrs  *cffIndex
	localSubrs   *cffIndex // non-CID default local subrs
	fdLocalSubrs []*cffIndex // CID: one per FD
	fdSelect     []uint8     // per-glyph FD index, nil if not CID-keyed
	isCID        bool
	defaultWidthX, nominalWidthX int // non-CID default; CID fonts look these up per-FD
	fdDefaultWidthX, fdNominalWidthX []int
}

func parseCFFTable(b []byte) (*cffFont, error) {
	if len(b) < 4 {
		return nil, newError(ErrInputTooSmall, "CFF header truncated")
	}
	major := b[0]
	switch major {
	case 1:
		return parseCFF1(b)
	case 2:
		return parseCFF2(b)
	}
	return nil, newError(ErrUnsupportedFormat, "CFF major version %d unsupported", major)
}

func parseCFF1(b []byte) (*cffFont, error) {
	hdrSize := int(b[2])
	if len(b) < hdrSize {
		return nil, newError(ErrInputTooSmall, "CFF1 header truncated")
	}
	r := parse.NewBinaryReader(b[hdrSize:])

	nameIndex, err := parseIndex(r)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: Name INDEX")
	}
	_ = nameIndex
	topIndex, err := parseIndex(r)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: Top DICT INDEX")
	}
	if topIndex.Len() < 1 {
		return nil, newError(ErrCorruptContainer, "CFF1: no Top DICT present")
	}
	stringIndex, err := parseIndex(r)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: String INDEX")
	}
	_ = stringIndex
	globalSubrs, err := parseIndex(r)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: Global Subr INDEX")
	}

	top, err := parseDict(topIndex.Get(0))
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: Top DICT")
	}

	csOffset := dictInt(top, dictCharStrings, -1)
	if csOffset < 0 || csOffset >= len(b) {
		return nil, newError(ErrMissingTable, "CFF1: CharStrings offset missing or out of range")
	}
	csReader := parse.NewBinaryReader(b[csOffset:])
	charStrings, err := parseIndex(csReader)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF1: CharStrings INDEX")
	}

	font := &cffFont{charStrings: charStrings, globalSubrs: globalSubrs}

	// Private DICT + local subrs (non-CID case).
	if priv, ok := top[dictPrivate]; ok && len(priv) == 2 {
		size, offset := int(priv[0]), int(priv[1])
		if offset >= 0 && offset+size <= len(b) {
			privDict, err := parseDict(b[offset : offset+size])
			if err == nil {
				font.defaultWidthX = dictInt(privDict, 20, 0)
				font.nominalWidthX = dictInt(privDict, 21, 0)
				if subrsOff, ok := privDict[dictSubrs]; ok && len(subrsOff) == 1 {
					abs := offset + int(subrsOff[0])
					if abs >= 0 && abs < len(b) {
						subrR := parse.NewBinaryReader(b[abs:])
						if subrs, err := parseIndex(subrR); err == nil {
							font.localSubrs = subrs
						}
					}
				}
			}
		}
	}

	// CID-keyed font: ROS present means FDArray/FDSelect replace Private.
	if _, ok := top[dictROS]; ok {
		font.isCID = true
		if err := parseFDArrayFDSelect(b, top, charStrings.Len(), font); err != nil {
			return nil, err
		}
	}

	return font, nil
}

func parseFDArrayFDSelect(b []byte, top cffDict, numGlyphs int, font *cffFont) error {
	fdArrayOff := dictInt(top, dictFDArray, -1)
	if fdArrayOff < 0 || fdArrayOff >= len(b) {
		return newError(ErrMissingTable, "CFF1: CID font missing FDArray")
	}
	r := parse.NewBinaryReader(b[fdArrayOff:])
	fdArray, err := parseIndex(r)
	if err != nil {
		return wrapError(ErrCorruptContainer, err, "CFF1: FDArray INDEX")
	}
	font.fdLocalSubrs = make([]*cffIndex, fdArray.Len())
	font.fdDefaultWidthX = make([]int, fdArray.Len())
	font.fdNominalWidthX = make([]int, fdArray.Len())
	for i := 0; i < fdArray.Len(); i++ {
		fdDict, err := parseDict(fdArray.Get(i))
		if err != nil {
			continue
		}
		priv, ok := fdDict[dictPrivate]
		if !ok || len(priv) != 2 {
			continue
		}
		size, offset := int(priv[0]), int(priv[1])
		if offset < 0 || offset+size > len(b) {
			continue
		}
		privDict, err := parseDict(b[offset : offset+size])
		if err != nil {
			continue
		}
		font.fdDefaultWidthX[i] = dictInt(privDict, 20, 0)
		font.fdNominalWidthX[i] = dictInt(privDict, 21, 0)
		if subrsOff, ok := privDict[dictSubrs]; ok && len(subrsOff) == 1 {
			abs := offset + int(subrsOff[0])
			if abs >= 0 && abs < len(b) {
				subrR := parse.NewBinaryReader(b[abs:])
				if subrs, err := parseIndex(subrR); err == nil {
					font.fdLocalSubrs[i] = subrs
				}
			}
		}
	}

	fdSelectOff := dictInt(top, dictFDSelect, -1)
	if fdSelectOff < 0 || fdSelectOff >= len(b) {
		return newError(ErrMissingTable, "CFF1: CID font missing FDSelect")
	}
	fdSelect, err := parseFDSelect(b[fdSelectOff:], numGlyphs)
	if err != nil {
		return err
	}
	font.fdSelect = fdSelect
	return nil
}

func parseFDSelect(b []byte, numGlyphs int) ([]uint8, error) {
	if len(b) < 1 {
		return nil, newError(ErrInputTooSmall, "FDSelect truncated")
	}
	format := b[0]
	out := make([]uint8, numGlyphs)
	switch format {
	case 0:
		if len(b) < 1+numGlyphs {
			return nil, newError(ErrInputTooSmall, "FDSelect format 0 truncated")
		}
		copy(out, b[1:1+numGlyphs])
	case 3:
		if len(b) < 3 {
			return nil, newError(ErrInputTooSmall, "FDSelect format 3 truncated")
		}
		nRanges := int(b[1])<<8 | int(b[2])
		pos := 3
		var firsts []int
		var fds []uint8
		for i := 0; i < nRanges; i++ {
			if pos+3 > len(b) {
				return nil, newError(ErrInputTooSmall, "FDSelect range truncated")
			}
			first := int(b[pos])<<8 | int(b[pos+1])
			fd := b[pos+2]
			firsts = append(firsts, first)
			fds = append(fds, fd)
			pos += 3
		}
		if pos+2 > len(b) {
			return nil, newError(ErrInputTooSmall, "FDSelect sentinel truncated")
		}
		sentinel := int(b[pos])<<8 | int(b[pos+1])
		firsts = append(firsts, sentinel)
		for i := 0; i < nRanges; i++ {
			for g := firsts[i]; g < firsts[i+1] && g < numGlyphs; g++ {
				out[g] = fds[i]
			}
		}
	default:
		return nil, newError(ErrCorruptContainer, "FDSelect: unsupported format %d", format)
	}
	return out, nil
}

func parseCFF2(b []byte) (*cffFont, error) {
	hdrSize := int(b[2])
	if len(b) < hdrSize+4 {
		return nil, newError(ErrInputTooSmall, "CFF2 header truncated")
	}
	r := parse.NewBinaryReader(b[hdrSize:])
	topDictLength := r.ReadUint16()
	if r.Len() < uint32(topDictLength) {
		return nil, newError(ErrInputTooSmall, "CFF2 Top DICT truncated")
	}
	topBytes := r.ReadBytes(uint32(topDictLength))
	top, err := parseDict(topBytes)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF2: Top DICT")
	}

	globalSubrs, err := parseIndex2(r)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF2: Global Subr INDEX")
	}

	csOffset := dictInt(top, dictCharStrings, -1)
	if csOffset < 0 || csOffset >= len(b) {
		return nil, newError(ErrMissingTable, "CFF2: CharStrings offset missing or out of range")
	}
	csReader := parse.NewBinaryReader(b[csOffset:])
	charStrings, err := parseIndex2(csReader)
	if err != nil {
		return nil, wrapError(ErrCorruptContainer, err, "CFF2: CharStrings INDEX")
	}

	font := &cffFont{isCFF2: true, charStrings: charStrings, globalSubrs: globalSubrs}

	if err := parseFDArrayFDSelect2(b, top, charStrings.Len(), font); err != nil {
		// CFF2 fonts with a single implicit FD still need local subrs;
		// absence of FDArray entirely is tolerated (non-CID-style CFF2).
		font.fdSelect = nil
	}

	return font, nil
}

// parseFDArrayFDSelect2 mirrors parseFDArrayFDSelect for CFF2, where
// FDSelect is optional (a single-FD font omits it and every glyph uses
// FD 0).
func parseFDArrayFDSelect2(b []byte, top cffDict, numGlyphs int, font *cffFont) error {
	fdArrayOff := dictInt(top, dictFDArray, -1)
	if fdArrayOff < 0 || fdArrayOff >= len(b) {
		return newError(ErrMissingTable, "CFF2: missing FDArray")
	}
	r := parse.NewBinaryReader(b[fdArrayOff:])
	fdArray, err := parseIndex2(r)
	if err != nil {
		return wrapError(ErrCorruptContainer, err, "CFF2: FDArray INDEX")
	}
	font.fdLocalSubrs = make([]*cffIndex, fdArray.Len())
	font.fdDefaultWidthX = make([]int, fdArray.Len())
	font.fdNominalWidthX = make([]int, fdArray.Len())
	for i := 0; i < fdArray.Len(); i++ {
		fdDict, err := parseDict(fdArray.Get(i))
		if err != nil {
			continue
		}
		priv, ok := fdDict[dictPrivate]
		if !ok || len(priv) != 2 {
			continue
		}
		size, offset := int(priv[0]), int(priv[1])
		if offset < 0 || offset+size > len(b) {
			continue
		}
		privDict, err := parseDict(b[offset : offset+size])
		if err != nil {
			continue
		}
		if subrsOff, ok := privDict[dictSubrs]; ok && len(subrsOff) == 1 {
			abs := offset + int(subrsOff[0])
			if abs >= 0 && abs < len(b) {
				subrR := parse.NewBinaryReader(b[abs:])
				if subrs, err := parseIndex2(subrR); err == nil {
					font.fdLocalSubrs[i] = subrs
				}
			}
		}
	}
	fdSelectOff := dictInt(top, dictFDSelect, -1)
	if fdSelectOff < 0 || fdSelectOff >= len(b) {
		font.fdSelect = make([]uint8, numGlyphs) // implicit FD 0 for all glyphs
		return nil
	}
	fdSelect, err := parseFDSelect(b[fdSelectOff:], numGlyphs)
	if err != nil {
		return err
	}
	font.fdSelect = fdSelect
	return nil
}

// localSubrsFor returns the local-subroutine INDEX and width defaults
// applicable to gid, routing through FDSelect for CID-keyed and CFF2 fonts.
func (f *cffFont) localSubrsFor(gid int) (*cffIndex, int, int) {
	if f.fdSelect != nil && gid < len(f.fdSelect) {
		fd := int(f.fdSelect[gid])
		if fd < len(f.fdLocalSubrs) {
			dw, nw := 0, 0
			if fd < len(f.fdDefaultWidthX) {
				dw, nw = f.fdDefaultWidthX[fd], f.fdNominalWidthX[fd]
			}
			return f.fdLocalSubrs[fd], dw, nw
		}
	}
	return f.localSubrs, f.defaultWidthX, f.nominalWidthX
}
