package typeface

import "github.com/tdewolff/parse/v2"

// sfntTableRecord is one entry of an SFNT table directory: a 4-byte
// tag plus the offset/length of its payload within the font buffer.
type sfntTableRecord struct {
	tag            string
	offset, length uint32
}

// sfntDirectory is the parsed table directory of a single SFNT font:
// sfntVersion plus a tag -> record map. TrueType Collections resolve
// to one of these per requested font index.
type sfntDirectory struct {
	version uint32
	tables  map[string]sfntTableRecord
	data    []byte
}

const (
	sfntVersionTrueType = 0x00010000
	sfntVersionOTTO     = 0x4F54544F // "OTTO", CFF-flavored
	sfntVersionTrueChar = 0x74727565 // "true"
	tagTTC              = 0x74746366 // "ttcf"
)

// parseDirectory reads the SFNT table directory out of b, resolving a
// TrueType Collection to the font at fontIndex if b is a ttcf. b must
// already be container-unwrapped (see unwrapContainer).
func parseDirectory(b []byte, fontIndex int) (*sfntDirectory, error) {
	if len(b) < 12 {
		return nil, newError(ErrInputTooSmall, "SFNT header truncated")
	}
	r := parse.NewBinaryReader(b)
	tag := r.ReadUint32()

	sfntOffset := uint32(0)
	if tag == tagTTC {
		if len(b) < 16 {
			return nil, newError(ErrInputTooSmall, "TTC header truncated")
		}
		_ = r.ReadUint32() // ttcVersion
		numFonts := r.ReadUint32()
		if fontIndex < 0 || uint32(fontIndex) >= numFonts {
			return nil, newError(ErrCorruptContainer, "TTC font index %d out of range (%d fonts)", fontIndex, numFonts)
		}
		if r.Len() < 4*(numFonts) {
			return nil, newError(ErrInputTooSmall, "TTC offset table truncated")
		}
		for i := uint32(0); i <= uint32(fontIndex); i++ {
			sfntOffset = r.ReadUint32()
		}
		if uint32(len(b)) < sfntOffset+12 {
			return nil, newError(ErrCorruptContainer, "TTC entry %d offset out of range", fontIndex)
		}
		r = parse.NewBinaryReader(b[sfntOffset:])
		tag = r.ReadUint32()
	} else if fontIndex > 0 {
		return nil, newError(ErrCorruptContainer, "font index %d requested on a non-collection font", fontIndex)
	}

	switch tag {
	case sfntVersionTrueType, sfntVersionOTTO, sfntVersionTrueChar:
	default:
		return nil, newError(ErrUnsupportedFormat, "unrecognized sfnt version 0x%08X", tag)
	}

	numTables := r.ReadUint16()
	_ = r.ReadUint16() // searchRange
	_ = r.ReadUint16() // entrySelector
	_ = r.ReadUint16() // rangeShift

	if r.Len() < 16*uint32(numTables) {
		return nil, newError(ErrInputTooSmall, "table directory truncated")
	}

	// Table offsets in the directory we just read are always absolute
	// from the start of the whole file, even inside a TTC where the
	// table directory itself lives at sfntOffset — so dir.data must be
	// the full, unsliced buffer, not b[sfntOffset:].
	dir := &sfntDirectory{
		version: tag,
		tables:  make(map[string]sfntTableRecord, numTables),
		data:    b,
	}
	for i := uint16(0); i < numTables; i++ {
		recTag := r.ReadString(4)
		_ = r.ReadUint32() // checksum, not verified (read-only consumer)
		offset := r.ReadUint32()
		length := r.ReadUint32()
		if uint32(len(dir.data)) < offset+length {
			return nil, newError(ErrCorruptContainer, "table %q extends past buffer", recTag)
		}
		dir.tables[recTag] = sfntTableRecord{tag: recTag, offset: offset, length: length}
	}
	return dir, nil
}

// table returns the raw payload bytes of tag, or nil if absent.
func (d *sfntDirectory) table(tag string) []byte {
	rec, ok := d.tables[tag]
	if !ok {
		return nil
	}
	return d.data[rec.offset : rec.offset+rec.length]
}

func (d *sfntDirectory) has(tag string) bool {
	_, ok := d.tables[tag]
	return ok
}

func (d *sfntDirectory) isCFF() bool {
	return d.version == sfntVersionOTTO
}

// requireTables returns a fatal ErrMissingTable if any of tags is absent.
func (d *sfntDirectory) requireTables(tags ...string) error {
	for _, t := range tags {
		if !d.has(t) {
			return newError(ErrMissingTable, "required table %q absent", t)
		}
	}
	return nil
}
