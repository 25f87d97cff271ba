package typeface

import (
	"math"

	"github.com/tdewolff/parse/v2"
)

const (
	tagWOFF = 0x774F4646
	tagWOFF2 = 0x774F4632
)

// unwrapContainer dispatches on the first 4 bytes of b: WOFF is
// reconstructed into a fresh SFNT buffer, WOFF2 is rejected outright
// (Brotli decoding is out of scope), and anything else is assumed to
// already be SFNT and is returned unchanged.
func unwrapContainer(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, newError(ErrInputTooSmall, "buffer shorter than 4 bytes")
	}
	tag := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	switch tag {
	case tagWOFF:
		return unwrapWOFF(b)
	case tagWOFF2:
		return nil, newError(ErrUnsupportedFormat, "WOFF2 requires Brotli")
	default:
		return b, nil
	}
}

type woffTableEntry struct {
	tag                       string
	offset, compLength        uint32
	origLength                uint32
	origChecksum              uint32
}

// unwrapWOFF reconstructs an SFNT buffer from a WOFF container,
// recomputing searchRange/entrySelector/rangeShift and inflating any
// zlib-wrapped table payload (compLength < origLength). See spec.md §4.1.
func unwrapWOFF(b []byte) ([]byte, error) {
	if len(b) < 44 {
		return nil, newError(ErrInputTooSmall, "WOFF header truncated")
	}
	r := parse.NewBinaryReader(b)
	_ = r.ReadString(4) // signature, already checked by caller
	flavor := r.ReadUint32()
	_ = r.ReadUint32() // length
	numTables := r.ReadUint16()
	_ = r.ReadUint16() // reserved
	totalSfntSize := r.ReadUint32()
	_ = r.ReadUint16() // majorVersion
	_ = r.ReadUint16() // minorVersion
	_ = r.ReadUint32() // metaOffset
	_ = r.ReadUint32() // metaLength
	_ = r.ReadUint32() // metaOrigLength
	_ = r.ReadUint32() // privOffset
	_ = r.ReadUint32() // privLength

	if numTables == 0 {
		return nil, newError(ErrCorruptContainer, "WOFF: zero tables")
	}
	if r.Len() < 20*uint32(numTables) {
		return nil, newError(ErrInputTooSmall, "WOFF directory truncated")
	}

	entries := make([]woffTableEntry, numTables)
	for i := range entries {
		entries[i].tag = r.ReadString(4)
		entries[i].offset = r.ReadUint32()
		entries[i].compLength = r.ReadUint32()
		entries[i].origLength = r.ReadUint32()
		entries[i].origChecksum = r.ReadUint32()
		if math.MaxUint32-entries[i].offset < entries[i].compLength {
			return nil, newError(ErrCorruptContainer, "WOFF: table %s overflows", entries[i].tag)
		}
		if uint32(len(b)) < entries[i].offset+entries[i].compLength {
			return nil, newError(ErrCorruptContainer, "WOFF: table %s extends past buffer", entries[i].tag)
		}
		if totalSfntSize < entries[i].origLength {
			return nil, newError(ErrCorruptContainer, "WOFF: table %s origLength exceeds totalSfntSize", entries[i].tag)
		}
	}

	// Decompress/copy each table payload first so we know final sizes.
	payloads := make([][]byte, numTables)
	for i, e := range entries {
		raw := b[e.offset : e.offset+e.compLength]
		if e.compLength < e.origLength {
			if len(raw) < 2 {
				return nil, newError(ErrCorruptContainer, "WOFF: table %s compressed payload too small", e.tag)
			}
			decompressed, err := inflate(raw[2:], e.origLength)
			if err != nil {
				return nil, wrapError(ErrCorruptContainer, err, "WOFF: table %s inflate failed", e.tag)
			}
			payloads[i] = decompressed
		} else {
			if uint32(len(raw)) < e.origLength {
				return nil, newError(ErrCorruptContainer, "WOFF: table %s stored payload too small", e.tag)
			}
			payloads[i] = raw[:e.origLength]
		}
	}

	// SFNT header: sfntVersion, numTables, searchRange, entrySelector, rangeShift.
	entrySelector := 0
	for (1 << uint(entrySelector+1)) <= int(numTables) {
		entrySelector++
	}
	searchRange := uint16(1<<uint(entrySelector)) * 16
	rangeShift := numTables*16 - searchRange

	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint32(flavor)
	w.WriteUint16(numTables)
	w.WriteUint16(searchRange)
	w.WriteUint16(uint16(entrySelector))
	w.WriteUint16(rangeShift)
	w.WriteBytes(make([]byte, 16*int(numTables))) // placeholder directory

	offsets := make([]uint32, numTables)
	lengths := make([]uint32, numTables)
	for i, payload := range payloads {
		// 4-byte align the running data offset.
		for w.Len()%4 != 0 {
			w.WriteByte(0)
		}
		offsets[i] = w.Len()
		w.WriteBytes(payload)
		lengths[i] = uint32(len(payload))
	}

	out := w.Bytes()
	for i, e := range entries {
		pos := 12 + i*16
		copy(out[pos:pos+4], []byte(e.tag))
		// checksum omitted (head-table checksum adjustment not
		// recomputed here); consumers of this buffer only read
		// tables, they never validate checksums (see directory.go).
		bePutUint32(out[pos+8:], offsets[i])
		bePutUint32(out[pos+12:], lengths[i])
	}
	return out, nil
}

func bePutUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
