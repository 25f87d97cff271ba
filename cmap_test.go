package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestCmapFormat0(t *testing.T) {
	b := make([]byte, 6+256)
	b[6+'A'] = 10
	tbl, err := parseCmapFormat0(b)
	test.Error(t, err)

	gid, ok := tbl.lookup('A')
	test.That(t, ok)
	test.T(t, gid, uint16(10))

	_, ok = tbl.lookup(0)
	test.That(t, !ok)
}

func TestCmapPreferenceRank(t *testing.T) {
	test.That(t, cmapPreferenceRank(3, 10) < cmapPreferenceRank(0, 4))
	test.That(t, cmapPreferenceRank(0, 4) < cmapPreferenceRank(3, 1))
	test.T(t, cmapPreferenceRank(99, 99), len(cmapPreference))
}

func TestCmapFormat6(t *testing.T) {
	// header(10 bytes) + 3 glyph IDs starting at code 65 ('A').
	b := []byte{
		0, 6, // format
		0, 0, // length (unused by parser)
		0, 0, // language
		0, 65, // firstCode
		0, 3, // entryCount
		0, 10, 0, 11, 0, 12, // glyphIdArray
	}
	tbl, err := parseCmapFormat6(b)
	test.Error(t, err)

	gid, ok := tbl.lookup('A')
	test.That(t, ok)
	test.T(t, gid, uint16(10))

	gid, ok = tbl.lookup('C')
	test.That(t, ok)
	test.T(t, gid, uint16(12))

	_, ok = tbl.lookup('Z')
	test.That(t, !ok)
}
