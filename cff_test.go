package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestParseDictSingleByteOperand(t *testing.T) {
	// byte 139 encodes operand 0 (139-139), operator 15 is `charset`.
	d, err := parseDict([]byte{139, 15})
	test.Error(t, err)
	test.T(t, len(d[dictCharset]), 1)
	test.T(t, d[dictCharset][0], float64(0))
}

func TestParseDictEscapeOperator(t *testing.T) {
	// operand 100 (byte 239), then escape operator 12 7 (FontMatrix).
	d, err := parseDict([]byte{239, 12, 7})
	test.Error(t, err)
	test.T(t, d[dictFontMatrix][0], float64(100))
}

func TestParseIndexEmpty(t *testing.T) {
	idx := &cffIndex{offsets: []uint32{0}}
	test.T(t, idx.Len(), 0)
	test.T(t, idx.Get(0) == nil, true)
}
