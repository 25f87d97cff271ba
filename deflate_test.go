package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestInflateStoredBlock(t *testing.T) {
	// final=1, btype=00 (stored) packed into the low 3 bits of byte 0,
	// then byte-aligned: LEN=2, NLEN=^LEN, payload "HI".
	data := []byte{0x01, 0x02, 0x00, 0xFD, 0xFF, 'H', 'I'}
	out, err := inflate(data, 2)
	test.Error(t, err)
	test.T(t, string(out), "HI")
}

func TestInflateTruncated(t *testing.T) {
	_, err := inflate([]byte{0x01}, 10)
	test.That(t, err != nil)
}
