package typeface

import (
	"testing"

	"github.com/tdewolff/test"
)

func TestUnwrapContainerPassthroughSFNT(t *testing.T) {
	b := []byte("OTTO" + "\x00\x00\x00\x00")
	out, err := unwrapContainer(b)
	test.Error(t, err)
	test.T(t, string(out), string(b))
}

func TestUnwrapContainerRejectsWOFF2(t *testing.T) {
	b := []byte("wOF2" + "\x00\x00\x00\x00")
	_, err := unwrapContainer(b)
	test.That(t, err != nil)
	pe, ok := err.(*ParseError)
	test.That(t, ok)
	test.T(t, pe.Kind(), ErrUnsupportedFormat)
}

func TestUnwrapContainerTooSmall(t *testing.T) {
	_, err := unwrapContainer([]byte{0, 1})
	test.That(t, err != nil)
}
