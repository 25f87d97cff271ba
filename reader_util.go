package typeface

import "github.com/tdewolff/parse/v2"

// requireLen returns an ErrInputTooSmall unless r has at least n bytes
// remaining. Centralizes the bounds-check idiom repeated before most
// fixed-width reads in this package.
func requireLen(r *parse.BinaryReader, n uint32, what string) error {
	if r.Len() < n {
		return newError(ErrInputTooSmall, "%s truncated", what)
	}
	return nil
}
