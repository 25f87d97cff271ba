package typeface

// RFC 1951 raw DEFLATE, hand-written: stored blocks, fixed Huffman,
// and dynamic Huffman with the canonical code-length permutation. This
// backs the WOFF table payload decompression in container.go; WOFF2's
// Brotli stream is out of scope (see container.go).

// codeLengthOrder is the order in which code-length code lengths
// appear in a dynamic Huffman block header.
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// lengthBase and lengthExtra give, for length codes 257..285 (indexed
// from 0), the base match length and the number of extra bits to read.
var lengthBase = [29]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
var lengthExtra = [29]int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

// distBase and distExtra give, for distance codes 0..29, the base
// match distance and the number of extra bits to read.
var distBase = [30]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
var distExtra = [30]int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}

// bitReader reads DEFLATE's LSB-first bit stream.
type bitReader struct {
	data []byte
	pos  int // byte position
	bit  uint
	acc  uint32
	nacc uint
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) fill(n uint) bool {
	for r.nacc < n {
		if r.pos >= len(r.data) {
			return false
		}
		r.acc |= uint32(r.data[r.pos]) << r.nacc
		r.pos++
		r.nacc += 8
	}
	return true
}

func (r *bitReader) readBits(n uint) (uint32, bool) {
	if n == 0 {
		return 0, true
	}
	if !r.fill(n) {
		return 0, false
	}
	v := r.acc & ((1 << n) - 1)
	r.acc >>= n
	r.nacc -= n
	return v, true
}

func (r *bitReader) alignByte() {
	r.acc = 0
	r.nacc = 0
}

// huffmanTable decodes canonical Huffman codes bit-by-bit (simplest
// correct approach; these code books are tiny).
type huffmanTable struct {
	// counts[n] = number of codes of length n, 1..maxBits
	counts []int
	// symbols in canonical order
	symbols []int
}

func newHuffmanTable(lengths []int) *huffmanTable {
	maxBits := 0
	for _, l := range lengths {
		if l > maxBits {
			maxBits = l
		}
	}
	counts := make([]int, maxBits+1)
	for _, l := range lengths {
		if l > 0 {
			counts[l]++
		}
	}
	offsets := make([]int, maxBits+2)
	for i := 1; i <= maxBits; i++ {
		offsets[i+1] = offsets[i] + counts[i]
	}
	symbols := make([]int, offsets[maxBits+1])
	for sym, l := range lengths {
		if l > 0 {
			symbols[offsets[l]] = sym
			offsets[l]++
		}
	}
	return &huffmanTable{counts: counts, symbols: symbols}
}

func (t *huffmanTable) decode(r *bitReader) (int, bool) {
	var code, first, index int
	for length := 1; length < len(t.counts); length++ {
		bit, ok := r.readBits(1)
		if !ok {
			return 0, false
		}
		code |= int(bit)
		count := t.counts[length]
		if code-first < count {
			return t.symbols[index+(code-first)], true
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, false
}

// inflate decodes a single RFC 1951 raw-DEFLATE stream, producing
// exactly outSize bytes of output (as known from the WOFF table
// directory's origLength). It returns an error if the stream is
// malformed or shorter than outSize.
func inflate(data []byte, outSize uint32) ([]byte, error) {
	out := make([]byte, 0, outSize)
	r := newBitReader(data)
	for {
		final, ok := r.readBits(1)
		if !ok {
			return nil, newError(ErrCorruptContainer, "deflate: truncated block header")
		}
		btype, ok := r.readBits(2)
		if !ok {
			return nil, newError(ErrCorruptContainer, "deflate: truncated block header")
		}

		switch btype {
		case 0: // stored
			r.alignByte()
			if r.pos+4 > len(r.data) {
				return nil, newError(ErrCorruptContainer, "deflate: truncated stored block")
			}
			length := int(r.data[r.pos]) | int(r.data[r.pos+1])<<8
			nlength := int(r.data[r.pos+2]) | int(r.data[r.pos+3])<<8
			if length^nlength != 0xFFFF {
				return nil, newError(ErrCorruptContainer, "deflate: bad stored block length")
			}
			r.pos += 4
			if r.pos+length > len(r.data) {
				return nil, newError(ErrCorruptContainer, "deflate: truncated stored block data")
			}
			out = append(out, r.data[r.pos:r.pos+length]...)
			r.pos += length
		case 1: // fixed Huffman
			lit, dist := fixedHuffmanTables()
			var err error
			out, err = inflateBlock(r, lit, dist, out)
			if err != nil {
				return nil, err
			}
		case 2: // dynamic Huffman
			lit, dist, err := readDynamicTables(r)
			if err != nil {
				return nil, err
			}
			out, err = inflateBlock(r, lit, dist, out)
			if err != nil {
				return nil, err
			}
		default:
			return nil, newError(ErrCorruptContainer, "deflate: bad block type %d", btype)
		}

		if final != 0 {
			break
		}
		if uint32(len(out)) > outSize {
			break
		}
	}
	if uint32(len(out)) < outSize {
		return nil, newError(ErrCorruptContainer, "deflate: output shorter than expected (%d < %d)", len(out), outSize)
	}
	return out[:outSize], nil
}

func fixedHuffmanTables() (lit, dist *huffmanTable) {
	litLengths := make([]int, 288)
	for i := 0; i < 144; i++ {
		litLengths[i] = 8
	}
	for i := 144; i < 256; i++ {
		litLengths[i] = 9
	}
	for i := 256; i < 280; i++ {
		litLengths[i] = 7
	}
	for i := 280; i < 288; i++ {
		litLengths[i] = 8
	}
	distLengths := make([]int, 30)
	for i := range distLengths {
		distLengths[i] = 5
	}
	return newHuffmanTable(litLengths), newHuffmanTable(distLengths)
}

func readDynamicTables(r *bitReader) (lit, dist *huffmanTable, err error) {
	hlit, ok := r.readBits(5)
	if !ok {
		return nil, nil, newError(ErrCorruptContainer, "deflate: truncated dynamic header")
	}
	hdist, ok := r.readBits(5)
	if !ok {
		return nil, nil, newError(ErrCorruptContainer, "deflate: truncated dynamic header")
	}
	hclen, ok := r.readBits(4)
	if !ok {
		return nil, nil, newError(ErrCorruptContainer, "deflate: truncated dynamic header")
	}
	numLit := int(hlit) + 257
	numDist := int(hdist) + 1
	numCLen := int(hclen) + 4

	clLengths := make([]int, 19)
	for i := 0; i < numCLen; i++ {
		v, ok := r.readBits(3)
		if !ok {
			return nil, nil, newError(ErrCorruptContainer, "deflate: truncated code-length table")
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clTable := newHuffmanTable(clLengths)

	allLengths := make([]int, 0, numLit+numDist)
	for len(allLengths) < numLit+numDist {
		sym, ok := clTable.decode(r)
		if !ok {
			return nil, nil, newError(ErrCorruptContainer, "deflate: bad code-length code")
		}
		switch {
		case sym < 16:
			allLengths = append(allLengths, sym)
		case sym == 16:
			if len(allLengths) == 0 {
				return nil, nil, newError(ErrCorruptContainer, "deflate: repeat with no previous length")
			}
			rep, ok := r.readBits(2)
			if !ok {
				return nil, nil, newError(ErrCorruptContainer, "deflate: truncated repeat count")
			}
			prev := allLengths[len(allLengths)-1]
			for i := 0; i < int(rep)+3; i++ {
				allLengths = append(allLengths, prev)
			}
		case sym == 17:
			rep, ok := r.readBits(3)
			if !ok {
				return nil, nil, newError(ErrCorruptContainer, "deflate: truncated repeat count")
			}
			for i := 0; i < int(rep)+3; i++ {
				allLengths = append(allLengths, 0)
			}
		case sym == 18:
			rep, ok := r.readBits(7)
			if !ok {
				return nil, nil, newError(ErrCorruptContainer, "deflate: truncated repeat count")
			}
			for i := 0; i < int(rep)+11; i++ {
				allLengths = append(allLengths, 0)
			}
		}
	}
	if len(allLengths) != numLit+numDist {
		return nil, nil, newError(ErrCorruptContainer, "deflate: bad code-length sequence")
	}
	lit = newHuffmanTable(allLengths[:numLit])
	dist = newHuffmanTable(allLengths[numLit:])
	return lit, dist, nil
}

func inflateBlock(r *bitReader, lit, dist *huffmanTable, out []byte) ([]byte, error) {
	for {
		sym, ok := lit.decode(r)
		if !ok {
			return nil, newError(ErrCorruptContainer, "deflate: bad literal/length code")
		}
		if sym < 256 {
			out = append(out, byte(sym))
			continue
		}
		if sym == 256 {
			return out, nil
		}
		li := sym - 257
		if li < 0 || li >= len(lengthBase) {
			return nil, newError(ErrCorruptContainer, "deflate: bad length code %d", sym)
		}
		length := lengthBase[li]
		if lengthExtra[li] > 0 {
			extra, ok := r.readBits(uint(lengthExtra[li]))
			if !ok {
				return nil, newError(ErrCorruptContainer, "deflate: truncated length extra bits")
			}
			length += int(extra)
		}
		distSym, ok := dist.decode(r)
		if !ok {
			return nil, newError(ErrCorruptContainer, "deflate: bad distance code")
		}
		if distSym < 0 || distSym >= len(distBase) {
			return nil, newError(ErrCorruptContainer, "deflate: bad distance code %d", distSym)
		}
		distance := distBase[distSym]
		if distExtra[distSym] > 0 {
			extra, ok := r.readBits(uint(distExtra[distSym]))
			if !ok {
				return nil, newError(ErrCorruptContainer, "deflate: truncated distance extra bits")
			}
			distance += int(extra)
		}
		if distance > len(out) {
			return nil, newError(ErrCorruptContainer, "deflate: distance %d exceeds output so far", distance)
		}
		start := len(out) - distance
		for i := 0; i < length; i++ {
			out = append(out, out[start+i])
		}
	}
}
