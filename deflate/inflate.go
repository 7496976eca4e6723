// Package deflate implements an RFC1951 ("DEFLATE") inflater: stored,
// fixed-Huffman and dynamic-Huffman blocks, decoded one block at a time so
// a caller (notably the CAB MSZIP reader) can carry the lookback window
// and decoder state across block boundaries that don't align with the
// underlying container's own framing.
package deflate

import (
	"errors"
	"io"

	"github.com/laenix/binms/bitio"
	"github.com/laenix/binms/huffman"
	"github.com/laenix/binms/ring"
)

// MaxLookbackDistance is DEFLATE's window size: 32 KiB.
const MaxLookbackDistance = 32 * 1024

// Errors correspond to spec.md §7's "decoding" taxonomy for this package.
var (
	ErrBuildingDefinitionTree = errors.New("deflate: error building code-length tree")
	ErrDecodingDefinitionValue = errors.New("deflate: error decoding code-length symbol")
	ErrNoPreviousCodeLength   = errors.New("deflate: repeat-previous-length symbol with no previous length")
	ErrBuildingValueTree      = errors.New("deflate: error building literal/length tree")
	ErrBuildingDistanceTree   = errors.New("deflate: error building distance tree")
	ErrReadingValue           = errors.New("deflate: error reading literal/length symbol")
	ErrReadingDistance        = errors.New("deflate: error reading distance symbol")
	ErrInvalidDefinitionValue = errors.New("deflate: invalid code-length symbol")
	ErrInvalidValue           = errors.New("deflate: invalid literal/length symbol")
	ErrReservedBlockType      = errors.New("deflate: reserved (invalid) block type")
)

type baseAndExtra struct {
	base  int
	extra int
}

// lengthValues maps literal/length symbols 257..285 (index 0..28) to their
// base match length and extra-bit count, per RFC1951 §3.2.5.
var lengthValues = [29]baseAndExtra{
	{3, 0}, {4, 0}, {5, 0}, {6, 0}, {7, 0}, {8, 0}, {9, 0}, {10, 0},
	{11, 1}, {13, 1}, {15, 1}, {17, 1},
	{19, 2}, {23, 2}, {27, 2}, {31, 2},
	{35, 3}, {43, 3}, {51, 3}, {59, 3},
	{67, 4}, {83, 4}, {99, 4}, {115, 4},
	{131, 5}, {163, 5}, {195, 5}, {227, 5},
	{258, 0},
}

// distanceValues maps distance symbols 0..29 to their base distance and
// extra-bit count, per RFC1951 §3.2.5.
var distanceValues = [30]baseAndExtra{
	{1, 0}, {2, 0}, {3, 0}, {4, 0},
	{5, 1}, {7, 1},
	{9, 2}, {13, 2},
	{17, 3}, {25, 3},
	{33, 4}, {49, 4},
	{65, 5}, {97, 5},
	{129, 6}, {193, 6},
	{257, 7}, {385, 7},
	{513, 8}, {769, 8},
	{1025, 9}, {1537, 9},
	{2049, 10}, {3073, 10},
	{4097, 11}, {6145, 11},
	{8193, 12}, {12289, 12},
	{16385, 13}, {24577, 13},
}

// definitionCodeLengthOrder is the fixed order in which the 3-bit code-length
// code lengths appear in a dynamic block header.
var definitionCodeLengthOrder = [19]int{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15,
}

func (b baseAndExtra) obtainCount(br *bitio.BitReader) (int, error) {
	extra := 0
	for i := 0; i < b.extra; i++ {
		bit, err := br.ReadBitStrict()
		if err != nil {
			return 0, err
		}
		if bit {
			extra |= 1 << uint(i)
		}
	}
	return b.base + extra, nil
}

var (
	predefinedValueTree    *huffman.Tree[int]
	predefinedDistanceTree *huffman.Tree[int]
)

func init() {
	lengths := make([]int, 288)
	for v := 0; v < 288; v++ {
		switch {
		case v <= 143:
			lengths[v] = 8
		case v <= 255:
			lengths[v] = 9
		case v <= 279:
			lengths[v] = 7
		default:
			lengths[v] = 8
		}
	}
	var err error
	predefinedValueTree, err = huffman.NewCanonical(lengths)
	if err != nil {
		panic("deflate: failed to construct predefined literal/length tree: " + err.Error())
	}

	distLengths := make([]int, 32)
	for i := range distLengths {
		distLengths[i] = 5
	}
	predefinedDistanceTree, err = huffman.NewCanonical(distLengths)
	if err != nil {
		panic("deflate: failed to construct predefined distance tree: " + err.Error())
	}
}

// Inflater decodes one DEFLATE block at a time, preserving its lookback
// window across calls so a caller can feed it successive blocks from a
// framed container (CAB's per-folder MSZIP blocks, in particular).
type Inflater struct {
	reader   *bitio.BitReader
	lookback *ring.Window
}

// New wraps r, allocating a fresh 32 KiB lookback window initialized to
// zero.
func New(r io.Reader) *Inflater {
	return &Inflater{
		reader:   bitio.NewBitReader(r, false),
		lookback: ring.New(MaxLookbackDistance, 0x00),
	}
}

// Lookback returns the inflater's current window, e.g. to hand it to the
// next block's Inflater instance.
func (inf *Inflater) Lookback() *ring.Window {
	return inf.lookback
}

// SetLookback replaces the inflater's window, used to carry lookback state
// across CAB data blocks within the same folder.
func (inf *Inflater) SetLookback(w *ring.Window) {
	inf.lookback = w
}

// InflateBlock decodes a single DEFLATE block, appending output bytes to
// dest, and reports whether it was the final block (BFINAL).
func (inf *Inflater) InflateBlock(dest *[]byte) (final bool, err error) {
	isFinal, err := inf.reader.ReadBitStrict()
	if err != nil {
		return false, err
	}

	blockType, err := inf.reader.ReadU2()
	if err != nil {
		return false, err
	}

	switch blockType {
	case 0:
		if err := inf.inflateStored(dest); err != nil {
			return false, err
		}
	case 1:
		if err := inf.inflateHuffman(dest, predefinedValueTree, predefinedDistanceTree); err != nil {
			return false, err
		}
	case 2:
		valueTree, distanceTree, err := inf.readDynamicTrees()
		if err != nil {
			return false, err
		}
		if err := inf.inflateHuffman(dest, valueTree, distanceTree); err != nil {
			return false, err
		}
	case 3:
		return false, ErrReservedBlockType
	}

	return isFinal, nil
}

func (inf *Inflater) inflateStored(dest *[]byte) error {
	inf.reader.DropRestOfByte()

	length, err := inf.reader.ReadU16LE()
	if err != nil {
		return err
	}
	// the complement word (~LEN) follows but is not validated, matching
	// the reference decoder.
	if _, err := inf.reader.ReadU16LE(); err != nil {
		return err
	}

	buf := make([]byte, length)
	if err := inf.reader.ReadExact(buf); err != nil {
		return err
	}
	*dest = append(*dest, buf...)
	inf.lookback.Extend(buf)
	return nil
}

func (inf *Inflater) readDynamicTrees() (*huffman.Tree[int], *huffman.Tree[int], error) {
	rawValueCodeCount, err := inf.reader.ReadU5()
	if err != nil {
		return nil, nil, err
	}
	rawDistanceCodeCount, err := inf.reader.ReadU5()
	if err != nil {
		return nil, nil, err
	}
	rawLengthCodeCount, err := inf.reader.ReadU4()
	if err != nil {
		return nil, nil, err
	}
	valueCodeCount := int(rawValueCodeCount) + 257
	distanceCodeCount := int(rawDistanceCodeCount) + 1
	lengthCodeCount := int(rawLengthCodeCount) + 4

	var defLengths [19]int
	for i := 0; i < lengthCodeCount; i++ {
		cl, err := inf.reader.ReadU3()
		if err != nil {
			return nil, nil, err
		}
		defLengths[definitionCodeLengthOrder[i]] = int(cl)
	}

	definitionTree, err := huffman.NewCanonical(defLengths[:])
	if err != nil {
		return nil, nil, ErrBuildingDefinitionTree
	}

	totalCodes := valueCodeCount + distanceCodeCount
	codeLengths := make([]int, 0, totalCodes)
	previousCodeLength := -1

	for len(codeLengths) < totalCodes {
		sym, ok, err := definitionTree.Decode(inf.reader)
		if err != nil {
			return nil, nil, ErrDecodingDefinitionValue
		}
		if !ok {
			return nil, nil, io.ErrUnexpectedEOF
		}

		switch {
		case sym <= 15:
			codeLengths = append(codeLengths, sym)
			previousCodeLength = sym
		case sym == 16:
			if previousCodeLength < 0 {
				return nil, nil, ErrNoPreviousCodeLength
			}
			count, err := inf.reader.ReadU2()
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < int(count)+3; i++ {
				codeLengths = append(codeLengths, previousCodeLength)
			}
		case sym == 17:
			count, err := inf.reader.ReadU3()
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < int(count)+3; i++ {
				codeLengths = append(codeLengths, 0)
			}
		case sym == 18:
			count, err := inf.reader.ReadU7()
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < int(count)+11; i++ {
				codeLengths = append(codeLengths, 0)
			}
		default:
			return nil, nil, ErrInvalidDefinitionValue
		}
	}

	valueLengths := codeLengths[:valueCodeCount]
	distanceLengths := codeLengths[valueCodeCount:]

	valueTree, err := huffman.NewCanonical(valueLengths)
	if err != nil {
		return nil, nil, ErrBuildingValueTree
	}
	distanceTree, err := huffman.NewCanonical(distanceLengths)
	if err != nil {
		return nil, nil, ErrBuildingDistanceTree
	}
	return valueTree, distanceTree, nil
}

func (inf *Inflater) inflateHuffman(dest *[]byte, valueTree, distanceTree *huffman.Tree[int]) error {
	for {
		sym, ok, err := valueTree.Decode(inf.reader)
		if err != nil {
			return ErrReadingValue
		}
		if !ok {
			return io.ErrUnexpectedEOF
		}

		switch {
		case sym <= 255:
			b := byte(sym)
			inf.lookback.Push(b)
			*dest = append(*dest, b)
		case sym == 256:
			return nil
		case sym <= 285:
			lv := lengthValues[sym-257]
			length, err := lv.obtainCount(inf.reader)
			if err != nil {
				return err
			}

			distSym, ok, err := distanceTree.Decode(inf.reader)
			if err != nil {
				return ErrReadingDistance
			}
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if distSym < 0 || distSym >= len(distanceValues) {
				return ErrInvalidValue
			}
			dv := distanceValues[distSym]
			distance, err := dv.obtainCount(inf.reader)
			if err != nil {
				return err
			}

			buf := inf.lookback.Recall(distance, length)
			*dest = append(*dest, buf...)
		default:
			return ErrInvalidValue
		}
	}
}

