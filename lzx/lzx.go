// Package lzx implements the Microsoft LZX decompressor: a 16-bit-aligned,
// MSB-first-within-word bitstream driving three block kinds (verbatim,
// aligned-offset, uncompressed) over a 2 MiB lookback window, with three
// recent-offset slots and cross-block Huffman state persisting for the
// lifetime of a single compressed stream.
package lzx

import (
	"errors"
	"fmt"
	"io"

	"github.com/laenix/binms/bitio"
	"github.com/laenix/binms/huffman"
	"github.com/laenix/binms/ring"
)

const (
	MinWindowSizeExponent = 15
	MaxWindowSizeExponent = 21

	maxLookbackDistance = 2 * 1024 * 1024

	lengthTreeEntries       = 249
	alignedOffsetTreeEntries = 8

	preTreeEntries = 20
)

// pre-tree symbols: 0..16 are LengthDelta(n), then three special codes.
const (
	preTreeZeroesShort = 17
	preTreeZeroesLong  = 18
	preTreeRepeat      = 19
)

var (
	ErrUnknownBlockType          = errors.New("lzx: unknown block type")
	ErrConstructingPreTree       = errors.New("lzx: error constructing pre-tree")
	ErrInvalidSecondPreTreeValue = errors.New("lzx: invalid second pre-tree value, expected a length delta")
	ErrConstructingMainTree      = errors.New("lzx: error constructing main tree")
	ErrConstructingLengthTree    = errors.New("lzx: error constructing length tree")
	ErrConstructingAlignedTree   = errors.New("lzx: error constructing aligned-offset tree")
)

// InvalidWindowSizeExponentError reports a window size exponent outside
// [MinWindowSizeExponent, MaxWindowSizeExponent].
type InvalidWindowSizeExponentError struct {
	Exponent int
}

func (e *InvalidWindowSizeExponentError) Error() string {
	return fmt.Sprintf("lzx: invalid window size exponent %d, expected %d..=%d", e.Exponent, MinWindowSizeExponent, MaxWindowSizeExponent)
}

func extraBits(positionSlotNumber uint32) uint32 {
	switch {
	case positionSlotNumber < 4:
		return 0
	case positionSlotNumber < 36:
		return positionSlotNumber/2 - 1
	default:
		return 17
	}
}

var positionSlotNumberToPositionBase [291]uint32

var windowSizeExponentToPositionSlots [26]int

func init() {
	for i := 1; i < len(positionSlotNumberToPositionBase); i++ {
		positionSlotNumberToPositionBase[i] = positionSlotNumberToPositionBase[i-1] + (1 << extraBits(uint32(i-1)))
	}

	for exp := range windowSizeExponentToPositionSlots {
		twoPower := uint32(1) << uint(exp)
		for slot, base := range positionSlotNumberToPositionBase {
			if twoPower <= base {
				windowSizeExponentToPositionSlots[exp] = slot
				break
			}
		}
	}
}

// recentLookback holds the three most-recently-used match offsets. Lookup
// reports the resolved offset and whether it was an absolute (non-recent)
// reference that still needs formatting and promotion by the caller.
type recentLookback struct {
	r0, r1, r2 uint32
}

func newRecentLookback() *recentLookback {
	return &recentLookback{r0: 1, r1: 1, r2: 1}
}

// offset-slot kinds 0, 1, 2 select a recent offset; kind 3 means "absolute",
// carrying a position slot number instead.
func (rl *recentLookback) lookup(offsetKind int, positionSlotNumber uint32) (value uint32, isAbsolute bool) {
	switch offsetKind {
	case 0:
		return rl.r0, false
	case 1:
		rl.r0, rl.r1 = rl.r1, rl.r0
		return rl.r0, false
	case 2:
		rl.r0, rl.r2 = rl.r2, rl.r0
		return rl.r0, false
	default:
		return positionSlotNumber, true
	}
}

func (rl *recentLookback) push(newOffset uint32) {
	rl.r2 = rl.r1
	rl.r1 = rl.r0
	rl.r0 = newOffset
}

// Decompressor decodes one LZX block at a time against a single compressed
// stream, as used within one CAB folder.
type Decompressor struct {
	reader             *bitio.BitReader16LE
	windowSizeExponent int
	numPositionSlots   int
	lookback           *ring.Window
	recent             *recentLookback
	hasJumpTranslation bool
	jumpTranslation    uint32

	lastMain256Lengths []int
	lastMainRestLengths []int
	lastLengthLengths  []int
}

// New reads the one-bit-plus-optional-32-bit stream prelude and returns a
// decompressor ready to decode blocks.
func New(r io.Reader, windowSizeExponent int) (*Decompressor, error) {
	if windowSizeExponent < MinWindowSizeExponent || windowSizeExponent > MaxWindowSizeExponent {
		return nil, &InvalidWindowSizeExponentError{Exponent: windowSizeExponent}
	}

	reader := bitio.NewBitReader16LE(r, true)

	hasJump, err := reader.ReadBitStrict()
	if err != nil {
		return nil, err
	}
	var jumpTranslation uint32
	if hasJump {
		top, err := reader.ReadU16()
		if err != nil {
			return nil, err
		}
		bottom, err := reader.ReadU16()
		if err != nil {
			return nil, err
		}
		jumpTranslation = (uint32(top) << 16) | uint32(bottom)
	}

	numPositionSlots := windowSizeExponentToPositionSlots[windowSizeExponent]
	mainRestEntries := 8 * numPositionSlots

	return &Decompressor{
		reader:             reader,
		windowSizeExponent: windowSizeExponent,
		numPositionSlots:   numPositionSlots,
		lookback:           ring.New(maxLookbackDistance, 0x00),
		recent:             newRecentLookback(),
		hasJumpTranslation: hasJump,
		jumpTranslation:    jumpTranslation,

		lastMain256Lengths:  make([]int, 256),
		lastMainRestLengths: make([]int, mainRestEntries),
		lastLengthLengths:   make([]int, lengthTreeEntries),
	}, nil
}

// Lookback returns the decompressor's window, for handing state to a
// sibling block reader in the same folder.
func (d *Decompressor) Lookback() *ring.Window { return d.lookback }

// SetLookback replaces the decompressor's window.
func (d *Decompressor) SetLookback(w *ring.Window) { d.lookback = w }

func (d *Decompressor) readPreTree() (*huffman.Tree[int], error) {
	lengths := make([]int, preTreeEntries)
	for i := range lengths {
		v, err := d.reader.ReadU4()
		if err != nil {
			return nil, err
		}
		lengths[i] = int(v)
	}
	tree, err := huffman.NewCanonical(lengths)
	if err != nil {
		return nil, ErrConstructingPreTree
	}
	return tree, nil
}

func (d *Decompressor) readLengthDeltaTree(preTree *huffman.Tree[int], prevLengths []int) ([]int, error) {
	ret := make([]int, len(prevLengths))
	i := 0
	for i < len(ret) {
		sym, ok, err := preTree.Decode(d.reader)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}

		switch {
		case sym <= 16:
			ret[i] = (prevLengths[i] + sym) % 17
			i++
		case sym == preTreeZeroesShort:
			count, err := d.reader.ReadU4()
			if err != nil {
				return nil, err
			}
			for n := 0; n < int(count)+4; n++ {
				ret[i] = 0
				i++
			}
		case sym == preTreeZeroesLong:
			count, err := d.reader.ReadU5()
			if err != nil {
				return nil, err
			}
			for n := 0; n < int(count)+20; n++ {
				ret[i] = 0
				i++
			}
		case sym == preTreeRepeat:
			bit, err := d.reader.ReadU1()
			if err != nil {
				return nil, err
			}
			repeatCount := 4 + int(bit)

			newCode, ok, err := preTree.Decode(d.reader)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, io.ErrUnexpectedEOF
			}
			if newCode > 16 {
				return nil, ErrInvalidSecondPreTreeValue
			}
			for n := 0; n < repeatCount; n++ {
				ret[i] = (prevLengths[i] + newCode) % 17
				i++
			}
		}
	}
	return ret, nil
}

// DecompressBlock decodes a single LZX block, appending its decoded bytes
// to dest.
func (d *Decompressor) DecompressBlock(dest *[]byte) error {
	blockType, err := d.reader.ReadU3()
	if err != nil {
		return err
	}

	b0, err := d.reader.ReadU8()
	if err != nil {
		return err
	}
	b1, err := d.reader.ReadU8()
	if err != nil {
		return err
	}
	b2, err := d.reader.ReadU8()
	if err != nil {
		return err
	}
	numUncompressedBytes := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)

	switch blockType {
	case 1, 2:
		return d.decompressHuffmanBlock(dest, blockType == 2, numUncompressedBytes)
	case 3:
		return d.decompressUncompressedBlock(dest, numUncompressedBytes)
	default:
		return fmt.Errorf("%w: %#x", ErrUnknownBlockType, blockType)
	}
}

func (d *Decompressor) decompressHuffmanBlock(dest *[]byte, aligned bool, numUncompressedBytes uint32) error {
	var alignedOffsetTree *huffman.Tree[int]
	if aligned {
		lengths := make([]int, alignedOffsetTreeEntries)
		for i := range lengths {
			v, err := d.reader.ReadU3()
			if err != nil {
				return err
			}
			lengths[i] = int(v)
		}
		tree, err := huffman.NewCanonical(lengths)
		if err != nil {
			return ErrConstructingAlignedTree
		}
		alignedOffsetTree = tree
	}

	preTreeMain256, err := d.readPreTree()
	if err != nil {
		return err
	}
	main256Lengths, err := d.readLengthDeltaTree(preTreeMain256, d.lastMain256Lengths)
	if err != nil {
		return err
	}
	copy(d.lastMain256Lengths, main256Lengths)

	preTreeMainRest, err := d.readPreTree()
	if err != nil {
		return err
	}
	mainRestLengths, err := d.readLengthDeltaTree(preTreeMainRest, d.lastMainRestLengths)
	if err != nil {
		return err
	}
	copy(d.lastMainRestLengths, mainRestLengths)

	mainAllLengths := make([]int, 0, len(main256Lengths)+len(mainRestLengths))
	mainAllLengths = append(mainAllLengths, main256Lengths...)
	mainAllLengths = append(mainAllLengths, mainRestLengths...)
	mainTree, err := huffman.NewCanonical(mainAllLengths)
	if err != nil {
		return ErrConstructingMainTree
	}

	preTreeLength, err := d.readPreTree()
	if err != nil {
		return err
	}
	lengthLengths, err := d.readLengthDeltaTree(preTreeLength, d.lastLengthLengths)
	if err != nil {
		return err
	}
	copy(d.lastLengthLengths, lengthLengths)
	lengthTree, err := huffman.NewCanonical(lengthLengths)
	if err != nil {
		return ErrConstructingLengthTree
	}

	var bytesOutput uint32
	for bytesOutput < numUncompressedBytes {
		sym, ok, err := mainTree.Decode(d.reader)
		if err != nil {
			return err
		}
		if !ok {
			return io.ErrUnexpectedEOF
		}

		if sym <= 255 {
			b := byte(sym)
			d.lookback.Push(b)
			*dest = append(*dest, b)
			bytesOutput++
			continue
		}

		n := sym - 256
		offsetIndex := n / 8
		lengthHeader := n % 8

		var matchLength uint32
		if lengthHeader == 7 {
			treeLength, ok, err := lengthTree.Decode(d.reader)
			if err != nil {
				return err
			}
			if !ok {
				return io.ErrUnexpectedEOF
			}
			matchLength = uint32(treeLength) + 7 + 2
		} else {
			matchLength = uint32(lengthHeader) + 2
		}

		var offsetKind int
		var positionSlotNumber uint32
		switch {
		case offsetIndex == 0:
			offsetKind = 0
		case offsetIndex == 1:
			offsetKind = 1
		case offsetIndex == 2:
			offsetKind = 2
		default:
			offsetKind = 3
			positionSlotNumber = uint32(offsetIndex)
		}

		matchOffsetValue, isAbsolute := d.recent.lookup(offsetKind, positionSlotNumber)
		var matchOffset uint32
		if isAbsolute {
			positionSlotNumber = matchOffsetValue
			extraBitCount := extraBits(positionSlotNumber)

			var verbatimBits, alignedBitsVal uint32
			if alignedOffsetTree != nil && extraBitCount >= 3 {
				for i := uint32(0); i < extraBitCount-3; i++ {
					bit, err := d.reader.ReadBitStrict()
					if err != nil {
						return err
					}
					verbatimBits <<= 1
					if bit {
						verbatimBits |= 1
					}
				}
				verbatimBits <<= 3

				alignedSym, ok, err := alignedOffsetTree.Decode(d.reader)
				if err != nil {
					return err
				}
				if !ok {
					return io.ErrUnexpectedEOF
				}
				alignedBitsVal = uint32(alignedSym)
			} else {
				for i := uint32(0); i < extraBitCount; i++ {
					bit, err := d.reader.ReadBitStrict()
					if err != nil {
						return err
					}
					verbatimBits <<= 1
					if bit {
						verbatimBits |= 1
					}
				}
			}

			formattedOffset := positionSlotNumberToPositionBase[positionSlotNumber] + verbatimBits + alignedBitsVal
			actualMatchOffset := formattedOffset - 2
			d.recent.push(actualMatchOffset)
			matchOffset = actualMatchOffset
		} else {
			matchOffset = matchOffsetValue
		}

		buf := d.lookback.Recall(int(matchOffset), int(matchLength))
		*dest = append(*dest, buf...)
		bytesOutput += matchLength
	}
	return nil
}

func (d *Decompressor) decompressUncompressedBlock(dest *[]byte, numUncompressedBytes uint32) error {
	bitsToDrop := 16 - (d.reader.TotalBitsRead() % 16)
	for i := uint64(0); i < bitsToDrop; i++ {
		if _, err := d.reader.ReadBitStrict(); err != nil {
			return err
		}
	}

	var recentBuf [4]byte
	if err := d.reader.ReadExact(recentBuf[:]); err != nil {
		return err
	}
	d.recent.r0 = le32(recentBuf[:])
	if err := d.reader.ReadExact(recentBuf[:]); err != nil {
		return err
	}
	d.recent.r1 = le32(recentBuf[:])
	if err := d.reader.ReadExact(recentBuf[:]); err != nil {
		return err
	}
	d.recent.r2 = le32(recentBuf[:])

	buf := make([]byte, numUncompressedBytes)
	if err := d.reader.ReadExact(buf); err != nil {
		return err
	}
	*dest = append(*dest, buf...)
	d.lookback.Extend(buf)

	if numUncompressedBytes%2 == 1 {
		var discard [1]byte
		if err := d.reader.ReadExact(discard[:]); err != nil {
			return err
		}
	}
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
