package serial

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The serialized tree arena is one contiguous region:
//
//	| tree start | node slots                | coefficient blocks          |
//	|   64 bytes | maxNodes x NodeSlotSize   | maxNodes x CoeffBytes       |
//
// The whole region is backed by a single []float64 allocation so the
// coefficient blocks can be addressed as float64 slices without copying,
// and serializing a tree is handing out the raw bytes of that region.
// Generated (scratch) coefficient blocks live in a separate array that is
// never serialized.
//
// Tree start layout, all fields big endian:
//
//	0       4       6     7     8        12      16        20        24          32     48        64
//	| magic | vers  | dim | ord | maxNodes| nNodes| rootCnt | reserved| squareNorm| uuid | reserved |
//	|   4   |   2   |  1  |  1  |    4    |   4   |    4    |    4    |     8     |  16  |    16    |
//
// Node slot layout, fixed stride, all fields big endian. Relations are
// stored as int32 slot ranks (NilRank when absent) and the coefficient
// block as an int32 pool index, so the arena stays valid bytewise no
// matter where it lands after a transfer:
//
//	0      4       8        12      16            48      52        64          72          80
//	| rank | flags | parent | coeff | children[8] | scale | l[3]    | squareNorm| detailNorm |
//	|  4   |   4   |   4    |   4   |     32      |   4   |   12    |     8     |     8      |
//
// Coefficient blocks are native-order float64: they are operated on in
// place by the transform kernel and only ever exchanged between
// like-endianness hosts.
const (
	TreeMagic   uint32 = 0x4D575354 // "MWST"
	TreeVersion uint16 = 0

	TreeStartSize = 64

	TreeStartMagicOffset      = 0
	TreeStartVersionOffset    = 4
	TreeStartDimsOffset       = 6
	TreeStartOrderOffset      = 7
	TreeStartMaxNodesOffset   = 8
	TreeStartNodeCountOffset  = 12
	TreeStartRootCountOffset  = 16
	TreeStartSquareNormOffset = 24
	TreeStartUUIDOffset       = 32

	NodeSlotSize = 80

	SlotRankOffset        = 0
	SlotFlagsOffset       = 4
	SlotParentOffset      = 8
	SlotCoeffOffset       = 12
	SlotChildrenOffset    = 16
	SlotScaleOffset       = 48
	SlotTranslationOffset = 52
	SlotSquareNormOffset  = 64
	SlotDetailNormOffset  = 72

	// MaxChildren is the child fanout of a node slot. Slots always carry
	// eight child links; lower dimensionalities leave the tail at NilRank.
	MaxChildren = 8

	// NilRank marks an absent relation in a slot.
	NilRank int32 = -1
)

const (
	nodeFlagHasDetail uint32 = 1 << 0
	nodeFlagGenerated uint32 = 1 << 1
)

// TreeStart is the decoded form of the arena header.
type TreeStart struct {
	Dims       uint8
	Order      uint8
	MaxNodes   int32
	NodeCount  int32
	RootCount  int32
	SquareNorm float64
	TreeUUID   [16]byte
}

// ScalingWords is the number of float64 in one scaling block: (order+1)^dims.
func ScalingWords(order, dims int) int {
	w := 1
	for i := 0; i < dims; i++ {
		w *= order + 1
	}
	return w
}

// CoeffWords is the number of float64 in one full coefficient block:
// 2^dims * (order+1)^dims, the scaling block followed by the details.
func CoeffWords(order, dims int) int {
	return ScalingWords(order, dims) << dims
}

// ArenaWords is the size of the whole arena region in float64 words.
// The metadata region (header + slots) is a multiple of 16 bytes by
// construction, so it converts to words exactly.
func ArenaWords(order, dims int, maxNodes int32) int {
	meta := (TreeStartSize + int(maxNodes)*NodeSlotSize) / 8
	return meta + int(maxNodes)*CoeffWords(order, dims)
}

func ArenaBytes(order, dims int, maxNodes int32) int {
	return ArenaWords(order, dims, maxNodes) * 8
}

// coeffBaseWords is the word offset of the first coefficient block.
func coeffBaseWords(maxNodes int32) int {
	return (TreeStartSize + int(maxNodes)*NodeSlotSize) / 8
}

func putUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func getUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putFloat64(b []byte, v float64) {
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// EncodeTreeStart writes the header fields into the first TreeStartSize
// bytes of data.
func EncodeTreeStart(ts TreeStart, data []byte) error {
	if len(data) < TreeStartSize {
		return fmt.Errorf("%w: %d < %d", ErrArenaSize, len(data), TreeStartSize)
	}
	binary.BigEndian.PutUint32(data[TreeStartMagicOffset:], TreeMagic)
	binary.BigEndian.PutUint16(data[TreeStartVersionOffset:], TreeVersion)
	data[TreeStartDimsOffset] = ts.Dims
	data[TreeStartOrderOffset] = ts.Order
	binary.BigEndian.PutUint32(data[TreeStartMaxNodesOffset:], uint32(ts.MaxNodes))
	binary.BigEndian.PutUint32(data[TreeStartNodeCountOffset:], uint32(ts.NodeCount))
	binary.BigEndian.PutUint32(data[TreeStartRootCountOffset:], uint32(ts.RootCount))
	binary.BigEndian.PutUint64(data[TreeStartSquareNormOffset:], math.Float64bits(ts.SquareNorm))
	copy(data[TreeStartUUIDOffset:TreeStartUUIDOffset+16], ts.TreeUUID[:])
	return nil
}

// DecodeTreeStart reads and checks the arena header.
func DecodeTreeStart(data []byte) (TreeStart, error) {
	var ts TreeStart
	if len(data) < TreeStartSize {
		return ts, fmt.Errorf("%w: %d < %d", ErrArenaSize, len(data), TreeStartSize)
	}
	if magic := binary.BigEndian.Uint32(data[TreeStartMagicOffset:]); magic != TreeMagic {
		return ts, fmt.Errorf("%w: %08x", ErrTreeMagic, magic)
	}
	if v := binary.BigEndian.Uint16(data[TreeStartVersionOffset:]); v != TreeVersion {
		return ts, fmt.Errorf("%w: %d", ErrTreeVersion, v)
	}
	ts.Dims = data[TreeStartDimsOffset]
	ts.Order = data[TreeStartOrderOffset]
	ts.MaxNodes = int32(binary.BigEndian.Uint32(data[TreeStartMaxNodesOffset:]))
	ts.NodeCount = int32(binary.BigEndian.Uint32(data[TreeStartNodeCountOffset:]))
	ts.RootCount = int32(binary.BigEndian.Uint32(data[TreeStartRootCountOffset:]))
	ts.SquareNorm = math.Float64frombits(binary.BigEndian.Uint64(data[TreeStartSquareNormOffset:]))
	copy(ts.TreeUUID[:], data[TreeStartUUIDOffset:TreeStartUUIDOffset+16])
	return ts, nil
}
