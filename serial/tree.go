// Package serial implements the serialized multiresolution tree: an
// adaptive 2^d-ary coefficient tree whose nodes and coefficient blocks all
// live inside one contiguous arena, so a whole tree moves between processes
// or blob storage as a single byte region and is rehydrated in place on
// arrival.
package serial

import (
	"fmt"
	"unsafe"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"

	"github.com/qlycool/mrcpp/transform"
)

// NodeIndex addresses a node in the multiresolution grid: a refinement
// scale and one integer translation per axis.
type NodeIndex struct {
	Scale int32
	L     [3]int32
}

// Child returns the index of child c, one scale finer, with each axis
// translation doubled plus the corresponding bit of c.
func (ix NodeIndex) Child(c int) NodeIndex {
	ci := NodeIndex{Scale: ix.Scale + 1}
	for a := 0; a < 3; a++ {
		ci.L[a] = 2*ix.L[a] + int32((c>>a)&1)
	}
	return ci
}

type TreeOptions struct {
	Log logger.Logger
	// MaxGenNodes caps the scratch pool for generated nodes. Defaults to
	// the permanent node capacity.
	MaxGenNodes int32
}

type TreeOption func(*TreeOptions)

func WithLogger(log logger.Logger) TreeOption {
	return func(o *TreeOptions) {
		o.Log = log
	}
}

func WithMaxGenNodes(n int32) TreeOption {
	return func(o *TreeOptions) {
		o.MaxGenNodes = n
	}
}

// Tree is the owning object of one serialized arena. It carries the grid
// configuration and the derived state that is rebuilt rather than
// serialized: the end-node table and the node count live in the header,
// the kernel and root box are construction-time configuration the
// receiving side must share.
type Tree struct {
	Order int
	Dims  int

	// TreeUUID identifies this tree instance across transfers and in blob
	// paths. Assigned at construction, carried in the arena header.
	TreeUUID uuid.UUID

	// Kernel may be nil for storage-only use; merges and recompression
	// require it.
	Kernel *transform.Kernel

	// RootIndices is the root box: the spatial index of every root node,
	// in rank order.
	RootIndices []NodeIndex

	NodeCount  int32
	SquareNorm float64

	// EndNodes lists the ranks of the current leaves in traversal order.
	EndNodes []int32

	ser *SerialTree
}

// NewTree builds a tree with one zero-initialized root node per root index.
// maxNodes fixes the arena capacity for the lifetime of the tree.
func NewTree(order, dims int, roots []NodeIndex, kern *transform.Kernel, maxNodes int32, opts ...TreeOption) (*Tree, error) {
	o := TreeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if dims < 1 || dims > 3 {
		return nil, fmt.Errorf("%w: dims=%d", ErrTreeConfigMismatch, dims)
	}
	if order < 0 || order > 255 {
		return nil, fmt.Errorf("%w: order=%d", ErrTreeConfigMismatch, order)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: empty root box", ErrTreeConfigMismatch)
	}
	if maxNodes < int32(len(roots)) {
		return nil, fmt.Errorf("%w: maxNodes=%d < %d roots", ErrNodePoolFull, maxNodes, len(roots))
	}
	if kern != nil && kern.Dims() != dims {
		return nil, fmt.Errorf("%w: kernel dims %d, tree dims %d", ErrTreeConfigMismatch, kern.Dims(), dims)
	}

	t := &Tree{
		Order:       order,
		Dims:        dims,
		TreeUUID:    uuid.New(),
		Kernel:      kern,
		RootIndices: append([]NodeIndex(nil), roots...),
	}
	if _, err := newSerialTree(t, maxNodes, o); err != nil {
		return nil, err
	}
	return t, nil
}

// Serial returns the arena allocator of the tree.
func (t *Tree) Serial() *SerialTree { return t.ser }

func (t *Tree) RootCount() int { return len(t.RootIndices) }

// Root returns the i'th root node. Roots occupy ranks 0..RootCount-1.
func (t *Tree) Root(i int) Node {
	return Node{st: t.ser, rank: int32(i)}
}

// NodeAt returns the node at rank, checking it is allocated.
func (t *Tree) NodeAt(rank int32) (Node, error) {
	if !t.ser.nodes.occupied(rank) {
		return Node{}, fmt.Errorf("%w: %d", ErrRankBounds, rank)
	}
	return Node{st: t.ser, rank: rank}, nil
}

// ResetEndNodeTable rebuilds the leaf table by depth-first traversal from
// the root set.
func (t *Tree) ResetEndNodeTable() {
	t.EndNodes = t.EndNodes[:0]
	stack := make([]Node, 0, 64)
	for i := t.RootCount() - 1; i >= 0; i-- {
		stack = append(stack, t.Root(i))
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ChildCount() == 0 {
			t.EndNodes = append(t.EndNodes, n.rank)
			continue
		}
		for i := n.ChildCount() - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
}

// unsafeBytes views a float64 slice as bytes. The backing allocation is
// 8-aligned, which is what lets the metadata region share one allocation
// with the coefficient blocks.
func unsafeBytes(words []float64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
}

// SerialTree is the arena allocator backing a Tree. The permanent region
// (header, node slots, coefficient blocks) is one []float64 allocation
// viewed bytewise; generated scratch coefficients live in a separate array
// that never serializes.
type SerialTree struct {
	tree *Tree
	log  logger.Logger

	order int
	dims  int

	tdim         int // 2^dims children per node
	scalingWords int
	coeffWords   int
	maxNodes     int32

	backing  []float64
	data     []byte
	genCoeff []float64

	nodes     *slotPool
	coeffs    *stackPool
	genCoeffs *stackPool
}

func newSerialTree(t *Tree, maxNodes int32, o TreeOptions) (*SerialTree, error) {
	maxGen := o.MaxGenNodes
	if maxGen <= 0 {
		maxGen = maxNodes
	}
	st := &SerialTree{
		tree:         t,
		log:          o.Log,
		order:        t.Order,
		dims:         t.Dims,
		tdim:         1 << t.Dims,
		scalingWords: ScalingWords(t.Order, t.Dims),
		coeffWords:   CoeffWords(t.Order, t.Dims),
		maxNodes:     maxNodes,
	}
	st.backing = make([]float64, ArenaWords(t.Order, t.Dims, maxNodes))
	st.data = unsafeBytes(st.backing)
	st.genCoeff = make([]float64, int(maxGen)*st.coeffWords)
	st.nodes = newSlotPool("nodes", maxNodes, o.Log)
	st.coeffs = newStackPool("coeffs", maxNodes, ErrCoeffPoolFull, o.Log)
	st.genCoeffs = newStackPool("gencoeffs", maxGen, ErrGenCoeffPoolFull, o.Log)

	err := EncodeTreeStart(TreeStart{
		Dims:      uint8(t.Dims),
		Order:     uint8(t.Order),
		MaxNodes:  maxNodes,
		RootCount: int32(len(t.RootIndices)),
		TreeUUID:  t.TreeUUID,
	}, st.data)
	if err != nil {
		return nil, err
	}

	if _, err = st.nodes.allocRun(int32(len(t.RootIndices))); err != nil {
		return nil, err
	}
	for i, idx := range t.RootIndices {
		cix, err := st.coeffs.alloc()
		if err != nil {
			return nil, err
		}
		st.initSlot(int32(i), NilRank, cix, 0, idx)
	}
	t.NodeCount = int32(len(t.RootIndices))
	st.writeNodeCount(t.NodeCount)

	// the tree must point at the arena before the leaf table can be walked
	t.ser = st
	t.ResetEndNodeTable()
	return st, nil
}

// Bytes is the serialized form of the tree: the raw arena region. It is a
// live view, not a copy; the caller must copy it before mutating the tree
// if the bytes are to outlive the next operation.
func (st *SerialTree) Bytes() []byte { return st.data }

func (st *SerialTree) MaxNodes() int32 { return st.maxNodes }

// CoeffWords is the size of one full coefficient block in float64 words.
func (st *SerialTree) CoeffWords() int { return st.coeffWords }

// AllocatedNodes is the node stack height, including any holes below the
// top.
func (st *SerialTree) AllocatedNodes() int32 { return st.nodes.allocated() }

func (st *SerialTree) slotBytes(rank int32) []byte {
	off := TreeStartSize + int(rank)*NodeSlotSize
	return st.data[off : off+NodeSlotSize]
}

// coeffBlock returns the float64 view of a permanent coefficient block.
func (st *SerialTree) coeffBlock(ix int32) []float64 {
	w := coeffBaseWords(st.maxNodes) + int(ix)*st.coeffWords
	return st.backing[w : w+st.coeffWords]
}

// genCoeffBlock returns the float64 view of a generated scratch block.
func (st *SerialTree) genCoeffBlock(ix int32) []float64 {
	w := int(ix) * st.coeffWords
	return st.genCoeff[w : w+st.coeffWords]
}

func (st *SerialTree) writeNodeCount(n int32) {
	putUint32(st.data[TreeStartNodeCountOffset:], uint32(n))
}

func (st *SerialTree) writeSquareNorm(v float64) {
	putFloat64(st.data[TreeStartSquareNormOffset:], v)
}

// initSlot writes a fresh slot: no children, zero norms, zeroed
// coefficient block.
func (st *SerialTree) initSlot(rank, parent, coeffIx int32, flags uint32, idx NodeIndex) {
	s := st.slotBytes(rank)
	putUint32(s[SlotRankOffset:], uint32(rank))
	putUint32(s[SlotFlagsOffset:], flags)
	putUint32(s[SlotParentOffset:], uint32(parent))
	putUint32(s[SlotCoeffOffset:], uint32(coeffIx))
	putUint32(s[SlotScaleOffset:], uint32(idx.Scale))
	for a := 0; a < 3; a++ {
		putUint32(s[SlotTranslationOffset+4*a:], uint32(idx.L[a]))
	}
	putFloat64(s[SlotSquareNormOffset:], 0)
	putFloat64(s[SlotDetailNormOffset:], 0)

	n := Node{st: st, rank: rank}
	n.clearChildren()
	c := n.Coeffs()
	for i := range c {
		c[i] = 0
	}
}
