package serial

import (
	"fmt"
)

// Node is a cursor over one slot in the arena. It holds no state of its
// own; every accessor reads or writes the slot bytes directly, so nodes
// are values and remain valid across arena mutations as long as the rank
// stays allocated.
type Node struct {
	st   *SerialTree
	rank int32
}

func (n Node) Rank() int32 { return n.rank }

func (n Node) slot() []byte { return n.st.slotBytes(n.rank) }

func (n Node) flags() uint32 { return getUint32(n.slot()[SlotFlagsOffset:]) }

func (n Node) setFlags(f uint32) { putUint32(n.slot()[SlotFlagsOffset:], f) }

// HasDetail reports whether the detail part of the coefficient block holds
// valid data.
func (n Node) HasDetail() bool { return n.flags()&nodeFlagHasDetail != 0 }

func (n Node) SetHasDetail(v bool) {
	f := n.flags()
	if v {
		f |= nodeFlagHasDetail
	} else {
		f &^= nodeFlagHasDetail
	}
	n.setFlags(f)
}

// IsGenerated reports whether the node is scratch: synthesized below a leaf
// during a merge, with its coefficients in the generated pool.
func (n Node) IsGenerated() bool { return n.flags()&nodeFlagGenerated != 0 }

// Index returns the spatial index stored in the slot.
func (n Node) Index() NodeIndex {
	s := n.slot()
	ix := NodeIndex{Scale: int32(getUint32(s[SlotScaleOffset:]))}
	for a := 0; a < 3; a++ {
		ix.L[a] = int32(getUint32(s[SlotTranslationOffset+4*a:]))
	}
	return ix
}

// Parent returns the parent node; ok is false at a root.
func (n Node) Parent() (Node, bool) {
	p := int32(getUint32(n.slot()[SlotParentOffset:]))
	if p == NilRank {
		return Node{}, false
	}
	return Node{st: n.st, rank: p}, true
}

// ChildCount is 0 for a leaf and 2^dims otherwise; children exist as a
// complete sibling group or not at all.
func (n Node) ChildCount() int {
	if int32(getUint32(n.slot()[SlotChildrenOffset:])) == NilRank {
		return 0
	}
	return n.st.tdim
}

func (n Node) Child(i int) Node {
	r := int32(getUint32(n.slot()[SlotChildrenOffset+4*i:]))
	return Node{st: n.st, rank: r}
}

func (n Node) setChild(i int, rank int32) {
	putUint32(n.slot()[SlotChildrenOffset+4*i:], uint32(rank))
}

func (n Node) clearChildren() {
	for i := 0; i < MaxChildren; i++ {
		n.setChild(i, NilRank)
	}
}

func (n Node) coeffIndex() int32 { return int32(getUint32(n.slot()[SlotCoeffOffset:])) }

// Coeffs returns the full coefficient block of the node: the scaling block
// followed by 2^dims-1 detail blocks. The slice aliases the arena (or the
// generated pool for scratch nodes).
func (n Node) Coeffs() []float64 {
	if n.IsGenerated() {
		return n.st.genCoeffBlock(n.coeffIndex())
	}
	return n.st.coeffBlock(n.coeffIndex())
}

func (n Node) ScalingCoeffs() []float64 {
	return n.Coeffs()[:n.st.scalingWords]
}

func (n Node) DetailCoeffs() []float64 {
	return n.Coeffs()[n.st.scalingWords:]
}

func (n Node) SquareNorm() float64 { return getFloat64(n.slot()[SlotSquareNormOffset:]) }

func (n Node) DetailNorm() float64 { return getFloat64(n.slot()[SlotDetailNormOffset:]) }

// CalcNorms recomputes the cached norms from the coefficient block. Nodes
// without detail contribute their scaling part only.
func (n Node) CalcNorms() {
	c := n.Coeffs()
	lim := len(c)
	if !n.HasDetail() {
		lim = n.st.scalingWords
	}
	var sq, dq float64
	for i := 0; i < lim; i++ {
		sq += c[i] * c[i]
	}
	for i := n.st.scalingWords; i < lim; i++ {
		dq += c[i] * c[i]
	}
	putFloat64(n.slot()[SlotSquareNormOffset:], sq)
	putFloat64(n.slot()[SlotDetailNormOffset:], dq)
}

// genChildren allocates the complete sibling group below n. With generated
// set the children are scratch: their coefficients come from the generated
// pool and the nodes are expected to be released before serialization.
// Coefficient blocks of the group are allocated back to back so the group
// can be handed to the transform kernel as one strided view.
func (st *SerialTree) genChildren(n Node, generated bool) error {
	if n.ChildCount() != 0 {
		return fmt.Errorf("%w: rank %d", ErrHasChildren, n.rank)
	}
	first, err := st.nodes.allocRun(int32(st.tdim))
	if err != nil {
		return err
	}
	pool := st.coeffs
	flags := uint32(0)
	if generated {
		pool = st.genCoeffs
		flags = nodeFlagGenerated
	}
	firstCoeff := int32(-1)
	for i := 0; i < st.tdim; i++ {
		cix, err := pool.alloc()
		if err != nil {
			return err
		}
		if i == 0 {
			firstCoeff = cix
		} else if cix != firstCoeff+int32(i) {
			return fmt.Errorf("%w: block %d at %d, expected %d", ErrCoeffNotContiguous, i, cix, firstCoeff+int32(i))
		}
		rank := first + int32(i)
		st.initSlot(rank, n.rank, cix, flags, n.Index().Child(i))
		n.setChild(i, rank)
	}
	st.tree.NodeCount += int32(st.tdim)
	st.writeNodeCount(st.tree.NodeCount)
	st.tree.ResetEndNodeTable()
	return nil
}

// childrenCoeffView returns one []float64 spanning the coefficient blocks
// of n's children, in child order, for the kernel's strided access. The
// blocks are contiguous by the genChildren allocation discipline; this is
// re-checked because rehydrated arenas are external input.
func (st *SerialTree) childrenCoeffView(n Node) ([]float64, error) {
	if n.ChildCount() == 0 {
		return nil, fmt.Errorf("%w: rank %d has no children", ErrRankBounds, n.rank)
	}
	first := n.Child(0)
	firstIx := first.coeffIndex()
	gen := first.IsGenerated()
	for i := 1; i < st.tdim; i++ {
		c := n.Child(i)
		if c.IsGenerated() != gen || c.coeffIndex() != firstIx+int32(i) {
			return nil, fmt.Errorf("%w: parent rank %d child %d", ErrCoeffNotContiguous, n.rank, i)
		}
	}
	if gen {
		w := int(firstIx) * st.coeffWords
		return st.genCoeff[w : w+st.tdim*st.coeffWords], nil
	}
	w := coeffBaseWords(st.maxNodes) + int(firstIx)*st.coeffWords
	return st.backing[w : w+st.tdim*st.coeffWords], nil
}

// SynthesizeChildren creates the sibling group below n and fills the
// children's scaling coefficients from n's block. A node without stored
// detail contributes its scaling part only.
func (st *SerialTree) SynthesizeChildren(n Node, generated bool) error {
	if st.tree.Kernel == nil {
		return ErrKernelRequired
	}
	scalingOnly := !n.HasDetail()
	if err := st.genChildren(n, generated); err != nil {
		return err
	}
	view, err := st.childrenCoeffView(n)
	if err != nil {
		return err
	}
	return st.tree.Kernel.Synthesize(n.Coeffs(), view, scalingOnly, st.coeffWords)
}
