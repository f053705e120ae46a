package serial

import (
	"fmt"

	"github.com/google/uuid"
)

// Reconstruct rebuilds a serialized arena received from elsewhere into t,
// which must be configured (order, dims, root box, kernel) the same way as
// the sender's tree. The bytes are copied into a fresh aligned backing, so
// data does not need any particular alignment and is not retained.
//
// All slot relations are ranks and pool indices, so nothing in the bytes
// depends on the old base address; rehydration is re-deriving the state
// that is not serialized: coefficient views, pool occupancy, node count
// and the end-node table.
func Reconstruct(data []byte, t *Tree, opts ...TreeOption) (*SerialTree, error) {
	o := TreeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	ts, err := DecodeTreeStart(data)
	if err != nil {
		return nil, err
	}
	if int(ts.Dims) != t.Dims || int(ts.Order) != t.Order {
		return nil, fmt.Errorf(
			"%w: arena is order %d dims %d, tree is order %d dims %d",
			ErrTreeConfigMismatch, ts.Order, ts.Dims, t.Order, t.Dims)
	}
	if int(ts.RootCount) != len(t.RootIndices) {
		return nil, fmt.Errorf("%w: arena has %d roots, tree has %d",
			ErrTreeConfigMismatch, ts.RootCount, len(t.RootIndices))
	}
	if len(data) != ArenaBytes(t.Order, t.Dims, ts.MaxNodes) {
		return nil, fmt.Errorf("%w: %d bytes for maxNodes=%d",
			ErrArenaSize, len(data), ts.MaxNodes)
	}

	maxGen := o.MaxGenNodes
	if maxGen <= 0 {
		maxGen = ts.MaxNodes
	}
	st := &SerialTree{
		tree:         t,
		log:          o.Log,
		order:        t.Order,
		dims:         t.Dims,
		tdim:         1 << t.Dims,
		scalingWords: ScalingWords(t.Order, t.Dims),
		coeffWords:   CoeffWords(t.Order, t.Dims),
		maxNodes:     ts.MaxNodes,
	}
	st.backing = make([]float64, ArenaWords(t.Order, t.Dims, ts.MaxNodes))
	st.data = unsafeBytes(st.backing)
	copy(st.data, data)
	st.genCoeff = make([]float64, int(maxGen)*st.coeffWords)
	st.nodes = newSlotPool("nodes", ts.MaxNodes, o.Log)
	st.coeffs = newStackPool("coeffs", ts.MaxNodes, ErrCoeffPoolFull, o.Log)
	st.genCoeffs = newStackPool("gencoeffs", maxGen, ErrGenCoeffPoolFull, o.Log)

	if err = st.rehydrate(ts); err != nil {
		return nil, err
	}
	return st, nil
}

// rehydrate walks the forest from the root set, validating the slot
// relations and re-deriving pool occupancy, the node count and the
// end-node table.
func (st *SerialTree) rehydrate(ts TreeStart) error {
	t := st.tree

	stack := make([]int32, 0, 64)
	for i := int32(ts.RootCount) - 1; i >= 0; i-- {
		stack = append(stack, i)
	}

	var count, maxRank, maxCoeff int32
	maxRank, maxCoeff = -1, -1
	for len(stack) > 0 {
		rank := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if rank < 0 || rank >= st.maxNodes {
			return fmt.Errorf("%w: rank %d of %d", ErrArenaCorrupt, rank, st.maxNodes)
		}
		if st.nodes.status[rank] == statusOccupied {
			return fmt.Errorf("%w: rank %d reached twice", ErrArenaCorrupt, rank)
		}
		st.nodes.status[rank] = statusOccupied
		if rank > maxRank {
			maxRank = rank
		}
		count++

		n := Node{st: st, rank: rank}
		if n.IsGenerated() {
			return fmt.Errorf("%w: rank %d", ErrGeneratedNodeInArena, rank)
		}
		cix := n.coeffIndex()
		if cix < 0 || cix >= st.maxNodes {
			return fmt.Errorf("%w: rank %d coefficient index %d", ErrArenaCorrupt, rank, cix)
		}
		if st.coeffs.status[cix] == statusOccupied {
			return fmt.Errorf("%w: coefficient block %d reached twice", ErrArenaCorrupt, cix)
		}
		st.coeffs.status[cix] = statusOccupied
		if cix > maxCoeff {
			maxCoeff = cix
		}

		for i := n.ChildCount() - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i).rank)
		}
	}

	st.nodes.count = maxRank + 1
	st.coeffs.top = maxCoeff

	// roots must sit at the bottom ranks with the configured spatial
	// indices
	for i := range t.RootIndices {
		root := Node{st: st, rank: int32(i)}
		if root.Index() != t.RootIndices[i] {
			return fmt.Errorf("%w: root %d index %v, tree has %v",
				ErrTreeConfigMismatch, i, root.Index(), t.RootIndices[i])
		}
	}

	t.TreeUUID = uuid.UUID(ts.TreeUUID)
	t.NodeCount = count
	t.SquareNorm = ts.SquareNorm
	st.writeNodeCount(count)

	// the validated arena replaces whatever the receiver tree held; the
	// leaf table is rebuilt over it
	t.ser = st
	t.ResetEndNodeTable()
	return nil
}
