package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRefinedTree makes a single-root tree with one refined level and a
// second level below child 3, with distinct data in every leaf.
func buildRefinedTree(t *testing.T, maxNodes int32) *Tree {
	t.Helper()
	tree := newHaarTree(t, maxNodes)
	root := tree.Root(0)
	root.ScalingCoeffs()[0] = 1.0
	refineLeaf(t, tree, root)
	for i := 0; i < 8; i++ {
		c := root.Child(i)
		data := make([]float64, len(c.Coeffs()))
		for j := range data {
			data[j] = float64(i+1) + float64(j)/16.0
		}
		setLeafData(c, data)
	}
	refineLeaf(t, tree, root.Child(3))
	return tree
}

func TestReconstructRoundTrip(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	// 1 root + 8 + 8
	require.Equal(t, int32(17), tree.NodeCount)

	wire := append([]byte(nil), tree.Serial().Bytes()...)

	recv, err := NewTree(0, 3, singleRoot(), haarKernel(t), 8)
	require.NoError(t, err)
	st, err := Reconstruct(wire, recv)
	require.NoError(t, err)

	assert.Equal(t, tree.NodeCount, recv.NodeCount)
	assert.Equal(t, tree.TreeUUID, recv.TreeUUID)
	assert.Equal(t, tree.SquareNorm, recv.SquareNorm)
	assert.Equal(t, tree.EndNodes, recv.EndNodes)
	assert.Equal(t, tree.Serial().AllocatedNodes(), st.AllocatedNodes())

	// every node's structure and coefficients survive byte for byte
	var walk func(a, b Node)
	walk = func(a, b Node) {
		assert.Equal(t, a.Rank(), b.Rank())
		assert.Equal(t, a.Index(), b.Index())
		assert.Equal(t, a.HasDetail(), b.HasDetail())
		assert.Equal(t, a.SquareNorm(), b.SquareNorm())
		assert.Equal(t, a.Coeffs(), b.Coeffs())
		require.Equal(t, a.ChildCount(), b.ChildCount())
		for i := 0; i < a.ChildCount(); i++ {
			walk(a.Child(i), b.Child(i))
		}
	}
	walk(tree.Root(0), recv.Root(0))

	// the rehydrated tree is fully operational: refine another leaf
	refineLeaf(t, recv, recv.Root(0).Child(5))
	assert.Equal(t, int32(25), recv.NodeCount)
}

func TestReconstructRejectsConfigMismatch(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	wire := append([]byte(nil), tree.Serial().Bytes()...)

	k := haarKernel(t)

	// wrong order
	recv, err := NewTree(1, 3, singleRoot(), nil, 8)
	require.NoError(t, err)
	_, err = Reconstruct(wire, recv)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)

	// wrong root count
	recv, err = NewTree(0, 3, []NodeIndex{{}, {L: [3]int32{1, 0, 0}}}, k, 8)
	require.NoError(t, err)
	_, err = Reconstruct(wire, recv)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)

	// wrong root index
	recv, err = NewTree(0, 3, []NodeIndex{{L: [3]int32{7, 0, 0}}}, k, 8)
	require.NoError(t, err)
	_, err = Reconstruct(wire, recv)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)

	// truncated arena
	recv, err = NewTree(0, 3, singleRoot(), k, 8)
	require.NoError(t, err)
	_, err = Reconstruct(wire[:len(wire)-8], recv)
	assert.ErrorIs(t, err, ErrArenaSize)
}

func TestReconstructRejectsGeneratedNodes(t *testing.T) {
	tree := newHaarTree(t, 16)
	require.NoError(t, tree.Serial().SynthesizeChildren(tree.Root(0), true))
	wire := append([]byte(nil), tree.Serial().Bytes()...)

	recv, err := NewTree(0, 3, singleRoot(), haarKernel(t), 8)
	require.NoError(t, err)
	_, err = Reconstruct(wire, recv)
	assert.ErrorIs(t, err, ErrGeneratedNodeInArena)
}

func TestReconstructRejectsCorruptRelations(t *testing.T) {
	tree := buildRefinedTree(t, 64)

	recv := func() *Tree {
		r, err := NewTree(0, 3, singleRoot(), haarKernel(t), 8)
		require.NoError(t, err)
		return r
	}

	// child rank pointing outside the arena
	wire := append([]byte(nil), tree.Serial().Bytes()...)
	slot := wire[TreeStartSize : TreeStartSize+NodeSlotSize]
	putUint32(slot[SlotChildrenOffset:], uint32(1000))
	_, err := Reconstruct(wire, recv())
	assert.ErrorIs(t, err, ErrArenaCorrupt)

	// child rank creating a cycle back to the root
	wire = append([]byte(nil), tree.Serial().Bytes()...)
	slot = wire[TreeStartSize : TreeStartSize+NodeSlotSize]
	putUint32(slot[SlotChildrenOffset:], uint32(0))
	_, err = Reconstruct(wire, recv())
	assert.ErrorIs(t, err, ErrArenaCorrupt)

	// two nodes sharing a coefficient block
	wire = append([]byte(nil), tree.Serial().Bytes()...)
	slot = wire[TreeStartSize+NodeSlotSize : TreeStartSize+2*NodeSlotSize]
	putUint32(slot[SlotCoeffOffset:], uint32(0))
	_, err = Reconstruct(wire, recv())
	assert.ErrorIs(t, err, ErrArenaCorrupt)
}
