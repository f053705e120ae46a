package serial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeStartRoundTrip(t *testing.T) {
	ts := TreeStart{
		Dims:       3,
		Order:      5,
		MaxNodes:   1024,
		NodeCount:  73,
		RootCount:  2,
		SquareNorm: 1.5,
		TreeUUID:   [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
	}
	data := make([]byte, TreeStartSize)
	require.NoError(t, EncodeTreeStart(ts, data))
	got, err := DecodeTreeStart(data)
	require.NoError(t, err)
	assert.Equal(t, ts, got)

	_, err = DecodeTreeStart(data[:10])
	assert.ErrorIs(t, err, ErrArenaSize)

	data[0] ^= 0xff
	_, err = DecodeTreeStart(data)
	assert.ErrorIs(t, err, ErrTreeMagic)
	data[0] ^= 0xff

	data[TreeStartVersionOffset+1] = 99
	_, err = DecodeTreeStart(data)
	assert.ErrorIs(t, err, ErrTreeVersion)
}

func TestArenaGeometry(t *testing.T) {
	// order 0 dims 3: one coefficient per sub-block, eight per node
	assert.Equal(t, 1, ScalingWords(0, 3))
	assert.Equal(t, 8, CoeffWords(0, 3))
	// order 5 dims 3
	assert.Equal(t, 216, ScalingWords(5, 3))
	assert.Equal(t, 1728, CoeffWords(5, 3))

	words := ArenaWords(0, 3, 16)
	assert.Equal(t, (64+16*NodeSlotSize)/8+16*8, words)
	assert.Equal(t, words*8, ArenaBytes(0, 3, 16))
}

func TestNewTreeValidation(t *testing.T) {
	k := haarKernel(t)

	_, err := NewTree(0, 4, singleRoot(), nil, 8)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)
	_, err = NewTree(0, 3, nil, k, 8)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)
	_, err = NewTree(0, 3, singleRoot(), k, 0)
	assert.ErrorIs(t, err, ErrNodePoolFull)
	// kernel only supports dims 3, a 2d tree cannot carry it
	_, err = NewTree(0, 2, []NodeIndex{{}}, k, 8)
	assert.ErrorIs(t, err, ErrTreeConfigMismatch)
}

func TestNewTreeAllocatesZeroedRoots(t *testing.T) {
	roots := []NodeIndex{
		{Scale: 0, L: [3]int32{0, 0, 0}},
		{Scale: 0, L: [3]int32{1, 0, 0}},
	}
	tree, err := NewTree(0, 3, roots, haarKernel(t), 32)
	require.NoError(t, err)

	assert.Equal(t, int32(2), tree.NodeCount)
	assert.Equal(t, 2, tree.RootCount())
	assert.Len(t, tree.EndNodes, 2)

	for i := range roots {
		root := tree.Root(i)
		assert.Equal(t, int32(i), root.Rank())
		assert.Equal(t, roots[i], root.Index())
		assert.False(t, root.HasDetail())
		assert.False(t, root.IsGenerated())
		assert.Equal(t, 0, root.ChildCount())
		_, ok := root.Parent()
		assert.False(t, ok)
		for _, c := range root.Coeffs() {
			assert.Zero(t, c)
		}
	}

	// the header is written through
	ts, err := DecodeTreeStart(tree.Serial().Bytes())
	require.NoError(t, err)
	assert.Equal(t, int32(2), ts.NodeCount)
	assert.Equal(t, int32(2), ts.RootCount)
	assert.Equal(t, int32(32), ts.MaxNodes)
	assert.Equal(t, tree.TreeUUID[:], ts.TreeUUID[:])

	assert.Len(t, tree.Serial().Bytes(), ArenaBytes(0, 3, 32))
}

func TestNodeAtBounds(t *testing.T) {
	tree := newHaarTree(t, 16)
	n, err := tree.NodeAt(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0), n.Rank())

	_, err = tree.NodeAt(1)
	assert.ErrorIs(t, err, ErrRankBounds)
	_, err = tree.NodeAt(-1)
	assert.ErrorIs(t, err, ErrRankBounds)
	_, err = tree.NodeAt(99)
	assert.ErrorIs(t, err, ErrRankBounds)
}

func TestSynthesizeChildrenPermanent(t *testing.T) {
	tree := newHaarTree(t, 16)
	root := tree.Root(0)
	root.ScalingCoeffs()[0] = 4.0

	refineLeaf(t, tree, root)

	assert.Equal(t, int32(9), tree.NodeCount)
	assert.Equal(t, 8, root.ChildCount())
	assert.Len(t, tree.EndNodes, 8)

	want := 4.0 * math.Pow(1.0/math.Sqrt2, 3)
	for i := 0; i < 8; i++ {
		c := root.Child(i)
		p, ok := c.Parent()
		require.True(t, ok)
		assert.Equal(t, root.Rank(), p.Rank())
		assert.False(t, c.IsGenerated())
		assert.Equal(t, root.Index().Child(i), c.Index())
		assert.InDelta(t, want, c.ScalingCoeffs()[0], 1e-14, "child %d", i)
	}

	// children of one group occupy one contiguous run of slots and blocks
	view, err := tree.Serial().childrenCoeffView(root)
	require.NoError(t, err)
	assert.Len(t, view, 8*tree.Serial().CoeffWords())

	// a second synthesis below the same node must refuse
	err = tree.Serial().SynthesizeChildren(root, false)
	assert.ErrorIs(t, err, ErrHasChildren)
}

func TestSynthesizeChildrenGenerated(t *testing.T) {
	tree := newHaarTree(t, 16)
	root := tree.Root(0)
	root.ScalingCoeffs()[0] = 2.0

	require.NoError(t, tree.Serial().SynthesizeChildren(root, true))
	assert.Equal(t, int32(9), tree.NodeCount)
	for i := 0; i < 8; i++ {
		assert.True(t, root.Child(i).IsGenerated(), "child %d", i)
	}

	released := tree.Serial().ReleaseGenerated()
	assert.Equal(t, int32(8), released)
	assert.Equal(t, int32(1), tree.NodeCount)
	assert.Equal(t, 0, root.ChildCount())
	assert.Equal(t, int32(1), tree.Serial().AllocatedNodes())
	assert.Len(t, tree.EndNodes, 1)

	// a second sweep finds nothing
	assert.Equal(t, int32(0), tree.Serial().ReleaseGenerated())
}

func TestNodePoolExhaustionIsTerminal(t *testing.T) {
	// capacity for the root and one sibling group only
	tree := newHaarTree(t, 9)
	root := tree.Root(0)
	refineLeaf(t, tree, root)

	err := tree.Serial().SynthesizeChildren(root.Child(0), false)
	assert.ErrorIs(t, err, ErrNodePoolFull)
	// the failed operation must not corrupt the count
	assert.Equal(t, int32(9), tree.NodeCount)
}

func TestCalcNorms(t *testing.T) {
	tree := newHaarTree(t, 16)
	root := tree.Root(0)
	c := root.Coeffs()
	for i := range c {
		c[i] = float64(i + 1)
	}

	// without detail only the scaling part counts
	root.CalcNorms()
	assert.InDelta(t, 1.0, root.SquareNorm(), 1e-14)
	assert.Zero(t, root.DetailNorm())

	root.SetHasDetail(true)
	root.CalcNorms()
	assert.InDelta(t, blockNorm(c), root.SquareNorm(), 1e-14)
	assert.InDelta(t, blockNorm(c[1:]), root.DetailNorm(), 1e-14)
}
