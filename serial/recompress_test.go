package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecompressRebuildsInternalNodes(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	root := tree.Root(0)

	// scramble the internal blocks; only the leaves are authoritative
	for i := range root.Coeffs() {
		root.Coeffs()[i] = 99.0
	}
	mid := root.Child(3)
	for i := range mid.Coeffs() {
		mid.Coeffs()[i] = -99.0
	}

	require.NoError(t, tree.Serial().Recompress())

	// every internal node now reproduces its children's scaling blocks
	k := tree.Kernel
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ChildCount() == 0 {
			continue
		}
		assert.True(t, n.HasDetail(), "rank %d", n.Rank())
		children := make([]float64, 8*k.BlockSize())
		require.NoError(t, k.Synthesize(n.Coeffs(), children, false, k.BlockSize()))
		for i := 0; i < 8; i++ {
			c := n.Child(i)
			got := c.ScalingCoeffs()
			for j := range got {
				assert.InDelta(t, children[i*k.BlockSize()+j], got[j], 1e-12,
					"rank %d child %d coefficient %d", n.Rank(), i, j)
			}
			stack = append(stack, c)
		}
	}
}

func TestRecompressIsIdempotent(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	require.NoError(t, tree.Serial().Recompress())

	snap := append([]byte(nil), tree.Serial().Bytes()...)
	require.NoError(t, tree.Serial().Recompress())
	assert.Equal(t, snap, tree.Serial().Bytes())
}

func TestRecompressLeavesUntouched(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	var leaves [][]float64
	for _, rank := range tree.EndNodes {
		n, err := tree.NodeAt(rank)
		require.NoError(t, err)
		leaves = append(leaves, append([]float64(nil), n.Coeffs()...))
	}

	require.NoError(t, tree.Serial().Recompress())

	for i, rank := range tree.EndNodes {
		n, err := tree.NodeAt(rank)
		require.NoError(t, err)
		assert.Equal(t, leaves[i], n.Coeffs(), "leaf rank %d", rank)
	}
}
