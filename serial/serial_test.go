package serial

import (
	"math"
	"os"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"

	"github.com/qlycool/mrcpp/filter"
	"github.com/qlycool/mrcpp/transform"
)

func TestMain(m *testing.M) {
	logger.New("NOOP")
	os.Exit(m.Run())
}

// haarKernel is the smallest usable kernel: order 0, dims 3, one
// coefficient per sub-block, eight per node.
func haarKernel(t *testing.T) *transform.Kernel {
	t.Helper()
	r := 1.0 / math.Sqrt2
	m := filter.NewMatrix(2, 2)
	m.Set(0, 0, r)
	m.Set(0, 1, -r)
	m.Set(1, 0, r)
	m.Set(1, 1, r)
	f, err := filter.FromMatrix(filter.Interpol, m)
	require.NoError(t, err)
	k, err := transform.NewKernel(f, 3)
	require.NoError(t, err)
	return k
}

func singleRoot() []NodeIndex {
	return []NodeIndex{{Scale: 0}}
}

// newHaarTree builds an order 0, dims 3, single root tree.
func newHaarTree(t *testing.T, maxNodes int32) *Tree {
	t.Helper()
	tree, err := NewTree(0, 3, singleRoot(), haarKernel(t), maxNodes)
	require.NoError(t, err)
	return tree
}

// refineLeaf synthesizes permanent children below n.
func refineLeaf(t *testing.T, tree *Tree, n Node) {
	t.Helper()
	require.NoError(t, tree.Serial().SynthesizeChildren(n, false))
}

// setLeafData writes a full coefficient block and marks the detail valid.
func setLeafData(n Node, values []float64) {
	copy(n.Coeffs(), values)
	n.SetHasDetail(true)
	n.CalcNorms()
}

func blockNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}
