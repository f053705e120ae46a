package serial

import (
	"fmt"
	"sort"
)

func sameRootBox(a, b *Tree) error {
	if len(a.RootIndices) != len(b.RootIndices) {
		return fmt.Errorf("%w: %d roots vs %d", ErrRootBoxMismatch, len(a.RootIndices), len(b.RootIndices))
	}
	for i := range a.RootIndices {
		if a.RootIndices[i] != b.RootIndices[i] {
			return fmt.Errorf("%w: root %d: %v vs %v", ErrRootBoxMismatch, i, a.RootIndices[i], b.RootIndices[i])
		}
	}
	return nil
}

// combineCoeffs folds scale*b into a. What can be combined depends on which
// sides hold valid detail:
//
//   - both: the full blocks accumulate
//   - only a: b contributes scaling only, a's detail stands
//   - only b: scaling accumulates, b's detail is copied in scaled and a
//     becomes a detail carrier
//   - neither: scaling accumulates; two detail-free nodes meeting here
//     means the caller descended past both operands' stored data, which is
//     a logic error worth surfacing in the log
func combineCoeffs(a, b Node, scale float64) {
	ca, cb := a.Coeffs(), b.Coeffs()
	ns := a.st.scalingWords
	switch {
	case a.HasDetail() && b.HasDetail():
		for i := range ca {
			ca[i] += scale * cb[i]
		}
	case a.HasDetail():
		for i := 0; i < ns; i++ {
			ca[i] += scale * cb[i]
		}
	case b.HasDetail():
		for i := 0; i < ns; i++ {
			ca[i] += scale * cb[i]
		}
		for i := ns; i < len(ca); i++ {
			ca[i] = scale * cb[i]
		}
		a.SetHasDetail(true)
	default:
		for i := 0; i < ns; i++ {
			ca[i] += scale * cb[i]
		}
		if a.st.log != nil {
			a.st.log.Infof("combine: neither side has detail at rank %d", a.rank)
		}
	}
}

// Add folds scale times other into the receiving tree, top down. The
// result keeps the union of both structures: where one operand is refined
// deeper than the other, the shallower side's scaling representation is
// synthesized down to match. Children synthesized on the receiving side are
// permanent, they carry merged data. Children synthesized on the operand
// side are scratch and are released in one sweep before returning, leaving
// other structurally as it was.
func (st *SerialTree) Add(scale float64, other *Tree) error {
	t := st.tree
	if t.Kernel == nil || other.Kernel == nil {
		return ErrKernelRequired
	}
	if err := sameRootBox(t, other); err != nil {
		return err
	}
	ost := other.ser

	type pair struct{ a, b Node }
	stack := make([]pair, 0, 64)
	for i := t.RootCount() - 1; i >= 0; i-- {
		stack = append(stack, pair{t.Root(i), other.Root(i)})
	}

	var leafNorm float64
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		a, b := p.a, p.b

		if a.ChildCount()+b.ChildCount() > 0 {
			if a.ChildCount() == 0 {
				if err := st.SynthesizeChildren(a, false); err != nil {
					return err
				}
			}
			if b.ChildCount() == 0 {
				if err := ost.SynthesizeChildren(b, true); err != nil {
					return err
				}
			}
			for i := a.ChildCount() - 1; i >= 0; i-- {
				stack = append(stack, pair{a.Child(i), b.Child(i)})
			}
		}

		combineCoeffs(a, b, scale)
		a.CalcNorms()
		if a.ChildCount() == 0 {
			leafNorm += a.SquareNorm()
		}
	}

	t.SquareNorm = leafNorm
	st.writeSquareNorm(leafNorm)
	t.ResetEndNodeTable()
	ost.ReleaseGenerated()
	return nil
}

// ReleaseGenerated frees every generated node in the tree, detaching them
// from their permanent parents, and returns how many were released. The
// release runs in descending rank order so the pool tops recede all the
// way rather than leaving holes.
func (st *SerialTree) ReleaseGenerated() int32 {
	t := st.tree

	var gen []Node
	stack := make([]Node, 0, 64)
	for i := t.RootCount() - 1; i >= 0; i-- {
		stack = append(stack, t.Root(i))
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsGenerated() {
			gen = append(gen, n)
		}
		for i := n.ChildCount() - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	if len(gen) == 0 {
		return 0
	}

	for _, g := range gen {
		if p, ok := g.Parent(); ok && !p.IsGenerated() {
			p.clearChildren()
		}
	}
	sort.Slice(gen, func(i, j int) bool { return gen[i].rank > gen[j].rank })
	for _, g := range gen {
		st.genCoeffs.release(g.coeffIndex())
		st.nodes.release(g.rank)
	}

	t.NodeCount -= int32(len(gen))
	st.writeNodeCount(t.NodeCount)
	t.ResetEndNodeTable()
	return int32(len(gen))
}
