package serial

// Recompress rebuilds every internal node's coefficients from the leaves
// up: each parent whose children are all settled gets its whole block
// recomputed by the analysis transform. Leaf coefficients are never
// touched, so running it twice is a no-op. This is the standalone pass for
// trees whose leaf data was edited in place; AddCompress produces already
// recompressed trees.
func (st *SerialTree) Recompress() error {
	t := st.tree
	if t.Kernel == nil {
		return ErrKernelRequired
	}

	// settled[rank]: the subtree below rank is consistent
	settled := make([]bool, st.nodes.allocated())
	stack := make([]Node, 0, 64)
	for i := 0; i < t.RootCount(); i++ {
		root := t.Root(i)
		if root.ChildCount() == 0 {
			settled[root.rank] = true
			continue
		}
		stack = append(stack, root)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		if n.ChildCount() > 0 && !settled[n.rank] {
			ready := 0
			for i := 0; i < n.ChildCount(); i++ {
				c := n.Child(i)
				if c.ChildCount() == 0 || settled[c.rank] {
					ready++
					continue
				}
				stack = append(stack, c)
			}
			if ready < n.ChildCount() {
				continue
			}
			view, err := st.childrenCoeffView(n)
			if err != nil {
				return err
			}
			if err = t.Kernel.Analyze(view, n.Coeffs(), st.coeffWords); err != nil {
				return err
			}
			n.SetHasDetail(true)
			n.CalcNorms()
			settled[n.rank] = true
			continue
		}
		settled[n.rank] = true
		stack = stack[:len(stack)-1]
	}
	return nil
}
