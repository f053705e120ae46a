package serial

// AddCompress folds scale times other into the receiving tree bottom up.
// The descent phase synthesizes both sides down to the union structure,
// exactly as Add does, but no coefficients are combined on the way down.
// Instead, when the traversal has finished every subtree of a sibling
// group (detected at the group's first child), the leaf siblings are
// combined and the parent's whole block is rebuilt from its children by
// the analysis transform. The result is therefore already recompressed:
// every internal node's scaling and detail are consistent with the leaves
// below it.
func (st *SerialTree) AddCompress(scale float64, other *Tree) error {
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
	// root 0 sits at the bottom; reaching it again means the whole forest
	// has been ascended
	for i := 0; i < t.RootCount(); i++ {
		stack = append(stack, pair{t.Root(i), other.Root(i)})
	}

	var leafNorm float64
	descending := true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		a, b := p.a, p.b

		if descending && a.ChildCount()+b.ChildCount() > 0 {
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
			// children in order: the group's child 0 ends up deepest and
			// is reached only after every elder sibling's subtree is done
			for i := 0; i < a.ChildCount(); i++ {
				stack = append(stack, pair{a.Child(i), b.Child(i)})
			}
			descending = true
			continue
		}

		pa, hasParent := a.Parent()
		youngest := hasParent && pa.Child(0).rank == a.rank

		if !youngest && len(stack) > 1 {
			// an elder sibling's subtree is finished, keep ascending
			stack = stack[:len(stack)-1]
			descending = true
			continue
		}

		// the whole sibling group (or the root set, at the bottom of the
		// stack) is finished: combine its leaves, rebuild the parent
		groupSize := t.RootCount()
		if hasParent {
			groupSize = st.tdim
		}
		pb, _ := b.Parent()
		for i := 0; i < groupSize; i++ {
			var aa, bb Node
			if hasParent {
				aa, bb = pa.Child(i), pb.Child(i)
			} else {
				aa, bb = t.Root(i), other.Root(i)
			}
			if aa.ChildCount() != 0 {
				continue
			}
			combineCoeffs(aa, bb, scale)
			aa.CalcNorms()
			leafNorm += aa.SquareNorm()
		}
		if hasParent {
			view, err := st.childrenCoeffView(pa)
			if err != nil {
				return err
			}
			if err = t.Kernel.Analyze(view, pa.Coeffs(), st.coeffWords); err != nil {
				return err
			}
			pa.SetHasDetail(true)
			pa.CalcNorms()
		}
		stack = stack[:len(stack)-1]
		descending = false
	}

	t.SquareNorm = leafNorm
	st.writeSquareNorm(leafNorm)
	t.ResetEndNodeTable()
	ost.ReleaseGenerated()
	return nil
}
