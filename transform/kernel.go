// Package transform implements the separable multiwavelet transform between
// a parent coefficient block and its 2^d children. It operates on raw
// []float64 views with an explicit children stride, so callers can point it
// directly at blocks living inside a serialized arena without copying.
package transform

import (
	"errors"
	"fmt"

	"github.com/qlycool/mrcpp/filter"
)

var (
	ErrDimensionUnsupported = errors.New("wavelet transform implemented for 3 dimensions only")
	ErrBufferSize           = errors.New("coefficient buffer too small for transform")
	ErrStride               = errors.New("children stride smaller than a scaling block")
)

// Kernel binds a filter to a dimensionality and precomputes the block sizes
// the sweeps use. A kernel is read-only after construction and safe for
// concurrent use.
type Kernel struct {
	flt *filter.Filter

	dims   int
	tdim   int // 2^dims blocks per node
	kp1    int // order+1 coefficients per axis
	kp1d   int // (order+1)^dims, one scaling block
	kp1dm1 int // (order+1)^(dims-1), the transform slab size
}

func NewKernel(flt *filter.Filter, dims int) (*Kernel, error) {
	if dims != 3 {
		return nil, fmt.Errorf("%w: dims=%d", ErrDimensionUnsupported, dims)
	}
	kp1 := flt.Order + 1
	k := &Kernel{
		flt:    flt,
		dims:   dims,
		tdim:   1 << dims,
		kp1:    kp1,
		kp1d:   kp1 * kp1 * kp1,
		kp1dm1: kp1 * kp1,
	}
	return k, nil
}

func (k *Kernel) Dims() int { return k.dims }

// ScalingSize is the number of coefficients in one scaling block.
func (k *Kernel) ScalingSize() int { return k.kp1d }

// BlockSize is the number of coefficients in one full node block: the
// scaling block followed by 2^dims-1 detail blocks.
func (k *Kernel) BlockSize() int { return k.tdim * k.kp1d }

// Synthesize computes the scaling coefficients of all 2^dims children from
// one parent block. parent holds the full block (scaling + detail).
// children holds the child scaling blocks at the given stride; the child i
// scaling block occupies children[i*stride : i*stride+ScalingSize()].
//
// The head of children, up to BlockSize() coefficients, is used as scratch
// by the first sweep and is fully rewritten before return.
//
// When scalingOnly is set the parent detail blocks are ignored and only the
// scaling part contributes, which is the pure scaling projection used when
// generating children below a node without stored details.
func (k *Kernel) Synthesize(parent, children []float64, scalingOnly bool, stride int) error {
	if len(parent) < k.BlockSize() {
		return fmt.Errorf("%w: parent %d < %d", ErrBufferSize, len(parent), k.BlockSize())
	}
	if stride < k.kp1d {
		return fmt.Errorf("%w: stride %d < %d", ErrStride, stride, k.kp1d)
	}
	need := (k.tdim-1)*stride + k.kp1d
	if need < k.BlockSize() {
		need = k.BlockSize()
	}
	if len(children) < need {
		return fmt.Errorf("%w: children %d < %d", ErrBufferSize, len(children), need)
	}

	ftlim, ftlim2, ftlim3 := k.tdim, k.tdim, k.tdim
	if scalingOnly {
		ftlim, ftlim2, ftlim3 = 1, 2, 4
	}
	tmp := make([]float64, k.BlockSize())

	// first axis: parent blocks into packed scratch at the head of children
	if err := k.sweep(children, parent, k.kp1d, k.kp1d, 0, ftlim, filter.Reconstruction); err != nil {
		return err
	}
	// second axis: scratch into tmp
	if err := k.sweep(tmp, children, k.kp1d, k.kp1d, 1, ftlim2, filter.Reconstruction); err != nil {
		return err
	}
	// last axis: tmp into the strided child scaling blocks
	return k.sweep(children, tmp, stride, k.kp1d, 2, ftlim3, filter.Reconstruction)
}

// Analyze is the adjoint of Synthesize: it rebuilds the full parent block
// (scaling + detail) from the scaling blocks of all 2^dims children.
// children is read at the given stride, parent must hold BlockSize()
// coefficients and is fully overwritten.
func (k *Kernel) Analyze(children, parent []float64, stride int) error {
	if len(parent) < k.BlockSize() {
		return fmt.Errorf("%w: parent %d < %d", ErrBufferSize, len(parent), k.BlockSize())
	}
	if stride < k.kp1d {
		return fmt.Errorf("%w: stride %d < %d", ErrStride, stride, k.kp1d)
	}
	if need := (k.tdim-1)*stride + k.kp1d; len(children) < need {
		return fmt.Errorf("%w: children %d < %d", ErrBufferSize, len(children), need)
	}

	tmp := make([]float64, k.BlockSize())

	// first axis: strided child scaling blocks into the parent block
	if err := k.sweep(parent, children, k.kp1d, stride, 0, k.tdim, filter.Compression); err != nil {
		return err
	}
	// second axis: parent into tmp
	if err := k.sweep(tmp, parent, k.kp1d, k.kp1d, 1, k.tdim, filter.Compression); err != nil {
		return err
	}
	// last axis: tmp back into parent
	return k.sweep(parent, tmp, k.kp1d, k.kp1d, 2, k.tdim, filter.Compression)
}

// sweep applies the axis transform for every output block gt, accumulating
// the contributions of each input block ft whose index agrees with gt on
// the other two axes. The first contribution to a block overwrites it, so
// no zeroing pass is needed.
func (k *Kernel) sweep(out, in []float64, outStride, inStride, axis, ftlim int, op filter.Operation) error {
	mask := 1 << axis
	for gt := 0; gt < k.tdim; gt++ {
		dst := out[gt*outStride:]
		overwrite := true
		for ft := 0; ft < ftlim; ft++ {
			if (gt | mask) != (ft | mask) {
				continue
			}
			oper, err := k.flt.SubFilter(2*((gt>>axis)&1)+((ft>>axis)&1), op)
			if err != nil {
				return err
			}
			applyFilter(dst, in[ft*inStride:], oper, k.kp1, k.kp1dm1, overwrite)
			overwrite = false
		}
	}
	return nil
}

// applyFilter contracts the fastest axis of the input block with the
// sub-filter and rotates it to the slowest position of the output block:
//
//	out[l*kp1dm1+j] = sum_m in[j*kp1+m] * oper(m,l)
//
// Three applications therefore cycle every axis through the filter once.
func applyFilter(out, in []float64, oper *filter.Matrix, kp1, kp1dm1 int, overwrite bool) {
	for l := 0; l < kp1; l++ {
		for j := 0; j < kp1dm1; j++ {
			var s float64
			row := in[j*kp1 : j*kp1+kp1]
			for m, v := range row {
				s += v * oper.At(m, l)
			}
			if overwrite {
				out[l*kp1dm1+j] = s
			} else {
				out[l*kp1dm1+j] += s
			}
		}
	}
}
