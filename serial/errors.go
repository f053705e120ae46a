package serial

import "errors"

var (
	// ErrNodePoolFull is terminal for the tree: callers must not retry the
	// operation that hit it, the arena capacity is fixed at construction.
	ErrNodePoolFull     = errors.New("node slot pool exhausted")
	ErrCoeffPoolFull    = errors.New("coefficient pool exhausted")
	ErrGenCoeffPoolFull = errors.New("generated coefficient pool exhausted")

	ErrArenaSize   = errors.New("arena byte length does not match the header geometry")
	ErrTreeMagic   = errors.New("bad arena magic")
	ErrTreeVersion = errors.New("unsupported arena version")

	// ErrTreeConfigMismatch is returned when an arena is reconstructed into
	// a tree whose order, dimensionality or root box disagree with the
	// arena header.
	ErrTreeConfigMismatch = errors.New("arena header does not match the receiving tree")

	// ErrRootBoxMismatch is returned when the two operands of a merge do
	// not share a root box.
	ErrRootBoxMismatch = errors.New("operand root boxes differ")

	// ErrKernelRequired is returned by operations that need a wavelet
	// kernel on a tree constructed without one.
	ErrKernelRequired = errors.New("tree has no wavelet kernel")

	// ErrGeneratedNodeInArena is returned when rehydration encounters a
	// node flagged generated: generated nodes are scratch and must be
	// released before serialization.
	ErrGeneratedNodeInArena = errors.New("serialized arena contains a generated node")

	// ErrCoeffNotContiguous is returned when a sibling group's coefficient
	// blocks do not form one contiguous run, which the transform kernel's
	// strided children view requires.
	ErrCoeffNotContiguous = errors.New("sibling coefficient blocks are not contiguous")

	// ErrArenaCorrupt is returned when the slot relations of a received
	// arena do not describe a forest: out of range ranks, shared slots or
	// shared coefficient blocks.
	ErrArenaCorrupt = errors.New("arena slot relations are corrupt")

	ErrRankBounds    = errors.New("node rank out of bounds")
	ErrHasChildren   = errors.New("node already has children")
	ErrStateMismatch = errors.New("tree state checkpoint does not match the tree")
)
