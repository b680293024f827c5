// Package kernel implements lazy, structured evaluation of kernel
// (covariance) matrices. Applying a kernel to two point batches yields a
// LazyKernelTensor: a deferred node that answers shape, diagonal,
// sub-block, and matvec queries without materializing the full matrix,
// and forces dense evaluation only when an algorithm genuinely needs it.
package kernel

import (
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// Param is a kernel hyperparameter with gradient tracking. Grad is
// populated by the checkpointed gradient path; nil means no gradient
// has been computed yet.
type Param struct {
	Name         string
	Value        *tensor.RawTensor
	RequiresGrad bool
	Grad         *tensor.RawTensor
}

// Kernel is the covariance-function capability consumed by lazy kernel
// tensors. Implementations compute k(x1, x2) over batched point sets.
//
// Point batches are shaped (...batch dims..., num_points, feature_dim).
// Invoke returns either a dense matrix or a structured operator, carried
// uniformly in an operator.Value.
type Kernel interface {
	// Invoke evaluates the kernel on two point batches. When diag is
	// set, only the matrix diagonal is computed, shaped (..., n).
	// When lastDimIsBatch is set, the trailing feature dimension is
	// treated as an extra batch dimension in the output. extra carries
	// auxiliary keyword arguments forwarded on every invocation.
	Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, extra map[string]any) (operator.Value, error)

	// NumOutputsPerInput returns how many logical matrix rows and
	// columns each input point expands to. Plain kernels return (1, 1);
	// multi-output kernels return larger factors.
	NumOutputsPerInput(x1, x2 *tensor.RawTensor) (rows, cols int)

	// BatchShape returns the kernel's own batch dimensions, broadcast
	// against the input batch dimensions during shape resolution.
	BatchShape() tensor.Shape

	// ActiveDims returns which feature dimensions the kernel attends
	// to. nil means all.
	ActiveDims() []int

	// SetActiveDims restricts the kernel to the given feature
	// dimensions. Passing nil clears the restriction.
	SetActiveDims(dims []int)

	// Params returns the kernel's hyperparameters.
	Params() []*Param
}

// BatchIndexer is implemented by kernels whose batch dimensions can be
// sub-selected. Sub-indexing a lazy kernel tensor with non-trivial
// batch indices requires this capability.
type BatchIndexer interface {
	IndexBatch(idx []tensor.Index) (Kernel, error)
}

// BatchExpander is implemented by kernels whose batch dimensions can be
// broadcast to a larger shape before indexing.
type BatchExpander interface {
	ExpandBatch(batch tensor.Shape) (Kernel, error)
}

// Sizer is an alternative shape protocol: a kernel reporting its output
// shape directly instead of through NumOutputsPerInput. A kernel must
// pick one protocol; lazy tensors reject kernels exposing both.
type Sizer interface {
	Size(x1, x2 *tensor.RawTensor) tensor.Shape
}

// withActiveDimsCleared runs fn with the kernel's active-dims
// restriction cleared, restoring the previous value on every exit path.
// Not safe for concurrent use of the same kernel handle.
func withActiveDimsCleared(k Kernel, fn func() error) error {
	saved := k.ActiveDims()
	k.SetActiveDims(nil)
	defer k.SetActiveDims(saved)
	return fn()
}
