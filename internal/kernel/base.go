package kernel

import "github.com/meadow-ml/meadow/internal/tensor"

// BaseKernel carries the state every kernel shares: batch shape, the
// active-dims restriction, and the parameter list. Concrete kernels
// embed it and implement Invoke.
type BaseKernel struct {
	batchShape tensor.Shape
	activeDims []int
	params     []*Param
}

// NumOutputsPerInput returns (1, 1): one matrix row and column per
// input point. Multi-output kernels override this.
func (b *BaseKernel) NumOutputsPerInput(_, _ *tensor.RawTensor) (int, int) {
	return 1, 1
}

// BatchShape returns the kernel's batch dimensions.
func (b *BaseKernel) BatchShape() tensor.Shape {
	return b.batchShape
}

// ActiveDims returns the feature dimensions the kernel attends to.
func (b *BaseKernel) ActiveDims() []int {
	return b.activeDims
}

// SetActiveDims restricts or (with nil) unrestricts the feature
// dimensions the kernel attends to.
func (b *BaseKernel) SetActiveDims(dims []int) {
	b.activeDims = dims
}

// Params returns the kernel's hyperparameters.
func (b *BaseKernel) Params() []*Param {
	return b.params
}

// selectActive applies the active-dims restriction to a point batch.
func (b *BaseKernel) selectActive(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	if b.activeDims == nil {
		return x
	}
	return backend.IndexSelect(x, len(x.Shape())-1, b.activeDims)
}

// swapLastTwoAxes builds the permutation exchanging the trailing two
// dimensions of an ndim tensor.
func swapLastTwoAxes(ndim int) []int {
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	return axes
}

// matmulBroadcast multiplies two stacks of matrices, broadcasting their
// batch dimensions against each other first.
func matmulBroadcast(backend tensor.Backend, a, b *tensor.RawTensor) (*tensor.RawTensor, error) {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) == 2 && len(bShape) == 2 {
		return backend.MatMul(a, b), nil
	}
	batch, _, err := tensor.BroadcastShapes(aShape.Batch(), bShape.Batch())
	if err != nil {
		return nil, err
	}
	if !aShape.Batch().Equal(batch) {
		a = backend.Expand(a, append(batch.Clone(), aShape[len(aShape)-2], aShape[len(aShape)-1]))
	}
	if !bShape.Batch().Equal(batch) {
		b = backend.Expand(b, append(batch.Clone(), bShape[len(bShape)-2], bShape[len(bShape)-1]))
	}
	return backend.BatchMatMul(a, b), nil
}
