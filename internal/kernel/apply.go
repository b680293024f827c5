package kernel

import (
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
	"github.com/meadow-ml/meadow/settings"
)

// Apply applies a kernel to two point batches. Under lazy evaluation
// (the default) the result wraps a LazyKernelTensor that defers all
// matrix computation; with lazy evaluation disabled the kernel is
// forced immediately, which is what nested lazy nodes rely on to
// terminate recursion.
func Apply(k Kernel, x1, x2 *tensor.RawTensor, backend tensor.Backend, opts ...Option) (operator.Value, error) {
	node, err := NewLazyKernelTensor(x1, x2, k, backend, opts...)
	if err != nil {
		return operator.Value{}, err
	}
	if settings.LazilyEvaluateKernels() {
		return operator.FromOperator(node), nil
	}
	op, err := node.EvaluateKernel()
	if err != nil {
		return operator.Value{}, err
	}
	return operator.FromOperator(op), nil
}
