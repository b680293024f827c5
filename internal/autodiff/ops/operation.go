// Package ops defines operation interfaces and implementations for automatic differentiation.
//
// Each operation implements the Operation interface: the forward pass is
// computed by the wrapped backend, the backward pass here computes input
// gradients given the output gradient. The op set covers what kernel
// functions and the checkpointed execution path actually run: element-wise
// arithmetic, matrix products, reductions, and the structural ops (narrow,
// repeat, expand, cat, split) used for chunking and broadcasting.
package ops

import "github.com/meadow-ml/meadow/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// MultiOutputOperation represents an operation that produces multiple
// outputs, e.g. Split. The tape collects gradients for ALL outputs before
// calling BackwardMulti.
type MultiOutputOperation interface {
	Operation

	// Outputs returns all output tensors produced by this operation.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes gradients for inputs given gradients for ALL outputs.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
