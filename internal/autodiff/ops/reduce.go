package ops

import "github.com/meadow-ml/meadow/internal/tensor"

// SumDimOp represents summation over one dimension: y = sum(x, dim).
//
// Backward pass: the gradient is broadcast back along the reduced
// dimension, since every summed element contributes equally.
type SumDimOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		input:   input,
		output:  output,
		dim:     dim,
		keepDim: keepDim,
	}
}

// Backward broadcasts the gradient along the reduced dimension.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grad := outputGrad
	if !op.keepDim {
		dim := op.dim
		if dim < 0 {
			dim += len(op.input.Shape())
		}
		grad = backend.Unsqueeze(grad, dim)
	}
	return []*tensor.RawTensor{backend.Expand(grad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}
