package ops

import "github.com/meadow-ml/meadow/internal/tensor"

// ReshapeOp represents a shape change that preserves element order.
// Unsqueeze and Squeeze are recorded as reshapes too.
//
// Backward pass: grad_input = reshape(grad_output, input_shape).
type ReshapeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{
		input:  input,
		output: output,
	}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *ReshapeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ReshapeOp) Output() *tensor.RawTensor {
	return op.output
}

// TransposeOp represents an axes permutation: y = transpose(x, axes).
//
// Backward pass: grad_input = transpose(grad_output, inverse(axes)).
type TransposeOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	axes   []int
}

// NewTransposeOp creates a new TransposeOp. An empty axes slice means
// the default reversal of all dimensions.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	return &TransposeOp{
		input:  input,
		output: output,
		axes:   axes,
	}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	ndim := len(op.input.Shape())
	axes := op.axes
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	inverse := make([]int, ndim)
	for i, a := range axes {
		inverse[a] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// Inputs returns the input tensor.
func (op *TransposeOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *TransposeOp) Output() *tensor.RawTensor {
	return op.output
}

// ExpandOp represents broadcasting to a larger shape: y = expand(x, shape).
//
// Backward pass: gradients along expanded dimensions are summed back
// into the original shape.
type ExpandOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewExpandOp creates a new ExpandOp.
func NewExpandOp(input, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{
		input:  input,
		output: output,
	}
}

// Backward folds the gradient back to the input shape.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(outputGrad, op.input.Shape(), backend)}
}

// Inputs returns the input tensor.
func (op *ExpandOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *ExpandOp) Output() *tensor.RawTensor {
	return op.output
}

// RepeatOp represents tiling: y = repeat(x, repeats).
//
// Backward pass: gradients of all tiles are accumulated back onto
// the original elements.
type RepeatOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewRepeatOp creates a new RepeatOp.
func NewRepeatOp(input, output *tensor.RawTensor) *RepeatOp {
	return &RepeatOp{
		input:  input,
		output: output,
	}
}

// Backward accumulates tile gradients onto the source elements.
func (op *RepeatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{foldToShape(outputGrad, op.input.Shape())}
}

// Inputs returns the input tensor.
func (op *RepeatOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *RepeatOp) Output() *tensor.RawTensor {
	return op.output
}
