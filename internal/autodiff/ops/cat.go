package ops

import "github.com/meadow-ml/meadow/internal/tensor"

// CatOp represents concatenation of tensors along one dimension.
//
// Backward pass: the gradient is split back into pieces matching the
// input extents along the concatenation dimension.
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{
		inputs: inputs,
		output: output,
		dim:    dim,
	}
}

// Backward narrows the gradient into per-input pieces.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dim := op.dim
	if dim < 0 {
		dim += len(op.output.Shape())
	}
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		length := in.Shape()[dim]
		grads[i] = backend.Narrow(outputGrad, dim, offset, length)
		offset += length
	}
	return grads
}

// Inputs returns the concatenated input tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// SplitOp represents splitting a tensor into chunks along one dimension.
// It is a multi-output operation: each chunk is a separate output.
//
// Backward pass: the chunk gradients are concatenated back together.
// Missing chunk gradients are treated as zeros.
type SplitOp struct {
	input   *tensor.RawTensor
	outputs []*tensor.RawTensor
	dim     int
}

// NewSplitOp creates a new SplitOp.
func NewSplitOp(input *tensor.RawTensor, outputs []*tensor.RawTensor, dim int) *SplitOp {
	return &SplitOp{
		input:   input,
		outputs: outputs,
		dim:     dim,
	}
}

// Backward is unused for multi-output operations; BackwardMulti is
// called instead. It exists to satisfy the Operation interface.
func (op *SplitOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return op.BackwardMulti([]*tensor.RawTensor{outputGrad}, backend)
}

// BackwardMulti concatenates the chunk gradients.
func (op *SplitOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	dim := op.dim
	if dim < 0 {
		dim += len(op.input.Shape())
	}
	pieces := make([]*tensor.RawTensor, len(op.outputs))
	for i, out := range op.outputs {
		if i < len(outputGrads) && outputGrads[i] != nil {
			pieces[i] = outputGrads[i]
		} else {
			pieces[i] = tensor.RawZeros(out.Shape(), out.DType(), out.Device())
		}
	}
	if len(pieces) == 1 {
		return []*tensor.RawTensor{pieces[0].Clone()}
	}
	return []*tensor.RawTensor{backend.Cat(pieces, dim)}
}

// Inputs returns the input tensor.
func (op *SplitOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the first chunk.
func (op *SplitOp) Output() *tensor.RawTensor {
	return op.outputs[0]
}

// Outputs returns all chunks.
func (op *SplitOp) Outputs() []*tensor.RawTensor {
	return op.outputs
}
