package ops

import "github.com/meadow-ml/meadow/internal/tensor"

// NarrowOp represents a contiguous slice along one dimension:
// y = narrow(x, dim, start, length).
//
// Backward pass: the gradient is padded with zeros on both sides of
// the slice so it matches the input shape.
type NarrowOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	dim    int
	start  int
	length int
}

// NewNarrowOp creates a new NarrowOp.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start, length int) *NarrowOp {
	return &NarrowOp{
		input:  input,
		output: output,
		dim:    dim,
		start:  start,
		length: length,
	}
}

// Backward zero-pads the gradient back to the input extent.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.input.Shape()
	dim := op.dim
	if dim < 0 {
		dim += len(inShape)
	}

	pieces := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		before := inShape.Clone()
		before[dim] = op.start
		pieces = append(pieces, tensor.RawZeros(before, op.input.DType(), op.input.Device()))
	}
	pieces = append(pieces, outputGrad)
	if rest := inShape[dim] - op.start - op.length; rest > 0 {
		after := inShape.Clone()
		after[dim] = rest
		pieces = append(pieces, tensor.RawZeros(after, op.input.DType(), op.input.Device()))
	}

	if len(pieces) == 1 {
		return []*tensor.RawTensor{outputGrad.Clone()}
	}
	return []*tensor.RawTensor{backend.Cat(pieces, dim)}
}

// Inputs returns the input tensor.
func (op *NarrowOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *NarrowOp) Output() *tensor.RawTensor {
	return op.output
}

// IndexSelectOp represents gathering rows along one dimension:
// y = index_select(x, dim, indices).
//
// Backward pass: scatter-add the gradient rows back onto the selected
// positions. Repeated indices accumulate.
type IndexSelectOp struct {
	input   *tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	indices []int
}

// NewIndexSelectOp creates a new IndexSelectOp.
func NewIndexSelectOp(input, output *tensor.RawTensor, dim int, indices []int) *IndexSelectOp {
	return &IndexSelectOp{
		input:   input,
		output:  output,
		dim:     dim,
		indices: indices,
	}
}

// Backward scatter-adds gradient slices to the source positions.
func (op *IndexSelectOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	inShape := op.input.Shape()
	dim := op.dim
	if dim < 0 {
		dim += len(inShape)
	}

	gradInput := tensor.RawZeros(inShape, op.input.DType(), op.input.Device())

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= inShape[i]
	}
	inner := 1
	for i := dim + 1; i < len(inShape); i++ {
		inner *= inShape[i]
	}
	dimSize := inShape[dim]
	selCount := len(op.indices)

	switch op.input.DType() {
	case tensor.Float32:
		src := outputGrad.AsFloat32()
		dst := gradInput.AsFloat32()
		for o := 0; o < outer; o++ {
			for s, idx := range op.indices {
				srcOff := (o*selCount + s) * inner
				dstOff := (o*dimSize + idx) * inner
				for i := 0; i < inner; i++ {
					dst[dstOff+i] += src[srcOff+i]
				}
			}
		}
	case tensor.Float64:
		src := outputGrad.AsFloat64()
		dst := gradInput.AsFloat64()
		for o := 0; o < outer; o++ {
			for s, idx := range op.indices {
				srcOff := (o*selCount + s) * inner
				dstOff := (o*dimSize + idx) * inner
				for i := 0; i < inner; i++ {
					dst[dstOff+i] += src[srcOff+i]
				}
			}
		}
	default:
		panic("index_select backward: unsupported dtype " + op.input.DType().String())
	}

	return []*tensor.RawTensor{gradInput}
}

// Inputs returns the input tensor.
func (op *IndexSelectOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *IndexSelectOp) Output() *tensor.RawTensor {
	return op.output
}
