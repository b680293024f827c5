package cpu

import (
	"fmt"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// Cat concatenates tensors along the specified dimension.
//
// All tensors must have the same shape except along the concatenation
// dimension. Supports negative dim indexing (-1 = last dimension).
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	dtype := tensors[0].DType()
	dim = normalizeDim("cat", dim, ndim)

	totalDim := 0
	for i, t := range tensors {
		tShape := t.Shape()
		if len(tShape) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dimensions, expected %d", i, len(tShape), ndim))
		}
		if t.DType() != dtype {
			panic(fmt.Sprintf("cat: tensor %d has dtype %s, expected %s", i, t.DType(), dtype))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += tShape[d]
			} else if tShape[d] != shape[d] {
				panic(fmt.Sprintf("cat: tensor %d dimension %d is %d, expected %d", i, d, tShape[d], shape[d]))
			}
		}
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim
	result, err := tensor.NewRaw(outShape, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	// A concat along dim is a block-interleaved byte copy: group the leading
	// dims into an outer loop and copy contiguous (dim..last) rows.
	elemSize := dtype.Size()
	outer := shape[:dim].NumElements()
	innerElems := shape[dim+1:].NumElements()
	dst := result.Data()
	rowBytesOut := totalDim * innerElems * elemSize

	colOffset := 0
	for _, t := range tensors {
		src := t.Data()
		rowBytesIn := t.Shape()[dim] * innerElems * elemSize
		for o := 0; o < outer; o++ {
			dstStart := o*rowBytesOut + colOffset
			copy(dst[dstStart:dstStart+rowBytesIn], src[o*rowBytesIn:(o+1)*rowBytesIn])
		}
		colOffset += rowBytesIn
	}
	return result
}

// Split divides x into chunks of at most splitSize along dim; the final chunk
// may be smaller. Supports negative dim indexing.
func (cpu *CPUBackend) Split(x *tensor.RawTensor, splitSize, dim int) []*tensor.RawTensor {
	if splitSize <= 0 {
		panic(fmt.Sprintf("split: split size must be positive, got %d", splitSize))
	}
	ndim := len(x.Shape())
	dim = normalizeDim("split", dim, ndim)

	dimSize := x.Shape()[dim]
	var parts []*tensor.RawTensor
	for start := 0; start < dimSize; start += splitSize {
		length := splitSize
		if start+length > dimSize {
			length = dimSize - start
		}
		parts = append(parts, cpu.Narrow(x, dim, start, length))
	}
	return parts
}

// Narrow returns the [start, start+length) range of a dimension as a new
// tensor. Supports negative dim indexing.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	dim = normalizeDim("narrow", dim, ndim)

	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d (size %d)",
			start, start+length, dim, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("narrow: %v", err))
	}

	elemSize := x.DType().Size()
	outer := shape[:dim].NumElements()
	innerBytes := shape[dim+1:].NumElements() * elemSize
	src := x.Data()
	dst := result.Data()

	srcRow := shape[dim] * innerBytes
	dstRow := length * innerBytes
	for o := 0; o < outer; o++ {
		srcStart := o*srcRow + start*innerBytes
		copy(dst[o*dstRow:(o+1)*dstRow], src[srcStart:srcStart+dstRow])
	}
	return result
}

// Repeat tiles x along each dimension by the given factors. len(repeats)
// must be >= the number of dimensions; extra leading factors add new
// dimensions (NumPy tile semantics).
func (cpu *CPUBackend) Repeat(x *tensor.RawTensor, repeats []int) *tensor.RawTensor {
	shape := x.Shape()
	if len(repeats) < len(shape) {
		panic(fmt.Sprintf("repeat: got %d factors for %dD tensor", len(repeats), len(shape)))
	}
	for i, r := range repeats {
		if r <= 0 {
			panic(fmt.Sprintf("repeat: factor %d at position %d must be positive", r, i))
		}
	}

	// Left-pad the input shape with 1s to match the repeat rank.
	padded := make(tensor.Shape, len(repeats))
	offset := len(repeats) - len(shape)
	for i := range padded {
		if i < offset {
			padded[i] = 1
		} else {
			padded[i] = shape[i-offset]
		}
	}

	outShape := make(tensor.Shape, len(repeats))
	for i := range outShape {
		outShape[i] = padded[i] * repeats[i]
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("repeat: %v", err))
	}

	inStrides := padded.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	total := outShape.NumElements()
	elemSize := x.DType().Size()
	src := x.Data()
	dst := result.Data()

	for i := 0; i < total; i++ {
		rem := i
		srcIdx := 0
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			srcIdx += (coord % padded[d]) * inStrides[d]
		}
		copy(dst[i*elemSize:(i+1)*elemSize], src[srcIdx*elemSize:(srcIdx+1)*elemSize])
	}
	return result
}

// IndexSelect picks the given positions along a dimension, in order.
// Supports negative dim indexing; indices may repeat.
func (cpu *CPUBackend) IndexSelect(x *tensor.RawTensor, dim int, indices []int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	dim = normalizeDim("index select", dim, ndim)

	if len(indices) == 0 {
		panic("index select: at least one index required")
	}
	for _, idx := range indices {
		if idx < 0 || idx >= shape[dim] {
			panic(fmt.Sprintf("index select: index %d out of range for dimension %d (size %d)", idx, dim, shape[dim]))
		}
	}

	outShape := shape.Clone()
	outShape[dim] = len(indices)
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("index select: %v", err))
	}

	elemSize := x.DType().Size()
	outer := shape[:dim].NumElements()
	innerBytes := shape[dim+1:].NumElements() * elemSize
	src := x.Data()
	dst := result.Data()

	srcRow := shape[dim] * innerBytes
	dstRow := len(indices) * innerBytes
	for o := 0; o < outer; o++ {
		for j, idx := range indices {
			srcStart := o*srcRow + idx*innerBytes
			dstStart := o*dstRow + j*innerBytes
			copy(dst[dstStart:dstStart+innerBytes], src[srcStart:srcStart+innerBytes])
		}
	}
	return result
}

// Unsqueeze adds a dimension of size 1 at the specified position.
// Supports negative dim indexing. This is a reshape.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	// Valid insertion range is [0, ndim].
	if dim < 0 {
		dim = ndim + 1 + dim
	}
	if dim < 0 || dim > ndim {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range for %dD tensor (valid: [0, %d])", dim, ndim, ndim))
	}

	newShape := make(tensor.Shape, 0, ndim+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return cpu.Reshape(x, newShape)
}

// Squeeze removes a dimension of size 1 at the specified position.
// Panics if the dimension size is not 1. This is a reshape.
func (cpu *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	dim = normalizeDim("squeeze", dim, ndim)

	if shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, must be 1", dim, shape[dim]))
	}

	newShape := make(tensor.Shape, 0, ndim-1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, shape[dim+1:]...)
	return cpu.Reshape(x, newShape)
}

// normalizeDim resolves negative dims and bounds-checks.
func normalizeDim(op string, dim, ndim int) int {
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dimension %d out of range for %dD tensor", op, dim, ndim))
	}
	return dim
}
