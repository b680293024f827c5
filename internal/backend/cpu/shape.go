package cpu

import (
	"fmt"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// Element count must be preserved.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if x.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			x.Shape(), x.NumElements(), newShape, newShape.NumElements()))
	}

	result, err := tensor.NewRaw(newShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	copy(result.Data(), x.Data()[:x.ByteSize()])
	return result
}

// Transpose permutes dimensions. With no axes, all dimensions are reversed
// (for a 2D tensor this is the usual matrix transpose).
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 {
			ax += ndim
			axes[i] = ax
		}
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for %dD tensor", axes, ndim))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	total := x.NumElements()
	elemSize := x.DType().Size()
	src := x.Data()
	dst := result.Data()

	for i := 0; i < total; i++ {
		rem := i
		srcIdx := 0
		for d := 0; d < ndim; d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			srcIdx += coord * inStrides[axes[d]]
		}
		copy(dst[i*elemSize:(i+1)*elemSize], src[srcIdx*elemSize:(srcIdx+1)*elemSize])
	}
	return result
}

// Expand broadcasts the tensor to a new shape.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	xShape := x.Shape()

	if len(newShape) < len(xShape) {
		panic(fmt.Sprintf("expand: new shape %v has fewer dimensions than input shape %v", newShape, xShape))
	}

	// Align shapes from the right: each input dim must equal the target dim
	// or be 1 (broadcastable).
	offset := len(newShape) - len(xShape)
	for i := 0; i < len(xShape); i++ {
		if xShape[i] != 1 && xShape[i] != newShape[offset+i] {
			panic(fmt.Sprintf("expand: cannot expand dimension %d from %d to %d", i, xShape[i], newShape[offset+i]))
		}
	}

	result, err := tensor.NewRaw(newShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("expand: %v", err))
	}

	inStrides := xShape.ComputeStrides()
	outStrides := newShape.ComputeStrides()
	total := newShape.NumElements()
	elemSize := x.DType().Size()
	src := x.Data()
	dst := result.Data()

	for i := 0; i < total; i++ {
		rem := i
		srcIdx := 0
		for d := 0; d < len(newShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			if xd := d - offset; xd >= 0 {
				srcIdx += (coord % xShape[xd]) * inStrides[xd]
			}
		}
		copy(dst[i*elemSize:(i+1)*elemSize], src[srcIdx*elemSize:(srcIdx+1)*elemSize])
	}
	return result
}
