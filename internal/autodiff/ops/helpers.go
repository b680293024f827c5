package ops

import (
	"fmt"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// If shapes already match, clone to avoid aliasing issues
	// (prevents inplace operations from modifying shared gradients).
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	// Sum away leading dimensions the target doesn't have.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	// Sum along dimensions where the target is 1.
	for i := 0; i < len(targetShape); i++ {
		if targetShape[i] == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// foldToShape sums a gradient over tiled/broadcast positions back onto the
// original shape. This is the shared backward of Repeat and Expand: each
// output coordinate maps to input coordinate (coord % inDim), so the fold
// accumulates every tile into the input gradient.
func foldToShape(grad *tensor.RawTensor, inShape tensor.Shape) *tensor.RawTensor {
	outShape := grad.Shape()
	if len(inShape) > len(outShape) {
		panic(fmt.Sprintf("fold: input shape %v has more dimensions than gradient %v", inShape, outShape))
	}

	result := tensor.RawZeros(inShape, grad.DType(), grad.Device())

	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	offset := len(outShape) - len(inShape)
	total := outShape.NumElements()

	switch grad.DType() {
	case tensor.Float32:
		fold(result.AsFloat32(), grad.AsFloat32(), outShape, inShape, outStrides, inStrides, offset, total)
	case tensor.Float64:
		fold(result.AsFloat64(), grad.AsFloat64(), outShape, inShape, outStrides, inStrides, offset, total)
	default:
		panic(fmt.Sprintf("fold: unsupported dtype %s", grad.DType()))
	}
	return result
}

func fold[T float32 | float64](out, grad []T, outShape, inShape tensor.Shape, outStrides, inStrides []int, offset, total int) {
	for i := 0; i < total; i++ {
		rem := i
		inIdx := 0
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			if id := d - offset; id >= 0 {
				inIdx += (coord % inShape[id]) * inStrides[id]
			}
		}
		out[inIdx] += grad[i]
	}
}

// swapLastTwo returns a transpose axes permutation swapping the trailing
// matrix dimensions of an ndim tensor.
func swapLastTwo(ndim int) []int {
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	return axes
}
