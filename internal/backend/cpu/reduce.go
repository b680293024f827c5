package cpu

import (
	"fmt"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// SumDim sums along a dimension. Supports negative dim indexing.
// With keepDim the reduced dimension stays as size 1.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	dim = normalizeDim("sum dim", dim, ndim)
	if !x.DType().IsFloatingPoint() {
		panic(fmt.Sprintf("sum dim: dtype %s is storage-only, cast to float32 or float64 first", x.DType()))
	}

	outShape := shape.Clone()
	outShape[dim] = 1
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sum dim: %v", err))
	}

	outer := shape[:dim].NumElements()
	reduce := shape[dim]
	inner := shape[dim+1:].NumElements()

	switch x.DType() {
	case tensor.Float32:
		sumDim(result.AsFloat32(), x.AsFloat32(), outer, reduce, inner)
	case tensor.Float64:
		sumDim(result.AsFloat64(), x.AsFloat64(), outer, reduce, inner)
	}

	if !keepDim {
		return cpu.Squeeze(result, dim)
	}
	return result
}

func sumDim[T float32 | float64](out, in []T, outer, reduce, inner int) {
	for o := 0; o < outer; o++ {
		for r := 0; r < reduce; r++ {
			base := (o*reduce + r) * inner
			outBase := o * inner
			for i := 0; i < inner; i++ {
				out[outBase+i] += in[base+i]
			}
		}
	}
}
