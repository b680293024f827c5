package cpu

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/meadow-ml/meadow/internal/tensor"
)

// Cast converts x to a different data type. Float16 round-trips through
// IEEE 754 half-precision conversion.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cast: %v", err))
	}

	n := x.NumElements()
	// Read through float64 as the widest intermediate.
	at := func(i int) float64 {
		switch x.DType() {
		case tensor.Float32:
			return float64(x.AsFloat32()[i])
		case tensor.Float64:
			return x.AsFloat64()[i]
		case tensor.Float16:
			return float64(x.AsFloat16()[i].Float32())
		default:
			panic(fmt.Sprintf("cast: unsupported source dtype %s", x.DType()))
		}
	}

	switch dtype {
	case tensor.Float32:
		out := result.AsFloat32()
		for i := 0; i < n; i++ {
			out[i] = float32(at(i))
		}
	case tensor.Float64:
		out := result.AsFloat64()
		for i := 0; i < n; i++ {
			out[i] = at(i)
		}
	case tensor.Float16:
		out := result.AsFloat16()
		for i := 0; i < n; i++ {
			out[i] = float16.Fromfloat32(float32(at(i)))
		}
	default:
		panic(fmt.Sprintf("cast: unsupported target dtype %s", dtype))
	}
	return result
}
