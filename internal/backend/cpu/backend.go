// Package cpu implements the CPU backend with gonum BLAS for matrix products.
package cpu

import (
	"fmt"
	"math"

	"github.com/meadow-ml/meadow/internal/parallel"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// MulScalar multiplies every element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("mul scalar", x,
		func(v float32) float32 { return v * float32(scalar) },
		func(v float64) float64 { return v * scalar })
}

// AddScalar adds a scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	return cpu.unary("add scalar", x,
		func(v float32) float32 { return v + float32(scalar) },
		func(v float64) float64 { return v + scalar })
}

// Exp computes the element-wise exponential.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x,
		func(v float32) float32 { return float32(math.Exp(float64(v))) },
		math.Exp)
}

// Sqrt computes the element-wise square root.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x,
		func(v float32) float32 { return float32(math.Sqrt(float64(v))) },
		math.Sqrt)
}

// binary runs a broadcast-aware element-wise operation.
func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, f32 func(x, y float32) float32, f64 func(x, y float64) float64) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}
	if !a.DType().IsFloatingPoint() {
		panic(fmt.Sprintf("%s: dtype %s is storage-only, cast to float32 or float64 first", name, a.DType()))
	}

	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		binaryBroadcast(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), outShape, a.Shape(), b.Shape(), f32)
	case tensor.Float64:
		binaryBroadcast(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), outShape, a.Shape(), b.Shape(), f64)
	}
	return result
}

// unary runs an element-wise operation on a single tensor.
func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, f32 func(float32) float32, f64 func(float64) float64) *tensor.RawTensor {
	if !x.DType().IsFloatingPoint() {
		panic(fmt.Sprintf("%s: dtype %s is storage-only, cast to float32 or float64 first", name, x.DType()))
	}

	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		in, out := x.AsFloat32(), result.AsFloat32()
		parallel.For(len(in), func(i int) {
			out[i] = f32(in[i])
		}, cpu.par)
	case tensor.Float64:
		in, out := x.AsFloat64(), result.AsFloat64()
		parallel.For(len(in), func(i int) {
			out[i] = f64(in[i])
		}, cpu.par)
	}
	return result
}

// binaryBroadcast applies f element-wise, mapping each output position back
// to the (possibly broadcast) source positions.
func binaryBroadcast[T float32 | float64](out, a, b []T, outShape, aShape, bShape tensor.Shape, f func(T, T) T) {
	// Fast path: identical shapes, no index mapping needed.
	if aShape.Equal(outShape) && bShape.Equal(outShape) {
		for i := range out {
			out[i] = f(a[i], b[i])
		}
		return
	}

	outStrides := outShape.ComputeStrides()
	aStrides := aShape.ComputeStrides()
	bStrides := bShape.ComputeStrides()
	aOff := len(outShape) - len(aShape)
	bOff := len(outShape) - len(bShape)

	for i := range out {
		aIdx, bIdx := 0, 0
		rem := i
		for d := 0; d < len(outShape); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			if ad := d - aOff; ad >= 0 {
				aIdx += (coord % aShape[ad]) * aStrides[ad]
			}
			if bd := d - bOff; bd >= 0 {
				bIdx += (coord % bShape[bd]) * bStrides[bd]
			}
		}
		out[i] = f(a[aIdx], b[bIdx])
	}
}
