package tensor

import (
	"fmt"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	dtype := inferDataType(dummy)

	raw, err := NewRaw(shape, dtype, b.Device())
	if err != nil {
		panic(err) // Shape validation should prevent this
	}

	// Data is already zero-initialized by make()
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with a specific value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor filled with random values from standard normal
// distribution N(0, 1). Only float32 and float64 are supported.
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	switch t.DType() {
	case Float32:
		data := t.raw.AsFloat32()
		for i := range data {
			data[i] = float32(rand.NormFloat64())
		}
	case Float64:
		data := t.raw.AsFloat64()
		for i := range data {
			data[i] = rand.NormFloat64()
		}
	default:
		panic(fmt.Sprintf("randn: unsupported dtype %s", t.DType()))
	}
	return t
}

// Eye creates a 2D identity matrix.
func Eye[T DType, B Backend](n int, b B) *Tensor[T, B] {
	t := Zeros[T, B](Shape{n, n}, b)
	for i := 0; i < n; i++ {
		t.Set(1, i, i)
	}
	return t
}

// RawZeros creates a zero-filled RawTensor, panicking on invalid shapes.
// Low-level convenience for gradient accumulation code.
func RawZeros(shape Shape, dtype DataType, device Device) *RawTensor {
	raw, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("raw zeros: %v", err))
	}
	return raw
}

// RawOnes creates a ones-filled RawTensor, panicking on invalid shapes
// or non-arithmetic dtypes. Used for gradient seeds.
func RawOnes(shape Shape, dtype DataType, device Device) *RawTensor {
	raw := RawZeros(shape, dtype, device)
	switch dtype {
	case Float32:
		data := raw.AsFloat32()
		for i := range data {
			data[i] = 1
		}
	case Float64:
		data := raw.AsFloat64()
		for i := range data {
			data[i] = 1
		}
	default:
		panic(fmt.Sprintf("raw ones: unsupported dtype %s", dtype))
	}
	return raw
}
