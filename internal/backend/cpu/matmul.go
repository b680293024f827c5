package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/meadow-ml/meadow/internal/parallel"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// MatMul performs 2D matrix multiplication via gonum BLAS GEMM.
// (M, K) @ (K, N) -> (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD (use BatchMatMul)", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("matmul: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: failed to create result tensor: %v", err))
	}

	switch a.DType() {
	case tensor.Float32:
		gemmFloat32(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n)
	case tensor.Float64:
		gemmFloat64(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

// BatchMatMul performs batched matrix multiplication for >=3D tensors.
// Batch dimensions must match; each batch slice is a GEMM call.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) < 3 || len(aShape) != len(bShape) {
		panic(fmt.Sprintf("batch matmul: expected matching >=3D shapes, got %v and %v", aShape, bShape))
	}
	batch := aShape[:len(aShape)-2]
	if !batch.Equal(bShape[:len(bShape)-2]) {
		panic(fmt.Sprintf("batch matmul: batch dims %v vs %v differ (expand first)", batch, bShape[:len(bShape)-2]))
	}

	m, k := aShape[len(aShape)-2], aShape[len(aShape)-1]
	kAlt, n := bShape[len(bShape)-2], bShape[len(bShape)-1]
	if k != kAlt {
		panic(fmt.Sprintf("batch matmul: inner dims %d vs %d differ", k, kAlt))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("batch matmul: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	outShape := append(batch.Clone(), m, n)
	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("batch matmul: failed to create result tensor: %v", err))
	}

	numBatches := batch.NumElements()
	// One GEMM per batch member is plenty of work per item; spread the
	// members across workers even when there are only a few.
	cfg := cpu.par
	cfg.MinChunkSize = 1
	switch a.DType() {
	case tensor.Float32:
		aData, bData, outData := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		parallel.For(numBatches, func(i int) {
			gemmFloat32(outData[i*m*n:(i+1)*m*n], aData[i*m*k:(i+1)*m*k], bData[i*k*n:(i+1)*k*n], m, k, n)
		}, cfg)
	case tensor.Float64:
		aData, bData, outData := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		parallel.For(numBatches, func(i int) {
			gemmFloat64(outData[i*m*n:(i+1)*m*n], aData[i*m*k:(i+1)*m*k], bData[i*k*n:(i+1)*k*n], m, k, n)
		}, cfg)
	default:
		panic(fmt.Sprintf("batch matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

// gemmFloat32 computes c = a @ b using BLAS SGEMM.
func gemmFloat32(c, a, b []float32, m, k, n int) {
	blas32.Implementation().Sgemm(blas.NoTrans, blas.NoTrans,
		m, n, k,
		1, a, k,
		b, n,
		0, c, n)
}

// gemmFloat64 computes c = a @ b using BLAS DGEMM.
func gemmFloat64(c, a, b []float64, m, k, n int) {
	blas64.Implementation().Dgemm(blas.NoTrans, blas.NoTrans,
		m, n, k,
		1, a, k,
		b, n,
		0, c, n)
}
