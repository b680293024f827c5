// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient
// tracking capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Add, Mul, MatMul) implements backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	// Wrap any backend with autodiff
//	cpuBackend := cpu.New()
//	autodiffBackend := autodiff.New(cpuBackend)
//
//	// Record operations
//	autodiffBackend.Tape().StartRecording()
//	y := autodiffBackend.Mul(x, x) // y = x²
//
//	// Compute gradients
//	grads := autodiffBackend.Tape().Backward(ones, autodiffBackend)
package autodiff

import (
	"github.com/meadow-ml/meadow/internal/autodiff/ops"
	"github.com/meadow-ml/meadow/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// GetTape returns the tape as part of the TapeHolder interface, so
// callers holding a tensor.Backend can pause recording without knowing
// the concrete backend type.
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	// CRITICAL: Prevent inplace modification that would corrupt the graph.
	// Temporarily increase refCount so IsUnique() returns false, forcing
	// the inner backend to allocate a new result.
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Add(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(a, c, result))
	}

	return result
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Sub(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSubOp(a, c, result))
	}

	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Mul(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulOp(a, c, result))
	}

	return result
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Div(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewDivOp(a, c, result))
	}

	return result
}

// MatMul performs matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) MatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.MatMul(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMatMulOp(a, c, result))
	}

	return result
}

// BatchMatMul performs batched matrix multiplication and records the operation.
func (b *AutodiffBackend[B]) BatchMatMul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.BatchMatMul(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewBatchMatMulOp(a, c, result))
	}

	return result
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.MulScalar(x, scalar)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulScalarOp(x, result, scalar))
	}

	return result
}

// AddScalar adds a scalar and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.AddScalar(x, scalar)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddScalarOp(x, result))
	}

	return result
}

// Exp computes the element-wise exponential and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Exp(x)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewExpOp(x, result))
	}

	return result
}

// Sqrt computes the element-wise square root and records the operation.
func (b *AutodiffBackend[B]) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.Sqrt(x)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSqrtOp(x, result))
	}

	return result
}

// SumDim sums over one dimension and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.SumDim(x, dim, keepDim)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSumDimOp(x, result, dim, keepDim))
	}

	return result
}

// Reshape reshapes a tensor and records the operation.
//
// CRITICAL: Reshape must be recorded on tape. Without recording,
// gradients won't flow back to reshaped parameters.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Reshape(t, newShape)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}

	return result
}

// Transpose permutes tensor axes and records the operation.
//
// CRITICAL: Even though conceptually transpose is a "view", the underlying
// backend creates a new tensor. The operation must be recorded so
// gradients flow back to the original tensor.
func (b *AutodiffBackend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	// Handle default axes (reverse all dimensions)
	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	result := b.inner.Transpose(t, axes...)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewTransposeOp(t, result, axes))
	}

	return result
}

// Expand broadcasts a tensor to a larger shape and records the operation.
func (b *AutodiffBackend[B]) Expand(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Expand(t, newShape)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewExpandOp(t, result))
	}

	return result
}

// Cat concatenates tensors along a dimension and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	for _, t := range tensors {
		defer t.ForceNonUnique()()
	}

	result := b.inner.Cat(tensors, dim)

	if b.tape.IsRecording() {
		inputs := make([]*tensor.RawTensor, len(tensors))
		copy(inputs, tensors)
		b.tape.Record(ops.NewCatOp(inputs, result, dim))
	}

	return result
}

// Split splits a tensor into chunks and records the operation.
func (b *AutodiffBackend[B]) Split(t *tensor.RawTensor, splitSize, dim int) []*tensor.RawTensor {
	defer t.ForceNonUnique()()

	results := b.inner.Split(t, splitSize, dim)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSplitOp(t, results, dim))
	}

	return results
}

// Narrow takes a contiguous slice along a dimension and records the operation.
func (b *AutodiffBackend[B]) Narrow(t *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Narrow(t, dim, start, length)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewNarrowOp(t, result, dim, start, length))
	}

	return result
}

// Repeat tiles a tensor and records the operation.
func (b *AutodiffBackend[B]) Repeat(t *tensor.RawTensor, repeats []int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Repeat(t, repeats)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewRepeatOp(t, result))
	}

	return result
}

// IndexSelect gathers slices along a dimension and records the operation.
func (b *AutodiffBackend[B]) IndexSelect(t *tensor.RawTensor, dim int, indices []int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.IndexSelect(t, dim, indices)

	if b.tape.IsRecording() {
		idx := make([]int, len(indices))
		copy(idx, indices)
		b.tape.Record(ops.NewIndexSelectOp(t, result, dim, idx))
	}

	return result
}

// Unsqueeze inserts a size-1 dimension. Recorded as a reshape since
// element order is preserved.
func (b *AutodiffBackend[B]) Unsqueeze(t *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Unsqueeze(t, dim)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}

	return result
}

// Squeeze removes a size-1 dimension. Recorded as a reshape since
// element order is preserved.
func (b *AutodiffBackend[B]) Squeeze(t *tensor.RawTensor, dim int) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Squeeze(t, dim)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}

	return result
}

// Cast converts the tensor dtype. Not differentiated: kernels operate
// in a single working precision and casts only occur at the storage
// boundary.
func (b *AutodiffBackend[B]) Cast(t *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	defer t.ForceNonUnique()()
	return b.inner.Cast(t, dtype)
}
