package kernel

import (
	"k8s.io/klog/v2"

	"github.com/meadow-ml/meadow/internal/memoize"
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
	"github.com/meadow-ml/meadow/settings"
)

// LazyKernelTensor represents the kernel matrix K(x1, x2) as a deferred
// computation. It knows its shape, diagonal, sub-blocks, and matvec
// products without materializing the full matrix; structural transforms
// (indexing, transpose, batch unsqueeze, repeat) rewrite the inputs and
// return new lazy nodes rather than touching matrix data.
//
// A node is immutable after construction, except for the scoped
// clearing of the kernel's active-dims during forced evaluation. Size,
// diagonal, and forced evaluation are each computed at most once per
// node and cached for its lifetime.
//
// LazyKernelTensor implements operator.LinearOperator.
type LazyKernelTensor struct {
	x1             *tensor.RawTensor // row inputs (...batch, n, d)
	x2             *tensor.RawTensor // column inputs (...batch, m, d)
	kern           Kernel
	lastDimIsBatch bool
	extra          map[string]any
	backend        tensor.Backend

	cache memoize.Cache
}

// Option configures a LazyKernelTensor at construction.
type Option func(*LazyKernelTensor)

// WithLastDimIsBatch reinterprets the trailing feature dimension as an
// extra batch dimension in the output.
func WithLastDimIsBatch() Option {
	return func(t *LazyKernelTensor) { t.lastDimIsBatch = true }
}

// WithExtraParams forwards auxiliary keyword arguments to the kernel on
// every invocation.
func WithExtraParams(extra map[string]any) Option {
	return func(t *LazyKernelTensor) { t.extra = extra }
}

// NewLazyKernelTensor builds a lazy node over two point batches and a
// kernel. x1 and x2 must be concrete floating-point arrays with at
// least two dimensions; anything else fails with
// InvalidArgumentTypeError before the kernel is ever invoked.
func NewLazyKernelTensor(x1, x2 *tensor.RawTensor, kern Kernel, backend tensor.Backend, opts ...Option) (*LazyKernelTensor, error) {
	if err := validatePointBatch("x1", x1); err != nil {
		return nil, err
	}
	if err := validatePointBatch("x2", x2); err != nil {
		return nil, err
	}
	if kern == nil {
		return nil, &InvalidArgumentTypeError{Arg: "kernel", Reason: "must not be nil"}
	}

	t := &LazyKernelTensor{
		x1:      x1,
		x2:      x2,
		kern:    kern,
		backend: backend,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func validatePointBatch(name string, x *tensor.RawTensor) error {
	if x == nil {
		return &InvalidArgumentTypeError{Arg: name, Reason: "must be a concrete numeric array, got nil"}
	}
	if len(x.Shape()) < 2 {
		return &InvalidArgumentTypeError{Arg: name, Reason: "point batches need at least (num_points, feature_dim) dimensions, got shape " + x.Shape().String()}
	}
	if !x.DType().IsFloatingPoint() {
		return &InvalidArgumentTypeError{Arg: name, Reason: "point batches must use a floating-point compute dtype, got " + x.DType().String()}
	}
	return nil
}

// X1 returns the row inputs.
func (t *LazyKernelTensor) X1() *tensor.RawTensor { return t.x1 }

// X2 returns the column inputs.
func (t *LazyKernelTensor) X2() *tensor.RawTensor { return t.x2 }

// Kernel returns the kernel handle.
func (t *LazyKernelTensor) Kernel() Kernel { return t.kern }

// LastDimIsBatch reports whether the trailing feature dimension is
// treated as a batch dimension in the output.
func (t *LazyKernelTensor) LastDimIsBatch() bool { return t.lastDimIsBatch }

// DType returns the element type of the kernel matrix.
func (t *LazyKernelTensor) DType() tensor.DataType { return t.x1.DType() }

// Device returns where the inputs live.
func (t *LazyKernelTensor) Device() tensor.Device { return t.x1.Device() }

// Size resolves the logical kernel matrix shape from the input shapes,
// the kernel batch shape, and the outputs-per-input factors, without
// invoking the kernel function. The result is memoized.
func (t *LazyKernelTensor) Size() (tensor.Shape, error) {
	return memoize.Get(&t.cache, "size", t.resolveSize)
}

// Shape returns the resolved matrix shape. It panics if the shapes are
// incompatible; use Size to observe the error.
func (t *LazyKernelTensor) Shape() tensor.Shape {
	s, err := t.Size()
	if err != nil {
		panic(err)
	}
	return s
}

func (t *LazyKernelTensor) resolveSize() (tensor.Shape, error) {
	if settings.Debug() {
		if _, conflict := t.kern.(Sizer); conflict {
			return nil, &ConflictingShapeDefinitionError{Kernel: kernelName(t.kern)}
		}
	}

	x1Shape, x2Shape := t.x1.Shape(), t.x2.Shape()
	kernBatch := t.kern.BatchShape()

	if x1Shape[len(x1Shape)-1] != x2Shape[len(x2Shape)-1] {
		return nil, &IncompatibleShapeError{
			X1: x1Shape, X2: x2Shape, Kernel: kernBatch,
			Reason: "feature dimensions differ",
		}
	}

	rowFactor, colFactor := t.kern.NumOutputsPerInput(t.x1, t.x2)
	numRows := x1Shape[len(x1Shape)-2] * rowFactor
	numCols := x2Shape[len(x2Shape)-2] * colFactor

	batch, err := t.inputBatchShape()
	if err != nil {
		return nil, err
	}

	if t.lastDimIsBatch {
		// The feature dimension moves in front of the (row, col) pair.
		batch = append(batch, x1Shape[len(x1Shape)-1])
	}
	return append(batch, numRows, numCols), nil
}

// inputBatchShape broadcasts the x1, x2, and kernel batch shapes. The
// common case of identical shapes skips the general broadcast.
func (t *LazyKernelTensor) inputBatchShape() (tensor.Shape, error) {
	x1Batch := t.x1.Shape().Batch()
	x2Batch := t.x2.Shape().Batch()
	kernBatch := t.kern.BatchShape()

	if x1Batch.Equal(x2Batch) && x1Batch.Equal(kernBatch) {
		return x1Batch.Clone(), nil
	}
	batch, _, err := tensor.BroadcastShapes(x1Batch, x2Batch, kernBatch)
	if err != nil {
		return nil, &IncompatibleShapeError{
			X1: t.x1.Shape(), X2: t.x2.Shape(), Kernel: kernBatch,
			Reason: "batch dimensions are not broadcastable",
		}
	}
	return batch, nil
}

// Diagonal computes only the matrix diagonal, invoking the kernel in
// diagonal mode directly rather than through forced evaluation. This
// is O(n) instead of O(n²) and is the path prediction-variance code
// relies on. The result is memoized.
func (t *LazyKernelTensor) Diagonal() (*tensor.RawTensor, error) {
	return memoize.Get(&t.cache, "diagonal", func() (*tensor.RawTensor, error) {
		val, err := t.kern.Invoke(t.x1, t.x2, true, t.lastDimIsBatch, t.extra)
		if err != nil {
			return nil, err
		}
		diag, err := val.Dense()
		if err != nil {
			return nil, err
		}

		if settings.Debug() {
			size, err := t.Size()
			if err != nil {
				return nil, err
			}
			want := size[:len(size)-1]
			if !diag.Shape().Equal(want) {
				return nil, &KernelDiagonalShapeError{Got: diag.Shape(), Want: want}
			}
		}
		return diag, nil
	})
}

// EvaluateKernel forces full evaluation: the kernel is invoked with
// lazy evaluation suspended (so nested lazy nodes inside composite
// kernels also evaluate) and its active-dims restriction temporarily
// cleared. The result is wrapped in a linear operator and memoized;
// repeated calls return the same operator.
func (t *LazyKernelTensor) EvaluateKernel() (operator.LinearOperator, error) {
	return memoize.Get(&t.cache, "kernel_eval", func() (operator.LinearOperator, error) {
		defer settings.SetLazilyEvaluateKernels(false)()

		var val operator.Value
		err := withActiveDimsCleared(t.kern, func() error {
			var invokeErr error
			val, invokeErr = t.kern.Invoke(t.x1, t.x2, false, t.lastDimIsBatch, t.extra)
			return invokeErr
		})
		if err != nil {
			return nil, err
		}
		op := val.Operator(t.backend)

		if settings.Debug() {
			size, err := t.Size()
			if err != nil {
				return nil, err
			}
			if !op.Shape().Equal(size) {
				return nil, &EvaluationShapeMismatchError{Got: op.Shape(), Want: size}
			}
		}
		klog.V(3).Infof("evaluated kernel matrix %v", op.Shape())
		return op, nil
	})
}

// ToDense forces evaluation and materializes the result. Memoized.
func (t *LazyKernelTensor) ToDense() (*tensor.RawTensor, error) {
	return memoize.Get(&t.cache, "to_dense", func() (*tensor.RawTensor, error) {
		op, err := t.EvaluateKernel()
		if err != nil {
			return nil, err
		}
		return op.ToDense()
	})
}

// Transpose swaps the roles of x1 and x2, producing the lazy node for
// K(x2, x1) without evaluating anything.
func (t *LazyKernelTensor) Transpose() operator.LinearOperator {
	out, err := NewLazyKernelTensor(t.x2, t.x1, t.kern, t.backend, t.carryOpts()...)
	if err != nil {
		// Inputs were validated when this node was built.
		panic(err)
	}
	return out
}

// UnsqueezeBatch inserts a new batch dimension into both inputs at the
// given position, producing a new lazy node.
func (t *LazyKernelTensor) UnsqueezeBatch(dim int) (*LazyKernelTensor, error) {
	if dim < 0 || dim > len(t.x1.Shape())-2 {
		return nil, &InvalidArgumentTypeError{Arg: "dim", Reason: "batch unsqueeze position must address a batch dimension"}
	}
	x1 := t.backend.Unsqueeze(t.x1, dim)
	x2 := t.backend.Unsqueeze(t.x2, dim)
	return NewLazyKernelTensor(x1, x2, t.kern, t.backend, t.carryOpts()...)
}

// Repeat tiles the kernel matrix: the trailing two factors tile rows
// and columns, leading factors tile batch dimensions in lock-step on
// both inputs. Returns a new lazy node.
func (t *LazyKernelTensor) Repeat(repeats ...int) (*LazyKernelTensor, error) {
	if len(repeats) < 2 {
		return nil, &InvalidArgumentTypeError{Arg: "repeats", Reason: "need at least row and column repeat factors"}
	}
	batchRep := repeats[:len(repeats)-2]
	rowRep := repeats[len(repeats)-2]
	colRep := repeats[len(repeats)-1]

	x1Rep := append(append([]int{}, batchRep...), rowRep, 1)
	x2Rep := append(append([]int{}, batchRep...), colRep, 1)
	x1 := t.backend.Repeat(t.x1, x1Rep)
	x2 := t.backend.Repeat(t.x2, x2Rep)
	return NewLazyKernelTensor(x1, x2, t.kern, t.backend, t.carryOpts()...)
}

// RequiresGrad reports whether any kernel parameter tracks gradients.
func (t *LazyKernelTensor) RequiresGrad() bool {
	for _, p := range t.kern.Params() {
		if p.RequiresGrad {
			return true
		}
	}
	return false
}

// SetRequiresGrad switches gradient tracking on every kernel parameter.
func (t *LazyKernelTensor) SetRequiresGrad(on bool) {
	for _, p := range t.kern.Params() {
		p.RequiresGrad = on
	}
}

// Representation returns the tensors gradients are expressed against.
// With checkpointing enabled this is the raw inputs and kernel
// parameters, since the checkpointed gradient path recomputes the
// matrix per chunk; otherwise it delegates to the evaluated operator.
func (t *LazyKernelTensor) Representation() []*tensor.RawTensor {
	if settings.CheckpointKernelChunkSize() > 0 {
		reps := []*tensor.RawTensor{t.x1, t.x2}
		for _, p := range t.kern.Params() {
			reps = append(reps, p.Value)
		}
		return reps
	}
	op, err := t.EvaluateKernel()
	if err != nil {
		panic(err)
	}
	return op.Representation()
}

// MatMul multiplies the kernel matrix by a dense right-hand side. With
// checkpointing enabled the product is computed in row chunks to bound
// peak memory; otherwise evaluation is forced once and delegated.
func (t *LazyKernelTensor) MatMul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	if chunk := settings.CheckpointKernelChunkSize(); chunk > 0 {
		return t.CheckpointedMatMul(rhs, chunk)
	}
	op, err := t.EvaluateKernel()
	if err != nil {
		return nil, err
	}
	return op.MatMul(rhs)
}

// BilinearDerivative computes gradients of tr(leftᵀ · K · right) with
// respect to Representation(). With checkpointing enabled the gradient
// accumulates chunk by chunk; otherwise it delegates to the evaluated
// operator.
func (t *LazyKernelTensor) BilinearDerivative(left, right *tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if chunk := settings.CheckpointKernelChunkSize(); chunk > 0 {
		return t.CheckpointedBilinearDerivative(left, right, chunk)
	}
	op, err := t.EvaluateKernel()
	if err != nil {
		return nil, err
	}
	return op.BilinearDerivative(left, right)
}

// carryOpts rebuilds the options of this node for a derived node.
func (t *LazyKernelTensor) carryOpts() []Option {
	opts := make([]Option, 0, 2)
	if t.lastDimIsBatch {
		opts = append(opts, WithLastDimIsBatch())
	}
	if t.extra != nil {
		opts = append(opts, WithExtraParams(t.extra))
	}
	return opts
}

func kernelName(k Kernel) string {
	type named interface{ Name() string }
	if n, ok := k.(named); ok {
		return n.Name()
	}
	return "kernel"
}
