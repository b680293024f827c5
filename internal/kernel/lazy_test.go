package kernel_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadow-ml/meadow/internal/kernel"
	"github.com/meadow-ml/meadow/internal/tensor"
	"github.com/meadow-ml/meadow/settings"
)

func TestLazyKernelTensor_ShapeMatchesEvaluation(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.5, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{5, 3}, 0.1)
	x2 := randRaw(t, tensor.Shape{4, 3}, 0.9)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	size, err := node.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 4}, size)

	op, err := node.EvaluateKernel()
	require.NoError(t, err)
	assert.Equal(t, size, op.Shape())
}

func TestLazyKernelTensor_BatchShapeMatchesEvaluation(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 0.8, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{2, 5, 3}, 0.3)
	x2 := randRaw(t, tensor.Shape{2, 4, 3}, 1.3)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	size, err := node.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5, 4}, size)

	dense, err := node.ToDense()
	require.NoError(t, err)
	assert.Equal(t, size, dense.Shape())
}

// x1 batch (3,), x2 batch (), kernel batch (): the resolved batch is
// (3,) and evaluation succeeds without explicit expansion.
func TestLazyKernelTensor_BroadcastBatch(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{3, 5, 2}, 0.2)
	x2 := randRaw(t, tensor.Shape{4, 2}, 0.7)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	size, err := node.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 5, 4}, size)

	dense, err := node.ToDense()
	require.NoError(t, err)
	assert.Equal(t, size, dense.Shape())
}

func TestLazyKernelTensor_DiagonalMatchesDense(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.2, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{6, 2}, 0.4)
	x2 := randRaw(t, tensor.Shape{6, 2}, 2.1)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	diag, err := node.Diagonal()
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{6}, diag.Shape())

	// A second node: the first one memoizes and Diagonal would reuse
	// its own cache anyway, but the dense matrix must agree.
	other, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)
	dense, err := other.ToDense()
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		assert.InDelta(t, dense.AsFloat64()[i*6+i], diag.AsFloat64()[i], 1e-12, "diagonal entry %d", i)
	}
}

func TestLazyKernelTensor_EvaluationMemoized(t *testing.T) {
	backend := newBackend()
	counting := &countingKernel{Kernel: kernel.NewRBF(backend, 1.0, tensor.Float64)}

	x := randRaw(t, tensor.Shape{5, 2}, 0.5)
	node, err := kernel.NewLazyKernelTensor(x, x, counting, backend)
	require.NoError(t, err)

	first, err := node.EvaluateKernel()
	require.NoError(t, err)
	second, err := node.EvaluateKernel()
	require.NoError(t, err)
	assert.Same(t, first, second, "repeated evaluation must return the cached operator")

	_, err = node.ToDense()
	require.NoError(t, err)
	assert.Equal(t, 1, counting.calls, "evaluation must invoke the kernel exactly once")
}

func TestLazyKernelTensor_InvalidArguments(t *testing.T) {
	backend := newBackend()
	counting := &countingKernel{Kernel: kernel.NewRBF(backend, 1.0, tensor.Float64)}
	x := randRaw(t, tensor.Shape{4, 2}, 0.1)

	var argErr *kernel.InvalidArgumentTypeError

	_, err := kernel.NewLazyKernelTensor(nil, x, counting, backend)
	require.ErrorAs(t, err, &argErr)

	vec := randRaw(t, tensor.Shape{4}, 0.2)
	_, err = kernel.NewLazyKernelTensor(x, vec, counting, backend)
	require.ErrorAs(t, err, &argErr)

	half := tensor.RawZeros(tensor.Shape{4, 2}, tensor.Float16, tensor.CPU)
	_, err = kernel.NewLazyKernelTensor(half, x, counting, backend)
	require.ErrorAs(t, err, &argErr)

	assert.Zero(t, counting.calls, "validation failures must precede any kernel invocation")
}

func TestLazyKernelTensor_FeatureDimMismatch(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{4, 3}, 0.1)
	x2 := randRaw(t, tensor.Shape{4, 2}, 0.2)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	_, err = node.Size()
	var shapeErr *kernel.IncompatibleShapeError
	require.ErrorAs(t, err, &shapeErr)
}

func TestLazyKernelTensor_IncompatibleBatches(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{2, 4, 3}, 0.1)
	x2 := randRaw(t, tensor.Shape{3, 4, 3}, 0.2)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	_, err = node.Size()
	var shapeErr *kernel.IncompatibleShapeError
	require.ErrorAs(t, err, &shapeErr)
}

func TestLazyKernelTensor_ConflictingShapeDefinition(t *testing.T) {
	backend := newBackend()
	conflicted := &sizedKernel{Kernel: kernel.NewRBF(backend, 1.0, tensor.Float64)}
	x := randRaw(t, tensor.Shape{4, 2}, 0.3)

	defer settings.SetDebug(true)()
	node, err := kernel.NewLazyKernelTensor(x, x, conflicted, backend)
	require.NoError(t, err)

	_, err = node.Size()
	var confErr *kernel.ConflictingShapeDefinitionError
	require.ErrorAs(t, err, &confErr)
}

func TestLazyKernelTensor_DebugShapeChecks(t *testing.T) {
	backend := newBackend()
	bad := &misshapenKernel{}
	x := randRaw(t, tensor.Shape{4, 2}, 0.3)

	// Without debug the wrong shapes pass through unchecked.
	node, err := kernel.NewLazyKernelTensor(x, x, bad, backend)
	require.NoError(t, err)
	_, err = node.Diagonal()
	require.NoError(t, err)
	_, err = node.EvaluateKernel()
	require.NoError(t, err)

	defer settings.SetDebug(true)()

	node, err = kernel.NewLazyKernelTensor(x, x, bad, backend)
	require.NoError(t, err)
	_, err = node.Diagonal()
	var diagErr *kernel.KernelDiagonalShapeError
	require.ErrorAs(t, err, &diagErr)

	_, err = node.EvaluateKernel()
	var evalErr *kernel.EvaluationShapeMismatchError
	require.ErrorAs(t, err, &evalErr)
}

func TestLazyKernelTensor_TransposeLaw(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 0.9, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{5, 2}, 0.6)
	x2 := randRaw(t, tensor.Shape{3, 2}, 1.6)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	transposed, err := node.Transpose().ToDense()
	require.NoError(t, err)

	dense, err := node.ToDense()
	require.NoError(t, err)
	want := backend.Transpose(dense, 1, 0)

	assertClose(t, transposed, want, 1e-12)
}

func TestLazyKernelTensor_UnsqueezeBatch(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x := randRaw(t, tensor.Shape{4, 2}, 0.7)
	node, err := kernel.NewLazyKernelTensor(x, x, k, backend)
	require.NoError(t, err)

	up, err := node.UnsqueezeBatch(0)
	require.NoError(t, err)
	size, err := up.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4, 4}, size)

	upDense, err := up.ToDense()
	require.NoError(t, err)
	flat, err := node.ToDense()
	require.NoError(t, err)
	assertClose(t, upDense, backend.Unsqueeze(flat, 0), 1e-12)
}

func TestLazyKernelTensor_RepeatTilesRows(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x1 := randRaw(t, tensor.Shape{2, 2}, 0.8)
	x2 := randRaw(t, tensor.Shape{3, 2}, 1.8)
	node, err := kernel.NewLazyKernelTensor(x1, x2, k, backend)
	require.NoError(t, err)

	tiled, err := node.Repeat(2, 1)
	require.NoError(t, err)
	size, err := tiled.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, size)

	dense, err := node.ToDense()
	require.NoError(t, err)
	want := backend.Cat([]*tensor.RawTensor{dense, dense}, 0)

	tiledDense, err := tiled.ToDense()
	require.NoError(t, err)
	assertClose(t, tiledDense, want, 1e-12)
}

func TestLazyKernelTensor_ActiveDimsClearedDuringEvaluation(t *testing.T) {
	backend := newBackend()
	inner := kernel.NewRBF(backend, 1.0, tensor.Float64)
	recorder := &dimRecordingKernel{Kernel: inner}
	recorder.SetActiveDims([]int{0})

	x := randRaw(t, tensor.Shape{4, 2}, 0.9)
	node, err := kernel.NewLazyKernelTensor(x, x, recorder, backend)
	require.NoError(t, err)

	_, err = node.EvaluateKernel()
	require.NoError(t, err)

	require.Len(t, recorder.seenDims, 1)
	assert.Empty(t, recorder.seenDims[0], "active dims must be cleared during forced evaluation")
	assert.Equal(t, []int{0}, recorder.ActiveDims(), "active dims must be restored afterwards")
}

func TestApply_RespectsLazySetting(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)
	x := randRaw(t, tensor.Shape{4, 2}, 1.0)

	val, err := kernel.Apply(k, x, x, backend)
	require.NoError(t, err)
	require.True(t, val.IsOperator())
	_, isLazy := val.Operator(backend).(*kernel.LazyKernelTensor)
	assert.True(t, isLazy, "lazy mode must defer evaluation")

	defer settings.SetLazilyEvaluateKernels(false)()
	val, err = kernel.Apply(k, x, x, backend)
	require.NoError(t, err)
	_, isLazy = val.Operator(backend).(*kernel.LazyKernelTensor)
	assert.False(t, isLazy, "with lazy evaluation off the kernel must be forced")
}

func TestLazyKernelTensor_RequiresGrad(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)
	x := randRaw(t, tensor.Shape{4, 2}, 1.1)

	node, err := kernel.NewLazyKernelTensor(x, x, k, backend)
	require.NoError(t, err)
	assert.True(t, node.RequiresGrad(), "rbf lengthscale tracks gradients by default")

	node.SetRequiresGrad(false)
	assert.False(t, node.RequiresGrad())
	assert.False(t, k.Lengthscale().RequiresGrad)

	node.SetRequiresGrad(true)
	assert.True(t, node.RequiresGrad())
}

func TestLazyKernelTensor_LastDimIsBatch(t *testing.T) {
	backend := newBackend()
	k := kernel.NewRBF(backend, 1.0, tensor.Float64)

	x := randRaw(t, tensor.Shape{4, 3}, 1.2)
	node, err := kernel.NewLazyKernelTensor(x, x, k, backend, kernel.WithLastDimIsBatch())
	require.NoError(t, err)

	size, err := node.Size()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 4, 4}, size)

	dense, err := node.ToDense()
	require.NoError(t, err)
	assert.Equal(t, size, dense.Shape())

	diag, err := node.Diagonal()
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 4}, diag.Shape())
}

func TestLazyKernelTensor_ErrorsAreTyped(t *testing.T) {
	err := error(&kernel.CheckpointingDisabledError{Op: "matmul"})
	var chkErr *kernel.CheckpointingDisabledError
	assert.True(t, errors.As(err, &chkErr))
	assert.Contains(t, err.Error(), "checkpointed matmul")
}
