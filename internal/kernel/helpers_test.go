package kernel_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/meadow-ml/meadow/internal/autodiff"
	"github.com/meadow-ml/meadow/internal/backend/cpu"
	"github.com/meadow-ml/meadow/internal/kernel"
	"github.com/meadow-ml/meadow/internal/operator"
	"github.com/meadow-ml/meadow/internal/tensor"
)

type Backend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func raw64(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	x := tensor.RawZeros(shape, tensor.Float64, tensor.CPU)
	copy(x.AsFloat64(), data)
	return x
}

func randRaw(t *testing.T, shape tensor.Shape, seed float64) *tensor.RawTensor {
	t.Helper()
	x := tensor.RawZeros(shape, tensor.Float64, tensor.CPU)
	data := x.AsFloat64()
	for i := range data {
		// Deterministic, irregular values.
		data[i] = math.Sin(seed + float64(i)*1.37)
	}
	return x
}

func assertClose(t *testing.T, got, want *tensor.RawTensor, tol float64) {
	t.Helper()
	if !got.Shape().Equal(want.Shape()) {
		t.Fatalf("shape %v, want %v", got.Shape(), want.Shape())
	}
	g, w := got.AsFloat64(), want.AsFloat64()
	for i := range w {
		if !scalar.EqualWithinAbs(g[i], w[i], tol) {
			t.Fatalf("element %d = %v, want %v (tol %v)", i, g[i], w[i], tol)
		}
	}
}

// countingKernel counts invocations; the memoization contract says
// forced evaluation invokes the kernel exactly once per node.
type countingKernel struct {
	kernel.Kernel
	calls int
}

func (c *countingKernel) Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, extra map[string]any) (operator.Value, error) {
	c.calls++
	return c.Kernel.Invoke(x1, x2, diag, lastDimIsBatch, extra)
}

// batchFreeKernel broadcasts over any batch shape, so batch indexing
// and batch expansion are both identities.
type batchFreeKernel struct {
	kernel.Kernel
}

func (k *batchFreeKernel) IndexBatch([]tensor.Index) (kernel.Kernel, error) {
	return k, nil
}

func (k *batchFreeKernel) ExpandBatch(tensor.Shape) (kernel.Kernel, error) {
	return k, nil
}

// multiOutKernel produces two rows and two columns per input point:
// entry (2i+a, 2j+b) is x1[i]·x2[j] + 10a + 100b. Only 2D inputs.
type multiOutKernel struct {
	kernel.BaseKernel
}

func (k *multiOutKernel) NumOutputsPerInput(_, _ *tensor.RawTensor) (int, int) {
	return 2, 2
}

func (k *multiOutKernel) Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, _ map[string]any) (operator.Value, error) {
	if diag || lastDimIsBatch || len(x1.Shape()) != 2 {
		panic("multiOutKernel: only plain 2D full-matrix evaluation is supported")
	}
	n, m := x1.Shape()[0], x2.Shape()[0]
	d := x1.Shape()[1]
	a, b := x1.AsFloat64(), x2.AsFloat64()

	out := tensor.RawZeros(tensor.Shape{2 * n, 2 * m}, tensor.Float64, tensor.CPU)
	dst := out.AsFloat64()
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			dot := 0.0
			for f := 0; f < d; f++ {
				dot += a[i*d+f] * b[j*d+f]
			}
			for oi := 0; oi < 2; oi++ {
				for oj := 0; oj < 2; oj++ {
					dst[(2*i+oi)*(2*m)+(2*j+oj)] = dot + 10*float64(oi) + 100*float64(oj)
				}
			}
		}
	}
	return operator.FromRaw(out), nil
}

// rowPairKernel emits two rows per left point, the inner product and
// its double, interleaved. The matrix is built entirely from backend
// operations so the gradient tape can follow it through checkpointed
// evaluation.
type rowPairKernel struct {
	kernel.BaseKernel
	backend Backend
}

func (k *rowPairKernel) NumOutputsPerInput(_, _ *tensor.RawTensor) (int, int) {
	return 2, 1
}

func (k *rowPairKernel) Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, _ map[string]any) (operator.Value, error) {
	if diag || lastDimIsBatch || len(x1.Shape()) != 2 {
		panic("rowPairKernel: only plain 2D full-matrix evaluation is supported")
	}
	b := k.backend
	dot := b.MatMul(x1, b.Transpose(x2, 1, 0))
	paired := b.Cat([]*tensor.RawTensor{
		b.Unsqueeze(dot, 1),
		b.Unsqueeze(b.MulScalar(dot, 2), 1),
	}, 1)
	out := b.Reshape(paired, tensor.Shape{2 * x1.Shape()[0], x2.Shape()[0]})
	return operator.FromRaw(out), nil
}

// sizedKernel exposes a direct size override on top of the usual
// protocol, which debug mode must reject.
type sizedKernel struct {
	kernel.Kernel
}

func (k *sizedKernel) Size(x1, x2 *tensor.RawTensor) tensor.Shape {
	return tensor.Shape{x1.Shape()[0] + 1, x2.Shape()[0]}
}

// misshapenKernel returns results of the wrong shape so debug-mode
// validation has something to catch.
type misshapenKernel struct {
	kernel.BaseKernel
}

func (k *misshapenKernel) Invoke(x1, x2 *tensor.RawTensor, diag, _ bool, _ map[string]any) (operator.Value, error) {
	if diag {
		return operator.FromRaw(tensor.RawZeros(tensor.Shape{x1.Shape()[0] + 1}, tensor.Float64, tensor.CPU)), nil
	}
	return operator.FromRaw(tensor.RawZeros(tensor.Shape{x1.Shape()[0] + 1, x2.Shape()[0]}, tensor.Float64, tensor.CPU)), nil
}

// dimRecordingKernel snapshots its active-dims setting at invocation
// time.
type dimRecordingKernel struct {
	kernel.Kernel
	seenDims [][]int
}

func (k *dimRecordingKernel) Invoke(x1, x2 *tensor.RawTensor, diag, lastDimIsBatch bool, extra map[string]any) (operator.Value, error) {
	dims := k.Kernel.ActiveDims()
	k.seenDims = append(k.seenDims, append([]int{}, dims...))
	return k.Kernel.Invoke(x1, x2, diag, lastDimIsBatch, extra)
}
